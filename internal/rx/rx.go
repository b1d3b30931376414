// Package rx implements a byte-oriented regular expression engine: a
// preprocessing pass builds a bank of character sets and a token
// sequence, shunting-yard reorders it to postfix, a Thompson construction
// builds an NFA over that postfix, and a two-bitvector subset simulation
// runs it against input. The NFA's states live in a flat mem.Ints arena
// rather than as individually allocated nodes.
package rx

import (
	"fmt"

	"github.com/jcorbin/texttools/internal/mem"
)

// charset is a 256-bit membership set for a single byte value.
type charset [4]uint64

func (cs *charset) set(u byte)        { cs[u/64] |= 1 << (u % 64) }
func (cs *charset) clear(u byte)      { cs[u/64] &^= 1 << (u % 64) }
func (cs *charset) setAll()           { cs[0], cs[1], cs[2], cs[3] = ^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0) }
func (cs *charset) negate()           { cs[0], cs[1], cs[2], cs[3] = ^cs[0], ^cs[1], ^cs[2], ^cs[3] }
func (cs charset) has(u byte) bool    { return cs[u/64]&(1<<(u%64)) != 0 }

// transition tags stored in a state's t_a/t_b word. Character set
// operands are stored as transSetBase+index: transSetBase sits above the
// full byte range, mirroring the original's "values above UCHAR_MAX are
// char-set ids" scheme, so a set id can never collide with an operator
// byte or one of the fixed transition tags below.
const (
	transNone = iota
	transEpsilon
	transBOL
	transEOL
)

const transSetBase = 256

// SyntaxError reports a malformed pattern, distinct from a Go error
// originating from infrastructure (e.g. the state arena's size limits).
type SyntaxError struct{ msg string }

func (e *SyntaxError) Error() string { return "rx: syntax error: " + e.msg }

func syntaxErrorf(format string, args ...interface{}) error {
	return &SyntaxError{msg: fmt.Sprintf(format, args...)}
}

// Match describes a successful search result.
type Match struct {
	Offset int
	Length int
}

// Prog is a compiled pattern, ready to search or replace.
type Prog struct {
	charsets         []charset
	states           mem.Ints
	numStates        int
	start, end       int
	newlineSensitive bool
}

const concatCh = '.'

// preprocess scans pattern left-to-right, producing a bank of character
// sets and a token sequence of operator bytes and operand ids (operand
// ids are transSetBase+index, stored as int tokens; operators are the
// rune value of the operator byte, plus '^'/'$' which are operands
// carrying a read-status predicate rather than a literal set).
func preprocess(pattern string, newlineSensitive bool) (sets []charset, toks []int, err error) {
	p := []byte(pattern)
	i := 0
	addConcat := false

	readByte := func() (byte, bool) {
		if i >= len(p) {
			return 0, false
		}
		u := p[i]
		i++
		return u, true
	}

	newSet := func() int {
		sets = append(sets, charset{})
		return len(sets) - 1
	}

	emitOperand := func(id int) {
		if addConcat {
			toks = append(toks, concatCh)
		}
		toks = append(toks, transSetBase+id)
		addConcat = true
	}

	for idx := 0; idx < len(p); {
		ch := p[idx]
		switch {
		case ch == '\\':
			i = idx + 1
			u, ok := readByte()
			if !ok {
				return nil, nil, syntaxErrorf("dangling backslash")
			}
			switch u {
			case 't':
				u = '\t'
			case 'n':
				u = '\n'
			case 'r':
				u = '\r'
			case '0':
				u = 0
			case 'x':
				h0, ok := readByte()
				if !ok {
					return nil, nil, syntaxErrorf("truncated \\x escape")
				}
				h1, ok := readByte()
				if !ok {
					return nil, nil, syntaxErrorf("truncated \\x escape")
				}
				v, err := hexByte(h0, h1)
				if err != nil {
					return nil, nil, err
				}
				u = v
			}
			id := newSet()
			sets[id].set(u)
			emitOperand(id)
			idx = i

		case ch == '[':
			i = idx + 1
			u, ok := readByte()
			if !ok {
				return nil, nil, syntaxErrorf("unclosed set")
			}
			negate := false
			if u == '^' {
				negate = true
				u, ok = readByte()
				if !ok {
					return nil, nil, syntaxErrorf("unclosed set")
				}
			}
			id := newSet()
			sets[id].set(u)
			prev := u
			u, ok = readByte()
			if !ok {
				return nil, nil, syntaxErrorf("unclosed set")
			}
			for u != ']' {
				if u == '-' && i < len(p) && p[i] != ']' {
					hi, ok := readByte()
					if !ok {
						return nil, nil, syntaxErrorf("unclosed set")
					}
					for j := int(prev); j <= int(hi); j++ {
						sets[id].set(byte(j))
					}
				} else {
					sets[id].set(u)
					prev = u
				}
				u, ok = readByte()
				if !ok {
					return nil, nil, syntaxErrorf("unclosed set")
				}
			}
			if negate {
				sets[id].negate()
			}
			emitOperand(id)
			idx = i

		case ch == '*' || ch == '+' || ch == '?':
			toks = append(toks, int(ch))
			addConcat = true
			idx++

		case ch == '^' || ch == '$':
			if addConcat {
				toks = append(toks, concatCh)
			}
			toks = append(toks, int(ch))
			addConcat = true
			idx++

		case ch == '(':
			if addConcat {
				toks = append(toks, concatCh)
			}
			toks = append(toks, int(ch))
			addConcat = false
			idx++

		case ch == ')':
			toks = append(toks, int(ch))
			addConcat = true
			idx++

		case ch == '|':
			toks = append(toks, int(ch))
			addConcat = false
			idx++

		case ch == '.':
			id := newSet()
			sets[id].setAll()
			if newlineSensitive {
				sets[id].clear('\n')
			}
			emitOperand(id)
			idx++

		default:
			id := newSet()
			sets[id].set(ch)
			emitOperand(id)
			idx++
		}
	}

	return sets, toks, nil
}

func hexByte(h0, h1 byte) (byte, error) {
	v0, ok0 := hexDigitVal(h0)
	v1, ok1 := hexDigitVal(h1)
	if !ok0 || !ok1 {
		return 0, syntaxErrorf("invalid hex escape \\x%c%c", h0, h1)
	}
	return byte(v0<<4 | v1), nil
}

func hexDigitVal(h byte) (int, bool) {
	switch {
	case h >= '0' && h <= '9':
		return int(h - '0'), true
	case h >= 'a' && h <= 'f':
		return int(h-'a') + 10, true
	case h >= 'A' && h <= 'F':
		return int(h-'A') + 10, true
	}
	return 0, false
}

// isOperand reports whether token x is an operand (set id or anchor).
func isOperand(x int) bool { return x >= transSetBase || x == '^' || x == '$' }

// shuntingYard reorders an infix token sequence to postfix.
func shuntingYard(toks []int) ([]int, error) {
	var out []int
	var ops []int

	pop := func() int {
		h := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		return h
	}
	top := func() (int, bool) {
		if len(ops) == 0 {
			return 0, false
		}
		return ops[len(ops)-1], true
	}

	for _, x := range toks {
		if isOperand(x) {
			out = append(out, x)
			continue
		}
		switch x {
		case '(':
			ops = append(ops, x)
		case ')':
			for {
				h, ok := top()
				if !ok {
					return nil, syntaxErrorf("unmatched )")
				}
				if h == '(' {
					pop()
					break
				}
				out = append(out, pop())
			}
		case '*', '+', '?':
			for {
				h, ok := top()
				if !ok || h == '(' || h == concatCh || h == '|' {
					break
				}
				out = append(out, pop())
			}
			ops = append(ops, x)
		case concatCh:
			for {
				h, ok := top()
				if !ok || h == '(' || h == '|' {
					break
				}
				out = append(out, pop())
			}
			ops = append(ops, x)
		case '|':
			for {
				h, ok := top()
				if !ok || h == '(' {
					break
				}
				out = append(out, pop())
			}
			ops = append(ops, x)
		default:
			return nil, syntaxErrorf("invalid operator %q", rune(x))
		}
	}

	for len(ops) > 0 {
		h := pop()
		if h == '(' {
			return nil, syntaxErrorf("unmatched (")
		}
		out = append(out, h)
	}

	return out, nil
}

// nfaFrag is a fragment of the NFA under construction: start and end
// state indices.
type nfaFrag struct{ start, end int }

// stateArena wraps a mem.Ints as a 4-word-per-state NFA state array,
// with reuse of states freed by concatenation.
type stateArena struct {
	m        mem.Ints
	next     int
	reuse    int
	hasReuse bool
}

func (a *stateArena) alloc() int {
	if a.hasReuse {
		id := a.reuse
		a.hasReuse = false
		return id
	}
	id := a.next
	a.next++
	return id
}

func (a *stateArena) free(id int) error {
	a.reuse = id
	a.hasReuse = true
	return a.m.Stor(uint(id*4), transNone, 0, transNone, 0)
}

func (a *stateArena) set(id, tA, sa, tB, sb int) error {
	return a.m.Stor(uint(id*4), tA, sa, tB, sb)
}

func (a *stateArena) get(id int) (tA, sa, tB, sb int, err error) {
	var buf [4]int
	err = a.m.LoadInto(uint(id*4), buf[:])
	return buf[0], buf[1], buf[2], buf[3], err
}

// generateNFA runs Thompson's construction over a postfix token
// sequence, producing an NFA stored in the returned arena. maxStates,
// if non-zero, caps the arena's backing mem.Ints at maxStates*4 words
// (four transition words per state); exceeding it during construction
// fails with a mem.LimitError rather than growing without bound.
func generateNFA(postfix []int, maxStates uint) (start, end int, arena *stateArena, err error) {
	arena = &stateArena{}
	if maxStates > 0 {
		arena.m.Limit = maxStates * 4
	}
	var stack []nfaFrag

	popN := func(n int) []nfaFrag {
		s := stack[len(stack)-n:]
		stack = stack[:len(stack)-n]
		return s
	}

	for _, x := range postfix {
		switch {
		case isOperand(x):
			s := arena.alloc()
			e := arena.alloc()
			tA := x
			switch x {
			case '^':
				tA = transBOL
			case '$':
				tA = transEOL
			}
			if err := arena.set(s, tA, e, transNone, 0); err != nil {
				return 0, 0, nil, err
			}
			stack = append(stack, nfaFrag{s, e})

		case x == '*':
			if len(stack) < 1 {
				return 0, 0, nil, syntaxErrorf("* with no operand")
			}
			f := stack[len(stack)-1]
			ns := arena.alloc()
			ne := arena.alloc()
			if err := arena.set(f.end, transEpsilon, f.start, transEpsilon, ne); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(ns, transEpsilon, f.start, transEpsilon, ne); err != nil {
				return 0, 0, nil, err
			}
			stack[len(stack)-1] = nfaFrag{ns, ne}

		case x == '+':
			if len(stack) < 1 {
				return 0, 0, nil, syntaxErrorf("+ with no operand")
			}
			f := stack[len(stack)-1]
			ns := arena.alloc()
			ne := arena.alloc()
			if err := arena.set(ns, transEpsilon, f.start, transNone, 0); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(f.end, transEpsilon, f.start, transEpsilon, ne); err != nil {
				return 0, 0, nil, err
			}
			stack[len(stack)-1] = nfaFrag{ns, ne}

		case x == '?':
			if len(stack) < 1 {
				return 0, 0, nil, syntaxErrorf("? with no operand")
			}
			f := stack[len(stack)-1]
			ns := arena.alloc()
			ne := arena.alloc()
			if err := arena.set(ns, transEpsilon, f.start, transEpsilon, ne); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(f.end, transEpsilon, ne, transNone, 0); err != nil {
				return 0, 0, nil, err
			}
			stack[len(stack)-1] = nfaFrag{ns, ne}

		case x == concatCh:
			if len(stack) < 2 {
				return 0, 0, nil, syntaxErrorf("concat with < 2 operands")
			}
			two := popN(2)
			first, second := two[0], two[1]
			tA, sa, tB, sb, err := arena.get(second.start)
			if err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(first.end, tA, sa, tB, sb); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.free(second.start); err != nil {
				return 0, 0, nil, err
			}
			stack = append(stack, nfaFrag{first.start, second.end})

		case x == '|':
			if len(stack) < 2 {
				return 0, 0, nil, syntaxErrorf("| with < 2 operands")
			}
			two := popN(2)
			bottom, topFrag := two[0], two[1]
			ns := arena.alloc()
			ne := arena.alloc()
			if err := arena.set(ns, transEpsilon, topFrag.start, transEpsilon, bottom.start); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(topFrag.end, transEpsilon, ne, transNone, 0); err != nil {
				return 0, 0, nil, err
			}
			if err := arena.set(bottom.end, transEpsilon, ne, transNone, 0); err != nil {
				return 0, 0, nil, err
			}
			stack = append(stack, nfaFrag{ns, ne})

		default:
			return 0, 0, nil, syntaxErrorf("invalid postfix token %q", rune(x))
		}
	}

	if len(stack) != 1 {
		return 0, 0, nil, syntaxErrorf("malformed expression")
	}
	return stack[0].start, stack[0].end, arena, nil
}

// Compile builds a Prog from pattern. newlineSensitive controls whether
// '.' excludes '\n' and whether matching stops at end-of-line. The
// resulting NFA's state arena carries no size limit; for patterns from
// an untrusted source, prefer CompileLimited.
func Compile(pattern string, newlineSensitive bool) (*Prog, error) {
	return compile(pattern, newlineSensitive, 0)
}

// CompileLimited is Compile with a cap on the number of NFA states the
// construction may allocate, surfacing a mem.LimitError instead of
// growing the state arena without bound when pattern would need more
// than maxStates. This bounds NFA *construction* only; once compiled,
// a search or replace against a pathological pattern still runs to
// completion, matching spec §5's synchronous, uncancellable core.
func CompileLimited(pattern string, newlineSensitive bool, maxStates uint) (*Prog, error) {
	return compile(pattern, newlineSensitive, maxStates)
}

func compile(pattern string, newlineSensitive bool, maxStates uint) (*Prog, error) {
	sets, toks, err := preprocess(pattern, newlineSensitive)
	if err != nil {
		return nil, err
	}
	postfix, err := shuntingYard(toks)
	if err != nil {
		return nil, err
	}
	start, end, arena, err := generateNFA(postfix, maxStates)
	if err != nil {
		return nil, err
	}
	return &Prog{
		charsets:         sets,
		states:           arena.m,
		numStates:        arena.next,
		start:            start,
		end:              end,
		newlineSensitive: newlineSensitive,
	}, nil
}

// getState reads the four transition words of state i from the arena.
// A state that construction never wrote (such as the accepting end
// state), or one past a CompileLimited bound, reads as all-zero words,
// i.e. a state with no transitions; the load error is discarded.
func (p *Prog) getState(i int) (tA, sa, tB, sb int) {
	var buf [4]int
	_ = p.states.LoadInto(uint(i*4), buf[:])
	return buf[0], buf[1], buf[2], buf[3]
}

func (p *Prog) charsetHas(setID int, u byte) bool {
	idx := setID - transSetBase
	if idx < 0 || idx >= len(p.charsets) {
		return false
	}
	return p.charsets[idx].has(u)
}

// runNFA simulates the NFA against data starting at offset 0 of data,
// returning the longest match length or (0, false).
func (p *Prog) runNFA(data []byte, sol bool) (int, bool) {
	n := p.numStates
	active := make([]bool, n)
	next := make([]bool, n)
	active[p.start] = true

	pos := 0
	bestLen := -1

	for {
		eol := pos == len(data) || (p.newlineSensitive && data[pos] == '\n')

		for {
			copy(next, active)
			for i := 0; i < n; i++ {
				if !active[i] {
					continue
				}
				tA, sa, tB, sb := p.getState(i)
				if tA == transEpsilon || (sol && tA == transBOL) || (eol && tA == transEOL) {
					next[sa] = true
					if tB == transEpsilon {
						next[sb] = true
					}
				}
			}
			diff := false
			for i := 0; i < n; i++ {
				if active[i] != next[i] {
					diff = true
					break
				}
			}
			active, next = next, active
			if !diff {
				break
			}
		}

		if active[p.end] {
			bestLen = pos
		}

		activeCount := 0
		for i := 0; i < n; i++ {
			if active[i] {
				activeCount++
			}
		}
		if activeCount == 0 {
			break
		}
		if pos == len(data) {
			break
		}
		if p.newlineSensitive && eol {
			break
		}

		u := data[pos]
		pos++

		for i := range next {
			next[i] = false
		}
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			tA, sa, _, _ := p.getState(i)
			if tA >= transSetBase && p.charsetHas(tA, u) {
				next[sa] = true
			}
		}
		active, next = next, active
	}

	if bestLen >= 0 {
		return bestLen, true
	}
	return 0, false
}

// Search slides the match start forward from byte 0 of data, returning
// the first successful match.
func (p *Prog) Search(data []byte, startOfLine bool) (Match, bool) {
	start := 0
	sol := startOfLine
	for {
		if start != 0 {
			sol = p.newlineSensitive && data[start-1] == '\n'
		}
		if n, ok := p.runNFA(data[start:], sol); ok {
			return Match{Offset: start, Length: n}, true
		}
		if start == len(data) {
			break
		}
		start++
	}
	return Match{}, false
}

// preprocessReplacement expands the same escape vocabulary as patterns,
// but literally: no operators.
func preprocessReplacement(replacement string) ([]byte, error) {
	p := []byte(replacement)
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		u := p[i]
		if u == '\\' {
			i++
			if i >= len(p) {
				return nil, syntaxErrorf("dangling backslash in replacement")
			}
			u = p[i]
			switch u {
			case 't':
				u = '\t'
			case 'n':
				u = '\n'
			case 'r':
				u = '\r'
			case '0':
				u = 0
			case 'x':
				if i+2 >= len(p) {
					return nil, syntaxErrorf("truncated \\x escape in replacement")
				}
				v, err := hexByte(p[i+1], p[i+2])
				if err != nil {
					return nil, err
				}
				u = v
				i += 2
			}
		}
		out = append(out, u)
	}
	return out, nil
}

// Replace scans data for non-overlapping matches, substituting each with
// replacement. A zero-length match not immediately following another
// zero-length match still emits the replacement; to guarantee progress,
// the byte at a zero-length match position is copied through and the
// scan advances by one.
func (p *Prog) Replace(data []byte, replacement string) ([]byte, error) {
	repl, err := preprocessReplacement(replacement)
	if err != nil {
		return nil, err
	}

	var out []byte
	m := 0
	sol := true
	prevMatchWasZeroLength := false
	for {
		if m != 0 {
			sol = p.newlineSensitive && data[m-1] == '\n'
		}

		match, ok := p.Search(data[m:], sol)
		if !ok {
			break
		}

		out = append(out, data[m:m+match.Offset]...)
		if match.Length != 0 || !prevMatchWasZeroLength {
			out = append(out, repl...)
		}

		m += match.Offset + match.Length
		prevMatchWasZeroLength = match.Length == 0

		if m == len(data) {
			break
		}
		if match.Length == 0 {
			out = append(out, data[m])
			m++
			// the copied byte separates this match from the next one
			prevMatchWasZeroLength = false
		}
	}

	out = append(out, data[m:]...)
	return out, nil
}
