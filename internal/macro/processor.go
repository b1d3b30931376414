// Package macro implements the macro processor core: a streaming
// tokenizer over internal/streamio that recognizes quoted and commented
// regions, dispatches macro invocations (built-in or user-defined)
// through internal/symtab, and re-injects expansion results onto the
// input for further scanning, exactly as m4-family processors do.
package macro

import (
	"io"
	"strings"

	"github.com/jcorbin/texttools/internal/bytebuf"
	"github.com/jcorbin/texttools/internal/flushio"
	"github.com/jcorbin/texttools/internal/logio"
	"github.com/jcorbin/texttools/internal/panicerr"
	"github.com/jcorbin/texttools/internal/streamio"
	"github.com/jcorbin/texttools/internal/symtab"
)

const numDivs = 11

// divNegOne is the index backing the "-1" diversion bin: a write sink
// that is discarded at the top of every loop iteration.
const divNegOne = 10

const (
	defaultLeftComment  = "#"
	defaultRightComment = "\n"
	defaultLeftQuote    = "`"
	defaultRightQuote   = "'"
)

// callFrame tracks one active macro invocation: the binding snapshotted
// at call time, its finalized arguments, the argument currently being
// accumulated, and the bracket nesting depth used to find the call's
// closing paren among any parens appearing literally in its arguments.
type callFrame struct {
	name string
	fn   symtab.Func
	def  string
	hasDef bool

	args []string
	cur  bytebuf.Buffer

	bracketDepth int
}

// Processor holds all state of a single macro expansion run: its symbol
// table, input stack, diversion buffers, and quote/comment state.
type Processor struct {
	Table *symtab.Table
	Log   *logio.Logger

	input *streamio.Stack
	out   flushio.WriteFlusher

	diversions [numDivs]bytebuf.Buffer
	activeDiv  int

	leftQuote, rightQuote     string
	leftComment, rightComment string
	commentOn                bool
	quoteDepth                int

	calls []*callFrame

	wrap bytebuf.Buffer

	lineDirect     bool
	lastSourceName string
	lastSourceLine int

	exitSet bool
	exitVal int

	errorExit   bool
	warnToError bool
	traceOn     bool
	help        bool

	sysVal int
}

// New returns a Processor with the default quote/comment delimiters and
// the given number of hash buckets for its symbol table.
func New(numBuckets int) *Processor {
	p := &Processor{
		Table:        symtab.New(numBuckets),
		leftQuote:    defaultLeftQuote,
		rightQuote:   defaultRightQuote,
		leftComment:  defaultLeftComment,
		rightComment: defaultRightComment,
		commentOn:    true,
	}
	p.registerBuiltins()
	return p
}

// Run drives the tokenizer over in, writing expanded output to out (and,
// if given, teeing the same output to each of extra — e.g. a transcript
// file kept alongside the primary destination) until in is exhausted
// (after any m4wrap-deferred text has also run dry) or a builtin
// requests early exit. Each writer is wrapped in its own
// flushio.WriteFlusher so a file or other unbuffered sink gets batched
// writes, flushed here once the run ends (successfully or not) rather
// than left buffered. Run itself is wrapped in panicerr.Recover so
// that an internal panic surfaces as an error rather than crashing the
// caller.
func (p *Processor) Run(in *streamio.Stack, out io.Writer, extra ...io.Writer) error {
	p.input = in
	wfs := make([]flushio.WriteFlusher, 0, 1+len(extra))
	wfs = append(wfs, flushio.NewWriteFlusher(out))
	for _, w := range extra {
		wfs = append(wfs, flushio.NewWriteFlusher(w))
	}
	p.out = flushio.WriteFlushers(wfs...)
	err := panicerr.Recover("macro", p.run)
	if p.Log != nil && panicerr.IsPanic(err) {
		p.Log.Printf("panic", "%+v", err)
	}
	if ferr := p.out.Flush(); err == nil {
		err = ferr
	}
	return err
}

// ExitCode reports the value requested by m4exit, if any, and whether
// one was ever requested.
func (p *Processor) ExitCode() (int, bool) { return p.exitVal, p.exitSet }

// SetLineDirectives enables or disables emission of "#line" markers at
// the start of each output line whose source changed, for embedders
// that feed the result to a tool which understands them (e.g. a C
// preprocessor-style consumer). Off by default.
func (p *Processor) SetLineDirectives(on bool) { p.lineDirect = on }

// SetHelp puts every built-in into help mode: instead of running, a
// call prints its usage description to stderr and expands to nothing.
func (p *Processor) SetHelp(on bool) { p.help = on }

func (p *Processor) run() error {
	for !p.exitSet {
		if n := p.diversions[0].Len(); n > 0 && p.diversions[0].Bytes()[n-1] == '\n' {
			if err := p.diversions[0].FlushObuf(p.out, false); err != nil {
				return err
			}
		}
		p.diversions[divNegOne].Reset()

		if p.lineDirect {
			if err := p.maybeEmitLineDirective(); err != nil {
				return err
			}
		}

		b, err := p.input.ReadByte()
		if err != nil {
			if err != io.EOF {
				return err
			}
			if p.wrap.Len() > 0 {
				text := p.wrap.ObufToStr()
				p.input.PushSource(streamio.NewSource("m4wrap", strings.NewReader(text)))
				continue
			}
			break
		}
		p.input.UngetByte(b)

		if err := p.step(); err != nil {
			if p.errorExit {
				return err
			}
			if p.Log != nil {
				p.Log.ErrorIf(err)
			}
			if derr := p.input.DeleteToNewline(); derr != nil {
				return derr
			}
		}
	}

	for i := 0; i < divNegOne; i++ {
		if err := p.diversions[i].FlushObuf(p.out, false); err != nil {
			return err
		}
	}
	return nil
}

// maybeEmitLineDirective emits a "#line N \"name\"" marker when the
// active sink is at the start of a line and the input's current source
// has changed since the last emission, mirroring output_line_directive.
func (p *Processor) maybeEmitLineDirective() error {
	sink := p.sink()
	if n := sink.Len(); n > 0 && sink.Bytes()[n-1] != '\n' {
		return nil
	}
	cur := p.input.Current()
	if cur == nil {
		return nil
	}
	if cur.Name == p.lastSourceName {
		return nil
	}
	p.lastSourceName, p.lastSourceLine = cur.Name, cur.Line
	return sink.PutStr("#line " + itoa(cur.Line) + " \"" + cur.Name + "\"\n")
}

// sink returns the buffer that literal bytes and expansion results
// currently flow to: the innermost active call's argument accumulator,
// or the active diversion when no call is in progress.
func (p *Processor) sink() *bytebuf.Buffer {
	if n := len(p.calls); n > 0 {
		return &p.calls[n-1].cur
	}
	return &p.diversions[p.activeDiv]
}

func (p *Processor) top() *callFrame {
	if n := len(p.calls); n > 0 {
		return p.calls[n-1]
	}
	return nil
}

// step consumes and dispatches exactly one lexical unit from the input:
// a comment, a quote delimiter, an identifier (possibly a macro
// invocation), a call-structural byte ('(', ')', ','), or a single
// literal byte.
func (p *Processor) step() error {
	if p.commentOn && p.quoteDepth == 0 {
		matched, err := p.input.EatStringIfMatch(p.leftComment)
		if err != nil {
			return err
		}
		if matched {
			return p.copyComment()
		}
	}

	if p.leftQuote != "" {
		matched, err := p.input.EatStringIfMatch(p.leftQuote)
		if err != nil {
			return err
		}
		if matched {
			if p.quoteDepth > 0 {
				if err := p.sink().PutStr(p.leftQuote); err != nil {
					return err
				}
			}
			p.quoteDepth++
			return nil
		}
	}
	if p.quoteDepth > 0 && p.rightQuote != "" {
		matched, err := p.input.EatStringIfMatch(p.rightQuote)
		if err != nil {
			return err
		}
		if matched {
			p.quoteDepth--
			if p.quoteDepth > 0 {
				if err := p.sink().PutStr(p.rightQuote); err != nil {
					return err
				}
			}
			return nil
		}
	}

	b, err := p.input.ReadByte()
	if err != nil {
		return err
	}

	if p.quoteDepth > 0 {
		return p.sink().PutCh(b)
	}

	switch {
	case isWordStart(b):
		return p.scanWord(b)
	case b == '(':
		if f := p.top(); f != nil {
			f.bracketDepth++
		}
		return p.sink().PutCh(b)
	case b == ')':
		if f := p.top(); f != nil {
			f.bracketDepth--
			if f.bracketDepth == 0 {
				return p.endCall(f)
			}
		}
		return p.sink().PutCh(b)
	case b == ',':
		if f := p.top(); f != nil && f.bracketDepth == 1 {
			f.args = append(f.args, f.cur.ObufToStr())
			return p.input.EatWhitespace()
		}
		return p.sink().PutCh(b)
	default:
		return p.sink().PutCh(b)
	}
}

// copyComment passes a whole comment region, including its delimiters,
// through to the active sink verbatim.
func (p *Processor) copyComment() error {
	if err := p.sink().PutStr(p.leftComment); err != nil {
		return err
	}
	for {
		matched, err := p.input.EatStringIfMatch(p.rightComment)
		if err != nil {
			return err
		}
		if matched {
			return p.sink().PutStr(p.rightComment)
		}
		b, err := p.input.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := p.sink().PutCh(b); err != nil {
			return err
		}
	}
}

// scanWord reads a full identifier starting with first and either
// begins a macro invocation or copies the identifier through literally.
func (p *Processor) scanWord(first byte) error {
	buf := []byte{first}
	for {
		b, err := p.input.ReadByte()
		if err != nil {
			break
		}
		if !isWordCont(b) {
			p.input.UngetByte(b)
			break
		}
		buf = append(buf, b)
	}
	name := string(buf)

	e := p.Table.Lookup(name)
	if e == nil || (!e.HasDef && e.Fn == nil) {
		return p.sink().PutStr(name)
	}

	hasParen, err := p.input.EatStringIfMatch("(")
	if err != nil {
		return err
	}
	if !hasParen {
		return p.invoke(name, e, nil)
	}

	f := &callFrame{name: name, fn: e.Fn, def: e.Def, hasDef: e.HasDef, bracketDepth: 1}
	p.calls = append(p.calls, f)
	return p.input.EatWhitespace()
}

// endCall finalizes the call on top of the stack (its closing paren was
// just consumed), pops it, and dispatches its expansion.
func (p *Processor) endCall(f *callFrame) error {
	f.args = append(f.args, f.cur.ObufToStr())
	p.calls = p.calls[:len(p.calls)-1]
	return p.invoke(f.name, nil, f.args, withSnapshot(f))
}

type snapshot struct {
	fn     symtab.Func
	hasDef bool
	def    string
}

func withSnapshot(f *callFrame) *snapshot {
	return &snapshot{fn: f.fn, hasDef: f.hasDef, def: f.def}
}

// invoke dispatches a macro call to its built-in function or performs
// $-substitution into its user definition, then ungets the result onto
// the input so any macro calls it contains are themselves expanded, per
// m4's "expansion re-enters the tokenizer" rule. snap overrides the
// live table lookup with the binding captured when the call began, so a
// define/undefine nested inside the call's own arguments cannot change
// which function actually runs.
func (p *Processor) invoke(name string, e *symtab.Entry, args []string, snap ...*snapshot) error {
	var fn symtab.Func
	var def string
	var hasDef bool
	if len(snap) > 0 {
		fn, def, hasDef = snap[0].fn, snap[0].def, snap[0].hasDef
	} else {
		fn, def, hasDef = e.Fn, e.Def, e.HasDef
	}

	full := append([]string{name}, args...)

	if p.traceOn && p.Log != nil {
		p.Log.Printf("trace", "%s(%v)", name, args)
	}

	var result string
	var err error
	passThrough := false
	if fn != nil {
		result, err = fn(name, args)
		if pt, ok := err.(passThroughError); ok {
			passThrough = true
			err = pt.err
		}
	} else if hasDef {
		result, err = p.substituteArgs(def, full)
	}
	if err != nil {
		return err
	}

	if passThrough {
		return p.sink().PutStr(name)
	}
	if result != "" {
		p.input.UngetString(result)
	}
	return nil
}

// passThroughError wraps a builtin's request to have its own name
// emitted literally rather than have a result string rescanned, e.g.
// shift named without a parenthesized argument list.
type passThroughError struct{ err error }

func (p passThroughError) Error() string {
	if p.err != nil {
		return p.err.Error()
	}
	return "macro: pass through"
}

func passThrough() error { return passThroughError{} }

// substituteArgs expands $0-$9, $#, $*, and $@ in def against args (args[0]
// is the macro name, args[1:] its collected arguments), following m4.c's
// sub_args. $@ quotes each argument with the processor's live quote
// characters (changequote-able, unlike a fixed delimiter pair), and, per
// sub_args' accessed[NUM_ARGS] tracking, a call that never reads $* or
// $@ and leaves some $1-$9 unused warns about each one skipped.
func (p *Processor) substituteArgs(def string, args []string) (string, error) {
	numCollected := len(args) - 1
	var accessed [10]bool
	allAccessed := false

	var out strings.Builder
	for i := 0; i < len(def); i++ {
		if def[i] != '$' || i+1 >= len(def) {
			out.WriteByte(def[i])
			continue
		}
		switch c := def[i+1]; {
		case c >= '0' && c <= '9':
			idx := int(c - '0')
			accessed[idx] = true
			if idx > numCollected {
				if err := p.warn("uncollected argument number %d accessed", idx); err != nil {
					return "", err
				}
			} else if idx < len(args) {
				out.WriteString(args[idx])
			}
			i++
		case c == '#':
			out.WriteString(itoa(numCollected))
			i++
		case c == '*':
			allAccessed = true
			if len(args) > 1 {
				out.WriteString(strings.Join(args[1:], ","))
			}
			i++
		case c == '@':
			allAccessed = true
			if len(args) > 1 {
				rest := make([]string, len(args)-1)
				for j, a := range args[1:] {
					rest[j] = p.leftQuote + a + p.rightQuote
				}
				out.WriteString(strings.Join(rest, ","))
			}
			i++
		default:
			out.WriteByte('$')
		}
	}

	if !allAccessed {
		for i := 1; i <= numCollected; i++ {
			if i >= len(accessed) || !accessed[i] {
				if err := p.warn("collected argument number %d not accessed", i); err != nil {
					return "", err
				}
			}
		}
	}

	return out.String(), nil
}

func itoa(n int) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isWordStart(b byte) bool { return isAlpha(b) || b == '_' }
func isWordCont(b byte) bool  { return isAlpha(b) || isDigit(b) || b == '_' }
