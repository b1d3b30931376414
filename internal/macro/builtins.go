package macro

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jcorbin/texttools/internal/expr"
	"github.com/jcorbin/texttools/internal/rx"
	"github.com/jcorbin/texttools/internal/streamio"
	"github.com/jcorbin/texttools/internal/symtab"
)

// builtinSpec names a built-in's argument-count bounds and usage
// description alongside its implementation, mirroring m4.c's
// min_pars/max_pars/PAR_DESC trio. max of -1 means unbounded.
type builtinSpec struct {
	name     string
	min, max int
	desc     string
	fn       symtab.Func
}

// registerBuiltins installs the fixed builtin catalogue into p.Table.
// Each is a permanent binding (pushHist false): user code may still
// pushdef/popdef over a builtin's name, which is how m4 lets a script
// temporarily shadow one. Every entry is wrapped with its argument
// bounds and help text by wrapBuiltin.
func (p *Processor) registerBuiltins() {
	specs := []builtinSpec{
		{"define", 2, 2, "(name, replacement)", p.biDefine(false)},
		{"pushdef", 2, 2, "(name, replacement)", p.biDefine(true)},
		{"undefine", 1, 1, "(name)", p.biUndefine},
		{"popdef", 1, 1, "(name)", p.biPopdef},
		{"defn", 1, 1, "(name)", p.biDefn},
		{"dumpdef", 0, -1, "([name...])", p.biDumpdef},
		{"changecom", 0, 2, "([left[, right]])", p.biChangecom},
		{"changequote", 0, 2, "([left[, right]])", p.biChangequote},
		{"shift", 0, -1, "(arg...)", p.biShift},
		{"divert", 0, 1, "([n])", p.biDivert},
		{"undivert", 0, -1, "([n|file]...)", p.biUndivert},
		{"writediv", 1, 3, "(n, file[, append])", p.biWritediv},
		{"divnum", 0, 0, "()", p.biDivnum},
		{"include", 1, 1, "(file)", p.biInclude(true)},
		{"sinclude", 1, 1, "(file)", p.biInclude(false)},
		{"maketemp", 0, 1, "([pattern])", p.biMaketemp},
		{"mkstemp", 0, 1, "([pattern])", p.biMaketemp},
		{"dnl", 0, 0, "()", p.biDnl},
		{"tnl", 0, 0, "()", p.biTnl},
		{"regexrep", 3, 3, "(subject, pattern, replacement)", p.biRegexrep},
		{"lsdir", 0, 1, "([dir])", p.biLsdir},
		{"ifdef", 1, 3, "(name[, then[, else]])", p.biIfdef},
		{"ifelse", 0, -1, "(cond, then[, cond, then...][, default])", p.biIfelse},
		{"m4wrap", 1, 1, "(text)", p.biM4wrap},
		{"errprint", 0, -1, "(text...)", p.biErrprint},
		{"len", 1, 1, "(string)", p.biLen},
		{"substr", 2, 3, "(string, start[, length])", p.biSubstr},
		{"index", 2, 2, "(string, substring)", p.biIndex},
		{"translit", 2, 3, "(string, from[, to])", p.biTranslit},
		{"incr", 1, 1, "(number)", p.biIncr(1)},
		{"decr", 1, 1, "(number)", p.biIncr(-1)},
		{"eval", 1, 1, "(expr)", p.biEval},
		{"syscmd", 1, 1, "(command)", p.biSyscmd},
		{"esyscmd", 1, 1, "(command)", p.biEsyscmd},
		{"sysval", 0, 0, "()", p.biSysval},
		{"m4exit", 0, 1, "([code])", p.biM4exit},
		{"errok", 0, 0, "()", p.biErrMode(false)},
		{"errexit", 0, 0, "()", p.biErrMode(true)},
		{"warnok", 0, 0, "()", p.biWarnMode(false)},
		{"warnerr", 0, 0, "()", p.biWarnMode(true)},
		{"traceon", 0, 0, "()", p.biTraceon},
		{"traceoff", 0, 0, "()", p.biTraceoff},
		{"recrm", 1, 1, "(path)", p.biRecrm},
	}
	for _, s := range specs {
		p.Table.Upsert(s.name, "", false, p.wrapBuiltin(s), false)
	}
}

// wrapBuiltin enforces a built-in's argument-count bounds and honors
// help mode, mirroring m4.c's print_help/min_pars/max_pars macros: too
// few arguments is a usage error, too many is a warning (the extras
// are simply ignored by the underlying function), and help mode prints
// the usage description instead of running the built-in at all.
func (p *Processor) wrapBuiltin(s builtinSpec) symtab.Func {
	return func(name string, args []string) (string, error) {
		if p.help {
			fmt.Fprintf(os.Stderr, "%s%s\n", name, s.desc)
			return "", nil
		}
		if len(args) < s.min {
			return "", &Error{Kind: KindUsage, msg: name + ": required arguments not collected: " + s.desc}
		}
		if s.max >= 0 && len(args) > s.max {
			if err := p.warn("%s: unused arguments collected: %s", name, s.desc); err != nil {
				return "", err
			}
		}
		return s.fn(name, args)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// biDefine implements define/pushdef: both bind name to replacement
// text (or, via defn's transient slot, a builtin function pointer);
// pushdef additionally preserves any existing binding in history so a
// matching popdef can restore it.
func (p *Processor) biDefine(pushHist bool) symtab.Func {
	return func(_ string, args []string) (string, error) {
		name := arg(args, 0)
		if name == "" {
			return "", nil
		}
		if fn, ok := p.takeDefnFunc(arg(args, 1)); ok {
			p.Table.Upsert(name, "", false, fn, pushHist)
			return "", nil
		}
		p.Table.Upsert(name, arg(args, 1), true, nil, pushHist)
		return "", nil
	}
}

func (p *Processor) biUndefine(_ string, args []string) (string, error) {
	name := arg(args, 0)
	if !p.Table.Delete(name, false) {
		return "", p.warn("undefine: %s is not defined", name)
	}
	return "", nil
}

func (p *Processor) biPopdef(_ string, args []string) (string, error) {
	name := arg(args, 0)
	if !p.Table.Delete(name, true) {
		return "", p.warn("popdef: %s is not defined", name)
	}
	return "", nil
}

// defnSlotPrefix marks a builtin's function pointer handed from defn()
// to an immediately adjacent define()/pushdef() call, mirroring m4's
// "transient slot consumed only by an adjacent define/pushdef" rule.
// biDefn returns the slot quoted, so rescanning defn's expansion strips
// the quotes and leaves the slot text unchanged in the enclosing call's
// argument.
var defnSlotPrefix = "\x00builtin:"

func (p *Processor) takeDefnFunc(text string) (symtab.Func, bool) {
	if !strings.HasPrefix(text, defnSlotPrefix) {
		return nil, false
	}
	name := strings.TrimPrefix(text, defnSlotPrefix)
	e := p.Table.Lookup(name)
	if e == nil || e.Fn == nil {
		return nil, false
	}
	return e.Fn, true
}

// biDefn returns name's current replacement text, quoted, or (for a
// builtin) a transient reference consumed only by an adjacent
// define/pushdef.
func (p *Processor) biDefn(_ string, args []string) (string, error) {
	e := p.Table.Lookup(arg(args, 0))
	if e == nil {
		return "", nil
	}
	if e.Fn != nil {
		return p.leftQuote + defnSlotPrefix + e.Name + p.rightQuote, nil
	}
	return p.leftQuote + e.Def + p.rightQuote, nil
}

func (p *Processor) biDumpdef(_ string, args []string) (string, error) {
	var out strings.Builder
	for _, name := range args {
		e := p.Table.Lookup(name)
		if e == nil {
			continue
		}
		if e.Fn != nil {
			fmt.Fprintf(&out, "%s:\t<builtin>\n", name)
		} else {
			fmt.Fprintf(&out, "%s:\t%s\n", name, e.Def)
		}
	}
	if out.Len() > 0 {
		fmt.Fprint(os.Stderr, out.String())
	}
	return "", nil
}

// biChangecom sets the comment delimiters; called with no arguments it
// disables comment recognition entirely.
func (p *Processor) biChangecom(_ string, args []string) (string, error) {
	if len(args) == 0 {
		p.commentOn = false
		return "", nil
	}
	left, right := arg(args, 0), arg(args, 1)
	if err := p.validateQuoteOrComment("changecom", left); err != nil {
		return "", err
	}
	if len(args) > 1 {
		if err := p.validateQuoteOrComment("changecom", right); err != nil {
			return "", err
		}
		p.rightComment = right
	} else {
		p.rightComment = defaultRightComment
	}
	p.leftComment = left
	p.commentOn = true
	return "", nil
}

// biChangequote sets the quote delimiters; called with fewer than two
// arguments it resets both to their defaults.
func (p *Processor) biChangequote(_ string, args []string) (string, error) {
	if len(args) < 2 {
		p.leftQuote, p.rightQuote = defaultLeftQuote, defaultRightQuote
		return "", nil
	}
	left, right := arg(args, 0), arg(args, 1)
	if err := p.validateQuoteOrComment("changequote", left); err != nil {
		return "", err
	}
	if err := p.validateQuoteOrComment("changequote", right); err != nil {
		return "", err
	}
	p.leftQuote, p.rightQuote = left, right
	return "", nil
}

// biShift returns its arguments after the first, each individually
// quoted and comma-joined so that re-scanning reproduces them exactly
// as given rather than re-splitting on any commas they contain.
func (p *Processor) biShift(_ string, args []string) (string, error) {
	if len(args) == 0 {
		return "", passThrough()
	}
	rest := make([]string, len(args)-1)
	for i, a := range args[1:] {
		rest[i] = p.leftQuote + a + p.rightQuote
	}
	return strings.Join(rest, ","), nil
}

func (p *Processor) biDivert(_ string, args []string) (string, error) {
	if len(args) == 0 {
		p.activeDiv = 0
		return "", nil
	}
	n, err := strconv.Atoi(arg(args, 0))
	if err != nil {
		return "", &Error{Kind: KindSyntax, msg: "divert: not a number: " + arg(args, 0)}
	}
	switch {
	case n == -1:
		p.activeDiv = divNegOne
	case n >= 0 && n <= 9:
		p.activeDiv = n
	default:
		return "", &Error{Kind: KindSyntax, msg: "divert: out of range: " + arg(args, 0)}
	}
	return "", nil
}

// biUndivert appends a diversion's saved content (or, given a filename
// that doesn't parse as a diversion number, a file's content) into the
// currently active diversion, and clears the source diversion.
func (p *Processor) biUndivert(_ string, args []string) (string, error) {
	if len(args) == 0 {
		for i := 0; i < divNegOne; i++ {
			if i == p.activeDiv {
				continue
			}
			if err := p.diversions[p.activeDiv].PutObuf(&p.diversions[i]); err != nil {
				return "", err
			}
		}
		return "", nil
	}
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil && n >= 0 && n < divNegOne && n != p.activeDiv {
			if err := p.diversions[p.activeDiv].PutObuf(&p.diversions[n]); err != nil {
				return "", err
			}
			continue
		}
		if err := p.diversions[p.activeDiv].PutFile(a); err != nil {
			return "", err
		}
	}
	return "", nil
}

// biWritediv drains a diversion (never 0 or -1, the live/discard bins)
// to a named file.
func (p *Processor) biWritediv(_ string, args []string) (string, error) {
	n, err := strconv.Atoi(arg(args, 0))
	if err != nil || n <= 0 || n >= divNegOne {
		return "", &Error{Kind: KindSyntax, msg: "writediv: invalid diversion: " + arg(args, 0)}
	}
	appendMode := arg(args, 2) != ""
	return "", p.diversions[n].WriteObuf(arg(args, 1), appendMode)
}

func (p *Processor) biDivnum(_ string, _ []string) (string, error) {
	if p.activeDiv == divNegOne {
		return "-1", nil
	}
	return itoa(p.activeDiv), nil
}

func (p *Processor) biInclude(required bool) symtab.Func {
	return func(_ string, args []string) (string, error) {
		path := arg(args, 0)
		f, err := os.Open(path)
		if err != nil {
			if !required {
				return "", nil
			}
			return "", err
		}
		p.input.PushSource(streamio.NewSource(path, f))
		return "", nil
	}
}

func (p *Processor) biMaketemp(_ string, args []string) (string, error) {
	pattern := arg(args, 0)
	if pattern == "" {
		pattern = "m4"
	}
	f, err := os.CreateTemp("", pattern+"*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (p *Processor) biDnl(_ string, _ []string) (string, error) {
	return "", p.input.DeleteToNewline()
}

func (p *Processor) biTnl(_ string, _ []string) (string, error) {
	return "\n", nil
}

// biRegexrep applies a regular expression's replacement over its
// subject text, wiring the macro layer into the regex engine.
func (p *Processor) biRegexrep(_ string, args []string) (string, error) {
	prog, err := rx.Compile(arg(args, 1), false)
	if err != nil {
		return "", err
	}
	out, err := prog.Replace([]byte(arg(args, 0)), arg(args, 2))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (p *Processor) biLsdir(_ string, args []string) (string, error) {
	dir := arg(args, 0)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return strings.Join(names, "\n"), nil
}

func (p *Processor) biIfdef(_ string, args []string) (string, error) {
	if p.Table.Lookup(arg(args, 0)) != nil {
		return arg(args, 1), nil
	}
	return arg(args, 2), nil
}

// biIfelse implements both the two- and the chained multi-clause forms:
// (cond, then) pairs are tried in order, the final unpaired argument
// (if any) is the default.
func (p *Processor) biIfelse(_ string, args []string) (string, error) {
	i := 0
	for ; i+2 < len(args); i += 3 {
		if args[i] == args[i+1] {
			return args[i+2], nil
		}
	}
	if i < len(args) {
		return args[i], nil
	}
	return "", nil
}

func (p *Processor) biM4wrap(_ string, args []string) (string, error) {
	return "", p.wrap.PutStr(arg(args, 0))
}

func (p *Processor) biErrprint(_ string, args []string) (string, error) {
	fmt.Fprintln(os.Stderr, strings.Join(args, " "))
	return "", nil
}

func (p *Processor) biLen(_ string, args []string) (string, error) {
	return itoa(len(arg(args, 0))), nil
}

// biSubstr implements 1-indexed, optionally length-bounded substring
// extraction; indices outside the source clamp rather than error, but
// (per m4.c's substr builtin, "Index is out of bounds"/"Substring is
// out of bounds") warn when clamping actually discards something.
func (p *Processor) biSubstr(_ string, args []string) (string, error) {
	s := arg(args, 0)
	start, _ := strconv.Atoi(arg(args, 1))
	start--
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		if err := p.warn("substr: index is out of bounds"); err != nil {
			return "", err
		}
		start = len(s)
	}
	end := len(s)
	if lenArg := arg(args, 2); lenArg != "" {
		n, _ := strconv.Atoi(lenArg)
		if start+n < end {
			end = start + n
		} else if start+n > end {
			if err := p.warn("substr: substring is out of bounds"); err != nil {
				return "", err
			}
		}
	}
	if end < start {
		end = start
	}
	return s[start:end], nil
}

// biIndex reports the 0-indexed offset of the first occurrence of a
// substring, or -1 if absent; m4.c's own index() returns the same -1
// sentinel without warning, so this doesn't either.
func (p *Processor) biIndex(_ string, args []string) (string, error) {
	return itoa(strings.Index(arg(args, 0), arg(args, 1))), nil
}

// biTranslit maps each byte of its subject found in the "from" set to
// the byte at the same position in "to" (or deletes it, if "to" runs
// short); both sets support "a-z" style ranges, first match wins on any
// overlapping range.
func (p *Processor) biTranslit(_ string, args []string) (string, error) {
	from := expandRanges(arg(args, 1))
	to := expandRanges(arg(args, 2))

	var table [256]int16
	for i := range table {
		table[i] = -1
	}
	for i, c := range []byte(from) {
		if table[c] != -1 {
			continue
		}
		if i < len(to) {
			table[c] = int16(to[i])
		} else {
			table[c] = -2
		}
	}

	s := arg(args, 0)
	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch v := table[c]; {
		case v == -1:
			out.WriteByte(c)
		case v == -2:
		default:
			out.WriteByte(byte(v))
		}
	}
	return out.String(), nil
}

func expandRanges(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if i+2 < len(s) && s[i+1] == '-' && s[i+2] >= s[i] {
			for c := s[i]; c <= s[i+2]; c++ {
				out.WriteByte(c)
				if c == 255 {
					break
				}
			}
			i += 2
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func (p *Processor) biIncr(delta int) symtab.Func {
	return func(_ string, args []string) (string, error) {
		n, err := strconv.Atoi(arg(args, 0))
		if err != nil {
			return "", &Error{Kind: KindSyntax, msg: "not a number: " + arg(args, 0)}
		}
		return itoa(n + delta), nil
	}
}

func (p *Processor) biEval(_ string, args []string) (string, error) {
	n, err := expr.Eval(arg(args, 0))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

func (p *Processor) biSyscmd(_ string, args []string) (string, error) {
	cmd := exec.Command("sh", "-c", arg(args, 0))
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	err := cmd.Run()
	p.sysVal = exitCodeOf(err)
	return "", nil
}

func (p *Processor) biEsyscmd(_ string, args []string) (string, error) {
	cmd := exec.Command("sh", "-c", arg(args, 0))
	out, err := cmd.Output()
	p.sysVal = exitCodeOf(err)
	return string(out), nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

func (p *Processor) biSysval(_ string, _ []string) (string, error) {
	return itoa(p.sysVal), nil
}

func (p *Processor) biM4exit(_ string, args []string) (string, error) {
	n := 0
	if a := arg(args, 0); a != "" {
		n, _ = strconv.Atoi(a)
	}
	p.exitVal, p.exitSet = n, true
	return "", nil
}

func (p *Processor) biErrMode(toError bool) symtab.Func {
	return func(_ string, _ []string) (string, error) {
		p.errorExit = toError
		return "", nil
	}
}

func (p *Processor) biWarnMode(toError bool) symtab.Func {
	return func(_ string, _ []string) (string, error) {
		p.warnToError = toError
		return "", nil
	}
}

func (p *Processor) biTraceon(_ string, _ []string) (string, error) {
	p.traceOn = true
	return "", nil
}

func (p *Processor) biTraceoff(_ string, _ []string) (string, error) {
	p.traceOn = false
	return "", nil
}

// biRecrm removes a single file path created earlier by maketemp; it
// deliberately does not recurse into directories.
func (p *Processor) biRecrm(_ string, args []string) (string, error) {
	path := arg(args, 0)
	if path == "" {
		return "", nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return "", nil
}
