package macro

import (
	"fmt"

	"github.com/jcorbin/texttools/internal/runeio"
)

// ErrorKind classifies a macro processor error for callers that want to
// distinguish built-in argument mistakes from I/O or nested-engine
// failures (the latter surface as their own concrete error types,
// e.g. *rx.SyntaxError or *expr.Error, unwrapped).
type ErrorKind int

const (
	// KindSyntax marks a malformed built-in invocation, such as
	// divert() given a non-numeric or out-of-range argument.
	KindSyntax ErrorKind = iota
	// KindUsage marks a built-in called with fewer arguments than its
	// catalogue entry requires.
	KindUsage
)

// Error is a macro-processor-level error, as opposed to one surfaced
// from a nested engine (rx, expr) or the underlying I/O.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return "macro: " + e.msg }

// warn reports a non-fatal condition, mirroring m4.c's uw() macro: the
// message always goes to the attached Logger (if any) at "warn" level,
// and additionally, when warnerr has promoted warnings to errors,
// returns a *Error{Kind: KindUsage} that aborts the call in progress.
func (p *Processor) warn(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if p.Log != nil {
		p.Log.Printf("warn", "%s", msg)
	}
	if p.warnToError {
		return &Error{Kind: KindUsage, msg: msg}
	}
	return nil
}

// validateQuoteOrComment warns if s contains a byte unsuitable as a quote
// or comment delimiter, following m4.c's validate_quote_or_comment: every
// byte must be graphic and neither a comma nor a parenthesis. The offending
// byte is named in its caret-escaped form when it isn't printable itself.
func (p *Processor) validateQuoteOrComment(what, s string) error {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isGraphByte(b) && b != ',' && b != '(' && b != ')' {
			continue
		}
		ch := string(b)
		if cf := runeio.CaretForm(rune(b)); cf != "" {
			ch = cf
		}
		return p.warn("%s: %q contains a character unsuitable as a delimiter: %s", what, s, ch)
	}
	return nil
}

func isGraphByte(b byte) bool { return b > 0x20 && b < 0x7f }
