// Package streamio implements a stacked, pushback-capable byte input source,
// as used by the macro processor's tokenizer and the expression
// evaluator's word reader. It is adapted from a simpler rune-oriented multi-source reader:
// each Source now owns its own LIFO pushback region, sources may be pushed
// at the front (unget a whole stream) or appended at the tail (queue a file
// for later), and row tracking follows "increments on the next read after a
// newline" rather than on the newline itself.
package streamio

import (
	"fmt"
	"io"
	"strings"

	"github.com/jcorbin/texttools/internal/runeio"
)

// Location names a position within a named input source.
type Location struct {
	Name string
	Line int
}

func (loc Location) String() string { return fmt.Sprintf("%v:%v", loc.Name, loc.Line) }

// Source is one entry in a Stack: a reader, its name, and its pushback
// region. Pushback is stored with the next byte to read at the end of the
// slice, so popping it is O(1).
type Source struct {
	Name string

	r      runeio.Reader
	closer io.Closer

	pushback []byte

	Line        int
	pendingBump bool
}

// NewSource wraps r as a named Source starting at line 1. r is wrapped in a
// runeio.Reader, which buffers the underlying reader (unless r already
// implements io.RuneReader), since the tokenizer pulls a byte at a time.
func NewSource(name string, r io.Reader) *Source {
	src := &Source{Name: name, r: runeio.NewReader(r), Line: 1}
	if cl, ok := r.(io.Closer); ok {
		src.closer = cl
	}
	return src
}

func (src *Source) close() error {
	if src.closer != nil {
		return src.closer.Close()
	}
	return nil
}

// Stack is a list of input sources, read front-to-back. Reads drain the
// front source's pushback, then its reader; when the reader is exhausted
// the source is popped and the next one takes over.
type Stack struct {
	sources []*Source
}

// Current returns the front (currently-reading) source, or nil if the
// stack is empty.
func (s *Stack) Current() *Source {
	if len(s.sources) == 0 {
		return nil
	}
	return s.sources[0]
}

// PushSource ungets an entire source onto the front of the stack: the
// pushed source becomes current, and the prior current source resumes once
// this one is exhausted. Mirrors unget_stream.
func (s *Stack) PushSource(src *Source) {
	s.sources = append(s.sources, nil)
	copy(s.sources[1:], s.sources)
	s.sources[0] = src
}

// AppendSource queues a source at the tail of the stack, to be read only
// after every currently-queued source is exhausted. Mirrors append_stream.
func (s *Stack) AppendSource(src *Source) {
	s.sources = append(s.sources, src)
}

// Empty reports whether the stack has no more sources.
func (s *Stack) Empty() bool { return len(s.sources) == 0 }

// Close closes every remaining source's underlying reader, if it is an
// io.Closer, returning the first error encountered.
func (s *Stack) Close() (err error) {
	for _, src := range s.sources {
		if cerr := src.close(); err == nil {
			err = cerr
		}
	}
	s.sources = nil
	return err
}

func (s *Stack) popCurrent() {
	cur := s.Current()
	if cur == nil {
		return
	}
	cur.close()
	s.sources = s.sources[1:]
}

// ReadByte reads one byte: from the current source's pushback if any is
// pending, otherwise from its reader. On EOF of that reader the source is
// popped and the next is tried. Returns io.EOF once the stack is empty.
func (s *Stack) ReadByte() (byte, error) {
	for {
		cur := s.Current()
		if cur == nil {
			return 0, io.EOF
		}

		if cur.pendingBump {
			cur.Line++
			cur.pendingBump = false
		}

		if n := len(cur.pushback); n > 0 {
			b := cur.pushback[n-1]
			cur.pushback = cur.pushback[:n-1]
			if b == '\n' {
				cur.pendingBump = true
			}
			return b, nil
		}

		var buf [1]byte
		n, err := cur.r.Read(buf[:])
		if n == 0 {
			if err == nil {
				continue
			}
			s.popCurrent()
			if err == io.EOF {
				continue
			}
			return 0, err
		}

		b := buf[0]
		if b == '\n' {
			cur.pendingBump = true
		}
		return b, nil
	}
}

// UngetByte pushes a single byte back onto the current source, so that the
// next ReadByte returns it.
func (s *Stack) UngetByte(b byte) {
	if cur := s.Current(); cur != nil {
		cur.pushback = append(cur.pushback, b)
	}
}

// UngetBytes pushes a slice of bytes back onto the current source, so that
// the next len(p) calls to ReadByte reproduce p in order. When a read at
// EOF has already popped the last source, p becomes a new unnamed source.
func (s *Stack) UngetBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	cur := s.Current()
	if cur == nil {
		s.PushSource(NewSource("", strings.NewReader(string(p))))
		return
	}
	for i := len(p) - 1; i >= 0; i-- {
		cur.pushback = append(cur.pushback, p[i])
	}
}

// UngetString is UngetBytes for a string.
func (s *Stack) UngetString(str string) { s.UngetBytes([]byte(str)) }

// EatWhitespace consumes and discards leading whitespace (space, tab, CR,
// NL, FF, VT), leaving the first non-whitespace byte unread.
func (s *Stack) EatWhitespace() error {
	for {
		b, err := s.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !isSpace(b) {
			s.UngetByte(b)
			return nil
		}
	}
}

// DeleteToNewline consumes and discards bytes up to and including the next
// newline, or until EOF.
func (s *Stack) DeleteToNewline() error {
	for {
		b, err := s.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == '\n' {
			return nil
		}
	}
}

// EatStringIfMatch reads len(candidate) bytes and compares them against
// candidate. On a full match the bytes are consumed. On any mismatch, or
// EOF before a full match, every consumed byte is pushed back onto the
// current source and the stream is left as if nothing had been read.
func (s *Stack) EatStringIfMatch(candidate string) (bool, error) {
	if candidate == "" {
		return true, nil
	}
	consumed := make([]byte, 0, len(candidate))
	for i := 0; i < len(candidate); i++ {
		b, err := s.ReadByte()
		if err != nil {
			s.UngetBytes(consumed)
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		consumed = append(consumed, b)
		if b != candidate[i] {
			s.UngetBytes(consumed)
			return false, nil
		}
	}
	return true, nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }

func isWordStart(b byte) bool { return isAlpha(b) || b == '_' }
func isWordCont(b byte) bool  { return isAlnum(b) || b == '_' }

// GetWord reads a single token: a decimal or hex ("0x"/"0X" prefixed)
// number, an identifier (first byte alphabetic or '_', continuation
// alphanumeric or '_'), or a single non-alphanumeric byte. Leading
// whitespace is consumed first.
func (s *Stack) GetWord() (string, error) {
	if err := s.EatWhitespace(); err != nil {
		return "", err
	}
	b, err := s.ReadByte()
	if err != nil {
		return "", err
	}
	switch {
	case isDigit(b):
		return s.scanNumber(b)
	case isWordStart(b):
		return s.scanIdent(b)
	default:
		return string(b), nil
	}
}

func (s *Stack) scanNumber(first byte) (string, error) {
	buf := []byte{first}
	if first == '0' {
		if b, err := s.ReadByte(); err == nil {
			if b == 'x' || b == 'X' {
				buf = append(buf, b)
				for {
					b, err := s.ReadByte()
					if err != nil {
						break
					}
					if !isHexDigit(b) {
						s.UngetByte(b)
						break
					}
					buf = append(buf, b)
				}
				return string(buf), nil
			}
			s.UngetByte(b)
		}
	}
	for {
		b, err := s.ReadByte()
		if err != nil {
			break
		}
		if !isDigit(b) {
			s.UngetByte(b)
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func (s *Stack) scanIdent(first byte) (string, error) {
	buf := []byte{first}
	for {
		b, err := s.ReadByte()
		if err != nil {
			break
		}
		if !isWordCont(b) {
			s.UngetByte(b)
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}
