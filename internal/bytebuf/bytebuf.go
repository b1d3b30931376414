// Package bytebuf implements a growable byte buffer with a specific,
// doubling growth policy: when a write would exceed the allocated
// capacity, the buffer grows to (capacity+requested)*2, and an overflow in
// either arithmetic step fails the write, leaving the buffer unchanged.
// This is the "Byte Buffer" primitive: an output accumulator used as the
// macro processor's store/wrap/diversion buffers. (The gap buffer's
// paste buffer is itself a *gapbuf.Buffer.)
package bytebuf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jcorbin/texttools/internal/flushio"
	"github.com/jcorbin/texttools/internal/runeio"
)

// ErrOverflow is returned when growing the buffer would overflow size
// arithmetic; the buffer is left unchanged.
var ErrOverflow = errors.New("bytebuf: size overflow")

// Buffer is a growable byte accumulator with an explicit write index,
// distinct from its allocated capacity.
type Buffer struct {
	data []byte
	n    int
}

// Len returns the number of valid bytes written so far.
func (b *Buffer) Len() int { return b.n }

// Cap returns the currently allocated capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid content; the slice aliases the buffer's storage
// and is invalidated by the next write.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Reset empties the buffer without releasing its capacity.
func (b *Buffer) Reset() { b.n = 0 }

func (b *Buffer) grow(req int) error {
	if b.n+req <= len(b.data) {
		return nil
	}
	capPlusReq := len(b.data) + req
	if capPlusReq < len(b.data) || capPlusReq < req {
		return ErrOverflow
	}
	if capPlusReq > math.MaxInt/2 {
		return ErrOverflow
	}
	newCap := capPlusReq * 2
	nd := make([]byte, newCap)
	copy(nd, b.data[:b.n])
	b.data = nd
	return nil
}

// PutCh appends a single byte.
func (b *Buffer) PutCh(ch byte) error {
	if err := b.grow(1); err != nil {
		return err
	}
	b.data[b.n] = ch
	b.n++
	return nil
}

// PutMem appends a byte slice in one grow step.
func (b *Buffer) PutMem(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := b.grow(len(p)); err != nil {
		return err
	}
	copy(b.data[b.n:], p)
	b.n += len(p)
	return nil
}

// PutStr appends a string byte by byte, restoring the write index if any
// byte fails to fit (matching put_ch failure semantics instead of failing
// the whole string atomically via a single grow).
func (b *Buffer) PutStr(s string) error {
	orig := b.n
	for i := 0; i < len(s); i++ {
		if err := b.PutCh(s[i]); err != nil {
			b.n = orig
			return err
		}
	}
	return nil
}

// PutObuf drains src's content into b, then resets src.
func (b *Buffer) PutObuf(src *Buffer) error {
	if err := b.PutMem(src.Bytes()); err != nil {
		return err
	}
	src.Reset()
	return nil
}

// PutFile reads a whole file into the buffer.
func (b *Buffer) PutFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return b.PutMem(data)
}

// PutStream copies r until EOF into the buffer.
func (b *Buffer) PutStream(r io.Reader) error {
	var chunk [4096]byte
	for {
		n, err := r.Read(chunk[:])
		if n > 0 {
			if perr := b.PutMem(chunk[:n]); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// WriteObuf drains the buffer to a file, appending or truncating as
// requested, then resets the buffer. This backs the macro processor's
// writediv builtin, writing a diversion out without going through the
// live output stream.
func (b *Buffer) WriteObuf(path string, appendMode bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	wf := flushio.NewWriteFlusher(f)
	if _, err := wf.Write(b.Bytes()); err != nil {
		return err
	}
	if err := wf.Flush(); err != nil {
		return err
	}
	b.Reset()
	return nil
}

// FlushObuf drains the buffer to w. When tty is true, control bytes are
// rendered the way a terminal driver would echo them: 1-26 as ^A..^Z, 0 as
// ^@, 27-31 as ^[ ^\ ^] ^^ ^_, 127 as ^?, newline passes through untouched,
// and any other non-printable byte renders as \xHH.
func (b *Buffer) FlushObuf(w io.Writer, tty bool) error {
	if !tty {
		if _, err := w.Write(b.Bytes()); err != nil {
			return err
		}
		b.Reset()
		return nil
	}
	for _, c := range b.Bytes() {
		if err := writeTTYByte(w, c); err != nil {
			return err
		}
	}
	b.Reset()
	return nil
}

func writeTTYByte(w io.Writer, c byte) error {
	switch {
	case c == '\n':
		_, err := w.Write([]byte{c})
		return err
	case c < 0x20 || c == 0x7f:
		_, err := io.WriteString(w, runeio.CaretForm(rune(c)))
		return err
	case c < 0x80:
		_, err := w.Write([]byte{c})
		return err
	default:
		_, err := fmt.Fprintf(w, "\\x%02X", c)
		return err
	}
}

// ObufToStr converts the buffer's content to a string and resets the
// buffer, leaving the caller as the sole owner of the result (Go strings
// carry their own length, so there is no separate null-terminator step).
func (b *Buffer) ObufToStr() string {
	s := string(b.Bytes())
	b.Reset()
	return s
}
