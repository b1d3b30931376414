// Package gapbuf implements an editable byte buffer backed by a gap: the
// buffer is split into a prefix [0,g), a gap [g,c), and a suffix [c,e],
// where e always holds a sentinel '\0' that can never be deleted. Edits
// near the cursor are O(1) amortized; the gap slides to the edit point
// one byte at a time via LeftCh/RightCh.
//
// Every edit is appended to an undo log; Reverse replays that log
// to implement grouped undo and redo.
package gapbuf

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/jcorbin/texttools/internal/flushio"
	"github.com/jcorbin/texttools/internal/rx"
)

// TabSize is the fixed column width a tab advances the cursor by.
const TabSize = 8

// ErrNoHistory is returned by Reverse when the target log (undo or redo)
// is empty.
var ErrNoHistory = errors.New("gapbuf: no history")

// mode tracks whether the buffer is replaying undo or redo history, so
// that edits performed during replay are recorded into the opposite log.
type mode byte

const (
	modeNormal mode = 0
	modeUndo   mode = 'U'
	modeRedo   mode = 'R'
)

// opKind identifies one atomic record in an undo/redo log.
type opKind byte

const (
	opStart  opKind = 'S'
	opEnd    opKind = 'E'
	opInsert opKind = 'I'
	opDelete opKind = 'D'
)

type atomicOp struct {
	kind opKind
	gLoc int
	ch   byte
}

// Buffer is one gap-buffer text document.
type Buffer struct {
	Name string

	a []byte

	g, c, e int

	markSet bool
	mark    int

	Row, Col int

	stickyCol    int
	stickyColSet bool

	DrawStart int
	Modified  bool

	mode mode
	undo []atomicOp
	redo []atomicOp

	Prev, Next *Buffer
}

// New creates an empty gap buffer with an initial gap of size cap.
func New(cap int) *Buffer {
	if cap < 1 {
		cap = 1
	}
	a := make([]byte, cap)
	b := &Buffer{
		a:   a,
		c:   cap - 1,
		e:   cap - 1,
		Row: 1,
		Col: 1,
	}
	a[cap-1] = 0
	return b
}

// Reset clears content and history, preserving Name and list links.
func (b *Buffer) Reset() {
	b.g = 0
	b.c = b.e
	b.markSet = false
	b.mark = 0
	b.Row = 1
	b.Col = 1
	b.stickyColSet = false
	b.stickyCol = 0
	b.DrawStart = 0
	b.Modified = true
	b.undo = b.undo[:0]
	b.redo = b.redo[:0]
}

// Len returns the number of logical (non-gap, non-sentinel) bytes.
func (b *Buffer) Len() int { return b.g + (b.e - b.c) }

// Bytes returns the logical content (prefix followed by suffix,
// excluding the gap and sentinel) as a freshly allocated slice.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	out = append(out, b.a[:b.g]...)
	out = append(out, b.a[b.c:b.e]...)
	return out
}

func (b *Buffer) recordLog() *[]atomicOp {
	if b.mode == modeUndo {
		return &b.redo
	}
	return &b.undo
}

func (b *Buffer) replayLog() *[]atomicOp {
	if b.mode == modeUndo {
		return &b.undo
	}
	return &b.redo
}

func (b *Buffer) record(kind opKind, gLoc int, ch byte) {
	log := b.recordLog()
	*log = append(*log, atomicOp{kind: kind, gLoc: gLoc, ch: ch})
}

func (b *Buffer) startGroup() { b.record(opStart, b.g, 0) }
func (b *Buffer) endGroup()   { b.record(opEnd, b.g, 0) }

func (b *Buffer) growGap(willUse int) {
	if willUse <= b.c-b.g {
		return
	}
	s := b.e + 1
	newS := (s + willUse) * 2
	t := make([]byte, newS)
	copy(t, b.a[:b.g])
	increase := newS - s
	copy(t[b.c+increase:], b.a[b.c:b.e+1])
	b.a = t
	if b.markSet && b.mark >= b.c {
		b.mark += increase
	}
	b.c += increase
	b.e += increase
}

// InsertCh writes ch at the cursor, advancing it, and updates row/column.
func (b *Buffer) InsertCh(ch byte) {
	b.stickyColSet = false
	if b.g == b.c {
		b.growGap(1)
	}

	b.record(opInsert, b.g, ch)
	if b.mode == modeNormal && len(b.redo) > 0 {
		b.redo = b.redo[:0]
	}

	b.a[b.g] = ch
	b.g++
	switch ch {
	case '\n':
		b.Row++
		b.Col = 1
	case '\t':
		b.Col += TabSize
	default:
		b.Col++
	}
	b.markSet = false
	b.Modified = true
}

// DeleteCh deletes the byte under the cursor (the first byte of the
// suffix). Returns false if the cursor is already at the sentinel.
func (b *Buffer) DeleteCh() bool {
	b.stickyColSet = false
	if b.c == b.e {
		return false
	}
	b.record(opDelete, b.g, b.a[b.c])
	if b.mode == modeNormal && len(b.redo) > 0 {
		b.redo = b.redo[:0]
	}
	b.c++
	b.markSet = false
	b.Modified = true
	return true
}

// LeftCh slides the gap one byte left. Returns false at the start of the
// buffer.
func (b *Buffer) LeftCh() bool {
	b.stickyColSet = false
	if b.g == 0 {
		return false
	}
	b.g--
	b.c--
	b.a[b.c] = b.a[b.g]
	u := b.a[b.c]
	switch u {
	case '\n':
		b.Row--
		count := 1
		i := b.g
		for i > 0 {
			i--
			ch := b.a[i]
			if ch == '\n' {
				break
			} else if ch == '\t' {
				count += TabSize
			} else {
				count++
			}
		}
		b.Col = count
	case '\t':
		b.Col -= TabSize
	default:
		b.Col--
	}
	if b.markSet && b.mark == b.g {
		b.mark = b.c
	}
	return true
}

// RightCh slides the gap one byte right. Returns false at the end of the
// buffer (cursor at the sentinel).
func (b *Buffer) RightCh() bool {
	b.stickyColSet = false
	if b.c == b.e {
		return false
	}
	u := b.a[b.c]
	switch u {
	case '\n':
		b.Row++
		b.Col = 1
	case '\t':
		b.Col += TabSize
	default:
		b.Col++
	}
	b.a[b.g] = b.a[b.c]
	if b.markSet && b.mark == b.c {
		b.mark = b.g
	}
	b.g++
	b.c++
	return true
}

// BackspaceCh is LeftCh then DeleteCh, as one undo group.
func (b *Buffer) BackspaceCh() bool {
	b.startGroup()
	defer b.endGroup()
	if !b.LeftCh() {
		return false
	}
	return b.DeleteCh()
}

// InsertStr inserts a string as one undo group.
func (b *Buffer) InsertStr(str string) {
	b.startGroup()
	for i := 0; i < len(str); i++ {
		b.InsertCh(str[i])
	}
	b.endGroup()
}

// InsertMem inserts a byte slice as one undo group.
func (b *Buffer) InsertMem(mem []byte) {
	b.startGroup()
	for _, ch := range mem {
		b.InsertCh(ch)
	}
	b.endGroup()
}

// InsertFile reads a whole file and inserts its content as one undo
// group, leaving the cursor at the start of the buffer to match the
// original file's reading order.
func (b *Buffer) InsertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	b.startGroup()
	b.stickyColSet = false
	for _, ch := range data {
		b.InsertCh(ch)
	}
	StartOfBuffer(b)
	b.endGroup()
	return nil
}

// StartOfBuffer moves the cursor to the start of the buffer.
func StartOfBuffer(b *Buffer) {
	for b.LeftCh() {
	}
}

// EndOfBuffer moves the cursor to the end of the buffer.
func EndOfBuffer(b *Buffer) {
	for b.RightCh() {
	}
}

// StartOfLine moves the cursor to column 1 of the current line.
func (b *Buffer) StartOfLine() {
	for b.Col != 1 {
		if !b.LeftCh() {
			break
		}
	}
}

// EndOfLine moves the cursor to the newline (or end of buffer) of the
// current line.
func (b *Buffer) EndOfLine() {
	for b.c != b.e && b.a[b.c] != '\n' {
		if !b.RightCh() {
			break
		}
	}
}

// UpLine moves the cursor up one line, targeting a sticky column that
// persists across consecutive vertical motions. Returns false if already
// on the first line.
func (b *Buffer) UpLine() bool {
	rOrig := b.Row
	target := b.Col
	if b.stickyColSet {
		target = b.stickyCol
	}
	if b.Row == 1 {
		return false
	}
	for b.Row == rOrig {
		if !b.LeftCh() {
			break
		}
	}
	for b.Col > target {
		if !b.LeftCh() {
			break
		}
	}
	b.stickyColSet = true
	b.stickyCol = target
	return true
}

// DownLine moves the cursor down one line, targeting the sticky column.
// Returns false if the motion would exceed the end of the buffer.
func (b *Buffer) DownLine() bool {
	ret := true
	rOrig := b.Row
	target := b.Col
	if b.stickyColSet {
		target = b.stickyCol
	}
	for b.Row == rOrig {
		if !b.RightCh() {
			for b.Col > target {
				if !b.LeftCh() {
					break
				}
			}
			ret = false
			goto end
		}
	}
	for b.Col != target && b.a[b.c] != '\n' {
		if !b.RightCh() {
			break
		}
	}
end:
	b.stickyColSet = true
	b.stickyCol = target
	return ret
}

// Reverse replays the undo (or redo) log, undoing (or redoing) one whole
// group of operations. It returns ErrNoHistory when the relevant log is
// empty.
func (b *Buffer) Reverse(isRedo bool) error {
	if isRedo {
		b.mode = modeRedo
	} else {
		b.mode = modeUndo
	}
	defer func() { b.mode = modeNormal }()

	replay := b.replayLog()
	if len(*replay) == 0 {
		return ErrNoHistory
	}

	depth := 0
	for {
		if len(*replay) == 0 {
			break
		}
		top := (*replay)[len(*replay)-1]

		for b.g > top.gLoc {
			if !b.LeftCh() {
				break
			}
		}
		for b.g < top.gLoc {
			if !b.RightCh() {
				break
			}
		}
		if b.g != top.gLoc {
			return errors.New("gapbuf: history position mismatch")
		}

		switch top.kind {
		case opStart:
			b.record(opStart, top.gLoc, top.ch)
			depth++
		case opEnd:
			b.record(opEnd, top.gLoc, top.ch)
			depth--
		case opInsert:
			b.DeleteCh()
		case opDelete:
			b.InsertCh(top.ch)
			b.LeftCh()
		}

		*replay = (*replay)[:len(*replay)-1]
		if depth == 0 {
			break
		}
	}
	return nil
}

// SetMark records the mark at the current cursor position.
func (b *Buffer) SetMark() {
	b.markSet = true
	b.mark = b.c
}

// MarkSet reports whether a mark is currently set.
func (b *Buffer) MarkSet() bool { return b.markSet }

// SwapCursorAndMark exchanges the cursor and mark positions. Returns
// false if no mark is set.
func (b *Buffer) SwapCursorAndMark() bool {
	if !b.markSet {
		return false
	}
	if b.c > b.mark {
		mOrig := b.mark
		b.mark = b.c
		for b.g != mOrig {
			if !b.LeftCh() {
				break
			}
		}
	} else {
		gOrig := b.g
		for b.c != b.mark {
			if !b.RightCh() {
				break
			}
		}
		b.mark = gOrig
	}
	return true
}

// CopyRegion copies the region between mark and cursor into dst (cleared
// first). When cut is true the region is also deleted from b, as one
// undo group. Returns false if no mark is set.
func (b *Buffer) CopyRegion(dst *Buffer, cut bool) bool {
	if cut {
		b.startGroup()
		defer b.endGroup()
	}
	b.stickyColSet = false
	if !b.markSet {
		return false
	}
	dst.Reset()

	if b.mark == b.c {
		return true
	}

	if b.mark < b.c {
		for i := b.mark; i < b.g; i++ {
			dst.InsertCh(b.a[i])
		}
		if cut {
			num := b.g - b.mark
			for num > 0 {
				b.BackspaceCh()
				num--
			}
		}
	} else {
		for i := b.c; i < b.mark; i++ {
			dst.InsertCh(b.a[i])
		}
		if cut {
			num := b.mark - b.c
			for num > 0 {
				b.DeleteCh()
				num--
			}
		}
	}

	if !cut {
		b.markSet = false
	}
	return true
}

// CutToEOL cuts from the cursor to the end of the current line into dst.
func (b *Buffer) CutToEOL(dst *Buffer) bool {
	if b.c != b.e && b.a[b.c] == '\n' {
		return b.DeleteCh()
	}
	b.markSet = true
	b.mark = b.c
	b.EndOfLine()
	return b.CopyRegion(dst, true)
}

// CutToSOL cuts from the start of the current line to the cursor into
// dst.
func (b *Buffer) CutToSOL(dst *Buffer) bool {
	b.markSet = true
	b.mark = b.c
	b.StartOfLine()
	return b.CopyRegion(dst, true)
}

var bracketPairs = map[byte]struct {
	target    byte
	moveRight bool
}{
	'<': {'>', true}, '[': {']', true}, '{': {'}', true}, '(': {')', true},
	'>': {'<', false}, ']': {'[', false}, '}': {'{', false}, ')': {'(', false},
}

// MatchBracket moves the cursor to the bracket matching the one under
// it, returning false if the cursor is not on a bracket or no match is
// found (in which case the cursor is restored).
func (b *Buffer) MatchBracket() bool {
	origCh := b.a[b.c]
	pair, ok := bracketPairs[origCh]
	if !ok {
		return false
	}
	cOrig := b.c
	depth := 1
	for {
		var moved bool
		if pair.moveRight {
			moved = b.RightCh()
		} else {
			moved = b.LeftCh()
		}
		if !moved {
			break
		}
		ch := b.a[b.c]
		if ch == origCh {
			depth++
		}
		if ch == pair.target {
			depth--
		}
		if depth == 0 {
			return true
		}
	}
	for b.c != cOrig {
		if pair.moveRight {
			b.LeftCh()
		} else {
			b.RightCh()
		}
	}
	return false
}

// TrimClean strips trailing whitespace from every line, eliminates
// non-printable bytes (other than tab and newline), and removes surplus
// trailing newlines at the end of the buffer, as one undo group. The
// cursor is restored to its original row/column afterward, as closely as
// the trimmed content allows.
func (b *Buffer) TrimClean() {
	b.startGroup()
	defer b.endGroup()

	rOrig, colOrig := b.Row, b.Col

	EndOfBuffer(b)
	if !b.LeftCh() {
		return
	}

	if b.a[b.c] == '\n' {
		for {
			if !b.LeftCh() {
				break
			}
			if b.a[b.c] == '\n' {
				b.DeleteCh()
			} else {
				break
			}
		}
	}

	eol := true
	for {
		ch := b.a[b.c]
		switch {
		case ch == '\n':
			eol = true
		case eol && (ch == ' ' || ch == '\t'):
			b.DeleteCh()
		case !isPrint(ch) && ch != '\t':
			b.DeleteCh()
		default:
			eol = false
		}
		if !b.LeftCh() {
			break
		}
	}

	for b.Row != rOrig {
		if !b.RightCh() {
			break
		}
	}
	for b.Col != colOrig && b.a[b.c] != '\n' {
		if !b.RightCh() {
			break
		}
	}
}

func isPrint(ch byte) bool { return ch >= 0x20 && ch < 0x7f }

// WordUnderCursor copies the identifier-ish word touching the cursor
// into dst (cleared first). Returns false if the cursor sits on a space
// or tab.
func (b *Buffer) WordUnderCursor(dst *Buffer) bool {
	dst.Reset()
	p := b.c
	if p != b.e {
		if u := b.a[p]; u == ' ' || u == '\t' {
			return false
		}
	}

	for p != b.e {
		u := b.a[p]
		if u == ' ' || u == '\n' || u == '\t' {
			break
		}
		if u != 0 {
			dst.InsertCh(u)
		}
		p++
	}

	StartOfBuffer(dst)
	if b.g > 0 {
		i := b.g - 1
		for {
			u := b.a[i]
			if u == ' ' || u == '\n' || u == '\t' {
				break
			}
			if u != 0 {
				dst.InsertCh(u)
				dst.LeftCh()
			}
			if i == 0 {
				break
			}
			i--
		}
	}
	return true
}

// CopyLogicalLine copies the logical line touching the cursor into dst,
// joining backslash-newline continuations and removing the continuation
// backslashes from the copy.
func (b *Buffer) CopyLogicalLine(dst *Buffer) {
	for b.Col != 1 || (b.g >= 2 && b.a[b.g-2] == '\\') {
		if !b.LeftCh() {
			break
		}
	}
	b.markSet = true
	b.mark = b.c

	for (b.c == b.e || b.a[b.c] != '\n' || (b.g > 0 && b.a[b.g-1] == '\\')) && b.c != b.e {
		if !b.RightCh() {
			break
		}
	}

	b.CopyRegion(dst, false)

	StartOfBuffer(dst)
	for dst.c != dst.e {
		switch dst.a[dst.c] {
		case '\\':
			if dst.c+1 == dst.e || dst.a[dst.c+1] == '\n' {
				dst.DeleteCh()
			} else {
				dst.RightCh()
			}
		case '\n':
			dst.DeleteCh()
		default:
			dst.RightCh()
		}
	}
}

// ExactForwardSearch moves the cursor to the start of the next
// occurrence of pat after the cursor, using a Sunday's Quick-Search skip
// table. Returns false if no match is found.
func (b *Buffer) ExactForwardSearch(pat []byte) bool {
	if b.c == b.e {
		return false
	}
	hay := b.a[b.c+1 : b.e]
	idx := quickSearch(hay, pat)
	if idx < 0 {
		return false
	}
	num := idx + 1
	for num > 0 {
		b.RightCh()
		num--
	}
	return true
}

// quickSearch implements Sunday's Quick-Search exact string search,
// returning the index of the first match in hay, or -1.
func quickSearch(hay, pat []byte) int {
	n, m := len(hay), len(pat)
	if m == 0 || m > n {
		return -1
	}
	var skip [256]int
	for i := range skip {
		skip[i] = m + 1
	}
	for i := 0; i < m; i++ {
		skip[pat[i]] = m - i
	}
	i := 0
	for i+m <= n {
		if string(hay[i:i+m]) == string(pat) {
			return i
		}
		if i+m >= n {
			break
		}
		i += skip[hay[i+m]]
	}
	return -1
}

// RegexForwardSearch moves the cursor past the next regex match after
// the cursor. Returns false if no match is found.
func (b *Buffer) RegexForwardSearch(pattern string, newlineSensitive bool) bool {
	if b.c == b.e {
		return false
	}
	startOfLine := b.a[b.c] == '\n'
	hay := b.a[b.c+1 : b.e]
	prog, err := rx.Compile(pattern, newlineSensitive)
	if err != nil {
		return false
	}
	m, ok := prog.Search(hay, startOfLine)
	if !ok {
		return false
	}
	move := 1 + m.Offset + m.Length
	for move > 0 {
		b.RightCh()
		move--
	}
	return true
}

// RegexReplaceRegion replaces every match of pattern within the region
// [mark,cursor) with replacement, as one undo group.
func (b *Buffer) RegexReplaceRegion(pattern, replacement string, newlineSensitive bool) error {
	b.startGroup()
	defer b.endGroup()

	b.stickyColSet = false
	if !b.markSet {
		return errors.New("gapbuf: no mark set")
	}

	if b.c > b.mark {
		b.SwapCursorAndMark()
	}

	region := make([]byte, b.mark-b.c)
	copy(region, b.a[b.c:b.mark])

	prog, err := rx.Compile(pattern, newlineSensitive)
	if err != nil {
		return err
	}
	res, err := prog.Replace(region, replacement)
	if err != nil {
		return err
	}

	count := b.mark - b.c
	for count > 0 {
		b.DeleteCh()
		count--
	}
	b.InsertMem(res)
	return nil
}

// Paste inserts the full content of src (prefix then suffix) at the
// cursor, as one undo group.
func (b *Buffer) Paste(src *Buffer) {
	b.startGroup()
	for i := 0; i < src.g; i++ {
		b.InsertCh(src.a[i])
	}
	for i := src.c; i < src.e; i++ {
		b.InsertCh(src.a[i])
	}
	b.endGroup()
}

// Save writes the prefix and suffix (excluding the sentinel) to Name,
// creating missing parent directories.
func (b *Buffer) Save() error {
	b.stickyColSet = false
	if b.Name == "" {
		return errors.New("gapbuf: no filename set")
	}
	if dir := filepath.Dir(b.Name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(b.Name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	wf := flushio.NewWriteFlusher(f)
	defer f.Close()
	if _, err := wf.Write(b.a[:b.g]); err != nil {
		return err
	}
	if _, err := wf.Write(b.a[b.c:b.e]); err != nil {
		return err
	}
	if err := wf.Flush(); err != nil {
		return err
	}
	b.Modified = false
	return nil
}

// Rename replaces the buffer's filename and marks it modified.
func (b *Buffer) Rename(name string) {
	b.Name = name
	b.Modified = true
}

// NewLinked creates a new buffer, optionally loading it from a file (it
// is fine for the file to not exist), and links it into the list after
// cur. It returns the new buffer, which becomes the caller's current
// buffer.
func NewLinked(cur *Buffer, name string, initialCap int) (*Buffer, error) {
	t := New(initialCap)
	if name != "" {
		if err := t.InsertFile(name); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			t.Modified = false
		}
		t.Name = name
	}
	if cur != nil {
		if cur.Next == nil {
			cur.Next = t
			t.Prev = cur
		} else {
			cur.Next.Prev = t
			t.Next = cur.Next
			cur.Next = t
			t.Prev = cur
		}
	}
	return t, nil
}

// RemoveLinked unlinks cur from its buffer list, returning the buffer
// that should become current: the previous buffer, or (at the head of
// the list) the next one.
func RemoveLinked(cur *Buffer) *Buffer {
	if cur == nil {
		return nil
	}
	switch {
	case cur.Prev == nil && cur.Next == nil:
		return nil
	case cur.Prev == nil:
		next := cur.Next
		next.Prev = nil
		return next
	case cur.Next == nil:
		prev := cur.Prev
		prev.Next = nil
		return prev
	default:
		cur.Prev.Next = cur.Next
		cur.Next.Prev = cur.Prev
		return cur.Prev
	}
}
