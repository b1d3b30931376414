package gapbuf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/texttools/internal/gapbuf"
)

func TestBuffer_insertAndContent(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("hello")
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 1, b.Row)
	assert.Equal(t, 6, b.Col)
}

func TestBuffer_rowColTracking(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("ab\ncd")
	assert.Equal(t, 2, b.Row)
	assert.Equal(t, 3, b.Col)

	gapbuf.StartOfBuffer(b)
	assert.Equal(t, 1, b.Row)
	assert.Equal(t, 1, b.Col)
}

func TestBuffer_leftRightSymmetric(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("xyz")
	for b.LeftCh() {
	}
	assert.Equal(t, 3, b.Len()) // content unaffected by cursor position
	assert.Equal(t, "xyz", string(b.Bytes()))
	for b.RightCh() {
	}
	assert.Equal(t, 1, b.Row)
}

func TestBuffer_undoRedoGroup(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("abc")
	require.NoError(t, b.Reverse(false))
	assert.Equal(t, 0, b.Len())

	require.NoError(t, b.Reverse(true))
	assert.Equal(t, 3, b.Len())
}

func TestBuffer_undoNoHistory(t *testing.T) {
	b := gapbuf.New(4)
	assert.Equal(t, gapbuf.ErrNoHistory, b.Reverse(false))
}

func TestBuffer_undoSuccessiveGroups(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("ab")
	b.BackspaceCh() // deletes 'b', as a group of its own
	assert.Equal(t, 1, b.Len())

	require.NoError(t, b.Reverse(false)) // undo backspace -> restores 'b'
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Reverse(false)) // undo insert "ab" -> empty
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_markAndCopyRegion(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("hello world")
	gapbuf.StartOfBuffer(b)
	b.SetMark()
	for i := 0; i < 5; i++ {
		b.RightCh()
	}

	dst := gapbuf.New(1)
	ok := b.CopyRegion(dst, false)
	require.True(t, ok)
	assert.Equal(t, "hello", string(dst.Bytes()))
	assert.Equal(t, 11, b.Len())
}

func TestBuffer_cutRegion(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("hello world")
	gapbuf.StartOfBuffer(b)
	b.SetMark()
	for i := 0; i < 5; i++ {
		b.RightCh()
	}

	dst := gapbuf.New(1)
	ok := b.CopyRegion(dst, true)
	require.True(t, ok)
	assert.Equal(t, "hello", string(dst.Bytes()))
	assert.Equal(t, 6, b.Len())
}

func TestBuffer_matchBracket(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("(a(b)c)")
	gapbuf.StartOfBuffer(b)
	assert.True(t, b.MatchBracket())
	assert.Equal(t, 7, b.Col) // after matching, cursor sits on the final ')'
}

func TestBuffer_exactForwardSearch(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("the quick brown fox")
	gapbuf.StartOfBuffer(b)
	ok := b.ExactForwardSearch([]byte("brown"))
	require.True(t, ok)
	assert.Equal(t, 11, b.Col)
}

func TestBuffer_trimClean(t *testing.T) {
	b := gapbuf.New(4)
	b.InsertStr("line one   \nline two\t\n\n\n")
	b.TrimClean()
	assert.Equal(t, "line one\nline two\n", string(b.Bytes()))
}

func TestBuffer_saveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.txt")

	b := gapbuf.New(4)
	b.InsertStr("saved content")
	b.Name = path
	require.NoError(t, b.Save())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saved content", string(got))
	assert.False(t, b.Modified)
}

func TestBuffer_pasteCombinesBuffers(t *testing.T) {
	src := gapbuf.New(4)
	src.InsertStr("pasted")

	dst := gapbuf.New(4)
	dst.InsertStr("dst-")
	dst.Paste(src)
	assert.Equal(t, 10, dst.Len())
}

func TestRemoveLinked_headMovesToNext(t *testing.T) {
	a := gapbuf.New(1)
	b2, err := gapbuf.NewLinked(a, "", 1)
	require.NoError(t, err)
	cur := gapbuf.RemoveLinked(a)
	assert.Same(t, b2, cur)
	assert.Nil(t, b2.Prev)
}
