package rx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/texttools/internal/mem"
	"github.com/jcorbin/texttools/internal/rx"
)

func mustCompile(t *testing.T, pattern string, newlineSensitive bool) *rx.Prog {
	t.Helper()
	p, err := rx.Compile(pattern, newlineSensitive)
	require.NoError(t, err)
	return p
}

func TestSearch_literal(t *testing.T) {
	p := mustCompile(t, "cat", false)
	m, ok := p.Search([]byte("the cat sat"), true)
	require.True(t, ok)
	assert.Equal(t, 4, m.Offset)
	assert.Equal(t, 3, m.Length)
}

func TestSearch_noMatch(t *testing.T) {
	p := mustCompile(t, "dog", false)
	_, ok := p.Search([]byte("the cat sat"), true)
	assert.False(t, ok)
}

func TestSearch_star(t *testing.T) {
	p := mustCompile(t, "ab*c", false)
	for _, in := range []string{"ac", "abc", "abbbbc"} {
		m, ok := p.Search([]byte(in), true)
		require.True(t, ok, in)
		assert.Equal(t, len(in), m.Length, in)
	}
	_, ok := p.Search([]byte("adc"), true)
	assert.False(t, ok)
}

func TestSearch_plus(t *testing.T) {
	p := mustCompile(t, "ab+c", false)
	_, ok := p.Search([]byte("ac"), true)
	assert.False(t, ok)
	m, ok := p.Search([]byte("abbc"), true)
	require.True(t, ok)
	assert.Equal(t, 4, m.Length)
}

func TestSearch_question(t *testing.T) {
	p := mustCompile(t, "colou?r", false)
	for _, in := range []string{"color", "colour"} {
		m, ok := p.Search([]byte(in), true)
		require.True(t, ok, in)
		assert.Equal(t, len(in), m.Length)
	}
}

func TestSearch_alternation(t *testing.T) {
	p := mustCompile(t, "cat|dog", false)
	m, ok := p.Search([]byte("I have a dog"), true)
	require.True(t, ok)
	assert.Equal(t, 9, m.Offset)
	assert.Equal(t, 3, m.Length)
}

func TestSearch_groupingAndPrecedence(t *testing.T) {
	p := mustCompile(t, "(ab)+", false)
	m, ok := p.Search([]byte("ababab!"), true)
	require.True(t, ok)
	assert.Equal(t, 0, m.Offset)
	assert.Equal(t, 6, m.Length)
}

func TestSearch_charSet(t *testing.T) {
	p := mustCompile(t, "[a-c]+", false)
	m, ok := p.Search([]byte("xxabcxx"), true)
	require.True(t, ok)
	assert.Equal(t, 2, m.Offset)
	assert.Equal(t, 3, m.Length)
}

func TestSearch_negatedCharSet(t *testing.T) {
	p := mustCompile(t, "[^0-9]+", false)
	m, ok := p.Search([]byte("123abc456"), true)
	require.True(t, ok)
	assert.Equal(t, 3, m.Offset)
	assert.Equal(t, 3, m.Length)
}

func TestSearch_escapes(t *testing.T) {
	p := mustCompile(t, `a\tb`, false)
	m, ok := p.Search([]byte("a\tb"), true)
	require.True(t, ok)
	assert.Equal(t, 3, m.Length)
}

func TestSearch_dotExcludesNewlineWhenSensitive(t *testing.T) {
	p := mustCompile(t, ".", true)
	m, ok := p.Search([]byte("\nx"), true)
	require.True(t, ok)
	assert.Equal(t, 1, m.Offset)
	assert.Equal(t, 1, m.Length)
}

func TestSearch_startAnchor(t *testing.T) {
	p := mustCompile(t, "^ab", false)
	m, ok := p.Search([]byte("ab"), true)
	require.True(t, ok)
	assert.Equal(t, 0, m.Offset)

	_, ok = p.Search([]byte("xab"), true)
	assert.False(t, ok)
}

func TestSearch_endAnchor(t *testing.T) {
	p := mustCompile(t, "ab$", false)
	m, ok := p.Search([]byte("xab"), true)
	require.True(t, ok)
	assert.Equal(t, 1, m.Offset)
	assert.Equal(t, 2, m.Length)
}

func TestCompile_syntaxErrors(t *testing.T) {
	for _, pattern := range []string{"(", ")", "*ab", "a|", "[abc"} {
		_, err := rx.Compile(pattern, false)
		assert.Error(t, err, pattern)
		var synErr *rx.SyntaxError
		assert.ErrorAs(t, err, &synErr, pattern)
	}
}

func TestReplace_simple(t *testing.T) {
	p := mustCompile(t, "cat", false)
	out, err := p.Replace([]byte("the cat sat on the cat mat"), "dog")
	require.NoError(t, err)
	assert.Equal(t, "the dog sat on the dog mat", string(out))
}

func TestReplace_zeroLengthMatchProgresses(t *testing.T) {
	p := mustCompile(t, "x*", false)
	out, err := p.Replace([]byte("abc"), "-")
	require.NoError(t, err)
	assert.Equal(t, "-a-b-c-", string(out))
}

func TestReplace_escapesInReplacement(t *testing.T) {
	p := mustCompile(t, "a", false)
	out, err := p.Replace([]byte("a"), `\t`)
	require.NoError(t, err)
	assert.Equal(t, "\t", string(out))
}

func TestCompileLimited_withinBoundsSucceeds(t *testing.T) {
	p, err := rx.CompileLimited("cat", false, 1000)
	require.NoError(t, err)
	m, ok := p.Search([]byte("the cat sat"), true)
	require.True(t, ok)
	assert.Equal(t, 4, m.Offset)
}

func TestCompileLimited_exceedsBoundFails(t *testing.T) {
	_, err := rx.CompileLimited("abcdefghij", false, 1)
	require.Error(t, err)
	var limErr mem.LimitError
	assert.ErrorAs(t, err, &limErr)
}
