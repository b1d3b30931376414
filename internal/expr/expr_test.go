package expr_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/texttools/internal/expr"
)

func TestEval_arithmeticAndPrecedence(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"2**10", 1024},
		{"5 % 3", 2},
		{"~0", -1},
		{"1 << 31", 1 << 31},
		{"1+2*3**2", 19},
		{"(-2)**3", -8},
	}
	for _, c := range cases {
		got, err := expr.Eval(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestEval_divideByZero(t *testing.T) {
	_, err := expr.Eval("7/0")
	require.Error(t, err)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.KindDivideByZero, e.Kind)
}

func TestEval_moduloByZero(t *testing.T) {
	_, err := expr.Eval("7 % 0")
	require.Error(t, err)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.KindDivideByZero, e.Kind)
}

func TestEval_userOverflow(t *testing.T) {
	_, err := expr.Eval("9223372036854775807+1")
	require.Error(t, err)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.KindUserOverflow, e.Kind)
}

func TestEval_minInt64IsRepresentable(t *testing.T) {
	got, err := expr.Eval("-9223372036854775807-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), got)
}

func TestEval_negativeExponent(t *testing.T) {
	_, err := expr.Eval("2**-1")
	require.Error(t, err)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.KindSyntax, e.Kind)
}

func TestEval_octalAndHexLiterals(t *testing.T) {
	got, err := expr.Eval("010")
	require.NoError(t, err)
	assert.Equal(t, int64(8), got)

	got, err = expr.Eval("0x1F")
	require.NoError(t, err)
	assert.Equal(t, int64(31), got)
}

func TestEval_comparisonAndLogical(t *testing.T) {
	got, err := expr.Eval("1 < 2 && 3 >= 3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = expr.Eval("1 == 2 || 0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestEval_unaryVsBinaryPlusMinus(t *testing.T) {
	got, err := expr.Eval("3 - -2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = expr.Eval("-3 + +2")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestEval_unmatchedParens(t *testing.T) {
	for _, in := range []string{"(1+2", "1+2)", "()"} {
		_, err := expr.Eval(in)
		require.Error(t, err, in)
		var e *expr.Error
		require.ErrorAs(t, err, &e, in)
		assert.Equal(t, expr.KindSyntax, e.Kind, in)
	}
}

func TestEval_operatorAtEndOfExpression(t *testing.T) {
	_, err := expr.Eval("1+")
	require.Error(t, err)
	var e *expr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, expr.KindSyntax, e.Kind)
}

func TestEval_emptyExpressionIsEOF(t *testing.T) {
	_, err := expr.Eval("")
	assert.ErrorIs(t, err, io.EOF)
}
