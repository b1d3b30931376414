package macro_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/texttools/internal/logio"
	"github.com/jcorbin/texttools/internal/macro"
	"github.com/jcorbin/texttools/internal/streamio"
)

func run(t *testing.T, src string) string {
	t.Helper()
	p := macro.New(8)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader(src)))
	var out bytes.Buffer
	require.NoError(t, p.Run(&in, &out))
	return out.String()
}

func TestProcessor_literalPassthrough(t *testing.T) {
	assert.Equal(t, "hello, world\n", run(t, "hello, world\n"))
}

func TestProcessor_commentPassesThroughVerbatim(t *testing.T) {
	assert.Equal(t, "a #define(x,1) b\n", run(t, "a #define(x,1) b\n"))
}

func TestProcessor_quoteSuppressesExpansion(t *testing.T) {
	assert.Equal(t, "define(x,1)\n", run(t, "`define(x,1)'\n"))
}

func TestProcessor_defineAndExpand(t *testing.T) {
	assert.Equal(t, "1\n", run(t, "define(x,1)x\n"))
}

func TestProcessor_defineWithParamSubstitution(t *testing.T) {
	got := run(t, "define(add,$1+$2)add(2,3)\n")
	assert.Equal(t, "2+3\n", got)
}

func TestProcessor_pushdefPopdef(t *testing.T) {
	got := run(t, "define(x,1)pushdef(`x',2)x popdef(`x')x\n")
	assert.Equal(t, "2 1\n", got)
}

func TestProcessor_undefineRemovesBinding(t *testing.T) {
	got := run(t, "define(x,1)undefine(`x')x\n")
	assert.Equal(t, "x\n", got)
}

func TestProcessor_nestedMacroInArgument(t *testing.T) {
	got := run(t, "define(x,1)define(y,$1)y(x)\n")
	assert.Equal(t, "1\n", got)
}

func TestProcessor_ifelseTwoArmAndDefault(t *testing.T) {
	assert.Equal(t, "yes\n", run(t, "ifelse(a,a,yes,no)\n"))
	assert.Equal(t, "no\n", run(t, "ifelse(a,b,yes,no)\n"))
	assert.Equal(t, "hit\n", run(t, "ifelse(a,b,x,c,c,hit,default)\n"))
}

func TestProcessor_ifdef(t *testing.T) {
	got := run(t, "define(x,1)ifdef(`x',yes,no) ifdef(y,yes,no)\n")
	assert.Equal(t, "yes no\n", got)
}

func TestProcessor_shiftDropsFirstArgument(t *testing.T) {
	got := run(t, "define(f,`shift($@)')f(a,b,c)\n")
	assert.Equal(t, "b,c\n", got)
}

func TestProcessor_dollarAtQuotesWithLiveQuoteChars(t *testing.T) {
	got := run(t, "changequote([,])define(f,[$@])f(a,b)\n")
	assert.Equal(t, "a,b\n", got)
}

func TestProcessor_changequoteWithBadDelimiterWarns(t *testing.T) {
	p := macro.New(8)
	var logged string
	p.Log = &logio.Logger{}
	p.Log.SetOutput(&logio.Writer{Logf: func(f string, a ...interface{}) { logged = fmt.Sprintf(f, a...) }})
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("changequote([,`,')\n")))
	var out bytes.Buffer
	require.NoError(t, p.Run(&in, &out))
	assert.Contains(t, logged, "changequote")
}

func TestProcessor_undefineMissingNameWarns(t *testing.T) {
	p := macro.New(8)
	var logged string
	p.Log = &logio.Logger{}
	p.Log.SetOutput(&logio.Writer{Logf: func(f string, a ...interface{}) { logged = fmt.Sprintf(f, a...) }})
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("undefine(nope)\n")))
	var out bytes.Buffer
	require.NoError(t, p.Run(&in, &out))
	assert.Contains(t, logged, "nope")
}

func TestProcessor_warnerrPromotesUnaccessedArgWarning(t *testing.T) {
	p := macro.New(8)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("warnerr\nerrexit\ndefine(f,$1)f(a,b)\n")))
	var out bytes.Buffer
	assert.Error(t, p.Run(&in, &out))
}

func TestProcessor_dnlDeletesRestOfLine(t *testing.T) {
	got := run(t, "before\ndnl this is dropped\nafter\n")
	assert.Equal(t, "before\nafter\n", got)
}

func TestProcessor_evalWiring(t *testing.T) {
	got := run(t, "eval(1+2*3)\n")
	assert.Equal(t, "7\n", got)
}

func TestProcessor_incrDecr(t *testing.T) {
	got := run(t, "incr(4) decr(4)\n")
	assert.Equal(t, "5 3\n", got)
}

func TestProcessor_lenIndexSubstr(t *testing.T) {
	got := run(t, "len(hello) index(hello,ll) substr(hello,2,3)\n")
	assert.Equal(t, "5 2 ell\n", got)
}

func TestProcessor_translitWithRanges(t *testing.T) {
	got := run(t, "translit(Hello,a-z,A-Z)\n")
	assert.Equal(t, "HELLO\n", got)
}

func TestProcessor_regexrepWiring(t *testing.T) {
	got := run(t, "regexrep(foobar,o+,0)\n")
	assert.Equal(t, "f0bar\n", got)
}

func TestProcessor_changequoteChangesDelimiters(t *testing.T) {
	got := run(t, "changequote([,])define(x,1)[x]x\n")
	assert.Equal(t, "x1\n", got)
}

func TestProcessor_changecomDisablesComments(t *testing.T) {
	got := run(t, "changecom\ndefine(x,1)#x\n")
	assert.Equal(t, "\n#1\n", got)
}

func TestProcessor_divertAndUndivert(t *testing.T) {
	got := run(t, "divert(1)stashed\ndivert(0)live\nundivert(1)")
	assert.Equal(t, "live\nstashed\n", got)
}

func TestProcessor_divertNegativeOneDiscards(t *testing.T) {
	got := run(t, "divert(-1)gone\ndivert(0)kept\n")
	assert.Equal(t, "kept\n", got)
}

func TestProcessor_m4wrapDeferredToEOF(t *testing.T) {
	got := run(t, "m4wrap(bye)hello\n")
	assert.Equal(t, "hello\nbye", got)
}

func TestProcessor_zeroArgCallHasNoArguments(t *testing.T) {
	got := run(t, "define(f,`$#')f f()\n")
	assert.Equal(t, "0 1\n", got)
}

func TestProcessor_missingRequiredArgumentIsUsageError(t *testing.T) {
	p := macro.New(8)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("errexit\ndefine(x)\n")))
	var out bytes.Buffer
	assert.Error(t, p.Run(&in, &out))
}

func TestProcessor_helpModeSkipsExecution(t *testing.T) {
	p := macro.New(8)
	p.SetHelp(true)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("len(hello)\n")))
	var out bytes.Buffer
	require.NoError(t, p.Run(&in, &out))
	assert.Equal(t, "\n", out.String())
}

func TestProcessor_m4exitStopsEarly(t *testing.T) {
	p := macro.New(8)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("a m4exit(2) b\n")))
	var out bytes.Buffer
	require.NoError(t, p.Run(&in, &out))
	code, set := p.ExitCode()
	assert.True(t, set)
	assert.Equal(t, 2, code)
}

func TestProcessor_runTeesToExtraWriters(t *testing.T) {
	p := macro.New(8)
	var in streamio.Stack
	in.AppendSource(streamio.NewSource("test", strings.NewReader("define(x,1)x\n")))
	var out, transcript bytes.Buffer
	require.NoError(t, p.Run(&in, &out, &transcript))
	assert.Equal(t, "1\n", out.String())
	assert.Equal(t, out.String(), transcript.String())
}
