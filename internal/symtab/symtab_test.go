package symtab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/texttools/internal/symtab"
)

func TestTable_lookupMissing(t *testing.T) {
	tbl := symtab.New(8)
	assert.Nil(t, tbl.Lookup("nope"))
}

func TestTable_upsertAndLookup(t *testing.T) {
	tbl := symtab.New(8)
	tbl.Upsert("foo", "bar", true, nil, false)
	e := tbl.Lookup("foo")
	require.NotNil(t, e)
	assert.Equal(t, "bar", e.Def)
}

func TestTable_upsertOverwritesInPlace(t *testing.T) {
	tbl := symtab.New(8)
	tbl.Upsert("foo", "v1", true, nil, false)
	tbl.Upsert("foo", "v2", true, nil, false)
	e := tbl.Lookup("foo")
	require.NotNil(t, e)
	assert.Equal(t, "v2", e.Def)
}

func TestTable_pushdefPopdefHistory(t *testing.T) {
	tbl := symtab.New(8)
	tbl.Upsert("n", "v1", true, nil, true)
	tbl.Upsert("n", "v2", true, nil, true)

	e := tbl.Lookup("n")
	require.NotNil(t, e)
	assert.Equal(t, "v2", e.Def)

	require.True(t, tbl.Delete("n", true))
	e = tbl.Lookup("n")
	require.NotNil(t, e)
	assert.Equal(t, "v1", e.Def)

	require.True(t, tbl.Delete("n", true))
	assert.Nil(t, tbl.Lookup("n"))
}

func TestTable_deleteWithoutPopHistDropsEverything(t *testing.T) {
	tbl := symtab.New(8)
	tbl.Upsert("n", "v1", true, nil, true)
	tbl.Upsert("n", "v2", true, nil, true)

	require.True(t, tbl.Delete("n", false))
	assert.Nil(t, tbl.Lookup("n"))
}

func TestTable_deleteMissingReturnsFalse(t *testing.T) {
	tbl := symtab.New(8)
	assert.False(t, tbl.Delete("n", false))
}

func TestTable_chainedBucketsPreserveOtherEntries(t *testing.T) {
	tbl := symtab.New(1) // force all names into one bucket
	tbl.Upsert("a", "1", true, nil, false)
	tbl.Upsert("b", "2", true, nil, false)
	tbl.Upsert("c", "3", true, nil, false)

	require.True(t, tbl.Delete("b", false))
	assert.Nil(t, tbl.Lookup("b"))

	ea := tbl.Lookup("a")
	require.NotNil(t, ea)
	assert.Equal(t, "1", ea.Def)

	ec := tbl.Lookup("c")
	require.NotNil(t, ec)
	assert.Equal(t, "3", ec.Def)
}

func TestTable_funcPointerCarried(t *testing.T) {
	tbl := symtab.New(8)
	called := false
	tbl.Upsert("incr", "", false, func(name string, args []string) (string, error) {
		called = true
		return "1", nil
	}, false)

	e := tbl.Lookup("incr")
	require.NotNil(t, e)
	require.NotNil(t, e.Fn)
	out, err := e.Fn("incr", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
	assert.True(t, called)
}
