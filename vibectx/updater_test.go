package vibectx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
)

func TestUpdaterAppend(t *testing.T) {
	rt := compileInline(t, "def a\n  1\nend\n")
	u := rt.Updater()
	require.NoError(t, u.Append("x = 1"))
	assert.Equal(t, "def a\n  1\nend\nx = 1", u.Source())

	require.NoError(t, u.Append("y = 2"))
	assert.Equal(t, "def a\n  1\nend\nx = 1\ny = 2", rt.Descriptor().InlineSource)

	_, ok := rt.Namespace().Lookup("x")
	assert.False(t, ok, "edits do not touch the running namespace")
}

func TestUpdaterReplaceSymbol(t *testing.T) {
	source := "def a\n  1\nend\n\nclass B\nend\n\ndef c\n  3\nend\n"
	rt := compileInline(t, source)
	u := rt.Updater()

	require.NoError(t, u.ReplaceSymbol("B", "class B\n  property y: int\nend"))
	assert.Equal(t, "def a\n  1\nend\n\nclass B\n  property y: int\nend\n\ndef c\n  3\nend\n", u.Source())

	require.NoError(t, u.ReplaceSymbol("c", "def c\n  30\nend\n"))
	assert.Equal(t, "def a\n  1\nend\n\nclass B\n  property y: int\nend\n\ndef c\n  30\nend\n", u.Source())

	require.NoError(t, u.ReplaceSymbol("d", "def d\n  4\nend"))
	assert.Equal(t, "def a\n  1\nend\n\nclass B\n  property y: int\nend\n\ndef c\n  30\nend\ndef d\n  4\nend", u.Source())

	require.NoError(t, u.Rewrite("z = 1"))
	assert.Equal(t, "z = 1", u.Source())
}

func TestUpdaterSaveReloads(t *testing.T) {
	ctx := context.Background()
	units := newMemUnits(map[string]string{"base": "def v\n  1\nend\n"})
	cache := newMapCache()
	d := descriptor.New()
	d.OriginRef = "base"

	rt, err := NewCompiler(testEngine(), WithDescriptor(d), WithUnits(units), WithOriginCache(cache)).Compile(ctx, "")
	require.NoError(t, err)
	defer rt.Close()

	u := rt.Updater()
	assert.Equal(t, "def v\n  1\nend\n", u.Source())
	require.NoError(t, u.ReplaceSymbol("v", "def v\n  2\nend"))
	require.NoError(t, u.Save(ctx, true))

	assert.Equal(t, 1, units.saves)
	assert.Equal(t, []string{"base"}, cache.removed)
	assert.Empty(t, rt.Descriptor().InlineSource)
	assert.Equal(t, "def v\n  2\nend\n", u.Source())

	res, err := rt.Execute(ctx, "v", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Value.Int(), "the running namespace keeps the old definition")

	next, err := NewCompiler(testEngine(), WithDescriptor(descriptor.New()), WithUnits(units), WithOriginCache(cache)).Compile(ctx, "base")
	require.NoError(t, err)
	defer next.Close()
	res, err = next.Execute(ctx, "v", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Value.Int())
}

func TestUpdaterSaveUnitCompiledByName(t *testing.T) {
	ctx := context.Background()
	units := newMemUnits(map[string]string{"tools": "def a\n  1\nend\n"})

	rt, err := NewCompiler(testEngine(), WithDescriptor(descriptor.New()), WithUnits(units)).Compile(ctx, "tools")
	require.NoError(t, err)
	defer rt.Close()

	u := rt.Updater()
	require.NoError(t, u.Append("def b\n  2\nend"))
	require.NoError(t, u.Save(ctx, true))

	assert.Equal(t, 1, units.saves)
	saved, err := units.LoadUnit(ctx, "tools")
	require.NoError(t, err)
	assert.Equal(t, "def a\n  1\nend\ndef b\n  2\nend", saved)
	assert.Empty(t, rt.Descriptor().InlineSource)
}

func TestUpdaterSaveRequiresOrigin(t *testing.T) {
	rt := compileInline(t, "x = 1", WithUnits(newMemUnits(nil)))
	assert.ErrorIs(t, rt.Updater().Save(context.Background(), false), ErrNotSavable)

	require.NoError(t, rt.Close())
	assert.ErrorIs(t, rt.Updater().Append("y = 1"), ErrRuntimeClosed)
}
