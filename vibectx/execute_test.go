package vibectx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibes"
)

func TestExecuteCapturesOutputAndValue(t *testing.T) {
	rt := compileInline(t, `def f
  puts "hello"
  42
end`)
	res, err := rt.Execute(context.Background(), "f", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Value.Int())
	assert.Contains(t, res.Output, "hello")
	assert.True(t, res.Descriptor.Executed)
	assert.Empty(t, res.Descriptor.PendingCode)
}

func TestExecuteBuildsArgumentsFromLocals(t *testing.T) {
	rt := compileInline(t, `base = 10
def combine(a, b, scale: 1, offset: 0)
  (a + b) * scale + offset
end`)
	res, err := rt.Execute(context.Background(), "combine", ExecOptions{
		LocalArgs:   []string{"base"},
		Args:        []vibes.Value{vibes.NewInt(2)},
		LocalKwargs: map[string]string{"scale": "base"},
		Kwargs:      map[string]vibes.Value{"offset": vibes.NewInt(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(121), res.Value.Int())

	_, err = rt.Execute(context.Background(), "combine", ExecOptions{LocalArgs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrTargetMissing)
}

func TestExecuteTargetErrors(t *testing.T) {
	rt := compileInline(t, "answer = 42")
	ctx := context.Background()

	_, err := rt.Execute(ctx, "missing", ExecOptions{})
	assert.ErrorIs(t, err, ErrTargetMissing)
	assert.True(t, IsGeneratorError(err))

	_, err = rt.Execute(ctx, "answer", ExecOptions{Args: []vibes.Value{vibes.NewInt(1)}})
	assert.ErrorIs(t, err, ErrNotCallable)
	assert.True(t, IsGeneratorError(err))

	res, err := rt.Execute(ctx, "answer", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Value.Int())
}

func TestExecuteCodeJoinsNamespace(t *testing.T) {
	rt := compileInline(t, "x = 1")
	ctx := context.Background()

	res, err := rt.Execute(ctx, "", ExecOptions{Code: "y = x + 4\ny * 2"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Value.Int())

	res, err = rt.Execute(ctx, "double_y", ExecOptions{Code: "def double_y\n  y * 2\nend"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Value.Int())
}

func TestExecuteReturnsScriptErrorsAfterCapture(t *testing.T) {
	rt := compileInline(t, `class Capabilities
  property count: int = 0
end

def fail(caps)
  caps.count = 5
  puts "before"
  raise "boom"
end`)
	res, err := rt.Execute(context.Background(), "fail", ExecOptions{LocalArgs: []string{CapabilityBinding}})
	require.Error(t, err)
	var rerr *vibes.RuntimeError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, IsGeneratorError(err))
	assert.Equal(t, "before\n", res.Output)
	require.NotNil(t, res.Descriptor)
	assert.True(t, res.Descriptor.Executed)
	assert.Contains(t, res.Descriptor.Properties, "count")

	_, err = rt.Execute(context.Background(), "", ExecOptions{Code: "def broken("})
	assert.True(t, IsGeneratorError(err))
}

func TestCapturePersistsOnlyMutations(t *testing.T) {
	source := `class Capabilities
  property count: int = 0
  property kv: KV
end

def bump(caps)
  caps.count = caps.count + 1
  caps.note = "seen"
  caps.count
end`
	ctx := context.Background()
	c := NewCompiler(testEngine(), WithDescriptor(inline(source)))
	require.NoError(t, c.Inject("kv", newKV()))
	rt, err := c.Compile(ctx, "")
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.Execute(ctx, "", ExecOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Descriptor.Properties, "defaults and services are not persisted")

	res, err = rt.Execute(ctx, "bump", ExecOptions{LocalArgs: []string{CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Value.Int())
	assert.NotContains(t, res.Descriptor.Properties, "kv")
	require.Contains(t, res.Descriptor.Properties, "count")
	require.Contains(t, res.Descriptor.Properties, "note")

	// A fresh compile restores the captured state.
	next := NewCompiler(testEngine(), WithDescriptor(res.Descriptor))
	require.NoError(t, next.Inject("kv", newKV()))
	rt2, err := next.Compile(ctx, "")
	require.NoError(t, err)
	defer rt2.Close()
	assert.Equal(t, int64(1), capAttr(t, rt2, "count").Int())
	assert.Equal(t, "seen", capAttr(t, rt2, "note").String())

	res, err = rt2.Execute(ctx, "bump", ExecOptions{LocalArgs: []string{CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Value.Int())
}

func TestReentrantExecuteIsRejected(t *testing.T) {
	var (
		rt    *Runtime
		inner error
	)
	reenter := vibes.NewBuiltin("reenter", func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		_, inner = rt.Execute(exec.Context(), "f", ExecOptions{})
		return vibes.NewNil(), nil
	})
	rt = compileInline(t, `def f
  reenter()
  1
end`, WithLocalBindings(map[string]vibes.Value{"reenter": reenter}))

	_, err := rt.Execute(context.Background(), "f", ExecOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrantExecute)

	_, err = rt.Execute(context.Background(), "f", ExecOptions{})
	require.NoError(t, err, "the in-flight flag is released afterwards")
}

func TestExecuteHookWrapsCalls(t *testing.T) {
	rt := compileInline(t, `def double(n)
  n * 2
end

def __execute__(fn, args, kwargs)
  "wrapped " + fn.call(args[0]).to_s
end`)
	res, err := rt.Execute(context.Background(), "double", ExecOptions{Args: []vibes.Value{vibes.NewInt(4)}})
	require.NoError(t, err)
	assert.Equal(t, "wrapped 8", res.Value.String())
}

func TestExecutePendingClearsPendingCode(t *testing.T) {
	d := inline("def total\n  value * 3\nend")
	d.PendingCode = "value = 5"
	rt, err := NewCompiler(testEngine(), WithDescriptor(d)).Compile(context.Background(), "")
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.ExecutePending(context.Background(), "total", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Value.Int())
	assert.Empty(t, rt.Descriptor().PendingCode)
}

func TestClosedRuntimeRejectsExecute(t *testing.T) {
	rt, err := NewCompiler(testEngine()).Compile(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	_, err = rt.Execute(context.Background(), "x", ExecOptions{})
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	assert.True(t, rt.Closed())
}

func TestLint(t *testing.T) {
	rt := compileInline(t, "x = 1")
	assert.Empty(t, rt.Lint("def ok\n  1\nend"))
	assert.Contains(t, rt.Lint("def broken("), "parse error")
}

func TestPropertyRoundTripThroughRuntime(t *testing.T) {
	source := `class Point
  property x: int
end

class Capabilities
  property origin: Point?
end

def move(caps)
  caps.origin = Point.new(x: 3)
end`
	ctx := context.Background()
	rt := compileInline(t, source)
	res, err := rt.Execute(ctx, "move", ExecOptions{LocalArgs: []string{CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, "record:Point", res.Descriptor.Properties["origin"].Type)

	rt2, err := NewCompiler(testEngine(), WithDescriptor(res.Descriptor)).Compile(ctx, "")
	require.NoError(t, err)
	defer rt2.Close()
	origin := capAttr(t, rt2, "origin")
	require.Equal(t, vibes.KindInstance, origin.Kind())
	x, _ := origin.Instance().Get("x")
	assert.Equal(t, int64(3), x.Int())
}

func TestDescriptorSurvivesCloseInResult(t *testing.T) {
	rt := compileInline(t, "x = 1")
	res, err := rt.Execute(context.Background(), "x", ExecOptions{})
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	assert.Equal(t, "x = 1", res.Descriptor.InlineSource)
	assert.IsType(t, &descriptor.Descriptor{}, res.Descriptor)
}

func TestCaptureSkipsCyclicAttributes(t *testing.T) {
	rt := compileInline(t, `class Capabilities
  property count: int = 0
end

def tangle(caps)
  caps.me = caps
  caps.count = 3
  "done"
end`)
	res, err := rt.Execute(context.Background(), "tangle", ExecOptions{LocalArgs: []string{CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Value.String())
	assert.Contains(t, res.Descriptor.Properties, "count")
	assert.NotContains(t, res.Descriptor.Properties, "me")
}
