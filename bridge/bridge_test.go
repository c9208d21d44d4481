package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/vibes"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type geometry struct {
	calls int
	ctx   context.Context
}

func (g *geometry) Scale(ctx context.Context, p Point, factor int) Point {
	g.calls++
	g.ctx = ctx
	return Point{X: p.X * factor, Y: p.Y * factor}
}

func (g *geometry) Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (g *geometry) Fail() error { return errors.New("nope") }

func (g *geometry) Close() error { return nil }

func (g *geometry) MethodDocs() map[string]string {
	return map[string]string{"scale": "Multiplies both coordinates."}
}

func runWith(t *testing.T, bindings map[string]vibes.Value, source string) (vibes.Value, error) {
	t.Helper()
	engine := vibes.MustNewEngine(vibes.Config{})
	ns := engine.NewNamespace("test")
	for name, val := range bindings {
		ns.Define(name, val)
	}
	script, err := engine.Compile("test", source)
	require.NoError(t, err)
	return script.Run(context.Background(), ns, vibes.RunOptions{})
}

func TestWrapCallsExportedMethods(t *testing.T) {
	svc := &geometry{}
	obj, err := Wrap("", svc)
	require.NoError(t, err)
	assert.Equal(t, "geometry", obj.Object().TypeName)
	assert.Same(t, svc, obj.Object().Native)
	assert.NotContains(t, obj.Object().Members, "close")
	assert.NotContains(t, obj.Object().Members, "method_docs")

	val, err := runWith(t, map[string]vibes.Value{"geo": obj}, `p = geo.scale({x: 1, y: 2}, 3)
p["x"] + p["y"] + geo.sum(1, 2, 3)`)
	require.NoError(t, err)
	assert.Equal(t, int64(15), val.Int())
	assert.Equal(t, 1, svc.calls)
	assert.NotNil(t, svc.ctx)
}

func TestWrapSurfacesErrors(t *testing.T) {
	obj, err := Wrap("Geo", &geometry{})
	require.NoError(t, err)

	_, err = runWith(t, map[string]vibes.Value{"geo": obj}, `geo.fail`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	_, err = runWith(t, map[string]vibes.Value{"geo": obj}, `geo.scale({x: 1, y: 1})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 2 arguments")
}

func TestWrapPassesScriptValuesThrough(t *testing.T) {
	in := vibes.NewString("already a value")
	out, err := Wrap("X", in)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	_, err = Wrap("X", nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	want := `module Geo
  def fail
  # Multiplies both coordinates.
  def scale(arg1: hash, arg2: int) -> hash
  def sum(*arg1: int) -> int
end`
	assert.Equal(t, want, Describe("Geo", &geometry{}))
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Get":          "get",
		"PublishEvent": "publish_event",
		"GetURL":       "get_url",
		"HTTPServer":   "http_server",
		"Run2Times":    "run2_times",
	}
	for in, want := range cases {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
