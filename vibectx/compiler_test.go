package vibectx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/vibes"
)

func TestCompilerIsSingleUse(t *testing.T) {
	ctx := context.Background()

	c := NewCompiler(testEngine(), WithDescriptor(inline("x = 1")))
	rt, err := c.Compile(ctx, "first")
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, "first", rt.Name())
	assert.False(t, rt.Scope().Closed(), "runtime owns the scope after success")
	require.NoError(t, c.Close())
	assert.False(t, rt.Scope().Closed())

	_, err = c.Compile(ctx, "second")
	assert.ErrorIs(t, err, ErrCompilerReused)

	failing := NewCompiler(testEngine(), WithDescriptor(inline("def broken(")))
	_, err = failing.Compile(ctx, "")
	require.Error(t, err)
	assert.True(t, failing.Scope().Closed(), "scope is shut down when compile fails")
	_, err = failing.Compile(ctx, "")
	assert.ErrorIs(t, err, ErrCompilerReused)
}

func TestRecursiveCompileIsRejected(t *testing.T) {
	c := NewCompiler(testEngine(), WithDescriptor(inline(`def __on_compile__(compiler)
  compiler.compile
end`)))
	_, err := c.Compile(context.Background(), "")
	assert.ErrorIs(t, err, ErrRecursiveCompile)
}

func TestSyntheticUnitNames(t *testing.T) {
	rt := compileInline(t, "x = 1")
	assert.True(t, strings.HasPrefix(rt.Name(), "unit_"))

	units := newMemUnits(map[string]string{"base": "def f\n  1\nend\n"})
	d := descriptor.New()
	d.OriginRef = "base"
	rt2, err := NewCompiler(testEngine(), WithDescriptor(d), WithUnits(units)).Compile(context.Background(), "")
	require.NoError(t, err)
	defer rt2.Close()
	assert.Equal(t, "base", rt2.Name())
	assert.Equal(t, "base", rt2.Origin())
}

func TestInjectionPriority(t *testing.T) {
	source := `class Capabilities
  property x: int
  property kv: KV
  property retries: int = 3
  property note: string?
end`
	d := inline(source)
	prop, err := descriptor.Encode(vibes.NewInt(1))
	require.NoError(t, err)
	d.SetProperty("x", prop)

	kv := newKV()
	root := registry.New()
	require.NoError(t, root.Set("KV", kv))

	c := NewCompiler(testEngine(), WithDescriptor(d), WithCapabilityRegistry(root))
	require.NoError(t, c.Inject("x", vibes.NewInt(2)))
	rt, err := c.Compile(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), capAttr(t, rt, "x").Int(), "restored property beats injection")
	assert.Same(t, kv, capAttr(t, rt, "kv").Object().Native)
	assert.Equal(t, "KV", capAttr(t, rt, "kv").Object().TypeName)
	assert.Equal(t, int64(3), capAttr(t, rt, "retries").Int())
	assert.True(t, capAttr(t, rt, "note").IsNil())
	assert.Equal(t, []string{"kv"}, rt.Injected())
	assert.Equal(t, "kv", kv.injectedAs)

	caps, ok := rt.Namespace().Lookup(CapabilityBinding)
	require.True(t, ok)
	assert.True(t, caps.Equal(rt.Capabilities()))

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.Equal(t, 1, kv.destroyed)
	assert.Nil(t, rt.Namespace())
	assert.Nil(t, rt.Descriptor())
	assert.False(t, root.Closed(), "closing a runtime leaves the parent registry alone")
}

func TestRestoreChecksDeclaredTypes(t *testing.T) {
	d := inline("class Capabilities\n  property count: int = 0\nend")
	for name, val := range map[string]vibes.Value{"count": vibes.NewString("many"), "note": vibes.NewString("seen")} {
		prop, err := descriptor.Encode(val)
		require.NoError(t, err)
		d.SetProperty(name, prop)
	}

	rt, err := NewCompiler(testEngine(), WithDescriptor(d)).Compile(context.Background(), "")
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, int64(0), capAttr(t, rt, "count").Int(), "mistyped restore falls back to the default")
	assert.Equal(t, "seen", capAttr(t, rt, "note").String(), "undeclared attributes are restored")
}

func TestExplicitInjectionBeatsRegistry(t *testing.T) {
	root := registry.New()
	require.NoError(t, root.Set("KV", newKV()))
	mine := newKV()

	c := NewCompiler(testEngine(),
		WithDescriptor(inline("class Capabilities\n  property kv: KV\nend")),
		WithCapabilityRegistry(root))
	require.NoError(t, c.Inject("kv", mine))
	rt, err := c.Compile(context.Background(), "")
	require.NoError(t, err)
	defer rt.Close()
	assert.Same(t, mine, capAttr(t, rt, "kv").Object().Native)
}

func TestUnresolvableCapability(t *testing.T) {
	c := NewCompiler(testEngine(), WithDescriptor(inline("class Capabilities\n  property db: Database\nend")))
	_, err := c.Compile(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnresolvableCapability)

	rt := compileInline(t, "class Capabilities\n  property db: Database?\nend")
	assert.True(t, capAttr(t, rt, "db").IsNil())
}

func TestCustomCapabilityType(t *testing.T) {
	rt := compileInline(t, `class Tools
  property limit: int = 7
end`, WithCapabilityType("Tools"))
	assert.Equal(t, "Tools", rt.Capabilities().TypeName())
	assert.Equal(t, int64(7), capAttr(t, rt, "limit").Int())

	c := NewCompiler(testEngine(), WithDescriptor(inline("x = 1")), WithCapabilityType("Missing"))
	_, err := c.Compile(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnresolvableCapability)
}

func TestCompileHookBindsAndInjects(t *testing.T) {
	rt := compileInline(t, `class Clock
  def now
    99
  end
end

class Capabilities
  property clock: Clock
end

def __on_compile__(compiler)
  compiler.bind("Clock", Clock.new)
  compiler.inject("label", "from hook")
end

def __on_ready__(caps)
  caps.ready = true
end`)

	res, err := rt.Execute(context.Background(), "", ExecOptions{Code: "caps.clock.now"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), res.Value.Int())
	assert.Equal(t, "from hook", capAttr(t, rt, "label").String())
	assert.True(t, capAttr(t, rt, "ready").Bool())
	assert.ElementsMatch(t, []string{"label", "clock"}, rt.Injected())
}

func TestOriginCopyAndRequire(t *testing.T) {
	units := newMemUnits(map[string]string{
		"helpers": "def shout(s)\n  s.upcase\nend\n",
		"base": `require "helpers"

# Greets someone.
def greet(name)
  shout("hi " + name)
end

def _secret
  1
end

class Thing
end

limit = 3
`,
	})
	cache := newMapCache()
	d := descriptor.New()
	d.OriginRef = "base"
	d.InlineSource = "def run\n  greet(\"bo\")\nend\n"

	rt, err := NewCompiler(testEngine(), WithDescriptor(d), WithUnits(units), WithOriginCache(cache)).Compile(context.Background(), "session")
	require.NoError(t, err)
	defer rt.Close()

	ns := rt.Namespace()
	assert.Equal(t, "base", ns.Origin("greet"))
	assert.Equal(t, "base", ns.Origin("Thing"))
	assert.Equal(t, "session", ns.Origin("run"))
	for _, name := range []string{"shout", "_secret", "limit"} {
		_, ok := ns.Lookup(name)
		assert.False(t, ok, "%s must not be copied", name)
	}

	res, err := rt.Execute(context.Background(), "run", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, "HI BO", res.Value.String())

	_, cachedBase := cache.Get("base")
	_, cachedHelpers := cache.Get("helpers")
	assert.True(t, cachedBase)
	assert.True(t, cachedHelpers)
}

func TestMissingOriginFails(t *testing.T) {
	d := descriptor.New()
	d.OriginRef = "nowhere"
	_, err := NewCompiler(testEngine(), WithDescriptor(d), WithUnits(newMemUnits(nil))).Compile(context.Background(), "")
	assert.Error(t, err)
}

func TestMagicPromptsResolveOnce(t *testing.T) {
	rt := compileInline(t, `class Store
end

a = Store.new
b = Store.new

def tool_search(q: string) -> string
  q
end

def tool_fetch(url)
  url
end

stores = instances_of("Store")
tools = functions_like("tool_")`)

	ns := rt.Namespace()
	stores, _ := ns.Lookup("stores")
	require.Equal(t, vibes.KindString, stores.Kind())
	assert.Equal(t, "a: Store\nb: Store", stores.String())

	tools, _ := ns.Lookup("tools")
	assert.Equal(t, "def tool_fetch(url)\ndef tool_search(q: string) -> string", tools.String())
}
