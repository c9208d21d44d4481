package vibectx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/vibes"
)

const libUnit = `# Adds numbers.
def add(a, b)
  a + b
end

class Point
  property x: int
end
`

func TestStripHidden(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no markers",
			in:   "a = 1\nb = 2\n",
			want: "a = 1\nb = 2\n",
		},
		{
			name: "hidden region",
			in:   "a = 1\n# @hide\nsecret = 2\n# @unhide\nb = 3\n",
			want: "a = 1\nb = 3\n",
		},
		{
			name: "nested regions",
			in:   "a\n# @hide\nb\n  # @hide\nc\n  # @unhide\nd\n# @unhide\ne\n",
			want: "a\ne\n",
		},
		{
			name: "unclosed hide",
			in:   "a\n# @hide\nb\nc",
			want: "a\n",
		},
		{
			name: "unmatched unhide",
			in:   "a\n# @unhide\nb\n",
			want: "a\nb\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHidden(tt.in))
		})
	}
}

func TestSourceCode(t *testing.T) {
	source := "x = 1\n# @hide\ny = 2\n# @unhide\n"
	rt := compileInline(t, source)
	p := rt.Prompter()
	full, err := p.SourceCode(false)
	require.NoError(t, err)
	assert.Equal(t, source, full)
	visible, err := p.SourceCode(true)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", visible)
}

func compileWithLib(t *testing.T, source string, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithUnits(newMemUnits(map[string]string{"lib": libUnit}))}, opts...)
	return compileInline(t, source, opts...)
}

func importedPrompt(t *testing.T, rt *Runtime) string {
	t.Helper()
	text, err := rt.Prompter().ImportedPrompt()
	require.NoError(t, err)
	return text
}

func TestImportedPrompt(t *testing.T) {
	source := "require \"lib\"\n\ndef mine\n  1\nend\n"

	rt := compileWithLib(t, source)
	assert.Equal(t, "class Point\n  property x: int\nend\n\n# Adds numbers.\ndef add(a, b)", importedPrompt(t, rt))

	ignored := compileWithLib(t, source, WithIgnoredOriginPrefixes("li"))
	assert.Empty(t, importedPrompt(t, ignored))

	overridden := compileWithLib(t, source+"__prompt_overrides__ = {\"Point\" => \"class Point # unit\", \"add\" => \"def add # unit\"}\n",
		WithPromptOverrides(map[string]string{"add": "def add # caller"}))
	assert.Equal(t, "class Point # unit\n\ndef add # caller", importedPrompt(t, overridden))
}

func TestPrompterAfterClose(t *testing.T) {
	ctx := context.Background()
	rt := compileWithLib(t, "require \"lib\"\nTESTS = [:mine]\n")
	require.NoError(t, rt.Close())
	p := rt.Prompter()

	_, err := p.SourceCode(true)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = p.ImportedPrompt()
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = p.ImportedAttrsPrompt(ctx)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = p.ModulePrompt(ctx)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = rt.Tests()
	assert.ErrorIs(t, err, ErrRuntimeClosed)
}

func TestImportedAttrsPrompt(t *testing.T) {
	ctx := context.Background()
	source := "require \"lib\"\n\nclass Capabilities\n  property kv: KV\nend\n"
	c := NewCompiler(testEngine(),
		WithDescriptor(inline(source)),
		WithUnits(newMemUnits(map[string]string{"lib": libUnit})))
	require.NoError(t, c.Inject("kv", newKV()))
	rt, err := c.Compile(ctx, "")
	require.NoError(t, err)
	defer rt.Close()

	text, err := rt.Prompter().ImportedAttrsPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[functions]
# Adds numbers.
def add(a, b)

[classes]
class Point
  property x: int
end

[modules]
Capabilities.kv: KV
module KV
  def get(arg1: string) -> string
  def put(arg1: string, arg2: string)
end`, text)

	only, err := rt.Prompter().ImportedAttrsPrompt(ctx, "kv")
	require.NoError(t, err)
	assert.Contains(t, only, "[modules]")
	assert.NotContains(t, only, "[functions]")

	byLabel, err := rt.Prompter().ImportedAttrsPrompt(ctx, "Point")
	require.NoError(t, err)
	assert.Equal(t, "[classes]\nclass Point\n  property x: int\nend", byLabel)
}

func TestAttrsPromptHook(t *testing.T) {
	rt := compileWithLib(t, `require "lib"

def __attrs_prompt__(label, name)
  if name == "add"
    return "adds two things"
  end
  nil
end`)
	text, err := rt.Prompter().ImportedAttrsPrompt(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "[functions]\nadds two things")
	assert.Contains(t, text, "class Point")
}

func TestDescribeBindingAlias(t *testing.T) {
	point := vibes.NewClass(vibes.NewClassDef("Point"))

	entry, ok := describeBinding("Pt", point)
	require.True(t, ok)
	assert.Equal(t, bucketOther, entry.bucket)
	assert.Equal(t, "Pt = Point", entry.text)

	entry, ok = describeBinding("Point", point)
	require.True(t, ok)
	assert.Equal(t, bucketClasses, entry.bucket)

	_, ok = describeBinding("n", vibes.NewInt(1))
	assert.False(t, ok)
}

func TestModulePrompt(t *testing.T) {
	ctx := context.Background()
	rt := compileWithLib(t, "require \"lib\"\n# @hide\nsecret = 1\n# @unhide\n\ndef mine\n  add(1, 2)\nend\n")
	text, err := rt.Prompter().ModulePrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, `require "lib"

def mine
  add(1, 2)
end

# @attr add
# # Adds numbers.
# def add(a, b)
#
# @attr Point
# class Point
#   property x: int
# end
`, text)

	plain := compileInline(t, "x = 1\n")
	text, err = plain.Prompter().ModulePrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", text)

	hooked := compileInline(t, "def __module_prompt__\n  \"custom\"\nend\n")
	text, err = hooked.Prompter().ModulePrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom", text)
}
