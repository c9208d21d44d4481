package vibes

import (
	"context"
	"testing"
)

const describedSource = `# Adds numbers.
# Defaults b to two.
def add(a: int, b: int = 2) -> int
  a + b
end

# Holds services.
class Caps
  property retries: int = 3
  property name: string?

  # Sends a message.
  def deliver(to: string, urgent: bool = false)
    to
  end
end

limit = 10`

func TestDefinitionsReportSpans(t *testing.T) {
	engine := MustNewEngine(Config{})
	script := compileScript(t, engine, "unit", describedSource)

	defs := script.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []struct {
		name       string
		kind       DefinitionKind
		start, end int
	}{
		{"add", DefFunction, 3, 5},
		{"Caps", DefClass, 8, 16},
		{"limit", DefAssign, 18, 18},
	}
	for i, w := range want {
		got := defs[i]
		if got.Name != w.name || got.Kind != w.kind || got.Start.Line != w.start || got.End.Line != w.end {
			t.Fatalf("definition %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestFunctionDescribeAndClassOutline(t *testing.T) {
	engine := MustNewEngine(Config{})
	ns := engine.NewNamespace("unit")
	script := compileScript(t, engine, "unit", describedSource)
	if _, err := script.Run(context.Background(), ns, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	add, _ := ns.Lookup("add")
	wantFn := "# Adds numbers.\n# Defaults b to two.\ndef add(a: int, b: int = 2) -> int"
	if got := add.Function().Describe(); got != wantFn {
		t.Fatalf("unexpected function description:\n%s", got)
	}

	caps, _ := ns.Lookup("Caps")
	wantClass := `# Holds services.
class Caps
  property retries: int = 3
  property name: string?
  # Sends a message.
  def deliver(to: string, urgent: bool = false)
end`
	if got := caps.Class().Outline(); got != wantClass {
		t.Fatalf("unexpected class outline:\n%s", got)
	}
}

func TestDocCommentSkipsAnnotations(t *testing.T) {
	source := "# @hide\n# Real doc.\ndef f\n  1\nend"
	if got := DocComment(source, 3); got != "Real doc." {
		t.Fatalf("unexpected doc %q", got)
	}
	if got := DocComment(source, 1); got != "" {
		t.Fatalf("expected no doc for first line, got %q", got)
	}
}

func TestNamespaceOrigins(t *testing.T) {
	engine := MustNewEngine(Config{})
	ns := engine.NewNamespace("main")

	helpers := compileScript(t, engine, "helpers", `def greet(name)
  "hi #{name}"
end`)
	if _, err := helpers.Run(context.Background(), ns, RunOptions{}); err != nil {
		t.Fatalf("run helpers: %v", err)
	}
	main := compileScript(t, engine, "main", `x = greet("bob")`)
	if _, err := main.Run(context.Background(), ns, RunOptions{}); err != nil {
		t.Fatalf("run main: %v", err)
	}

	if got := ns.Origin("greet"); got != "helpers" {
		t.Fatalf("greet origin = %q", got)
	}
	if got := ns.Origin("x"); got != "main" {
		t.Fatalf("x origin = %q", got)
	}
	x, _ := ns.Lookup("x")
	if x.String() != "hi bob" {
		t.Fatalf("unexpected x %q", x.String())
	}
	if _, ok := ns.Lookup("puts"); ok {
		t.Fatalf("builtins must not be namespace-owned")
	}
	if _, ok := ns.Get("puts"); !ok {
		t.Fatalf("builtins must be visible through Get")
	}

	ns.Replace("greet", NewString("replaced"))
	if ns.Origin("greet") != "helpers" {
		t.Fatalf("Replace must keep the origin")
	}
	ns.Delete("greet")
	if _, ok := ns.Lookup("greet"); ok {
		t.Fatalf("greet should be deleted")
	}
}

func TestFunctionAssignmentsStayLocal(t *testing.T) {
	val, ns, _ := runScript(t, `count = 1
def bump
  count = 5
  count
end
bump`)
	if val.Int() != 5 {
		t.Fatalf("expected 5 from bump, got %s", val.Inspect())
	}
	count, _ := ns.Lookup("count")
	if count.Int() != 1 {
		t.Fatalf("namespace binding clobbered: %s", count.Inspect())
	}
}
