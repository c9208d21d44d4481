package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mgomes/vibectx/descriptor"
)

const counterUnit = `class Capabilities
  property count: int = 0
end

def bump(caps)
  caps.count = caps.count + 1
  caps.count
end

def greet(name)
  puts "hello"
  name
end
`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace moves the test into an empty directory and returns the store
// flags for a file store inside it.
func workspace(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir, []string{"--store", "file", "--store-dir", filepath.Join(dir, "store")}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunRequiresSource(t *testing.T) {
	_, flags := workspace(t)
	_, err := runCLI(t, "", append(flags, "run")...)
	if err == nil || !strings.Contains(err.Error(), "nothing to compile") {
		t.Fatalf("expected missing source error, got %v", err)
	}
}

func TestRunCallsTargetWithArguments(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)

	out, err := runCLI(t, "", append(flags, "run", "greet", "-f", unit, "-a", "world")...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "hello\n=> \"world\"\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunCodeWithoutTargetPrintsItsValue(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)

	out, err := runCLI(t, "", append(flags, "run", "-f", unit, "-c", "6 * 7")...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(out) != "=> 42" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunPersistsCapabilitiesThroughDescriptorFile(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)
	desc := filepath.Join(dir, "ctx.json")

	args := append(flags, "run", "bump", "--caps", "-f", unit, "-d", desc, "--save", desc)
	for want := 1; want <= 2; want++ {
		out, err := runCLI(t, "", args...)
		if err != nil {
			t.Fatalf("run %d failed: %v", want, err)
		}
		if got := strings.TrimSpace(out); got != "=> "+strconv.Itoa(want) {
			t.Fatalf("run %d: unexpected output %q", want, got)
		}
	}

	saved, err := descriptor.Load(desc)
	if err != nil {
		t.Fatalf("load saved descriptor: %v", err)
	}
	if _, ok := saved.Properties["count"]; !ok {
		t.Fatalf("count was not persisted: %#v", saved.Properties)
	}
	if !saved.Executed {
		t.Fatalf("descriptor not marked executed")
	}
}

func TestRunReportsGeneratedCodeFailures(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)

	_, err := runCLI(t, "", append(flags, "run", "missing", "-f", unit)...)
	if err == nil || !strings.Contains(err.Error(), "generated code failed") {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestUnitCommandsRoundTripThroughStore(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)

	if _, err := runCLI(t, "", append(flags, "unit", "put", "counter", unit)...); err != nil {
		t.Fatalf("unit put failed: %v", err)
	}
	if _, err := runCLI(t, "def helper\n  1\nend\n", append(flags, "unit", "put", "helpers")...); err != nil {
		t.Fatalf("unit put from stdin failed: %v", err)
	}
	if _, err := runCLI(t, "def broken(\n", append(flags, "unit", "put", "broken")...); err == nil {
		t.Fatalf("expected syntax error for broken unit")
	}

	out, err := runCLI(t, "", append(flags, "unit", "list")...)
	if err != nil {
		t.Fatalf("unit list failed: %v", err)
	}
	if out != "counter\nhelpers\n" {
		t.Fatalf("unexpected unit list: %q", out)
	}

	out, err = runCLI(t, "", append(flags, "unit", "get", "counter")...)
	if err != nil {
		t.Fatalf("unit get failed: %v", err)
	}
	if out != counterUnit {
		t.Fatalf("unexpected unit source: %q", out)
	}

	out, err = runCLI(t, "", append(flags, "run", "bump", "--caps", "-u", "counter", "--save-context", "session")...)
	if err != nil {
		t.Fatalf("run stored unit failed: %v", err)
	}
	if strings.TrimSpace(out) != "=> 1" {
		t.Fatalf("unexpected output: %q", out)
	}
	out, err = runCLI(t, "", append(flags, "run", "bump", "--caps", "--context", "session", "--save-context", "session")...)
	if err != nil {
		t.Fatalf("run stored context failed: %v", err)
	}
	if strings.TrimSpace(out) != "=> 2" {
		t.Fatalf("stored context did not restore state: %q", out)
	}

	if _, err := runCLI(t, "", append(flags, "unit", "rm", "helpers")...); err != nil {
		t.Fatalf("unit rm failed: %v", err)
	}
	out, err = runCLI(t, "", append(flags, "unit", "list")...)
	if err != nil {
		t.Fatalf("unit list failed: %v", err)
	}
	if out != "counter\n" {
		t.Fatalf("unexpected unit list after rm: %q", out)
	}
}

func TestPromptRawPrintsBindings(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "counter.vibe", counterUnit)

	out, err := runCLI(t, "", append(flags, "prompt", "--raw", "-f", unit)...)
	if err != nil {
		t.Fatalf("prompt failed: %v", err)
	}
	for _, want := range []string{"def bump(caps)", "def greet(name)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "", append(flags, "prompt", "--raw", "--source", "-f", unit)...)
	if err != nil {
		t.Fatalf("prompt --source failed: %v", err)
	}
	if !strings.Contains(out, "property count: int = 0") {
		t.Fatalf("source prompt missing capabilities:\n%s", out)
	}
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "suite.vibe", `class Capabilities
  property count: int = 0
end

def test_counts(caps)
  caps.count = caps.count + 1
  assert(caps.count == 1)
end

def test_fresh(caps)
  assert(caps.count == 0)
end

def test_broken(caps)
  raise "nope"
end

TESTS = [:test_counts, :test_fresh, :test_broken]
`)

	out, err := runCLI(t, "", append(flags, "test", "-f", unit, "-j", "2")...)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 tests failed") {
		t.Fatalf("expected one failure, got %v", err)
	}
	for _, want := range []string{"✓ test_counts", "✓ test_fresh", "✗ test_broken", "2 passed, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("test output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "", append(flags, "test", "-f", unit, "test_fresh")...)
	if err != nil {
		t.Fatalf("single target failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 passed, 0 failed") {
		t.Fatalf("unexpected summary: %s", out)
	}
}

func TestLintCommand(t *testing.T) {
	dir, flags := workspace(t)
	clean := writeFile(t, dir, "clean.vibe", "def run\n  1\nend\n")
	messy := writeFile(t, dir, "messy.vibe", "def run()  \n  1\t \nend")
	writeFile(t, dir, "notes.txt", "ignored")

	out, err := runCLI(t, "", append(flags, "lint", dir)...)
	if err == nil || !strings.Contains(err.Error(), "1 file(s) have problems") {
		t.Fatalf("expected lint failure, got %v", err)
	}
	if !strings.Contains(out, messy+": needs formatting") || strings.Contains(out, clean) {
		t.Fatalf("unexpected lint output: %q", out)
	}

	if _, err := runCLI(t, "", append(flags, "lint", "--fix", dir)...); err != nil {
		t.Fatalf("lint --fix failed: %v", err)
	}
	fixed, err := os.ReadFile(messy)
	if err != nil {
		t.Fatalf("read fixed file: %v", err)
	}
	if string(fixed) != "def run()\n  1\nend\n" {
		t.Fatalf("unexpected fixed source: %q", fixed)
	}

	broken := writeFile(t, dir, "broken.vibe", "def run(\n")
	out, err = runCLI(t, "", append(flags, "lint", broken)...)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if !strings.HasPrefix(out, broken+": ") {
		t.Fatalf("unexpected lint output: %q", out)
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already formatted", "def run\nend\n", "def run\nend\n"},
		{"trailing whitespace", "def run  \n\tx = 1\t\nend", "def run\n\tx = 1\nend\n"},
		{"crlf", "a\r\nb\r\n\r\n", "a\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSource(tt.in); got != tt.want {
				t.Fatalf("formatSource(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKVCapabilityPersistsInStore(t *testing.T) {
	dir, flags := workspace(t)
	unit := writeFile(t, dir, "memo.vibe", `class Capabilities
  property kv: KV
end

def remember(caps, value)
  caps.kv.set("last", value)
end

def recall(caps)
  caps.kv.get("last")
end
`)

	if _, err := runCLI(t, "", append(flags, "run", "remember", "--caps", "-f", unit, "-a", "hi")...); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	out, err := runCLI(t, "", append(flags, "run", "recall", "--caps", "-f", unit)...)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if strings.TrimSpace(out) != `=> "hi"` {
		t.Fatalf("unexpected recall output: %q", out)
	}

	out, err = runCLI(t, "", append(flags, "prompt", "--raw", "--attrs", "-f", unit)...)
	if err != nil {
		t.Fatalf("prompt --attrs failed: %v", err)
	}
	if !strings.Contains(out, "Capabilities.kv: KV") {
		t.Fatalf("attrs prompt missing kv:\n%s", out)
	}
}
