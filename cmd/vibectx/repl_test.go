package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibectx"
	"github.com/mgomes/vibectx/vibes"
)

func newTestSession(t *testing.T) *replSession {
	t.Helper()
	engine := vibes.MustNewEngine(vibes.Config{})
	session := &replSession{
		ctx: context.Background(),
		compile: func(ctx context.Context) (*vibectx.Runtime, error) {
			d := descriptor.New()
			d.InlineSource = counterUnit
			return vibectx.NewCompiler(engine, vibectx.WithDescriptor(d)).Compile(ctx, "repl")
		},
	}
	if err := session.reset(); err != nil {
		t.Fatalf("compile session: %v", err)
	}
	t.Cleanup(func() { session.close() })
	return session
}

func submit(t *testing.T, m replModel, input string) (replModel, tea.Cmd) {
	t.Helper()
	m.textInput.SetValue(input)
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm, ok := model.(replModel)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}
	return rm, cmd
}

func TestUpdateQuitCommandReturnsQuit(t *testing.T) {
	m, cmd := submit(t, newREPLModel(newTestSession(t)), ":quit")

	if !m.quitting {
		t.Fatalf("quitting flag not set")
	}
	if m.textInput.Value() != "" {
		t.Fatalf("input not cleared after quit command")
	}
	if cmd == nil {
		t.Fatalf("expected tea.Quit command")
	}
	if msg := cmd(); msg != nil {
		if _, ok := msg.(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg, got %T", msg)
		}
	}
}

func TestUpdateNonQuitCommandDoesNotReturnCmd(t *testing.T) {
	m, cmd := submit(t, newREPLModel(newTestSession(t)), ":help")

	if cmd != nil {
		t.Fatalf("expected no command for non-quit input")
	}
	if m.quitting {
		t.Fatalf("quitting should remain false")
	}
	if !m.showHelp {
		t.Fatalf("help toggle should be enabled")
	}
	if m.textInput.Value() != "" {
		t.Fatalf("input not cleared after command")
	}
}

func TestEvaluateAssignmentBindsInUnit(t *testing.T) {
	session := newTestSession(t)
	m := newREPLModel(session)

	output, isErr := m.evaluate("score = 42")
	if isErr {
		t.Fatalf("unexpected eval error: %s", output)
	}
	score, ok := session.rt.Namespace().Get("score")
	if !ok {
		t.Fatalf("expected score to be bound in the unit")
	}
	if score.Kind() != vibes.KindInt || score.Int() != 42 {
		t.Fatalf("unexpected score value: %#v", score)
	}
	if got, _ := m.evaluate("score == 42"); got != "true" {
		t.Fatalf("unexpected comparison output %q", got)
	}
	if !strings.Contains(strings.Join(visibleBindings(session.rt), ","), "score") {
		t.Fatalf("score missing from visible bindings")
	}
}

func TestEvaluateShowsOutputAndErrors(t *testing.T) {
	m := newREPLModel(newTestSession(t))

	output, isErr := m.evaluate(`greet("ada")`)
	if isErr {
		t.Fatalf("unexpected eval error: %s", output)
	}
	if output != "hello\n\"ada\"" {
		t.Fatalf("unexpected output %q", output)
	}

	if output, isErr = m.evaluate("def broken("); !isErr {
		t.Fatalf("expected syntax error, got %q", output)
	}
}

func TestResetRecompilesUnit(t *testing.T) {
	session := newTestSession(t)
	m := newREPLModel(session)
	if _, isErr := m.evaluate("score = 1"); isErr {
		t.Fatalf("assignment failed")
	}
	before := session.rt

	m, _ = submit(t, m, ":reset")
	if session.rt == before || !before.Closed() {
		t.Fatalf("reset should replace and close the runtime")
	}
	if _, ok := session.rt.Namespace().Get("score"); ok {
		t.Fatalf("score survived reset")
	}
	if last := m.history[len(m.history)-1]; last.isErr || last.output != "Unit recompiled" {
		t.Fatalf("unexpected history entry %#v", last)
	}
}

func TestSaveCommandWritesDescriptor(t *testing.T) {
	session := newTestSession(t)
	m := newREPLModel(session)
	if output, isErr := m.evaluate("bump(caps)"); isErr {
		t.Fatalf("bump failed: %s", output)
	}

	path := filepath.Join(t.TempDir(), "ctx.toml")
	m, _ = submit(t, m, ":save "+path)
	if last := m.history[len(m.history)-1]; last.isErr {
		t.Fatalf("save failed: %s", last.output)
	}
	saved, err := descriptor.Load(path)
	if err != nil {
		t.Fatalf("load saved descriptor: %v", err)
	}
	if _, ok := saved.Properties["count"]; !ok {
		t.Fatalf("count not saved: %#v", saved.Properties)
	}

	m, _ = submit(t, m, ":save")
	if last := m.history[len(m.history)-1]; !last.isErr {
		t.Fatalf("expected usage error")
	}
}

func TestAutocompleteUsesUnitBindings(t *testing.T) {
	m := newREPLModel(newTestSession(t))
	m.textInput.SetValue("x = gre")
	m = m.handleAutocomplete()
	if got := m.textInput.Value(); got != "x = greet" {
		t.Fatalf("unexpected completion %q", got)
	}
}
