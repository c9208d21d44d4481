package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibectx"
)

type historyEntry struct {
	input  string
	output string
	isErr  bool
}

// replSession owns the runtime the REPL evaluates in. It is shared by every
// copy of the model.
type replSession struct {
	ctx     context.Context
	compile func(context.Context) (*vibectx.Runtime, error)
	rt      *vibectx.Runtime
}

func (s *replSession) reset() error {
	rt, err := s.compile(s.ctx)
	if err != nil {
		return err
	}
	if s.rt != nil {
		_ = s.rt.Close()
	}
	s.rt = rt
	return nil
}

func (s *replSession) close() error {
	if s.rt == nil {
		return nil
	}
	return s.rt.Close()
}

type replModel struct {
	textInput   textinput.Model
	session     *replSession
	history     []historyEntry
	cmdHistory  []string
	historyIdx  int
	width       int
	height      int
	showHelp    bool
	showVars    bool
	quitting    bool
	initialized bool
}

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	CtrlC key.Binding
	CtrlD key.Binding
	CtrlL key.Binding
	Tab   key.Binding
	CtrlV key.Binding
	CtrlK key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous input"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "next input"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "execute"),
	),
	CtrlC: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	CtrlD: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "quit"),
	),
	CtrlL: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "autocomplete"),
	),
	CtrlV: key.NewBinding(
		key.WithKeys("ctrl+v"),
		key.WithHelp("ctrl+v", "toggle bindings"),
	),
	CtrlK: key.NewBinding(
		key.WithKeys("ctrl+k"),
		key.WithHelp("ctrl+k", "toggle help"),
	),
}

func newREPLModel(session *replSession) replModel {
	ti := textinput.New()
	ti.Placeholder = "type code to run in the unit..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60
	ti.PromptStyle = promptStyle
	ti.Prompt = session.rt.Name() + "> "

	return replModel{
		textInput:  ti,
		session:    session,
		historyIdx: -1,
	}
}

func (m replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.CtrlC), key.Matches(msg, keys.CtrlD):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.CtrlL):
			m.history = nil
			return m, nil

		case key.Matches(msg, keys.CtrlV):
			m.showVars = !m.showVars
			return m, nil

		case key.Matches(msg, keys.CtrlK):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keys.Up):
			if len(m.cmdHistory) > 0 {
				if m.historyIdx == -1 {
					m.historyIdx = len(m.cmdHistory) - 1
				} else if m.historyIdx > 0 {
					m.historyIdx--
				}
				m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.historyIdx != -1 {
				if m.historyIdx < len(m.cmdHistory)-1 {
					m.historyIdx++
					m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				} else {
					m.historyIdx = -1
					m.textInput.SetValue("")
				}
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Tab):
			return m.handleAutocomplete(), nil

		case key.Matches(msg, keys.Enter):
			input := strings.TrimSpace(m.textInput.Value())
			if input == "" {
				return m, nil
			}
			m.textInput.SetValue("")
			m.historyIdx = -1
			if strings.HasPrefix(input, ":") {
				return m.handleCommand(input)
			}

			output, isErr := m.evaluate(input)
			m.history = append(m.history, historyEntry{input: input, output: output, isErr: isErr})
			m.cmdHistory = append(m.cmdHistory, input)
			return m, nil
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m replModel) handleCommand(input string) (replModel, tea.Cmd) {
	parts := strings.Fields(input)
	name := parts[0]

	switch name {
	case ":help", ":h":
		m.showHelp = !m.showHelp
	case ":clear", ":c":
		m.history = nil
	case ":vars", ":v":
		m.showVars = !m.showVars
	case ":prompt", ":p":
		text, err := m.session.rt.Prompter().ModulePrompt(m.session.ctx)
		m = m.record(input, text, err)
	case ":save", ":s":
		if len(parts) != 2 {
			m = m.record(input, "", fmt.Errorf("usage: :save <descriptor file>"))
			break
		}
		err := descriptor.Save(parts[1], m.session.rt.Descriptor())
		m = m.record(input, "Descriptor written to "+parts[1], err)
	case ":reset", ":r":
		err := m.session.reset()
		m = m.record(input, "Unit recompiled", err)
		m.textInput.Prompt = m.session.rt.Name() + "> "
	case ":quit", ":q":
		m.quitting = true
		return m, tea.Quit
	default:
		m.history = append(m.history, historyEntry{
			input:  input,
			output: fmt.Sprintf("Unknown command: %s", name),
			isErr:  true,
		})
	}
	return m, nil
}

func (m replModel) record(input, output string, err error) replModel {
	if err != nil {
		m.history = append(m.history, historyEntry{input: input, output: err.Error(), isErr: true})
		return m
	}
	m.history = append(m.history, historyEntry{input: input, output: output})
	return m
}

func (m replModel) handleAutocomplete() replModel {
	input := m.textInput.Value()
	words := strings.Fields(input)
	if len(words) == 0 {
		return m
	}
	lastWord := words[len(words)-1]

	var completions []string
	keywords := []string{"def", "class", "property", "if", "else", "elsif", "end", "return", "true", "false", "nil", "and", "or"}
	for _, k := range keywords {
		if strings.HasPrefix(k, lastWord) {
			completions = append(completions, k)
		}
	}
	for _, name := range m.session.rt.Namespace().Names() {
		if strings.HasPrefix(name, lastWord) {
			completions = append(completions, name)
		}
	}

	switch {
	case len(completions) == 1:
		m.textInput.SetValue(strings.TrimSuffix(input, lastWord) + completions[0])
		m.textInput.CursorEnd()
	case len(completions) > 1:
		m.history = append(m.history, historyEntry{
			output: "Completions: " + strings.Join(completions, ", "),
		})
	}
	return m
}

// evaluate runs input inside the unit. Output printed by the code comes
// before its value.
func (m replModel) evaluate(input string) (string, bool) {
	res, err := m.session.rt.Execute(m.session.ctx, "", vibectx.ExecOptions{Code: input})
	out := strings.TrimRight(res.Output, "\n")
	if err != nil {
		return joinLines(out, err.Error()), true
	}
	return joinLines(out, res.Value.Inspect()), false
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func (m replModel) View() string {
	if !m.initialized {
		return "Loading..."
	}
	if m.quitting {
		return mutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder
	rt := m.session.rt
	b.WriteString(headerStyle.Render("vibectx") + " " + mutedStyle.Render(rt.Name()) + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", max(min(m.width-2, 60), 0))) + "\n\n")

	reserved := 8
	if m.showHelp {
		reserved += 12
	}
	bindings := visibleBindings(rt)
	if m.showVars {
		reserved += len(bindings) + 3
	}
	start := max(len(m.history)-max(m.height-reserved, 1), 0)

	for _, entry := range m.history[start:] {
		if entry.input != "" {
			b.WriteString(mutedStyle.Render("  › ") + entry.input + "\n")
		}
		if entry.isErr {
			b.WriteString("  " + errorStyle.Render("✗ "+entry.output) + "\n")
		} else {
			b.WriteString("  " + resultStyle.Render("→ "+entry.output) + "\n")
		}
		b.WriteString("\n")
	}

	if m.showVars {
		b.WriteString(renderVarsPanel(rt, bindings) + "\n")
	}
	if m.showHelp {
		b.WriteString(renderHelpPanel() + "\n")
	}

	b.WriteString(m.textInput.View() + "\n\n")
	footer := helpKeyStyle.Render("ctrl+k") + helpDescStyle.Render(" help  ") +
		helpKeyStyle.Render("ctrl+v") + helpDescStyle.Render(" bindings  ") +
		helpKeyStyle.Render("ctrl+l") + helpDescStyle.Render(" clear  ") +
		helpKeyStyle.Render("ctrl+c") + helpDescStyle.Render(" quit")
	b.WriteString(footer)
	return b.String()
}

// visibleBindings lists the names generated code would see, leaving out
// private names and the bindings the compiler seeds.
func visibleBindings(rt *vibectx.Runtime) []string {
	ns := rt.Namespace()
	var names []string
	for _, name := range ns.Names() {
		if strings.HasPrefix(name, "_") || ns.Origin(name) == vibectx.LocalsOrigin {
			continue
		}
		names = append(names, name)
	}
	return names
}

func renderVarsPanel(rt *vibectx.Runtime, names []string) string {
	if len(names) == 0 {
		return borderStyle.Render(mutedStyle.Render("No bindings defined"))
	}
	ns := rt.Namespace()
	nameStyle := lipgloss.NewStyle().Foreground(highlightColor)
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Bindings")}
	for _, name := range names {
		val, _ := ns.Get(name)
		line := fmt.Sprintf("  %s = %s", nameStyle.Render(name), val.Inspect())
		if origin := ns.Origin(name); origin != rt.Name() {
			line += mutedStyle.Render("  (" + origin + ")")
		}
		lines = append(lines, line)
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

func renderHelpPanel() string {
	help := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "Navigate input history"},
		{"Tab", "Autocomplete"},
		{"Enter", "Run code in the unit"},
		{":help", "Toggle this help"},
		{":vars", "Toggle bindings panel"},
		{":prompt", "Show the module prompt"},
		{":save", "Write the descriptor to a file"},
		{":clear", "Clear history"},
		{":reset", "Recompile the unit"},
		{":quit", "Exit REPL"},
	}

	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Help")}
	for _, h := range help {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-8s", h.key)),
			helpDescStyle.Render(h.desc)))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

// scratchUnit is compiled when the REPL is started without a unit.
const scratchUnit = "class Capabilities\nend\n"

func newReplCmd(a *app) *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate code interactively inside a unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := src.load(cmd.Context(), a.units)
			if errors.Is(err, errNoSource) {
				d, err = descriptor.New(), nil
				d.InlineSource = scratchUnit
			}
			if err != nil {
				return err
			}
			session := &replSession{
				ctx: cmd.Context(),
				compile: func(ctx context.Context) (*vibectx.Runtime, error) {
					return a.compile(ctx, d.Clone())
				},
			}
			if err := session.reset(); err != nil {
				return err
			}
			defer session.close()

			p := tea.NewProgram(newREPLModel(session), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
	src.register(cmd)
	return cmd
}
