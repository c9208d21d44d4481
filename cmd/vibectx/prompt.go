package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

const promptWrapWidth = 100

func newPromptCmd(a *app) *cobra.Command {
	var (
		src      sourceFlags
		attrs    bool
		imported bool
		source   bool
		raw      bool
		includes []string
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the prompt a generator sees for a unit",
		Long: `Prints the module prompt of the selected unit: its bindings followed
by the capabilities they may use. --attrs and --imported print only one
half of it, --source prints the unit's visible source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := src.load(cmd.Context(), a.units)
			if err != nil {
				return err
			}
			rt, err := a.compile(cmd.Context(), d)
			if err != nil {
				return err
			}
			defer rt.Close()

			p := rt.Prompter()
			var text string
			switch {
			case source:
				text, err = p.SourceCode(true)
			case imported:
				text, err = p.ImportedPrompt()
			case attrs:
				text, err = p.ImportedAttrsPrompt(cmd.Context(), includes...)
			default:
				text, err = p.ModulePrompt(cmd.Context())
			}
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
				return nil
			}
			rendered, err := renderPrompt(text)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().BoolVar(&attrs, "attrs", false, "print only the capabilities section")
	cmd.Flags().BoolVar(&imported, "imported", false, "print only the unit's bindings")
	cmd.Flags().BoolVar(&source, "source", false, "print the unit's visible source")
	cmd.Flags().StringSliceVar(&includes, "include", nil, "extra bindings to describe with --attrs")
	cmd.Flags().BoolVar(&raw, "raw", false, "print plain text without terminal styling")
	cmd.MarkFlagsMutuallyExclusive("attrs", "imported", "source")
	return cmd
}

// renderPrompt styles a prompt as a fenced code block for the terminal.
func renderPrompt(text string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(promptWrapWidth),
	)
	if err != nil {
		return "", fmt.Errorf("create prompt renderer: %w", err)
	}
	out, err := renderer.Render("```ruby\n" + strings.TrimRight(text, "\n") + "\n```\n")
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out, nil
}
