package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibectx"
	"github.com/mgomes/vibectx/vibes"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		src      sourceFlags
		code     string
		codeFile string
		args     []string
		withCaps bool
		pending  bool
		save     string
		saveCtx  string
	)
	cmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Execute code and a target inside a unit",
		Long: `Compiles the selected unit, runs --code (or the descriptor's pending
code with --pending) inside it, then calls target with the given
arguments. Without a target the value of the code is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			d, err := src.load(cmd.Context(), a.units)
			if err != nil {
				return err
			}
			if codeFile != "" {
				data, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("read code: %w", err)
				}
				code = string(data)
			}
			if pending && code != "" {
				d.PendingCode = code
			}

			rt, err := a.compile(cmd.Context(), d)
			if err != nil {
				return err
			}
			defer rt.Close()

			target := ""
			if len(positional) > 0 {
				target = positional[0]
			}
			opts := vibectx.ExecOptions{Code: code}
			if withCaps {
				opts.LocalArgs = []string{vibectx.CapabilityBinding}
			}
			for _, raw := range args {
				opts.Args = append(opts.Args, vibes.NewString(raw))
			}

			var res vibectx.Result
			if pending {
				res, err = rt.ExecutePending(cmd.Context(), target, opts)
			} else {
				res, err = rt.Execute(cmd.Context(), target, opts)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Output)
			if res.Descriptor != nil {
				if save != "" {
					err = errors.Join(err, descriptor.Save(save, res.Descriptor))
				}
				if saveCtx != "" {
					err = errors.Join(err, a.units.SaveDescriptor(cmd.Context(), saveCtx, res.Descriptor))
				}
			}
			if err != nil {
				if vibectx.IsGeneratorError(err) {
					return fmt.Errorf("generated code failed: %w", err)
				}
				return err
			}
			if !res.Value.IsNil() {
				fmt.Fprintln(cmd.OutOrStdout(), resultStyle.Render("=> "+res.Value.Inspect()))
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&code, "code", "c", "", "code to run before the target")
	cmd.Flags().StringVar(&codeFile, "code-file", "", "read the code to run from a file")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "string argument passed to target (repeatable)")
	cmd.Flags().BoolVar(&withCaps, "caps", false, "pass the capabilities instance as the first argument")
	cmd.Flags().BoolVar(&pending, "pending", false, "run the descriptor's pending code")
	cmd.Flags().StringVar(&save, "save", "", "write the captured descriptor to this file")
	cmd.Flags().StringVar(&saveCtx, "save-context", "", "store the captured descriptor under this id")
	return cmd
}
