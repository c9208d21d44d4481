package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgomes/vibectx/vibectx"
)

func newTestCmd(a *app) *cobra.Command {
	var (
		src         sourceFlags
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "test [target...]",
		Short: "Run a unit's test targets",
		Long: `Runs every named target, or every entry of the unit's TESTS array, each
against its own freshly compiled runtime. Targets receive the
capabilities instance as their only argument.`,
		RunE: func(cmd *cobra.Command, targets []string) error {
			d, err := src.load(cmd.Context(), a.units)
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = a.cfg.HarnessConcurrency
			}
			h := &vibectx.Harness{
				Engine:      a.engine,
				Descriptor:  d,
				Registry:    a.caps,
				Targets:     targets,
				Concurrency: concurrency,
				Options:     a.compilerOptions(),
				Logger:      a.logger,
			}

			out := cmd.OutOrStdout()
			report, err := h.Run(cmd.Context(), func(res vibectx.TestResult) {
				dur := res.Duration.Round(time.Millisecond)
				if res.Passed() {
					fmt.Fprintf(out, "%s %s %s\n", resultStyle.Render("✓"), res.Name, mutedStyle.Render(dur.String()))
					return
				}
				fmt.Fprintf(out, "%s %s: %v\n", errorStyle.Render("✗"), res.Name, res.Err)
				if res.Result.Output != "" {
					fmt.Fprint(out, mutedStyle.Render(res.Result.Output))
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d passed, %d failed\n", report.Passed, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d tests failed", report.Failed, report.Total())
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "parallel test runtimes (default from config)")
	return cmd
}
