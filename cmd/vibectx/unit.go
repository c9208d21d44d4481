package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newUnitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Manage units in the unit store",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "put name [file]",
			Short: "Store a unit, reading stdin when no file is given",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var (
					data []byte
					err  error
				)
				if len(args) == 2 {
					data, err = os.ReadFile(args[1])
				} else {
					data, err = io.ReadAll(cmd.InOrStdin())
				}
				if err != nil {
					return fmt.Errorf("read unit: %w", err)
				}
				if err := a.engine.Check(string(data)); err != nil {
					return fmt.Errorf("unit %s: %w", args[0], err)
				}
				if err := a.units.SaveUnit(cmd.Context(), args[0], string(data)); err != nil {
					return err
				}
				a.origins.Remove(args[0])
				a.logger.Info("unit stored", "name", args[0], "bytes", len(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "get name",
			Short: "Print a stored unit",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				src, err := a.units.LoadUnit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), src)
				return nil
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List stored units",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				names, err := a.units.ListUnits(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "rm name...",
			Aliases: []string{"delete"},
			Short:   "Delete stored units",
			Args:    cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, name := range args {
					if err := a.units.DeleteUnit(cmd.Context(), name); err != nil {
						return err
					}
					a.origins.Remove(name)
				}
				return nil
			},
		},
	)
	return cmd
}
