package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished task records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureManager(); err != nil {
				return err
			}

			var removed int64
			var err error
			if clearFailed {
				removed, err = ctx.store.ClearFailed(cmd.Context())
			} else {
				removed, err = ctx.store.ClearCompleted(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Clear failed tasks instead of completed ones")
	return cmd
}
