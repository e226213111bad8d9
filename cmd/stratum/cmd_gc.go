package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove objects unreachable from any ref",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			sum, err := r.GC(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, reachable %d, removed %d, skipped %d (inside safety window)\n",
				sum.Scanned, sum.Reachable, sum.Removed, sum.Skipped)
			return nil
		},
	}
}
