package main

import (
	"fmt"
	"time"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newReflogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog <branch>",
		Short: "Show the update history of a branch ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			entries, err := r.ReadReflog(args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s -> %s  %s\n",
					time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
					shortHash(string(e.OldHash)), shortHash(string(e.NewHash)), e.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max entries to show (0 = all)")
	return cmd
}
