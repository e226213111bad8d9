package main

import (
	"fmt"
	"sort"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			stg, err := r.ReadStaging()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(stg.Entries) == 0 {
				fmt.Fprintln(out, "nothing staged")
				return nil
			}

			paths := make([]string, 0, len(stg.Entries))
			for path := range stg.Entries {
				paths = append(paths, path)
			}
			sort.Strings(paths)

			fmt.Fprintln(out, "staged changes:")
			for _, path := range paths {
				e := stg.Entries[path]
				if e.Deleted {
					fmt.Fprintf(out, "  dropped:  %s\n", path)
				} else {
					fmt.Fprintf(out, "  modified: %s (%s)\n", path, e.Kind)
				}
			}
			return nil
		},
	}
}
