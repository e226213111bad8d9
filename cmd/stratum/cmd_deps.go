package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/depgraph"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newDepsCmd() *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:   "deps <schema.name>",
		Short: "Show what an object depends on (or what depends on it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			g := depgraph.New(r.Ledger)

			var edges []depgraph.Edge
			if reverse {
				edges, err = g.DependentsOf(cmd.Context(), args[0])
			} else {
				edges, err = g.DependenciesOf(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(edges) == 0 {
				fmt.Fprintln(out, "no recorded dependencies")
				return nil
			}
			for _, e := range edges {
				hardness := "soft"
				if e.Hard() {
					hardness = "hard"
				}
				fmt.Fprintf(out, "  %s -> %s (%s, %s)\n", e.Dependent, e.DependsOn, e.Kind, hardness)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&reverse, "dependents", "r", false, "show objects depending on this one")
	return cmd
}
