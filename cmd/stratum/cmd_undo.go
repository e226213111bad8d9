package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/odvcencio/stratum/pkg/rollback"
	"github.com/spf13/cobra"
)

func newUndoCmd() *cobra.Command {
	var (
		branch  string
		commit  string
		from    string
		execute bool
		force   bool
		author  string
	)

	cmd := &cobra.Command{
		Use:   "undo <schema.name> [schema.name ...]",
		Short: "Revert specific objects out of a commit's (or range's) changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if commit == "" {
				return fmt.Errorf("--commit required")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			opts := rollback.Options{Mode: rollback.DryRun, Author: author, Force: force}
			if execute {
				opts.Mode = rollback.Executed
			}

			eng := rollback.New(r)
			var res *rollback.Result
			if from != "" {
				res, err = eng.UndoRange(cmd.Context(), branch, args, object.Hash(from), object.Hash(commit), opts)
			} else {
				res, err = eng.UndoChanges(cmd.Context(), branch, args, object.Hash(commit), opts)
			}
			if res != nil {
				printRollbackResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to undo on")
	cmd.Flags().StringVarP(&commit, "commit", "c", "", "commit whose changes to undo (with --from, the newer range boundary)")
	cmd.Flags().StringVar(&from, "from", "", "older boundary (exclusive) to undo over a commit range")
	cmd.Flags().BoolVar(&execute, "execute", false, "write the undo commit (default is dry run)")
	cmd.Flags().BoolVar(&force, "force", false, "execute past blocking dependency findings")
	cmd.Flags().StringVar(&author, "author", "", "override configured author")
	return cmd
}
