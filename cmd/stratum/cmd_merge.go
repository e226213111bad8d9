package main

import (
	"fmt"
	"io"

	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/merge"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var (
		target        string
		strategy      string
		message       string
		author        string
		allowDisjoint bool
	)

	cmd := &cobra.Command{
		Use:   "merge <source-branch>",
		Short: "Merge a source branch into a target branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "merging %s into %s (%s)...\n", args[0], target, strategy)

			res, err := merge.New(r).Merge(cmd.Context(), merge.Options{
				SourceBranch:  args[0],
				TargetBranch:  target,
				Strategy:      merge.Strategy(strategy),
				Message:       message,
				Author:        author,
				AllowDisjoint: allowDisjoint,
			})
			if err != nil {
				return err
			}

			switch res.Status {
			case merge.StatusSuccess:
				fmt.Fprintf(out, "merge completed: %s (%d conflict(s) auto-resolved)\n",
					shortHash(string(res.ResultCommit)), res.ConflictsResolved)
			case merge.StatusConflict:
				fmt.Fprintf(out, "merge %s blocked: %d conflict(s) detected\n", res.MergeID, res.ConflictsDetected)
				printConflicts(out, res.Conflicts)
				fmt.Fprintln(out, "resolve each conflict, then run stratum finalize")
			case merge.StatusAborted:
				fmt.Fprintln(out, res.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "into", "t", "main", "target branch")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(merge.AbortOnConflict), "ABORT_ON_CONFLICT, SOURCE_WINS, TARGET_WINS, UNION, or MANUAL_REVIEW")
	cmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	cmd.Flags().StringVar(&author, "author", "", "override configured author")
	cmd.Flags().BoolVar(&allowDisjoint, "allow-disjoint", false, "merge branches with no common ancestor against the default root")
	return cmd
}

func printConflicts(out io.Writer, conflicts []*ledger.Conflict) {
	for _, c := range conflicts {
		state := "unresolved"
		if c.Resolved() {
			state = "resolved -> " + c.Resolution
		}
		fmt.Fprintf(out, "  %s  %s [%s/%s] %s\n", c.ID, c.Path, c.Classification, c.Severity, state)
	}
}
