package main

import (
	"fmt"
	"io"
	"time"

	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/odvcencio/stratum/pkg/rollback"
	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	var (
		branch    string
		from      string
		timestamp string
		execute   bool
		force     bool
		author    string
	)

	cmd := &cobra.Command{
		Use:   "rollback [commit|to]",
		Short: "Append a commit reverting historical changes",
		Long: `Rollback inverts history without rewriting it. With one commit hash it
reverts that single commit; with --from it reverts the range (from, to];
with --at it restores the branch to its state at a timestamp. Without
--execute the plan is validated and reported but nothing is written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			switch {
			case timestamp != "":
				t, perr := time.Parse(time.RFC3339, timestamp)
				if perr != nil {
					return fmt.Errorf("--at wants RFC3339, got %q", timestamp)
				}
				res, err = eng.RollbackToTimestamp(cmd.Context(), branch, t, opts)
			case from != "":
				if len(args) != 1 {
					return fmt.Errorf("--from needs the newer boundary commit as argument")
				}
				res, err = eng.RollbackRange(cmd.Context(), branch, object.Hash(from), object.Hash(args[0]), opts)
			case len(args) == 1:
				res, err = eng.RollbackCommit(cmd.Context(), branch, object.Hash(args[0]), opts)
			default:
				return fmt.Errorf("give a commit hash, --from, or --at")
			}
			if res != nil {
				printRollbackResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to roll back")
	cmd.Flags().StringVar(&from, "from", "", "older boundary (exclusive) of a range rollback")
	cmd.Flags().StringVar(&timestamp, "at", "", "restore state as of this RFC3339 timestamp")
	cmd.Flags().BoolVar(&execute, "execute", false, "write the rollback commit (default is dry run)")
	cmd.Flags().BoolVar(&force, "force", false, "execute past blocking dependency findings")
	cmd.Flags().StringVar(&author, "author", "", "override configured author")
	return cmd
}

func printRollbackResult(out io.Writer, res *rollback.Result) {
	fmt.Fprintf(out, "rollback %s (%s, %s): %s\n", res.RollbackID, res.Kind, res.Mode, res.Status)
	fmt.Fprintf(out, "  objects affected: %d\n", res.ObjectsAffected)
	if res.ConflictsResolved > 0 {
		fmt.Fprintf(out, "  overlapping paths resolved: %d\n", res.ConflictsResolved)
	}
	for _, p := range res.SkippedPaths {
		fmt.Fprintf(out, "  skipped (not touched): %s\n", p)
	}
	for _, f := range res.Findings {
		fmt.Fprintf(out, "  [%s] %s %s: %s\n", f.Severity, f.Code, f.Path, f.Detail)
	}
	if res.RollbackCommit != "" {
		fmt.Fprintf(out, "  rollback commit: %s\n", shortHash(string(res.RollbackCommit)))
	}
	fmt.Fprintf(out, "  elapsed: %s\n", res.Elapsed)
}
