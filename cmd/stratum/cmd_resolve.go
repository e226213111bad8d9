package main

import (
	"fmt"
	"os"

	"github.com/odvcencio/stratum/pkg/merge"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <merge-id>",
		Short: "List the conflicts of a merge operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			conflicts, err := r.Ledger.ConflictsByMerge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no conflicts recorded")
				return nil
			}
			printConflicts(cmd.OutOrStdout(), conflicts)
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	var (
		choice     string
		customFile string
	)

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Record a resolution for one merge conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			var customDef string
			if customFile != "" {
				raw, err := os.ReadFile(customFile)
				if err != nil {
					return err
				}
				customDef = string(raw)
				choice = string(merge.ChooseCustom)
			}

			c, err := merge.New(r).ResolveConflict(cmd.Context(), args[0], merge.ResolutionChoice(choice), customDef)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s -> %s\n", c.Path, c.Resolution)
			return nil
		},
	}

	cmd.Flags().StringVarP(&choice, "choose", "c", "", "SOURCE or TARGET")
	cmd.Flags().StringVar(&customFile, "custom", "", "DDL file replacing both sides")
	return cmd
}

func newFinalizeCmd() *cobra.Command {
	var (
		author string
		abort  bool
	)

	cmd := &cobra.Command{
		Use:   "finalize <merge-id>",
		Short: "Complete (or abort) a conflicted merge after resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			ex := merge.New(r)
			out := cmd.OutOrStdout()

			if abort {
				if err := ex.AbortMerge(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "merge %s aborted\n", args[0])
				return nil
			}

			res, err := ex.FinalizeMerge(cmd.Context(), args[0], author)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "merge finalized: %s (%d conflict(s) resolved)\n",
				shortHash(string(res.ResultCommit)), res.ConflictsResolved)
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "override configured author")
	cmd.Flags().BoolVar(&abort, "abort", false, "abort instead of finalizing")
	return cmd
}
