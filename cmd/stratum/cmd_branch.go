package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var (
		deleteBranch string
		force        bool
		from         string
	)

	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()

			// Delete mode.
			if deleteBranch != "" {
				if err := r.DeleteBranch(deleteBranch, force); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted branch '%s'\n", deleteBranch)
				return nil
			}

			// Create mode: fork from another branch's head.
			if len(args) == 1 {
				head, err := r.ResolveHead(from)
				if err != nil {
					return fmt.Errorf("cannot resolve branch %q: %w", from, err)
				}
				if err := r.CreateBranch(args[0], head); err != nil {
					return err
				}
				fmt.Fprintf(out, "created branch '%s' at %s\n", args[0], shortHash(string(head)))
				return nil
			}

			// List mode.
			branches, err := r.ListBranches()
			if err != nil {
				return err
			}
			for _, b := range branches {
				fmt.Fprintf(out, "  %s\n", b)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete even a protected branch")
	cmd.Flags().StringVar(&from, "from", "main", "branch whose head the new branch starts at")
	return cmd
}
