package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "show [schema.name]",
		Short: "Show the schema snapshot of a branch, or one object's definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			head, err := r.ResolveHead(branch)
			if err != nil {
				return err
			}
			entries, err := r.TreeEntriesAt(head)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				for _, e := range entries {
					if e.Path == args[0] {
						blob, err := r.Store.ReadBlob(e.BlobHash)
						if err != nil {
							return err
						}
						out.Write(blob.Data)
						return nil
					}
				}
				return fmt.Errorf("show: %w: no object %q on branch %q", object.ErrNotFound, args[0], branch)
			}

			fmt.Fprintf(out, "%s @ %s\n", branch, shortHash(string(head)))
			for _, e := range entries {
				fmt.Fprintf(out, "  %-10s %s  %s\n", e.Kind, shortHash(string(e.BlobHash)), e.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to read")
	return cmd
}
