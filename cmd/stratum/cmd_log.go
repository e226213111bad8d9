package main

import (
	"fmt"
	"time"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var (
		branch string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history of a branch",
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
			hashes, commits, err := r.Log(head, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, h := range hashes {
				c := commits[i]
				fmt.Fprintf(out, "commit %s\n", h)
				if len(c.Parents) > 1 {
					fmt.Fprint(out, "merge:")
					for _, p := range c.Parents {
						fmt.Fprintf(out, " %s", shortHash(string(p)))
					}
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "author: %s\n", c.Author)
				fmt.Fprintf(out, "date:   %s\n", time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339))
				if c.Signature != "" {
					fmt.Fprintln(out, "signed: yes")
				}
				fmt.Fprintf(out, "\n    %s\n\n", c.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to read")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max commits to show (0 = all)")
	return cmd
}
