package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var (
		branch  string
		message string
		tagger  string
	)

	cmd := &cobra.Command{
		Use:   "tag [name]",
		Short: "List tags, or tag a branch head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Fprintf(out, "  %s\n", t)
				}
				return nil
			}

			head, err := r.ResolveHead(branch)
			if err != nil {
				return err
			}
			if tagger == "" {
				tagger = r.Config.DefaultAuthor
			}
			if message == "" {
				message = args[0]
			}
			tagHash, err := r.CreateTag(args[0], head, tagger, message)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tagged %s at %s (%s)\n", args[0], shortHash(string(head)), shortHash(string(tagHash)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch whose head to tag")
	cmd.Flags().StringVarP(&message, "message", "m", "", "tag message")
	cmd.Flags().StringVar(&tagger, "tagger", "", "override configured author")
	return cmd
}
