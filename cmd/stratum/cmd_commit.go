package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var (
		branch  string
		message string
		author  string
		sign    bool
		keyPath string
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit staged changes to a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			var signer repo.CommitSigner
			if sign || keyPath != "" {
				path := keyPath
				if path == "" {
					path = r.Config.SigningKeyPath
				}
				var resolved string
				signer, resolved, err = newSSHCommitSigner(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signing with %s\n", resolved)
			}

			hash, err := r.CommitWithSigner(cmd.Context(), branch, message, author, signer)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, shortHash(string(hash)), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to commit to")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override configured author")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "signing-key", "", "SSH private key for signing")
	return cmd
}
