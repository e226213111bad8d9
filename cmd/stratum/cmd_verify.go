package main

import (
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <commit>",
		Short: "Check the SSH signature of a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			c, err := r.Store.ReadCommit(object.Hash(args[0]))
			if err != nil {
				return err
			}

			pub, err := verifySSHCommitSignature(c)
			if err != nil {
				return fmt.Errorf("verify %s: %w", shortHash(args[0]), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "good signature on %s by %s key %s\n",
				shortHash(args[0]), pub.Type(), ssh.FingerprintSHA256(pub))
			return nil
		},
	}
}
