package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "stratum",
		Short: "Version control for database schemas",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRecordCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newTagCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newConflictsCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newFinalizeCmd())
	root.AddCommand(newRollbackCmd())
	root.AddCommand(newUndoCmd())
	root.AddCommand(newDepsCmd())
	root.AddCommand(newReflogCmd())
	root.AddCommand(newGCCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("stratum 0.1.0-dev")
		},
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
