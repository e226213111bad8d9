package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/stratum/pkg/ddl"
	"github.com/odvcencio/stratum/pkg/repo"
	"github.com/spf13/cobra"
)

func newRecordCmd() *cobra.Command {
	var drop string

	cmd := &cobra.Command{
		Use:   "record [file.sql ...]",
		Short: "Stage DDL definitions (or drops) for the next commit",
		Long: `Record reads each DDL file, classifies the statement it contains, and
stages the object definition under its canonical schema.name path. With
--drop, stages the removal of an existing object instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()

			if drop != "" {
				schema, name, ok := splitPath(drop)
				if !ok {
					return fmt.Errorf("--drop wants schema.name, got %q", drop)
				}
				if _, err := r.RecordChange(schema, name, "", nil); err != nil {
					return err
				}
				fmt.Fprintf(out, "staged drop of %s\n", drop)
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("nothing to record: give DDL files or --drop")
			}

			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				def := string(raw)

				stmt := ddl.Classify(def)
				if stmt.Op == ddl.OpUnclassified || stmt.Name == "" {
					return fmt.Errorf("%s: statement not recognized as DDL", path)
				}
				schema := stmt.Schema
				if schema == "" {
					schema = "public"
				}

				hash, err := r.RecordChange(schema, stmt.Name, stmt.Kind, &def)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "staged %s %s.%s (%s)\n", strings.ToLower(string(stmt.Kind)), schema, stmt.Name, shortHash(string(hash)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&drop, "drop", "", "stage removal of an object by schema.name")
	return cmd
}

func splitPath(path string) (schema, name string, ok bool) {
	i := strings.LastIndex(path, ".")
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
