/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"cmp"
	"fmt"
	"os"

	"chainguard.dev/prrefine/audit"
	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	var (
		db    string
		files bool
	)
	cmd := &cobra.Command{
		Use:   "audit owner/repo#number",
		Short: "Show the audit history of a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, n, err := parsePRRef(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := audit.OpenSQLite(ctx, db)
			if err != nil {
				return err
			}
			defer store.Close()

			slug := owner + "/" + repo
			out := cmd.OutOrStdout()
			if files {
				paths, err := store.ProcessedFiles(ctx, slug, n)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			}
			entries, err := store.History(ctx, slug, n)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No audit history for %s#%d\n", slug, n)
				return nil
			}
			return audit.WriteHistory(out, entries)
		},
	}
	cmd.Flags().StringVar(&db, "db", cmp.Or(os.Getenv("AUDIT_DB"), "prrefine-audit.db"), "Path of the audit database")
	cmd.Flags().BoolVar(&files, "files", false, "List the files processed for the pull request instead")
	return cmd
}
