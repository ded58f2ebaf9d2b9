/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"io"

	"chainguard.dev/prrefine/config"
	"chainguard.dev/prrefine/regen/pipeline"
	"chainguard.dev/prrefine/regen/record"
	"github.com/spf13/cobra"
)

// prRunner runs the pipeline for one pull request.
type prRunner interface {
	Run(ctx context.Context, pr record.PRInfo) (pipeline.Result, error)
}

func runCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "run owner/repo#number",
		Short: "Refine one pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, n, err := parsePRRef(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, publish)
			if err != nil {
				return err
			}
			defer a.Close()

			pr, err := a.source.PullRequest(ctx, owner, repo, n)
			if err != nil {
				return err
			}
			res, err := a.pipeline.Run(ctx, pr)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "Commit the changes and open a pull request")
	return cmd
}

// printResult writes a short human-readable summary of res.
func printResult(w io.Writer, res pipeline.Result) {
	fmt.Fprintf(w, "Run %s for %s\n", res.RunID, res.PR)
	for _, r := range res.Records {
		f, _ := res.Regenerated.Get(r.Path)
		status := "regenerated"
		if f.Failed {
			status = "kept (generation failed)"
		}
		fmt.Fprintf(w, "  %-40s %s\n", r.Path, status)
	}
	for _, b := range res.Builds {
		fmt.Fprintf(w, "  build: %s\n", b.Description)
	}
	fmt.Fprintf(w, "%d file(s) changed\n", len(res.Changes))
	if res.Published != nil && res.Published.PRURL != "" {
		verb := "Updated"
		if res.Published.Created {
			verb = "Opened"
		}
		fmt.Fprintf(w, "%s %s\n", verb, res.Published.PRURL)
	}
}
