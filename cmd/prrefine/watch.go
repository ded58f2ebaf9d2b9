/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"strings"
	"time"

	"chainguard.dev/prrefine/config"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/publisher"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

type taggedSelector interface {
	SelectTagged(ctx context.Context, owner, repo, tag string) ([]record.PRInfo, error)
}

type processedChecker interface {
	ProcessedAt(ctx context.Context, repo string, pr int, sha string) (bool, error)
}

func watchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch owner/repo...",
		Short: "Poll repositories for pull requests tagged for refinement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, r := range args {
				if _, _, err := parseRepo(r); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if once {
				poll(ctx, a.source, a.store, a.pipeline, args, cfg.TriggerTag)
				return nil
			}
			go serveMetrics(ctx, cfg.MetricsPort)
			ticker := time.NewTicker(cfg.PollInterval)
			defer ticker.Stop()
			for {
				poll(ctx, a.source, a.store, a.pipeline, args, cfg.TriggerTag)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Poll once and exit")
	return cmd
}

// poll runs the pipeline for every tagged pull request of repos whose head
// commit has not been processed successfully yet. Runs are sequential.
func poll(ctx context.Context, sel taggedSelector, seen processedChecker, run prRunner, repos []string, tag string) int {
	ran := 0
	for _, slug := range repos {
		owner, repo, err := parseRepo(slug)
		if err != nil {
			continue
		}
		log := clog.FromContext(ctx).With("repo", slug)
		prs, err := sel.SelectTagged(ctx, owner, repo, tag)
		if err != nil {
			log.Warn("Selecting tagged pull requests failed", "error", err)
			continue
		}
		for _, pr := range prs {
			if ctx.Err() != nil {
				return ran
			}
			if strings.HasPrefix(pr.HeadBranch, publisher.BranchPrefix) {
				continue
			}
			done, err := seen.ProcessedAt(ctx, pr.Identity(), pr.Number, pr.HeadSHA)
			if err != nil {
				log.Warn("Checking audit history failed", "error", err)
				continue
			}
			if done {
				log.With("pr", pr.String()).Debug("Already processed at this commit")
				continue
			}
			ran++
			if _, err := run.Run(ctx, pr); err != nil {
				log.With("pr", pr.String()).Error("Refinement failed", "error", err)
			}
		}
	}
	return ran
}
