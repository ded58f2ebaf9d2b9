/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command prrefine regenerates the files of GitHub pull requests against
// the repository's coding standards, repairs dependency installs broken by
// the regenerated manifests and publishes the result as a follow-up pull
// request.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chainguard.dev/prrefine/agents/agenttrace"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx = agenttrace.WithTracer(ctx, agenttrace.NewLogTracer[string](ctx))

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "prrefine: %v", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prrefine",
		Short:         "Refine pull requests against the repository's coding standards",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `prrefine regenerates every changed file of a pull request, one file at a
time with a context of related files, then reinstalls dependencies for
changed manifests, asking the model to repair them until the install
succeeds.

Configuration is read from the environment; see the config package.

Examples:
  prrefine run octo/app#7 --publish   # Refine one pull request
  prrefine serve                      # Handle GitHub webhooks
  prrefine watch octo/app octo/web    # Poll for tagged pull requests
  prrefine audit octo/app#7           # Show the audit history`,
	}
	root.AddCommand(serveCmd(), runCmd(), watchCmd(), auditCmd())
	return root
}
