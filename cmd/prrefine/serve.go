/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chainguard.dev/prrefine/config"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/webhook"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/workqueue/dispatcher"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second
	drainTimeout    = 15 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve GitHub webhooks and refine pull requests as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

// runTrigger adapts a pipeline to the dispatcher. Workspace and hosting
// failures are retried; anything else would fail the same way again.
func runTrigger(p prRunner) dispatcher.Callback[webhook.Trigger] {
	return func(ctx context.Context, _ string, t webhook.Trigger) error {
		_, err := p.Run(ctx, t.PR)
		if err == nil {
			return nil
		}
		switch failure.KindOf(err) {
		case failure.Workspace, failure.HostingAPI:
			return err
		}
		return dispatcher.NonRetriableError(err, "run failed")
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required to serve webhooks")
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	go serveMetrics(ctx, cfg.MetricsPort)

	d, err := dispatcher.New(ctx, cfg.Concurrency, runTrigger(a.pipeline),
		dispatcher.WithMaxRetry[webhook.Trigger](1),
		dispatcher.WithRetryDelay[webhook.Trigger](time.Minute),
		dispatcher.WithDeadletter(func(ctx context.Context, key string, t webhook.Trigger, err error) {
			clog.FromContext(ctx).With("key", key).With("sha", t.PR.HeadSHA).Error("Refinement abandoned", "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	h, err := webhook.New([]byte(cfg.WebhookSecret), d,
		webhook.WithTag(cfg.TriggerTag),
		webhook.WithResolver(a.source),
	)
	if err != nil {
		return fmt.Errorf("creating webhook handler: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			clog.WarnContextf(ctx, "Shutting down webhook server: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Serving webhooks on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving webhooks: %w", err)
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	clog.InfoContextf(ctx, "Draining %d queued pull requests", d.Len())
	return d.Shutdown(dctx)
}

// serveMetrics exposes the default Prometheus registry until ctx ends.
func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	clog.InfoContextf(ctx, "Serving metrics on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.ErrorContextf(ctx, "Serving metrics: %v", err)
	}
}
