/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook turns GitHub deliveries into queued refinement runs.
//
// Pull requests are queued when opened, reopened or pushed to. A comment
// containing the trigger tag on a pull request queues it as well. Pull
// requests whose head branch is itself a refinement branch are ignored so
// the service never refines its own output.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/prrefine/reconcilers/githubreconciler/publisher"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/workspace"
	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/workqueue/dispatcher"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// DefaultTag is the comment text that requests a run.
const DefaultTag = "ai-refine"

// Trigger is one queued request to refine a pull request.
type Trigger struct {
	PR record.PRInfo
	// Event is the GitHub event name that produced the trigger.
	Event string
}

// Key returns the workspace key the trigger serializes on.
func (t Trigger) Key() string {
	return workspace.Key{
		Owner:  t.PR.Owner,
		Repo:   t.PR.Repo,
		Branch: t.PR.HeadBranch,
		PR:     t.PR.Number,
	}.String()
}

// Queuer accepts triggers. dispatcher.Dispatcher satisfies it.
type Queuer interface {
	Queue(key string, t Trigger) error
}

// Resolver looks up a pull request by number.
type Resolver interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (record.PRInfo, error)
}

// Handler serves the webhook endpoint.
type Handler struct {
	secret   []byte
	queue    Queuer
	tag      string
	resolver Resolver
}

// New returns a Handler that validates deliveries against secret and
// queues triggers on q.
func New(secret []byte, q Queuer, opts ...Option) (*Handler, error) {
	switch {
	case len(secret) == 0:
		return nil, errors.New("webhook secret cannot be empty")
	case q == nil:
		return nil, errors.New("queue cannot be nil")
	}
	h := &Handler{secret: secret, queue: q, tag: DefaultTag}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return h, nil
}

// Routes returns a mux serving POST /webhook and GET /healthz.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /webhook", h)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventType := github.WebHookType(r)
	log := clog.FromContext(ctx).With("event", eventType).With("delivery", github.DeliveryID(r))

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Warn("Rejected delivery", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		log.Warn("Unparseable delivery", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	trigger, ok, err := h.trigger(ctx, eventType, event)
	if err != nil {
		log.Error("Resolving trigger", "error", err)
		http.Error(w, "resolving pull request", http.StatusBadGateway)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if strings.HasPrefix(trigger.PR.HeadBranch, publisher.BranchPrefix) {
		log.With("pr", trigger.PR.String()).Info("Ignoring refinement branch")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.queue.Queue(trigger.Key(), trigger); err != nil {
		log.Error("Queueing trigger", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, dispatcher.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "queueing run", status)
		return
	}
	log.With("pr", trigger.PR.String()).With("sha", trigger.PR.HeadSHA).Info("Queued refinement")
	w.WriteHeader(http.StatusAccepted)
}

// trigger extracts the pull request to refine, if any.
func (h *Handler) trigger(ctx context.Context, eventType string, event any) (Trigger, bool, error) {
	switch e := event.(type) {
	case *github.PullRequestEvent:
		switch e.GetAction() {
		case "opened", "synchronize", "reopened":
		default:
			return Trigger{}, false, nil
		}
		pr := e.GetPullRequest()
		return Trigger{
			Event: eventType,
			PR: record.PRInfo{
				Owner:      e.GetRepo().GetOwner().GetLogin(),
				Repo:       e.GetRepo().GetName(),
				Number:     pr.GetNumber(),
				Title:      pr.GetTitle(),
				HeadBranch: pr.GetHead().GetRef(),
				BaseBranch: pr.GetBase().GetRef(),
				HeadSHA:    pr.GetHead().GetSHA(),
			},
		}, true, nil

	case *github.IssueCommentEvent:
		if e.GetAction() != "created" || e.GetIssue() == nil || !e.GetIssue().IsPullRequest() {
			return Trigger{}, false, nil
		}
		if !strings.Contains(strings.ToLower(e.GetComment().GetBody()), strings.ToLower(h.tag)) {
			return Trigger{}, false, nil
		}
		if h.resolver == nil {
			clog.FromContext(ctx).Warn("Tagged comment received but no resolver is configured")
			return Trigger{}, false, nil
		}
		info, err := h.resolver.PullRequest(ctx, e.GetRepo().GetOwner().GetLogin(), e.GetRepo().GetName(), e.GetIssue().GetNumber())
		if err != nil {
			return Trigger{}, false, err
		}
		return Trigger{Event: eventType, PR: info}, true, nil
	}
	return Trigger{}, false, nil
}

// Compile-time check that the dispatcher can back a Handler.
var _ Queuer = (*dispatcher.Dispatcher[Trigger])(nil)
