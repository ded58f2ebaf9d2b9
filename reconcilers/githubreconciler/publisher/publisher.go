/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher commits accepted changes to a refinement branch and
// opens a pull request against the original head branch.
package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/template"

	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/changegate"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

const (
	// BranchPrefix starts every refinement branch name.
	BranchPrefix = "ai_refined_code_"
	// Title is the title of refinement pull requests.
	Title = "AI Refactored Code Update"
)

// BranchName returns the refinement branch for a head branch.
func BranchName(head string) string {
	return BranchPrefix + head
}

var defaultBody = template.Must(template.New("body").Parse(
	`This PR includes updated code based on coding standards with inline changes described.

Refines #{{.PR.Number}} (` + "`{{.PR.HeadBranch}}`" + `).

| File | Lines |
|---|---|
{{range .Changes}}| ` + "`{{.File.Path}}`" + ` | {{.Stats}} |
{{end}}{{with .Builds}}
### Dependency install
{{range .}}- {{.Description}}
{{end}}{{end}}`))

// Request is what to publish for one pull request.
type Request struct {
	PR      record.PRInfo
	Changes []changegate.Change
	Builds  []buildrepair.Outcome
}

// Result reports what Publish did.
type Result struct {
	Branch    string
	Committed []string
	// Failed maps paths whose commit failed to the error.
	Failed   map[string]error
	PRNumber int
	PRURL    string
	Created  bool
}

// Publisher writes changes through the GitHub contents API.
type Publisher struct {
	client *github.Client
	body   *template.Template
}

// New returns a Publisher using client.
func New(client *github.Client, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	p := &Publisher{client: client, body: defaultBody}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return p, nil
}

// Publish commits every change to the refinement branch of req.PR, one
// commit per file, and opens a pull request unless one is already open.
// A failed file commit does not stop the others; it is reported in
// Result.Failed.
func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	pr := req.PR
	res := Result{Branch: BranchName(pr.HeadBranch)}
	if len(req.Changes) == 0 {
		return res, nil
	}
	log := clog.FromContext(ctx).With("pr", pr.String()).With("branch", res.Branch)

	if err := p.ensureBranch(ctx, pr, res.Branch); err != nil {
		return res, err
	}

	for _, c := range req.Changes {
		if err := p.commit(ctx, pr, res.Branch, c); err != nil {
			log.With("path", c.File.Path).Warn("Failed to commit file", "error", err)
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[c.File.Path] = err
			continue
		}
		res.Committed = append(res.Committed, c.File.Path)
	}
	if len(res.Committed) == 0 {
		return res, failure.New(failure.HostingAPI, "no file could be committed", nil, "branch", res.Branch)
	}

	existing, _, err := p.client.PullRequests.List(ctx, pr.Owner, pr.Repo, &github.PullRequestListOptions{
		State: "open",
		Head:  pr.Owner + ":" + res.Branch,
		Base:  pr.HeadBranch,
	})
	if err != nil {
		return res, failure.New(failure.HostingAPI, "listing pull requests", err, "branch", res.Branch)
	}
	if len(existing) > 0 {
		res.PRNumber = existing[0].GetNumber()
		res.PRURL = existing[0].GetHTMLURL()
		log.Infof("PR already exists: #%d", res.PRNumber)
		return res, nil
	}

	var body bytes.Buffer
	if err := p.body.Execute(&body, req); err != nil {
		return res, fmt.Errorf("executing body template: %w", err)
	}
	created, _, err := p.client.PullRequests.Create(ctx, pr.Owner, pr.Repo, &github.NewPullRequest{
		Title: github.Ptr(Title),
		Body:  github.Ptr(body.String()),
		Head:  github.Ptr(res.Branch),
		Base:  github.Ptr(pr.HeadBranch),
	})
	if err != nil {
		return res, failure.New(failure.HostingAPI, "creating pull request", err, "branch", res.Branch)
	}
	res.PRNumber = created.GetNumber()
	res.PRURL = created.GetHTMLURL()
	res.Created = true
	log.Infof("Created PR #%d: %s", res.PRNumber, res.PRURL)
	return res, nil
}

// ensureBranch creates branch at the head commit of pr when it does not
// exist yet.
func (p *Publisher) ensureBranch(ctx context.Context, pr record.PRInfo, branch string) error {
	_, resp, err := p.client.Git.GetRef(ctx, pr.Owner, pr.Repo, "heads/"+branch)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return failure.New(failure.HostingAPI, "checking branch", err, "branch", branch)
	}
	sha := pr.HeadSHA
	if sha == "" {
		head, _, err := p.client.Git.GetRef(ctx, pr.Owner, pr.Repo, "heads/"+pr.HeadBranch)
		if err != nil {
			return failure.New(failure.HostingAPI, "resolving head branch", err, "branch", pr.HeadBranch)
		}
		sha = head.GetObject().GetSHA()
	}
	if _, _, err := p.client.Git.CreateRef(ctx, pr.Owner, pr.Repo, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	}); err != nil {
		return failure.New(failure.HostingAPI, "creating branch", err, "branch", branch)
	}
	clog.FromContext(ctx).With("branch", branch).With("sha", sha).Info("Created branch")
	return nil
}

// commit creates or updates one file on branch.
func (p *Publisher) commit(ctx context.Context, pr record.PRInfo, branch string, c changegate.Change) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(c.CommitMessage()),
		Content: []byte(c.File.UpdatedCode),
		Branch:  github.Ptr(branch),
	}
	cur, _, resp, err := p.client.Repositories.GetContents(ctx, pr.Owner, pr.Repo, c.File.Path, &github.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && cur != nil:
		opts.SHA = github.Ptr(cur.GetSHA())
		_, _, err = p.client.Repositories.UpdateFile(ctx, pr.Owner, pr.Repo, c.File.Path, opts)
		if err != nil {
			return failure.New(failure.HostingAPI, "updating file", err, "path", c.File.Path)
		}
	case err == nil, resp != nil && resp.StatusCode == http.StatusNotFound:
		_, _, err = p.client.Repositories.CreateFile(ctx, pr.Owner, pr.Repo, c.File.Path, opts)
		if err != nil {
			return failure.New(failure.HostingAPI, "creating file", err, "path", c.File.Path)
		}
	default:
		return failure.New(failure.HostingAPI, "reading file", err, "path", c.File.Path)
	}
	return nil
}
