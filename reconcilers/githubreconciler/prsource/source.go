/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"github.com/waigani/diffparser"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStandardsPath is read from the head branch for coding standards.
	DefaultStandardsPath = "README.md"
	// DefaultTag marks pull requests that asked for refinement.
	DefaultTag = "ai-refine"

	prefetchLimit = 8
)

// Source reads pull requests through the GitHub API.
type Source struct {
	client        *github.Client
	gql           *githubv4.Client
	skipper       *record.Skipper
	standardsPath string
}

// New returns a Source using client for REST calls. GraphQL calls share
// its transport unless WithGraphQLClient is given.
func New(client *github.Client, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	s := &Source{
		client:        client,
		skipper:       record.NewSkipper(),
		standardsPath: DefaultStandardsPath,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if s.gql == nil {
		s.gql = githubv4.NewClient(client.Client())
	}
	return s, nil
}

func hostingError(msg string, err error, pr record.PRInfo, kv ...string) error {
	return failure.New(failure.HostingAPI, msg, err, append([]string{"pr", pr.String()}, kv...)...)
}

// PullRequest fetches the metadata of owner/repo#number.
func (s *Source) PullRequest(ctx context.Context, owner, repo string, number int) (record.PRInfo, error) {
	info := record.PRInfo{Owner: owner, Repo: repo, Number: number}
	pr, _, err := s.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return info, hostingError("fetching pull request", err, info)
	}
	info.Title = pr.GetTitle()
	info.HeadBranch = pr.GetHead().GetRef()
	info.HeadSHA = pr.GetHead().GetSHA()
	info.BaseBranch = pr.GetBase().GetRef()
	return info, nil
}

// ChangedFiles returns the paths added or modified by pr, in diff order.
func (s *Source) ChangedFiles(ctx context.Context, pr record.PRInfo) ([]string, error) {
	log := clog.FromContext(ctx).With("pr", pr.String())
	raw, _, err := s.client.PullRequests.GetRaw(ctx, pr.Owner, pr.Repo, pr.Number, github.RawOptions{Type: github.Diff})
	if err != nil {
		log.Warn("Failed to fetch pull request diff, listing files", "error", err)
		return s.listFiles(ctx, pr)
	}
	paths, err := pathsFromDiff(raw)
	if err != nil {
		log.Warn("Failed to parse pull request diff, listing files", "error", err)
		return s.listFiles(ctx, pr)
	}
	return paths, nil
}

// pathsFromDiff extracts the non-deleted paths of a unified diff.
func pathsFromDiff(raw string) ([]string, error) {
	d, err := diffparser.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(d.Files) == 0 && raw != "" {
		return nil, errors.New("diff has no files")
	}
	var out []string
	for _, f := range d.Files {
		if f.Mode == diffparser.DELETED || f.NewName == "" {
			continue
		}
		if !slices.Contains(out, f.NewName) {
			out = append(out, f.NewName)
		}
	}
	return out, nil
}

func (s *Source) listFiles(ctx context.Context, pr record.PRInfo) ([]string, error) {
	var out []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := s.client.PullRequests.ListFiles(ctx, pr.Owner, pr.Repo, pr.Number, opts)
		if err != nil {
			return nil, hostingError("listing pull request files", err, pr)
		}
		for _, f := range files {
			if f.GetStatus() == "removed" {
				continue
			}
			out = append(out, f.GetFilename())
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// errNotFile reports content the API cannot return as a single text file.
var errNotFile = errors.New("not a regular file")

// Content returns the text of path at ref.
func (s *Source) Content(ctx context.Context, pr record.PRInfo, path, ref string) (string, error) {
	fc, _, resp, err := s.client.Repositories.GetContents(ctx, pr.Owner, pr.Repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%s at %s: %w", path, ref, errNotFound)
		}
		return "", hostingError("fetching file content", err, pr, "path", path, "ref", ref)
	}
	if fc == nil {
		return "", fmt.Errorf("%s: %w", path, errNotFile)
	}
	text, err := fc.GetContent()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", path, errNotFile, err)
	}
	return text, nil
}

var errNotFound = errors.New("not found")

// IsNotFound reports whether err is a missing file from Content.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

// Fetch returns the head-branch content of every changed file the skipper
// admits. Contents are fetched concurrently before any regeneration
// starts. Files the API cannot return as text are left out.
func (s *Source) Fetch(ctx context.Context, pr record.PRInfo) (map[string]string, error) {
	paths, err := s.ChangedFiles(ctx, pr)
	if err != nil {
		return nil, err
	}
	log := clog.FromContext(ctx).With("pr", pr.String())

	var (
		mu  sync.Mutex
		out = make(map[string]string, len(paths))
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(prefetchLimit)
	for _, p := range paths {
		if s.skipper.Skip(p) {
			log.With("path", p).Debug("Skipping file")
			continue
		}
		eg.Go(func() error {
			text, err := s.Content(egCtx, pr, p, pr.HeadBranch)
			switch {
			case err == nil:
			case IsNotFound(err), errors.Is(err, errNotFile):
				log.With("path", p).Warn("Skipping unreadable file", "error", err)
				return nil
			default:
				return err
			}
			mu.Lock()
			out[p] = text
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.With("files", len(out)).Info("Fetched pull request files")
	return out, nil
}

// Standards returns the coding standards document from the head branch.
func (s *Source) Standards(ctx context.Context, pr record.PRInfo) (string, error) {
	return s.Content(ctx, pr, s.standardsPath, pr.HeadBranch)
}

// SelectTagged returns the open pull requests of owner/repo with a comment
// or review comment containing tag, compared case-insensitively.
func (s *Source) SelectTagged(ctx context.Context, owner, repo, tag string) ([]record.PRInfo, error) {
	var q struct {
		Repository struct {
			PullRequests struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
				Nodes []taggedPR
			} `graphql:"pullRequests(states: [OPEN], first: 50, after: $cursor)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"cursor": (*githubv4.String)(nil),
	}

	var out []record.PRInfo
	for {
		if err := s.gql.Query(ctx, &q, vars); err != nil {
			return nil, failure.New(failure.HostingAPI, "querying tagged pull requests", err, "repo", owner+"/"+repo)
		}
		for _, n := range q.Repository.PullRequests.Nodes {
			if !n.tagged(tag) {
				continue
			}
			out = append(out, record.PRInfo{
				Owner:      owner,
				Repo:       repo,
				Number:     n.Number,
				Title:      n.Title,
				HeadBranch: n.HeadRefName,
				BaseBranch: n.BaseRefName,
				HeadSHA:    n.HeadRefOid,
			})
		}
		if !q.Repository.PullRequests.PageInfo.HasNextPage {
			break
		}
		vars["cursor"] = githubv4.NewString(q.Repository.PullRequests.PageInfo.EndCursor)
	}
	clog.FromContext(ctx).With("repo", owner+"/"+repo).With("tag", tag).With("count", len(out)).Info("Found tagged pull requests")
	return out, nil
}
