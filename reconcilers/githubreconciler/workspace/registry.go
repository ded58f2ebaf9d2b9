/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chainguard.dev/prrefine/regen/failure"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// Key identifies a workspace. One mutator holds a key at a time.
type Key struct {
	Owner  string
	Repo   string
	Branch string
	PR     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s#%d", k.Owner, k.Repo, k.Branch, k.PR)
}

// dirName is the tree of k relative to the registry root, and the identity
// its lock is held under. Components are escaped and nested so distinct keys
// never share a tree. GitHub owner and repository names are case-insensitive.
func (k Key) dirName() string {
	return filepath.Join(
		url.PathEscape(strings.ToLower(k.Owner)),
		url.PathEscape(strings.ToLower(k.Repo)),
		fmt.Sprintf("PR%d", k.PR),
		url.PathEscape(k.Branch),
	)
}

func dotPath(s string) bool {
	return s == "." || s == ".."
}

func (k Key) validate() error {
	switch {
	case k.Owner == "":
		return errors.New("owner cannot be empty")
	case k.Repo == "":
		return errors.New("repo cannot be empty")
	case k.Branch == "":
		return errors.New("branch cannot be empty")
	case k.PR <= 0:
		return fmt.Errorf("pull request number must be positive, got %d", k.PR)
	case dotPath(k.Owner), dotPath(k.Repo), dotPath(k.Branch):
		return fmt.Errorf("invalid key %s", k)
	}
	return nil
}

// State reports how Acquire prepared the working tree.
type State int

const (
	// StateFresh means the tree was cloned from scratch.
	StateFresh State = iota
	// StateSynced means an existing tree was fetched, reset and cleaned.
	StateSynced
)

func (s State) String() string {
	if s == StateSynced {
		return "synced"
	}
	return "fresh"
}

// Registry maps workspace keys to persistent working trees under a root
// directory. Trees are kept between runs and never removed automatically.
type Registry struct {
	root        string
	tokenSource oauth2.TokenSource
	remoteURL   func(Key) string

	mu    sync.RWMutex
	locks map[string]chan struct{}
}

// NewRegistry creates a Registry rooted at root.
func NewRegistry(root string, opts ...Option) (*Registry, error) {
	if root == "" {
		return nil, errors.New("root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	r := &Registry{
		root:      abs,
		remoteURL: defaultRemoteURL,
		locks:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

func defaultRemoteURL(k Key) string {
	return fmt.Sprintf("https://github.com/%s/%s", k.Owner, k.Repo)
}

// lockFor returns the semaphore for the tree at name, creating it on first
// use.
func (r *Registry) lockFor(name string) chan struct{} {
	r.mu.RLock()
	l, ok := r.locks[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[name]; ok {
		return l
	}
	l = make(chan struct{}, 1)
	r.locks[name] = l
	return l
}

// Acquire takes the lock for key, waiting until it is free or ctx is done,
// and prepares the working tree at the head of key.Branch. The caller must
// Release the handle. Preparation failures are failure.Workspace errors.
func (r *Registry) Acquire(ctx context.Context, key Key) (*Handle, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	lock := r.lockFor(key.dirName())
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	unlock := func() { <-lock }

	h, err := r.prepare(ctx, key)
	if err != nil {
		unlock()
		return nil, failure.New(failure.Workspace, "preparing workspace", err, "key", key.String())
	}
	h.release = unlock
	return h, nil
}

func (r *Registry) prepare(ctx context.Context, key Key) (*Handle, error) {
	log := clog.FromContext(ctx).With("workspace", key.String())
	dir := filepath.Join(r.root, key.dirName())
	remote := r.remoteURL(key)

	auth, err := r.auth()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	if repo, ok := r.reusable(dir, remote); ok {
		sha, err := syncTree(ctx, repo, key.Branch, auth)
		if err == nil {
			log.With("sha", sha).Info("Synchronized existing workspace")
			return &Handle{Key: key, Root: dir, State: StateSynced, SHA: sha}, nil
		}
		log.Warn("Sync failed, recloning", "error", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("removing stale tree: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	log.With("remote", remote).Info("Cloning workspace")
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(key.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving head: %w", err)
	}
	return &Handle{Key: key, Root: dir, State: StateFresh, SHA: head.Hash().String()}, nil
}

// reusable opens dir when it holds a repository whose origin is remote.
func (r *Registry) reusable(dir, remote string) (*git.Repository, bool) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return nil, false
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, false
	}
	origin, err := repo.Remote("origin")
	if err != nil {
		return nil, false
	}
	urls := origin.Config().URLs
	return repo, len(urls) > 0 && urls[0] == remote
}

// syncTree fetches branch, hard resets the tree to the remote head and
// removes untracked files.
func syncTree(ctx context.Context, repo *git.Repository, branch string, auth transport.AuthMethod) (string, error) {
	fetchOpts := &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))},
		Auth:     auth,
		Force:    true,
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetching ref %s: %w", branch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", fmt.Errorf("getting remote ref %s: %w", branch, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return "", fmt.Errorf("cleaning worktree: %w", err)
	}
	return remoteRef.Hash().String(), nil
}

// auth returns nil when no token source is configured, which suits public
// and local remotes.
func (r *Registry) auth() (transport.AuthMethod, error) {
	if r.tokenSource == nil {
		return nil, nil
	}
	token, err := r.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}
