/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
)

// Handle is an acquired working tree. It holds the key's lock until
// Release.
type Handle struct {
	Key   Key
	Root  string
	State State
	// SHA is the commit the tree was prepared at.
	SHA string

	release func()
	once    sync.Once
}

// Release gives up the key's lock. Calling it more than once is harmless.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// Path maps the slash-separated repository path p to a location under
// Root, rejecting paths that would escape it.
func (h *Handle) Path(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative to the repository root", p)
	}
	full := filepath.Join(h.Root, filepath.FromSlash(p))
	rel, err := filepath.Rel(h.Root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", p)
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is inside the git directory", p)
	}
	return full, nil
}

// writeFile is replaced in tests to inject write failures.
var writeFile = atomicWrite

// Materialize writes the updated content of each file into the tree. A
// failed write is retried once; a second failure stops materialization with
// a failure.Workspace error.
func (h *Handle) Materialize(ctx context.Context, files []record.RegeneratedFile) error {
	log := clog.FromContext(ctx).With("workspace", h.Key.String())
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		full, err := h.Path(f.Path)
		if err != nil {
			return failure.New(failure.Workspace, "invalid path", err, "path", f.Path)
		}
		if err := writeFile(full, f.UpdatedCode); err != nil {
			log.With("path", f.Path).Warn("Write failed, retrying once", "error", err)
			if err := writeFile(full, f.UpdatedCode); err != nil {
				return failure.New(failure.Workspace, "writing file", err, "path", f.Path)
			}
		}
	}
	log.With("files", len(files)).Info("Materialized files")
	return nil
}

// ReadFile returns the content of the slash-separated path p.
func (h *Handle) ReadFile(p string) (string, error) {
	full, err := h.Path(p)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	return string(b), nil
}

// Exists reports whether p exists in the tree.
func (h *Handle) Exists(p string) bool {
	full, err := h.Path(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// atomicWrite writes content to a temporary file next to path and renames
// it into place. An existing file keeps its permission bits.
func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		mode = fi.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".prrefine-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
