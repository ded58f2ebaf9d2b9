/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace materializes regenerated files into persistent git
// working trees so that the project's build tooling can run against them.
//
// A Registry maps each (owner, repo, branch, PR) key to the directory
// <owner>/<repo>/PR<n>/<branch> under its root, each component escaped.
// Acquire serializes mutators per directory:
//
//	h, err := reg.Acquire(ctx, workspace.Key{Owner: "octo", Repo: "app", Branch: "feature", PR: 7})
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
//	if err := h.Materialize(ctx, files.Files()); err != nil {
//		return err
//	}
//
// An existing tree whose origin matches is fetched, hard reset and cleaned;
// anything else is replaced by a fresh single-branch clone.
package workspace
