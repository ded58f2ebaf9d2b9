/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prsource reads pull requests from GitHub: their metadata, the
// files they change, the content of those files at the head branch, and
// the coding standards published in the repository.
//
// Changed files come from the raw pull request diff. When the diff cannot
// be fetched or parsed the paginated file listing is used instead. Deleted
// files are never returned.
//
//	src, err := prsource.New(client)
//	pr, err := src.PullRequest(ctx, "octo", "app", 42)
//	files, err := src.Fetch(ctx, pr)
package prsource
