/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package response parses code-generation replies.
//
// A regeneration reply must carry a "### Changes:" section followed by an
// "### Updated Code:" section whose first fenced block is the new file.
// Parse is strict: a reply missing either section, or whose fenced block is
// unterminated, yields a *ParseFailure rather than a best guess, and the
// caller keeps the original file.
//
//	p, err := response.Parse(reply)
//	var pf *response.ParseFailure
//	if errors.As(err, &pf) {
//		// keep the original, record pf.Reason
//	}
//
// Changes summaries are cleaned of code blocks, links, bare URLs and
// search-engine citations. Code is cleaned of stray fences and
// SEARCH/REPLACE conflict markers.
package response
