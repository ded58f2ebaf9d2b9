/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changegate decides which regenerated files are worth publishing.
package changegate

import (
	"fmt"
	"strings"

	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/regen/telemetry"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats counts changed lines.
type Stats struct {
	Added   int
	Removed int
}

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// Change is a file that survived the gate.
type Change struct {
	File        record.RegeneratedFile
	Description string
	Stats       Stats
}

// CommitMessage returns the message used when publishing the change.
func (c Change) CommitMessage() string {
	return fmt.Sprintf("AI Refactor for %s:\n\nChanges:\n%s", c.File.Path, c.Description)
}

// Normalize maps line endings to LF, strips trailing whitespace from each
// line and trims blank lines at both ends.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// NoChanges reports whether a changes summary says nothing needed to change.
func NoChanges(changes string) bool {
	return strings.Contains(strings.ToLower(changes), "no changes needed")
}

// Filter returns the files whose updated content differs from the original
// after normalization, in input order. A summary that says no changes were
// needed discards the update. Filtering the files of the result again
// yields the same result.
func Filter(files []record.RegeneratedFile) []Change {
	var (
		out              []Change
		unchanged, noops int
	)
	for _, f := range files {
		if NoChanges(f.Changes) {
			f.UpdatedCode = f.OldCode
			noops++
			continue
		}
		old, updated := Normalize(f.OldCode), Normalize(f.UpdatedCode)
		if old == updated {
			unchanged++
			continue
		}
		desc := strings.TrimSpace(f.Changes)
		if desc == "" {
			desc = "- Regenerated to match the coding standards"
		}
		out = append(out, Change{File: f, Description: desc, Stats: LineStats(old, updated)})
	}
	telemetry.Gated("kept", len(out))
	telemetry.Gated("unchanged", unchanged)
	telemetry.Gated("no_changes", noops)
	return out
}

// Files returns the files of changes in order.
func Files(changes []Change) []record.RegeneratedFile {
	out := make([]record.RegeneratedFile, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.File)
	}
	return out
}

// LineStats counts the lines added and removed between a and b.
func LineStats(a, b string) Stats {
	a, b = terminate(a), terminate(b)
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var s Stats
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Added += n
		case diffmatchpatch.DiffDelete:
			s.Removed += n
		}
	}
	return s
}

// terminate ends a non-empty s with a newline so that its last line
// compares equal to the same line followed by more text.
func terminate(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
