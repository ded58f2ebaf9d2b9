/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package scope selects the context sent alongside each regeneration
// request. A source file sees the files that share one of its external
// dependencies or that it imports directly; a manifest sees the aggregated
// dependency summary instead. Candidates are packed under a character
// budget, and content regenerated earlier in the same pass replaces the
// original.
package scope

import (
	"fmt"
	"strings"

	"chainguard.dev/prrefine/regen/depextract"
	"chainguard.dev/prrefine/regen/record"
)

// DefaultBudget is the per-request context budget in characters.
const DefaultBudget = 4_000_000

// SummaryPath is the pseudo-path under which the dependency summary is
// rendered for manifest targets.
const SummaryPath = "dependency-summary.yaml"

// Entry is one file offered as context.
type Entry struct {
	Path    string
	Content string
	// Refined is set when Content was regenerated earlier in the pass.
	Refined bool
}

// Header returns the line rendered above the entry's content.
func (e Entry) Header() string {
	tag := "ORIGINAL"
	if e.Refined {
		tag = "REFINED"
	}
	return fmt.Sprintf("// File: %s (%d chars) [%s]", e.Path, len(e.Content), tag)
}

// Cost is the number of characters the rendered entry occupies.
func (e Entry) Cost() int {
	return len(e.Header()) + 1 + len(e.Content) + 1
}

func (e Entry) render(b *strings.Builder) {
	b.WriteString(e.Header())
	b.WriteByte('\n')
	b.WriteString(e.Content)
	b.WriteByte('\n')
}

// Context is the packed context for one target.
type Context struct {
	Entries []Entry
	// Chars is the rendered size of Entries and never exceeds the budget.
	Chars     int
	Truncated bool
	// Dropped lists matching candidates that did not fit.
	Dropped     []string
	SummaryUsed bool
}

// Render concatenates the entries in packing order.
func (c Context) Render() string {
	var b strings.Builder
	b.Grow(c.Chars)
	for _, e := range c.Entries {
		e.render(&b)
	}
	return b.String()
}

// Inputs are the pass-wide values a Scoper reads.
type Inputs struct {
	// Files holds every file in the pass keyed by path.
	Files map[string]record.FileRecord
	// Regenerated holds results produced so far in the pass.
	Regenerated *record.FileSet
	Summary     depextract.Summary
}

// Scoper builds contexts. The zero value is not usable; call New.
type Scoper struct {
	budget int
	skip   *record.Skipper
	order  Ordering
}

// Option configures a Scoper.
type Option func(*Scoper) error

// WithBudget sets the character budget.
func WithBudget(n int) Option {
	return func(s *Scoper) error {
		if n <= 0 {
			return fmt.Errorf("budget must be positive, got %d", n)
		}
		s.budget = n
		return nil
	}
}

// WithSkipper replaces the default skip filter.
func WithSkipper(sk *record.Skipper) Option {
	return func(s *Scoper) error {
		if sk == nil {
			return fmt.Errorf("skipper cannot be nil")
		}
		s.skip = sk
		return nil
	}
}

// WithOrdering sets the candidate packing order.
func WithOrdering(o Ordering) Option {
	return func(s *Scoper) error {
		if o == nil {
			return fmt.Errorf("ordering cannot be nil")
		}
		s.order = o
		return nil
	}
}

// New returns a Scoper with DefaultBudget, the default skip patterns and
// PathOrder unless overridden.
func New(opts ...Option) (*Scoper, error) {
	s := &Scoper{
		budget: DefaultBudget,
		skip:   record.NewSkipper(),
		order:  PathOrder,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return s, nil
}

// Budget returns the configured budget.
func (s *Scoper) Budget() int {
	return s.budget
}

// Scope returns the context for the file at target.
func (s *Scoper) Scope(target string, in Inputs) (Context, error) {
	rec, ok := in.Files[target]
	if !ok {
		return Context{}, fmt.Errorf("target %q is not part of the pass", target)
	}

	if rec.Kind == record.KindManifest {
		return s.scopeManifest(in.Summary)
	}

	ordered := s.order(rec, s.candidates(rec, in.Files))
	var c Context
	for i, cand := range ordered {
		e := Entry{Path: cand.Path, Content: cand.Original}
		if f, ok := in.Regenerated.Get(cand.Path); ok && !f.Failed {
			e.Content, e.Refined = f.UpdatedCode, true
		}
		if c.Chars+e.Cost() > s.budget {
			c.Truncated = true
			for _, rest := range ordered[i:] {
				c.Dropped = append(c.Dropped, rest.Path)
			}
			break
		}
		c.Entries = append(c.Entries, e)
		c.Chars += e.Cost()
	}
	return c, nil
}

func (s *Scoper) scopeManifest(summary depextract.Summary) (Context, error) {
	body, err := summary.Render()
	if err != nil {
		return Context{}, err
	}
	c := Context{SummaryUsed: true}
	e := Entry{Path: SummaryPath, Content: body}
	if e.Cost() > s.budget {
		c.Truncated = true
		c.Dropped = []string{SummaryPath}
		return c, nil
	}
	c.Entries = []Entry{e}
	c.Chars = e.Cost()
	return c, nil
}

// candidates returns the one-hop neighbours of target: files sharing an
// external dependency plus files target imports by relative path.
func (s *Scoper) candidates(target record.FileRecord, files map[string]record.FileRecord) []record.FileRecord {
	deps := make(map[string]struct{}, len(target.Deps))
	for _, d := range target.Deps {
		deps[d] = struct{}{}
	}
	local := resolveLocal(target, files)

	var out []record.FileRecord
	for p, f := range files {
		if p == target.Path || s.skip.Skip(p) {
			continue
		}
		if _, ok := local[p]; ok || sharesAny(deps, f.Deps) {
			out = append(out, f)
		}
	}
	return out
}

func sharesAny(set map[string]struct{}, deps []string) bool {
	for _, d := range deps {
		if _, ok := set[d]; ok {
			return true
		}
	}
	return false
}
