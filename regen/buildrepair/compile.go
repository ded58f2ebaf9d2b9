/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/promptbuilder"
	"chainguard.dev/prrefine/agents/response"
	"chainguard.dev/prrefine/regen/changegate"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/regen/telemetry"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultMaxBuildAttempts bounds the source repair rounds that follow
	// a successful install.
	DefaultMaxBuildAttempts = 8
	// maxFixesPerRound caps the files sent for repair after one build.
	maxFixesPerRound = 5
)

// SourceRequest carries what a SourceCorrector needs to fix one file.
type SourceRequest struct {
	Path       string
	Command    string
	Current    string
	Diagnostic string
	// History summarizes the fixes already applied to Path, oldest first.
	History []string
}

// SourceFix is a proposed replacement source file.
type SourceFix struct {
	Content  string
	Analysis string
}

// SourceCorrector proposes a full replacement for a source file named by a
// failing build.
type SourceCorrector interface {
	CorrectSource(ctx context.Context, req SourceRequest) (SourceFix, error)
}

// SourceOutcome is the result of the build stage.
type SourceOutcome struct {
	Command string
	// State is StateDone or StateFailed.
	State    State
	Attempts []record.BuildAttempt
	// Fixed lists the files changed by accepted fixes, in first-fix order.
	Fixed []string
	// Err is the advisory failure.Build error of a FAILED stage.
	Err error
}

const sourceSystem = "You are an expert software engineer. You fix compile errors in source files with the smallest change that makes the build pass."

var sourcePrompt = promptbuilder.MustNewPrompt(`The command {{command}} failed with the following output:

---
{{diagnostic}}
---

Current {{path}}:
{{current}}

Fixes already applied to this file:
{{history}}

Rules:
1. Fix only the errors reported for {{path}}.
2. Keep the file's behavior and public names unchanged.
3. Do not add dependencies that are not already declared.

Return your response in this EXACT format:

### Changes:
- Brief description of the fix

### Updated Code:
<the complete corrected file in one fenced code block>
`)

func (c *GeneratorCorrector) CorrectSource(ctx context.Context, req SourceRequest) (SourceFix, error) {
	prompt, err := buildSourcePrompt(req)
	if err != nil {
		return SourceFix{}, fmt.Errorf("building prompt: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.gen.Generate(reqCtx, codegen.Request{
		Operation: "fix_source",
		System:    sourceSystem,
		Prompt:    prompt,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return SourceFix{}, fmt.Errorf("source fix timed out after %s", c.timeout)
		}
		return SourceFix{}, fmt.Errorf("generating source fix: %w", err)
	}

	parsed, err := response.Parse(resp.Text)
	if err != nil {
		return SourceFix{}, err
	}
	return SourceFix{Content: parsed.Code, Analysis: parsed.Changes}, nil
}

func buildSourcePrompt(req SourceRequest) (string, error) {
	history := "(none)"
	if len(req.History) > 0 {
		history = "- " + strings.Join(req.History, "\n- ")
	}
	lang := strings.TrimPrefix(path.Ext(req.Path), ".")
	p, err := promptbuilder.BindAll(sourcePrompt,
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("command", req.Command)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("diagnostic", req.Diagnostic)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("path", req.Path)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindFenced("current", lang, req.Current)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("history", history)
		},
	)
	if err != nil {
		return "", err
	}
	return p.Build()
}

// CorrectSource tries Primary, then Fallback, when both repair sources.
func (f FallbackCorrector) CorrectSource(ctx context.Context, req SourceRequest) (SourceFix, error) {
	primary, ok := f.Primary.(SourceCorrector)
	if !ok {
		return SourceFix{}, errors.New("primary corrector cannot fix sources")
	}
	fix, err := primary.CorrectSource(ctx, req)
	if err == nil || ctx.Err() != nil {
		return fix, err
	}
	fallback, ok := f.Fallback.(SourceCorrector)
	if !ok {
		return fix, err
	}
	clog.FromContext(ctx).With("path", req.Path).Warn("Primary source fix failed, using fallback", "error", err)
	fix, ferr := fallback.CorrectSource(ctx, req)
	if ferr != nil {
		return SourceFix{}, errors.Join(err, ferr)
	}
	return fix, nil
}

// compile runs tc.Build in dir and asks the source corrector to repair the
// regenerated sources the build output names, until the build passes or
// the rounds run out. The returned error is reserved for workspace failures
// and cancellation.
func (l *Loop) compile(ctx context.Context, ws Workspace, manifest, dir string, tc Toolchain, timeout time.Duration, files *record.FileSet) (*SourceOutcome, error) {
	so := &SourceOutcome{Command: tc.BuildCommand()}
	log := clog.FromContext(ctx).With("manifest", manifest).With("command", so.Command)
	metric := tc.Name + "-build"
	tried := map[string]map[string]struct{}{}
	history := map[string][]string{}
	var diagnostic string

	for rounds := 0; ; rounds++ {
		res, err := l.runner.Run(ctx, dir, tc.Build, timeout)
		if err != nil {
			log.Error("Build could not start", "error", err)
			diagnostic = err.Error()
			so.State = StateFailed
			break
		}
		attempt := record.BuildAttempt{
			Number:   len(so.Attempts) + 1,
			Command:  so.Command,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Duration: res.Duration,
		}
		if res.ExitCode != 0 {
			attempt.Diagnostic = Diagnostic(res, l.diagnosticLimit)
			diagnostic = attempt.Diagnostic
		}
		so.Attempts = append(so.Attempts, attempt)
		l.auditor.RecordBuildAttempt(ctx, manifest, attempt)
		telemetry.BuildAttempt(metric, res.ExitCode == 0)
		log.With("attempt", attempt.Number).With("exit_code", res.ExitCode).Info("Build finished")

		if res.ExitCode == 0 {
			so.State = StateDone
			break
		}
		if rounds >= l.maxBuildAttempts {
			so.State = StateFailed
			break
		}

		targets := failingSources(res, manifest, files)
		if len(targets) == 0 {
			log.Warn("Build output names no regenerated source file")
			so.State = StateFailed
			break
		}
		accepted := 0
		for _, p := range targets {
			entry, _ := files.Get(p)
			fix, err := l.sourceCorrector.CorrectSource(ctx, SourceRequest{
				Path:       p,
				Command:    so.Command,
				Current:    entry.UpdatedCode,
				Diagnostic: attempt.Diagnostic,
				History:    history[p],
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.With("path", p).Warn("Source fix rejected", "error", err)
				continue
			}
			key := strings.TrimSpace(fix.Content)
			if tried[p] == nil {
				tried[p] = map[string]struct{}{strings.TrimSpace(entry.UpdatedCode): {}}
			}
			if _, seen := tried[p][key]; seen || key == "" {
				log.With("path", p).Warn("Source fix repeats an earlier version")
				continue
			}
			tried[p][key] = struct{}{}

			entry.UpdatedCode = fix.Content
			if err := ws.Materialize(ctx, []record.RegeneratedFile{entry}); err != nil {
				return nil, err
			}
			analysis := strings.TrimPrefix(strings.TrimSpace(fix.Analysis), "- ")
			if analysis == "" {
				analysis = "Fixed build error"
			}
			entry.Changes = withBuildFix(entry.Changes, analysis)
			files.Put(entry)
			if len(history[p]) == 0 {
				so.Fixed = append(so.Fixed, p)
			}
			history[p] = append(history[p], analysis)
			accepted++
		}
		if accepted == 0 {
			so.State = StateFailed
			break
		}
	}

	telemetry.BuildOutcome(metric, so.State.String())
	if so.State == StateFailed {
		so.Err = failure.New(failure.Build, "build failed after source repair attempts", errors.New(diagnostic),
			"manifest", manifest, "command", so.Command, "attempts", fmt.Sprint(len(so.Attempts)))
		l.auditor.RecordError(ctx, manifest, so.Err)
		log.Warn("Source repair gave up", "error", so.Err)
	}
	return so, nil
}

// failingSources returns the regenerated source files under the manifest's
// directory whose path, relative to that directory, appears in the build
// output. At most maxFixesPerRound are returned, in file set order.
func failingSources(res Result, manifest string, files *record.FileSet) []string {
	out := res.Stdout + "\n" + res.Stderr
	dir := path.Dir(manifest)
	var found []string
	for _, p := range files.Paths() {
		if record.Classify(p) != record.KindSource {
			continue
		}
		rel := p
		if dir != "." {
			var ok bool
			if rel, ok = strings.CutPrefix(p, dir+"/"); !ok {
				continue
			}
		}
		if mentions(out, rel) || (rel != p && mentions(out, p)) {
			found = append(found, p)
			if len(found) == maxFixesPerRound {
				break
			}
		}
	}
	return found
}

// mentions reports whether rel occurs in out as a whole path, optionally
// prefixed with "./", and not as the tail of a longer name.
func mentions(out, rel string) bool {
	for i := 0; ; {
		j := strings.Index(out[i:], rel)
		if j < 0 {
			return false
		}
		at := i + j
		if at >= 2 && out[at-2:at] == "./" {
			at -= 2
		}
		if at == 0 || !pathByte(out[at-1]) {
			return true
		}
		i += j + 1
	}
}

func pathByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return b == '_' || b == '-' || b == '.' || b == '/'
}

// withBuildFix appends a build fix to a changes summary, replacing one that
// said nothing needed to change.
func withBuildFix(changes, analysis string) string {
	line := "- Fixed build error: " + analysis
	if changegate.NoChanges(changes) || strings.TrimSpace(changes) == "" {
		return line
	}
	return strings.TrimRight(changes, "\n") + "\n" + line
}
