/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package buildrepair verifies regenerated manifests by installing their
// dependencies in the workspace, and asks a corrector to repair manifests
// whose install fails.
package buildrepair

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/regen/telemetry"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultMaxAttempts bounds the correction attempts per manifest.
	DefaultMaxAttempts = 5
	// DefaultInstallTimeout bounds one install invocation.
	DefaultInstallTimeout = 300 * time.Second
)

// State is a state of the repair machine.
type State int

const (
	StateInstall State = iota
	StateDiagnose
	StateCorrect
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInstall:
		return "install"
	case StateDiagnose:
		return "diagnose"
	case StateCorrect:
		return "correct"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Workspace is the working tree the loop installs in.
type Workspace interface {
	Path(p string) (string, error)
	ReadFile(p string) (string, error)
	Materialize(ctx context.Context, files []record.RegeneratedFile) error
}

// Auditor receives build attempts and advisory failures.
type Auditor interface {
	RecordBuildAttempt(ctx context.Context, manifest string, a record.BuildAttempt)
	RecordError(ctx context.Context, path string, err error)
}

type nopAuditor struct{}

func (nopAuditor) RecordBuildAttempt(context.Context, string, record.BuildAttempt) {}
func (nopAuditor) RecordError(context.Context, string, error)                      {}

// Override replaces a toolchain's install command, build command or
// timeout for one repository.
type Override struct {
	Command []string
	Build   []string
	Timeout time.Duration
}

// Outcome is the terminal result of one loop run.
type Outcome struct {
	Manifest  string
	Toolchain string
	State     State
	Attempts  []record.BuildAttempt
	// Corrections counts correction attempts, accepted or not.
	Corrections int
	Lockfile    *record.RegeneratedFile
	// Source is set when a build stage followed a successful install.
	Source      *SourceOutcome
	Description string
	// Err is the advisory failure.Build error of a FAILED run.
	Err error
}

// Loop runs the install, diagnose and correct cycle for manifests.
type Loop struct {
	runner           Runner
	corrector        Corrector
	sourceCorrector  SourceCorrector
	auditor          Auditor
	maxAttempts      int
	maxBuildAttempts int
	installTimeout   time.Duration
	diagnosticLimit  int
	override         Override
}

// New returns a Loop that repairs manifests with corrector.
func New(corrector Corrector, opts ...Option) (*Loop, error) {
	if corrector == nil {
		return nil, errors.New("corrector cannot be nil")
	}
	l := &Loop{
		runner:           ExecRunner{},
		corrector:        corrector,
		auditor:          nopAuditor{},
		maxAttempts:      DefaultMaxAttempts,
		maxBuildAttempts: DefaultMaxBuildAttempts,
		installTimeout:   DefaultInstallTimeout,
		diagnosticLimit:  DefaultDiagnosticLimit,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return l, nil
}

// WithOverride returns a copy of l that applies ov.
func (l *Loop) WithOverride(ov Override) *Loop {
	c := *l
	c.override = ov
	return &c
}

// machine is the mutable state of one run.
type machine struct {
	state       State
	current     string
	last        Result
	diagnostic  string
	corrections int
	accepted    int
	tried       map[string]struct{}
	history     []string
	attempts    []record.BuildAttempt
}

// Run drives manifest through the repair machine. The manifest must already
// be materialized. Accepted corrections replace its entry in files, and a
// successful install adds the toolchain's lockfile. With a source corrector,
// a successful install is followed by the toolchain's build, and fixed
// sources replace their entries in files. A FAILED outcome is advisory; the
// returned error is reserved for workspace failures.
func (l *Loop) Run(ctx context.Context, ws Workspace, manifest string, files *record.FileSet) (Outcome, error) {
	tc, ok := Lookup(manifest)
	if !ok {
		return Outcome{}, fmt.Errorf("no toolchain for %s", manifest)
	}
	if len(l.override.Command) > 0 {
		tc.Install = l.override.Command
	}
	if len(l.override.Build) > 0 {
		tc.Build, tc.BuildIf = l.override.Build, nil
	}
	timeout := l.installTimeout
	if l.override.Timeout > 0 {
		timeout = l.override.Timeout
	}

	full, err := ws.Path(manifest)
	if err != nil {
		return Outcome{}, failure.New(failure.Workspace, "resolving manifest", err, "path", manifest)
	}
	dir := filepath.Dir(full)

	current, err := ws.ReadFile(manifest)
	if err != nil {
		return Outcome{}, failure.New(failure.Workspace, "reading manifest", err, "path", manifest)
	}

	log := clog.FromContext(ctx).With("manifest", manifest).With("toolchain", tc.Name)
	m := &machine{
		state:   StateInstall,
		current: current,
		tried:   map[string]struct{}{strings.TrimSpace(current): {}},
	}

	for m.state != StateDone && m.state != StateFailed {
		switch m.state {
		case StateInstall:
			res, err := l.runner.Run(ctx, dir, tc.Install, timeout)
			if err != nil {
				log.Error("Install could not start", "error", err)
				m.diagnostic = err.Error()
				m.state = StateFailed
				break
			}
			m.last = res
			attempt := record.BuildAttempt{
				Number:   len(m.attempts) + 1,
				Command:  tc.Command(),
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
				Duration: res.Duration,
			}
			if res.ExitCode != 0 {
				attempt.Diagnostic = Diagnostic(res, l.diagnosticLimit)
			}
			m.attempts = append(m.attempts, attempt)
			l.auditor.RecordBuildAttempt(ctx, manifest, attempt)
			telemetry.BuildAttempt(tc.Name, res.ExitCode == 0)
			log.With("attempt", attempt.Number).With("exit_code", res.ExitCode).Info("Install finished")

			if res.ExitCode == 0 {
				m.state = StateDone
			} else {
				m.state = StateDiagnose
			}

		case StateDiagnose:
			m.diagnostic = Diagnostic(m.last, l.diagnosticLimit)
			if m.corrections >= l.maxAttempts {
				m.state = StateFailed
			} else {
				m.state = StateCorrect
			}

		case StateCorrect:
			m.corrections++
			m.state = StateDiagnose
			corr, err := l.corrector.Correct(ctx, CorrectionRequest{
				Manifest:   manifest,
				Toolchain:  tc,
				Current:    m.current,
				Diagnostic: m.diagnostic,
				History:    m.history,
			})
			if err != nil {
				if ctx.Err() != nil {
					return Outcome{}, ctx.Err()
				}
				log.With("attempt", m.corrections).Warn("Correction rejected", "error", err)
				break
			}
			key := strings.TrimSpace(corr.Content)
			if _, seen := m.tried[key]; seen {
				log.With("attempt", m.corrections).Warn("Correction repeats an earlier manifest")
				break
			}
			m.tried[key] = struct{}{}

			entry, _ := files.Get(manifest)
			entry.Path = manifest
			entry.UpdatedCode = corr.Content
			if err := ws.Materialize(ctx, []record.RegeneratedFile{entry}); err != nil {
				return Outcome{}, err
			}
			files.Put(entry)
			m.current = corr.Content
			m.accepted++
			analysis := corr.Analysis
			if analysis == "" {
				analysis = "Adjusted dependency versions"
			}
			m.history = append(m.history, analysis)
			m.state = StateInstall
		}
	}

	out := Outcome{
		Manifest:    manifest,
		Toolchain:   tc.Name,
		State:       m.state,
		Attempts:    m.attempts,
		Corrections: m.corrections,
	}
	telemetry.BuildOutcome(tc.Name, m.state.String())

	if m.state == StateFailed {
		out.Err = failure.New(failure.Build, "install failed after repair attempts", errors.New(m.diagnostic),
			"manifest", manifest, "attempts", fmt.Sprint(m.corrections))
		out.Description = fmt.Sprintf("%s failed for %s after %d correction attempt(s)", tc.Command(), manifest, m.corrections)
		l.auditor.RecordError(ctx, manifest, out.Err)
		log.Warn("Build repair gave up", "error", out.Err)
		return out, nil
	}

	out.Description = fmt.Sprintf("%s succeeded for %s", tc.Command(), manifest)
	if m.accepted > 0 {
		if entry, ok := files.Get(manifest); ok {
			entry.Changes = correctionSummary(manifest, m.history, m.corrections)
			files.Put(entry)
		}
		out.Description += fmt.Sprintf(" after %d correction(s)", m.accepted)
	}

	if tc.Lockfile != "" {
		lockPath := path.Join(path.Dir(manifest), tc.Lockfile)
		content, err := ws.ReadFile(lockPath)
		if err != nil {
			log.With("lockfile", lockPath).Warn("Install did not produce a lockfile", "error", err)
		} else {
			lock := record.RegeneratedFile{
				Path:        lockPath,
				Changes:     fmt.Sprintf("Regenerated lockfile after %s update via %s", manifest, tc.Command()),
				UpdatedCode: content,
			}
			files.Put(lock)
			out.Lockfile = &lock
		}
	}

	if l.sourceCorrector != nil && tc.Builds(m.current) {
		so, err := l.compile(ctx, ws, manifest, dir, tc, timeout, files)
		if err != nil {
			return Outcome{}, err
		}
		out.Source = so
		switch {
		case so.State == StateFailed:
			out.Description += fmt.Sprintf("; %s failed after %d fixed file(s)", so.Command, len(so.Fixed))
		case len(so.Fixed) > 0:
			out.Description += fmt.Sprintf("; %s succeeded after fixing %s", so.Command, strings.Join(so.Fixed, ", "))
		}
	}
	log.With("attempts", len(m.attempts)).Info("Build repair done")
	return out, nil
}

// correctionSummary describes a manifest whose content came from accepted
// corrections. It replaces the regeneration summary, which described
// content that is no longer in the file.
func correctionSummary(manifest string, history []string, corrections int) string {
	var b strings.Builder
	for _, h := range history {
		fmt.Fprintf(&b, "- %s\n", strings.TrimPrefix(strings.TrimSpace(h), "- "))
	}
	fmt.Fprintf(&b, "- LLM-corrected %s after %d iteration(s)", path.Base(manifest), corrections)
	return b.String()
}
