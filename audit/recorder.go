/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Sink persists entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Archiver stores the entries of a finished run as one document.
type Archiver interface {
	Archive(ctx context.Context, s Summary) error
}

// Summary is the archived form of a run.
type Summary struct {
	RunID    string    `json:"run_id"`
	Repo     string    `json:"repo"`
	PR       int       `json:"pr"`
	HeadSHA  string    `json:"head_sha"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Result   string    `json:"result"`
	Entries  []Entry   `json:"entries"`
}

// Recorder writes the audit trail of one run to its sinks. Sink failures
// are logged and never fail the run. A nil *Recorder records nothing.
type Recorder struct {
	pr       record.PRInfo
	runID    string
	sinks    []Sink
	archiver Archiver
	now      func() time.Time

	mu      sync.Mutex
	started time.Time
	entries []Entry
}

// NewRecorder returns a Recorder for a run over pr with a fresh run ID.
func NewRecorder(pr record.PRInfo, sinks ...Sink) *Recorder {
	return &Recorder{
		pr:    pr,
		runID: uuid.NewString(),
		sinks: sinks,
		now:   time.Now,
	}
}

// WithArchiver makes Finish upload the run summary to a.
func (r *Recorder) WithArchiver(a Archiver) *Recorder {
	r.archiver = a
	return r
}

// RunID identifies the run in every entry.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

func (r *Recorder) base(kind Kind) Entry {
	return Entry{
		RunID:      r.runID,
		Kind:       kind,
		Time:       r.now().UTC(),
		Repo:       r.pr.Identity(),
		PR:         r.pr.Number,
		HeadBranch: r.pr.HeadBranch,
		BaseBranch: r.pr.BaseBranch,
		HeadSHA:    r.pr.HeadSHA,
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.Write(ctx, e); err != nil {
			clog.FromContext(ctx).With("run_id", r.runID).With("kind", string(e.Kind)).
				Warn("Failed to write audit entry", "error", err)
		}
	}
}

// Begin records the start of the run.
func (r *Recorder) Begin(ctx context.Context) {
	if r == nil {
		return
	}
	e := r.base(KindRunStarted)
	r.mu.Lock()
	r.started = e.Time
	r.mu.Unlock()
	r.write(ctx, e)
}

// RecordFeedback records one regeneration cycle for a file.
func (r *Recorder) RecordFeedback(ctx context.Context, f record.RegeneratedFile) {
	if r == nil {
		return
	}
	e := r.base(KindFeedback)
	e.Path = f.Path
	e.OldCode = f.OldCode
	e.Changes = f.Changes
	e.UpdatedCode = f.UpdatedCode
	e.Failed = f.Failed
	r.write(ctx, e)
}

// RecordBuildAttempt records one install invocation for manifest.
func (r *Recorder) RecordBuildAttempt(ctx context.Context, manifest string, a record.BuildAttempt) {
	if r == nil {
		return
	}
	e := r.base(KindBuild)
	e.Path = manifest
	e.Attempt = a.Number
	e.Command = a.Command
	e.ExitCode = a.ExitCode
	e.Message = a.Diagnostic
	r.write(ctx, e)
}

// RecordError records a failure. Errors outside the failure taxonomy are
// recorded as collaborator failures.
func (r *Recorder) RecordError(ctx context.Context, path string, err error) {
	if r == nil || err == nil {
		return
	}
	fe := failure.As(err, failure.Collaborator)
	e := r.base(KindError)
	e.Path = path
	e.ErrorKind = string(fe.Kind)
	e.Message = err.Error()
	r.write(ctx, e)
}

// Finish records the end of the run and archives its summary. runErr is
// the run's terminal error, if any.
func (r *Recorder) Finish(ctx context.Context, runErr error) error {
	if r == nil {
		return nil
	}
	e := r.base(KindRunFinished)
	e.Message = "ok"
	if runErr != nil {
		e.Message = runErr.Error()
		e.ErrorKind = string(failure.As(runErr, failure.Workspace).Kind)
	}
	r.write(ctx, e)

	if r.archiver == nil {
		return nil
	}
	r.mu.Lock()
	s := Summary{
		RunID:    r.runID,
		Repo:     r.pr.Identity(),
		PR:       r.pr.Number,
		HeadSHA:  r.pr.HeadSHA,
		Started:  r.started,
		Finished: e.Time,
		Result:   e.Message,
		Entries:  append([]Entry(nil), r.entries...),
	}
	r.mu.Unlock()
	if err := r.archiver.Archive(ctx, s); err != nil {
		return fmt.Errorf("archiving run summary: %w", err)
	}
	return nil
}
