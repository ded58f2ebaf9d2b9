/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package audit records what each run did to each pull request: the
// regenerated files, the build attempts and every failure.
package audit

import "time"

// Kind distinguishes audit entries.
type Kind string

const (
	KindRunStarted  Kind = "run_started"
	KindFeedback    Kind = "feedback"
	KindBuild       Kind = "build"
	KindError       Kind = "error"
	KindRunFinished Kind = "run_finished"
)

// Entry is one audit record. Fields that do not apply to a kind are left
// empty.
type Entry struct {
	ID         int64     `json:"id,omitempty"`
	RunID      string    `json:"run_id"`
	Kind       Kind      `json:"kind"`
	Time       time.Time `json:"time"`
	Repo       string    `json:"repo"`
	PR         int       `json:"pr"`
	HeadBranch string    `json:"head_branch,omitempty"`
	BaseBranch string    `json:"base_branch,omitempty"`
	HeadSHA    string    `json:"head_sha,omitempty"`
	Path       string    `json:"path,omitempty"`

	OldCode     string `json:"old_code,omitempty"`
	Changes     string `json:"changes,omitempty"`
	UpdatedCode string `json:"updated_code,omitempty"`
	Failed      bool   `json:"failed,omitempty"`

	Attempt  int    `json:"attempt,omitempty"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`

	Message   string `json:"message,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
