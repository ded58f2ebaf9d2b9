/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Runner executes install commands.
type Runner interface {
	// Run executes argv in dir. A non-zero exit is reported through
	// Result.ExitCode; the error is reserved for commands that could not be
	// started.
	Run(ctx context.Context, dir string, argv []string, timeout time.Duration) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env, when set, replaces the inherited environment.
	Env []string
}

var _ Runner = ExecRunner{}

// Run executes argv under its own timeout. Cancelling ctx does not
// interrupt a running command, so a stopped pass never leaves a half
// written lockfile behind.
func (r ExecRunner) Run(ctx context.Context, dir string, argv []string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = r.Env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		fmt.Fprintf(&stderr, "\n%s timed out after %s\n", argv[0], timeout)
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, nil
}
