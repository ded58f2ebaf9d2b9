/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs operations against rate-limited services with
// exponential backoff and jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config bounds the retry schedule. A zero MaxRetries disables retries.
type Config struct {
	MaxRetries  int           `toml:"max_retries"`
	BaseBackoff time.Duration `toml:"base_backoff"`
	MaxBackoff  time.Duration `toml:"max_backoff"`
	MaxJitter   time.Duration `toml:"max_jitter"`
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case c.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case c.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// Default suits quota-style rate limits, which take a while to clear.
func Default() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Backoff returns the wait before retry number attempt (zero based),
// excluding jitter.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt > 30 {
		return c.MaxBackoff
	}
	return min(c.BaseBackoff<<attempt, c.MaxBackoff)
}

func (c Config) jitter() time.Duration {
	if c.MaxJitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Any matches when one of cs matches.
func Any(cs ...Classifier) Classifier {
	return func(err error) bool {
		for _, c := range cs {
			if c(err) {
				return true
			}
		}
		return false
	}
}

// TransientStatus reports whether an HTTP status signals a rate limit or a
// server failure that a later attempt may not hit.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// MessageContains matches errors whose text contains one of subs. It is for
// clients that do not expose typed status errors.
func MessageContains(subs ...string) Classifier {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := err.Error()
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, or
// cfg.MaxRetries retries have been spent. Waiting stops early when ctx is
// done.
func Do[T any](ctx context.Context, cfg Config, op string, retryable Classifier, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; ; attempt++ {
		if out, err = fn(); err == nil {
			return out, nil
		}
		if !retryable(err) {
			return out, err
		}
		if attempt >= cfg.MaxRetries {
			return out, fmt.Errorf("%s failed after %d retries: %w", op, cfg.MaxRetries, err)
		}

		wait := cfg.Backoff(attempt) + cfg.jitter()
		clog.FromContext(ctx).With("operation", op).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("error", err.Error()).
			Warn("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(wait):
		}
	}
}
