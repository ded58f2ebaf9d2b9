/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Option configures a Dispatcher.
type Option[T any] func(*Dispatcher[T]) error

// WithMaxRetry retries a failed item up to n more times. Zero disables
// retries.
func WithMaxRetry[T any](n int) Option[T] {
	return func(d *Dispatcher[T]) error {
		if n < 0 {
			return fmt.Errorf("max retry cannot be negative, got %d", n)
		}
		d.maxRetry = n
		return nil
	}
}

// WithRetryDelay waits delay before retrying a failed item.
func WithRetryDelay[T any](delay time.Duration) Option[T] {
	return func(d *Dispatcher[T]) error {
		if delay < 0 {
			return errors.New("retry delay cannot be negative")
		}
		d.retryDelay = delay
		return nil
	}
}

// WithDeadletter calls fn with items that exhausted their retries.
func WithDeadletter[T any](fn func(ctx context.Context, key string, item T, err error)) Option[T] {
	return func(d *Dispatcher[T]) error {
		if fn == nil {
			return errors.New("deadletter function cannot be nil")
		}
		d.deadletter = fn
		return nil
	}
}
