/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher runs queued work serially per key. Items queued for a
// key while it is busy are coalesced so only the newest one runs next.
// Distinct keys run concurrently up to a fixed limit.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// ErrClosed is returned by Queue after Shutdown.
var ErrClosed = errors.New("dispatcher is shut down")

// Callback processes one item for key.
type Callback[T any] func(ctx context.Context, key string, item T) error

// nonRetriable marks an error that must not be retried.
type nonRetriable struct {
	err    error
	reason string
}

func (e *nonRetriable) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *nonRetriable) Unwrap() error { return e.err }

// NonRetriableError wraps err so the dispatcher drops the item instead of
// retrying it.
func NonRetriableError(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &nonRetriable{err: err, reason: reason}
}

// IsNonRetriable reports whether err was wrapped by NonRetriableError.
func IsNonRetriable(err error) bool {
	var nr *nonRetriable
	return errors.As(err, &nr)
}

type slot[T any] struct {
	item     T
	attempts int
}

// Dispatcher owns one worker goroutine per busy key.
type Dispatcher[T any] struct {
	ctx      context.Context
	callback Callback[T]
	sem      chan struct{}

	maxRetry   int
	retryDelay time.Duration
	deadletter func(ctx context.Context, key string, item T, err error)

	mu      sync.Mutex
	pending map[string]*slot[T]
	active  map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

// New returns a Dispatcher that runs callback with at most concurrency keys
// in flight. Callbacks receive ctx with its cancellation removed, so queued
// work finishes during shutdown.
func New[T any](ctx context.Context, concurrency int, callback Callback[T], opts ...Option[T]) (*Dispatcher[T], error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if callback == nil {
		return nil, errors.New("callback cannot be nil")
	}
	d := &Dispatcher[T]{
		ctx:        context.WithoutCancel(ctx),
		callback:   callback,
		sem:        make(chan struct{}, concurrency),
		retryDelay: time.Second,
		pending:    make(map[string]*slot[T]),
		active:     make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return d, nil
}

// Queue schedules item for key. A pending item for the same key is replaced.
func (d *Dispatcher[T]) Queue(key string, item T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.pending[key]; ok {
		clog.FromContext(d.ctx).With("key", key).Info("Coalescing queued work")
	}
	d.pending[key] = &slot[T]{item: item}
	if !d.active[key] {
		d.active[key] = true
		d.wg.Add(1)
		go d.work(key)
	}
	return nil
}

// Len returns the number of keys with pending work.
func (d *Dispatcher[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Shutdown stops accepting work and waits for queued work to drain or ctx
// to end.
func (d *Dispatcher[T]) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher[T]) next(key string) (*slot[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.pending[key]
	if !ok {
		delete(d.active, key)
		return nil, false
	}
	delete(d.pending, key)
	return s, true
}

// requeue puts s back unless newer work for key arrived meanwhile.
func (d *Dispatcher[T]) requeue(key string, s *slot[T]) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[key]; ok {
		return false
	}
	d.pending[key] = s
	return true
}

func (d *Dispatcher[T]) work(key string) {
	defer d.wg.Done()
	log := clog.FromContext(d.ctx).With("key", key)
	for {
		s, ok := d.next(key)
		if !ok {
			return
		}
		d.sem <- struct{}{}
		s.attempts++
		err := d.callback(d.ctx, key, s.item)
		<-d.sem

		switch {
		case err == nil:
			continue
		case IsNonRetriable(err):
			log.Warn("Dropping work after non-retriable error", "error", err)
		case s.attempts > d.maxRetry:
			log.With("attempts", s.attempts).Error("Giving up on work", "error", err)
			if d.deadletter != nil {
				d.deadletter(d.ctx, key, s.item, err)
			}
		default:
			log.With("attempt", s.attempts).Warn("Work failed, requeueing", "error", err)
			if d.requeue(key, s) {
				time.Sleep(d.retryDelay)
			}
		}
	}
}
