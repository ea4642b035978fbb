// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBarrierFailFast is returned by Wait when the configured failure
// threshold was reached before all units resolved.
var ErrBarrierFailFast = errors.New("barrier failure threshold reached")

// Barrier is the fan-in synchronization point: it tracks N outstanding
// units of work and fires exactly once when all have resolved (or when
// a configured number of failures makes waiting pointless).
//
// The barrier is the only place where cross-chunk ordering is
// re-established; arrival order is irrelevant, results are stored by
// slot.
//
// # Thread Safety
//
// Safe for concurrent use. Arrive may be called from any worker
// goroutine; Wait from any number of waiters.
type Barrier struct {
	total        int
	failFast     int // 0 = wait for everything regardless of failures
	continuation func(results []any, errs []error)

	mu       sync.Mutex
	arrived  int
	failures int
	seen     []bool
	results  []any
	errs     []error
	fired    bool

	done chan struct{}
}

// BarrierOption configures a Barrier.
type BarrierOption func(*Barrier)

// WithFailFast makes the barrier fire early once n units have failed.
func WithFailFast(n int) BarrierOption {
	return func(b *Barrier) { b.failFast = n }
}

// WithContinuation registers a function invoked exactly once when the
// barrier fires, before Wait unblocks.
func WithContinuation(fn func(results []any, errs []error)) BarrierOption {
	return func(b *Barrier) { b.continuation = fn }
}

// NewBarrier creates a barrier over n slots.
func NewBarrier(n int, opts ...BarrierOption) (*Barrier, error) {
	if n <= 0 {
		return nil, fmt.Errorf("barrier size must be positive, got %d", n)
	}
	b := &Barrier{
		total:   n,
		seen:    make([]bool, n),
		results: make([]any, n),
		errs:    make([]error, n),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Arrive records the outcome for one slot. Duplicate arrivals for the
// same slot and arrivals after firing are ignored.
func (b *Barrier) Arrive(slot int, result any, err error) {
	if slot < 0 || slot >= b.total {
		return
	}
	b.mu.Lock()
	if b.fired || b.seen[slot] {
		b.mu.Unlock()
		return
	}
	b.seen[slot] = true
	b.results[slot] = result
	b.errs[slot] = err
	b.arrived++
	if err != nil {
		b.failures++
	}

	shouldFire := b.arrived >= b.total ||
		(b.failFast > 0 && b.failures >= b.failFast)
	if shouldFire && !b.fired {
		b.fired = true
		results, errs := b.results, b.errs
		continuation := b.continuation
		b.mu.Unlock()
		if continuation != nil {
			continuation(results, errs)
		}
		close(b.done)
		return
	}
	b.mu.Unlock()
}

// Watch wires a handle into a slot: a goroutine waits for the handle
// and arrives on its behalf.
func (b *Barrier) Watch(slot int, h *Handle) {
	go func() {
		<-h.Done()
		result, err := h.Result()
		b.Arrive(slot, result, err)
	}()
}

// Fired reports whether the barrier has triggered.
func (b *Barrier) Fired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}

// Arrived returns how many slots have resolved.
func (b *Barrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

// Wait blocks until the barrier fires or ctx is cancelled.
//
// # Outputs
//
//	[]any - Per-slot results, indexed by slot.
//	[]error - Per-slot errors, indexed by slot.
//	error - ctx.Err() on cancellation, ErrBarrierFailFast when the
//	        failure threshold fired the barrier early, nil otherwise.
func (b *Barrier) Wait(ctx context.Context) ([]any, []error, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-b.done:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFast > 0 && b.failures >= b.failFast && b.arrived < b.total {
		return b.results, b.errs, ErrBarrierFailFast
	}
	return b.results, b.errs, nil
}
