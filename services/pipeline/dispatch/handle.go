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
	"sync"

	"github.com/google/uuid"
)

// ErrRevoked is the terminal error carried by a revoked handle, so
// fan-in points never mistake a cancelled unit for a successful one.
var ErrRevoked = errors.New("unit of work revoked")

// State is the lifecycle state of one unit of work.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
	StateRevoked State = "REVOKED"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// Handle tracks one dispatched unit of work.
//
// # Thread Safety
//
// Safe for concurrent use; workers complete it, pollers read it, and
// cancellation may arrive from a third goroutine.
type Handle struct {
	id   string
	task string

	mu      sync.Mutex
	state   State
	result  any
	err     error
	revoked bool
	cancel  context.CancelFunc

	done chan struct{}
}

func newHandle(task string) *Handle {
	return &Handle{
		id:    uuid.NewString(),
		task:  task,
		state: StatePending,
		done:  make(chan struct{}),
	}
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Task returns the name of the dispatched task.
func (h *Handle) Task() string { return h.task }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Ready reports whether the unit has reached a terminal state.
func (h *Handle) Ready() bool {
	return h.State().Terminal()
}

// Done returns a channel closed when the unit reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome. Only meaningful once Ready().
func (h *Handle) Result() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Revoke requests best-effort cancellation. A pending unit is marked
// REVOKED and never runs; a running unit has its context cancelled but
// is not waited on (fire-and-forget semantics). Terminal units are
// unaffected.
func (h *Handle) Revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.revoked = true
	if h.state == StatePending {
		h.state = StateRevoked
		h.err = ErrRevoked
		close(h.done)
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// markRunning transitions PENDING -> RUNNING and installs the cancel
// func. Returns false when the unit was revoked before starting.
func (h *Handle) markRunning(cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePending {
		return false
	}
	h.state = StateRunning
	h.cancel = cancel
	return true
}

// complete records the outcome and closes the done channel. A unit
// revoked mid-flight lands in REVOKED regardless of the handler error.
func (h *Handle) complete(result any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.result = result
	h.err = err
	switch {
	case h.revoked:
		h.state = StateRevoked
		if h.err == nil {
			h.err = ErrRevoked
		}
	case err != nil:
		h.state = StateFailure
	default:
		h.state = StateSuccess
	}
	close(h.done)
}
