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
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
)

// Pool executes registered tasks on a bounded set of workers. Units
// beyond the concurrency limit queue on the semaphore; completion order
// between concurrently dispatched units is not guaranteed.
type Pool struct {
	registry *Registry
	workers  int
	sem      *semaphore.Weighted
	logger   *logging.Logger

	queued sync.WaitGroup
	depth  atomic.Int64
	active atomic.Int64
}

// NewPool creates a worker pool over the given dispatch table.
func NewPool(registry *Registry, workers int, logger *logging.Logger) (*Pool, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{
		registry: registry,
		workers:  workers,
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger,
	}, nil
}

// Submit dispatches one unit of work and returns its handle
// immediately. The unit runs when a worker slot frees up; revoking the
// handle before that skips execution entirely.
func (p *Pool) Submit(ctx context.Context, taskName string, args any) (*Handle, error) {
	if _, ok := p.registry.Get(taskName); !ok {
		return nil, fmt.Errorf("task %s not registered", taskName)
	}

	h := newHandle(taskName)
	p.depth.Add(1)
	p.queued.Add(1)

	go func() {
		defer p.queued.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.depth.Add(-1)
			h.complete(nil, fmt.Errorf("acquire worker slot: %w", err))
			return
		}
		defer p.sem.Release(1)
		p.depth.Add(-1)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if !h.markRunning(cancel) {
			// Revoked while pending
			return
		}

		p.active.Add(1)
		defer p.active.Add(-1)

		result, err := p.registry.Execute(runCtx, taskName, h.ID(), args)
		h.complete(result, err)
	}()

	return h, nil
}

// QueueDepth returns the number of units waiting for a worker slot.
func (p *Pool) QueueDepth() int64 { return p.depth.Load() }

// ActiveWorkers returns the number of units currently executing.
func (p *Pool) ActiveWorkers() int64 { return p.active.Load() }

// Concurrency returns the configured worker count.
func (p *Pool) Concurrency() int { return p.workers }

// Drain blocks until every submitted unit has finished or ctx expires.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.queued.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
