// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch provides the broker-independent workflow primitives
// used by the orchestrator: a plain task table with lifecycle hooks, a
// worker pool, per-unit-of-work handles, and a fan-in Barrier.
//
// Tasks are registered by name into a Registry (an ordinary map, tied
// to no queueing framework). Every invocation is wrapped by the
// registry's hooks (on_start, on_success, on_failure) so logging and
// metrics stay independent of how the work is scheduled.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
)

// Handler is the unit-of-work function signature.
type Handler func(ctx context.Context, args any) (any, error)

// RetryPolicy bounds dispatch-level re-execution of a task. Most
// pipeline tasks keep this zero and handle retries internally (the
// chunk processor owns its own backoff policy).
type RetryPolicy struct {
	// MaxAttempts is the total number of executions allowed.
	// Zero or one means a single attempt.
	MaxAttempts int

	// Delay is the fixed wait between dispatch-level attempts.
	Delay time.Duration
}

// Task is one named entry in the dispatch table.
type Task struct {
	Name    string
	Queue   string
	Retry   RetryPolicy
	Handler Handler
}

// Hooks are invoked around every task execution. Nil hooks are skipped.
type Hooks struct {
	OnStart   func(task, handleID string, args any)
	OnSuccess func(task, handleID string, result any, elapsed time.Duration)
	OnFailure func(task, handleID string, err error, elapsed time.Duration)
}

// Registry is the task-dispatch table.
//
// # Thread Safety
//
// Safe for concurrent use. Registration normally happens once at
// startup; Execute may be called from any worker goroutine.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]Task
	hooks  Hooks
	logger *logging.Logger
}

// NewRegistry creates an empty dispatch table with the given hooks.
func NewRegistry(hooks Hooks, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		tasks:  make(map[string]Task),
		hooks:  hooks,
		logger: logger,
	}
}

// SetHooks replaces the lifecycle hooks. Composition roots use this
// when the metrics surface is built after the dispatch table it
// observes.
func (r *Registry) SetHooks(hooks Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = hooks
}

func (r *Registry) getHooks() Hooks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks
}

// Register adds a task to the table. Duplicate names are rejected.
func (r *Registry) Register(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if task.Handler == nil {
		return fmt.Errorf("task %s: handler must not be nil", task.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.Name]; exists {
		return fmt.Errorf("task %s already registered", task.Name)
	}
	r.tasks[task.Name] = task
	return nil
}

// Get looks up a task by name.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[name]
	return task, ok
}

// Names returns the registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

// Go executes a registered task on its own goroutine, outside any
// worker pool, and returns its handle. Coordinating tasks that block
// on other units use this so they never occupy a pool slot.
func (r *Registry) Go(ctx context.Context, name string, args any) (*Handle, error) {
	if _, ok := r.Get(name); !ok {
		return nil, fmt.Errorf("task %s not registered", name)
	}
	h := newHandle(name)
	go func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if !h.markRunning(cancel) {
			return
		}
		result, err := r.Execute(runCtx, name, h.ID(), args)
		h.complete(result, err)
	}()
	return h, nil
}

// Execute runs a registered task inline, wrapped by the hooks and the
// task's dispatch-level retry policy.
func (r *Registry) Execute(ctx context.Context, name, handleID string, args any) (any, error) {
	task, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("task %s not registered", name)
	}

	hooks := r.getHooks()
	if hooks.OnStart != nil {
		hooks.OnStart(task.Name, handleID, args)
	}

	start := time.Now()
	attempts := task.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result any
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && task.Retry.Delay > 0 {
			timer := time.NewTimer(task.Retry.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				err = ctx.Err()
				attempt = attempts // exit loop
				continue
			case <-timer.C:
			}
		}
		result, err = task.Handler(ctx, args)
		if err == nil {
			break
		}
		r.logger.Warn("task attempt failed",
			"task", task.Name,
			"handle_id", handleID,
			"attempt", attempt+1,
			"error", err.Error(),
		)
	}

	elapsed := time.Since(start)
	if err != nil {
		if hooks.OnFailure != nil {
			hooks.OnFailure(task.Name, handleID, err, elapsed)
		}
		return nil, err
	}
	if hooks.OnSuccess != nil {
		hooks.OnSuccess(task.Name, handleID, result, elapsed)
	}
	return result, nil
}
