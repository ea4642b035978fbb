// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gateway's HTTP and websocket
// handlers.
package handlers

import (
	"sync"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
)

// JobRegistry maps job IDs to their live handles.
//
// # Description
//
// The orchestrator hands back a JobHandles per submitted job; status,
// cancel, and stream endpoints need to find it again by ID. Entries
// are kept after the job finishes so late status polls still resolve.
//
// # Thread Safety
//
// Safe for concurrent use.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*pipeline.JobHandles
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*pipeline.JobHandles)}
}

// Put records the handles for a job.
func (r *JobRegistry) Put(jobID string, handles *pipeline.JobHandles) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID] = handles
}

// Get looks up the handles for a job.
func (r *JobRegistry) Get(jobID string) (*pipeline.JobHandles, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.jobs[jobID]
	return h, ok
}

// Len reports how many jobs the registry tracks.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
