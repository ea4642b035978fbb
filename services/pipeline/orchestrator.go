// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wires the humanization workflow together: validate a
// chunked document, fan out each chunk to the processor on a bounded
// worker pool, fan the results back in through a barrier, merge, and
// optionally verify and refine the merged document.
//
// The orchestrator holds no durable state and no package-level
// singletons. Every collaborator is injected through New; completed
// jobs are handed to the configured store.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/pkg/validation"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/dispatch"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/merger"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/processor"
)

// Task names registered in the dispatch table.
const (
	TaskChunkProcess = "chunk.process"
	TaskJobRun       = "job.run"
)

// Workflow types reported in StartResult.
const (
	WorkflowHumanize       = "humanize"
	WorkflowHumanizeVerify = "humanize_and_verify"
)

// Stage labels reported in job progress.
const (
	StageProcessing = "processing"
	StageMerging    = "merging"
	StageVerifying  = "verifying"
	StageDone       = "done"
)

// Verifier checks a merged document and, when the verdict calls for it,
// refines the text. Implementations return the final report and the
// final (possibly rewritten) text.
type Verifier interface {
	VerifyAndRefine(ctx context.Context, jobID, text string) (*datatypes.VerificationReport, string, error)
}

// Store persists terminal job records.
type Store interface {
	SaveJobCompletion(ctx context.Context, completion datatypes.JobCompletion) error
}

// Config tunes the orchestration layer.
//
// # Description
//
// Zero values fall back to defaults. Limits bound what a single job may
// submit; the estimate parameters feed EstimatedCompletionTime and are
// never a promise.
type Config struct {
	Limits validation.Limits

	// PerChunkEstimate is the assumed wall time for one chunk.
	PerChunkEstimate time.Duration

	// EstimateEfficiency discounts the serial estimate for pipeline
	// overlap. Must be in (0, 1].
	EstimateEfficiency float64

	// MergeOverhead is the flat estimate added for the fan-in step.
	MergeOverhead time.Duration
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Limits.MaxChunks == 0 {
		cfg.Limits = validation.DefaultLimits()
	}
	if cfg.PerChunkEstimate <= 0 {
		cfg.PerChunkEstimate = 10 * time.Second
	}
	if cfg.EstimateEfficiency <= 0 || cfg.EstimateEfficiency > 1 {
		cfg.EstimateEfficiency = 0.7
	}
	if cfg.MergeOverhead <= 0 {
		cfg.MergeOverhead = 2 * time.Second
	}
	return cfg
}

// JobHandles are the dispatch handles belonging to one job. The stage
// label is advanced by the coordinating task as the job moves through
// merge and verification.
type JobHandles struct {
	Main   *dispatch.Handle
	Chunks []*dispatch.Handle

	mu    sync.Mutex
	stage string
}

func newJobHandles(main *dispatch.Handle, chunks []*dispatch.Handle) *JobHandles {
	return &JobHandles{Main: main, Chunks: chunks, stage: StageProcessing}
}

func (h *JobHandles) setStage(stage string) {
	h.mu.Lock()
	h.stage = stage
	h.mu.Unlock()
}

// Stage returns the current pipeline stage label.
func (h *JobHandles) Stage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stage
}

// TaskIDs lists the handle identifiers for persistence.
func (h *JobHandles) TaskIDs() datatypes.TaskIDs {
	ids := datatypes.TaskIDs{Main: h.Main.ID()}
	for _, c := range h.Chunks {
		ids.ChunkTaskIDs = append(ids.ChunkTaskIDs, c.ID())
	}
	return ids
}

// StartResult is returned immediately after fan-out.
type StartResult struct {
	JobID                   string
	WorkflowType            string
	Handles                 *JobHandles
	EstimatedCompletionTime time.Duration
}

// JobOutcome is the main handle's result payload.
type JobOutcome struct {
	Document     *datatypes.MergedDocument
	Report       *datatypes.VerificationReport
	FinalText    string
	FailedChunks int
}

// Progress describes how far a job has advanced.
type Progress struct {
	Percentage float64 `json:"percentage"`
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Stage      string  `json:"stage"`
}

// StatusResult is the point-in-time view of a job.
type StatusResult struct {
	JobID    string              `json:"job_id"`
	Status   datatypes.JobStatus `json:"status"`
	Progress Progress            `json:"progress"`
	Outcome  *JobOutcome         `json:"-"`
	Error    string              `json:"error,omitempty"`
}

// CancelResult reports a best-effort cancellation sweep.
type CancelResult struct {
	CancelledHandles []string `json:"cancelled_handles"`
	Errors           []string `json:"errors,omitempty"`
}

// Orchestrator coordinates the fan-out/fan-in workflow.
//
// # Thread Safety
//
// Safe for concurrent use; each Start call owns its job's records and
// shares nothing with sibling jobs.
type Orchestrator struct {
	cfg       Config
	registry  *dispatch.Registry
	pool      *dispatch.Pool
	processor *processor.Processor
	merger    *merger.Merger
	verifier  Verifier
	store     Store
	logger    *logging.Logger
}

// chunkArgs is the payload for one chunk.process dispatch.
type chunkArgs struct {
	Chunk  datatypes.ChunkRecord
	Prompt string
}

// jobArgs is the payload for the coordinating job.run dispatch.
type jobArgs struct {
	JobID   string
	Barrier *dispatch.Barrier
	Handles *JobHandles
	Verify  bool
}

// New creates an orchestrator. Verifier and store may be nil; merge
// output is then returned unverified and completions are not persisted.
func New(
	cfg Config,
	registry *dispatch.Registry,
	pool *dispatch.Pool,
	proc *processor.Processor,
	merge *merger.Merger,
	verifier Verifier,
	store Store,
	logger *logging.Logger,
) (*Orchestrator, error) {
	if registry == nil || pool == nil {
		return nil, &faults.ConfigurationError{Msg: "registry and pool must not be nil"}
	}
	if proc == nil {
		return nil, &faults.ConfigurationError{Msg: "processor must not be nil"}
	}
	if merge == nil {
		return nil, &faults.ConfigurationError{Msg: "merger must not be nil"}
	}
	if logger == nil {
		logger = logging.Default()
	}

	o := &Orchestrator{
		cfg:       applyConfigDefaults(cfg),
		registry:  registry,
		pool:      pool,
		processor: proc,
		merger:    merge,
		verifier:  verifier,
		store:     store,
		logger:    logger,
	}

	if err := registry.Register(dispatch.Task{
		Name:    TaskChunkProcess,
		Queue:   "chunks",
		Handler: o.handleChunk,
	}); err != nil {
		return nil, err
	}
	if err := registry.Register(dispatch.Task{
		Name:    TaskJobRun,
		Queue:   "jobs",
		Handler: o.handleJob,
	}); err != nil {
		return nil, err
	}
	return o, nil
}

// Start validates the request and fans the chunks out. It returns as
// soon as every unit is dispatched; callers poll Status or wait on the
// main handle for completion.
func (o *Orchestrator) Start(
	ctx context.Context,
	chunks []datatypes.ChunkRecord,
	prompt string,
	enableVerification bool,
	jobID string,
) (*StartResult, error) {
	if err := o.validateRequest(chunks, prompt); err != nil {
		return nil, err
	}
	// The job outlives the submitting request: detach from the caller's
	// cancellation while keeping its values (trace context). Cancel is
	// the only way to stop a started job.
	ctx = context.WithoutCancel(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	chunks = normalizeChunks(chunks)

	workflowType := WorkflowHumanize
	if enableVerification {
		workflowType = WorkflowHumanizeVerify
	}

	barrier, err := dispatch.NewBarrier(len(chunks))
	if err != nil {
		return nil, err
	}

	chunkHandles := make([]*dispatch.Handle, 0, len(chunks))
	for slot, chunk := range chunks {
		h, err := o.pool.Submit(ctx, TaskChunkProcess, chunkArgs{Chunk: chunk, Prompt: prompt})
		if err != nil {
			for _, prior := range chunkHandles {
				prior.Revoke()
			}
			return nil, fmt.Errorf("job %s: submit chunk %d: %w", jobID, slot, err)
		}
		barrier.Watch(slot, h)
		chunkHandles = append(chunkHandles, h)
	}

	handles := newJobHandles(nil, chunkHandles)
	args := &jobArgs{JobID: jobID, Barrier: barrier, Handles: handles, Verify: enableVerification}
	main, err := o.registry.Go(ctx, TaskJobRun, args)
	if err != nil {
		for _, h := range chunkHandles {
			h.Revoke()
		}
		return nil, err
	}
	handles.Main = main

	o.logger.Info("job started",
		"job_id", jobID,
		"workflow_type", workflowType,
		"chunk_count", len(chunks),
		"verification", enableVerification,
	)

	return &StartResult{
		JobID:                   jobID,
		WorkflowType:            workflowType,
		Handles:                 handles,
		EstimatedCompletionTime: o.estimate(len(chunks)),
	}, nil
}

// Status derives a job's state from its handles.
func (o *Orchestrator) Status(ctx context.Context, jobID string, handles *JobHandles) (*StatusResult, error) {
	if handles == nil || handles.Main == nil {
		return nil, &faults.ConfigurationError{Msg: "job handles must not be nil"}
	}

	total := len(handles.Chunks)
	completed := 0
	for _, h := range handles.Chunks {
		if h.Ready() {
			completed++
		}
	}

	percentage := 0.0
	if total > 0 {
		percentage = float64(completed) / float64(total) * 100
	}

	stage := StageProcessing
	if completed == total {
		stage = handles.Stage()
	}

	status := &StatusResult{
		JobID: jobID,
		Progress: Progress{
			Percentage: percentage,
			Completed:  completed,
			Total:      total,
			Stage:      stage,
		},
	}

	switch handles.Main.State() {
	case dispatch.StatePending:
		status.Status = datatypes.JobPending
	case dispatch.StateRunning:
		status.Status = datatypes.JobProcessing
	case dispatch.StateRevoked:
		status.Status = datatypes.JobRevoked
	case dispatch.StateFailure:
		status.Status = datatypes.JobFailure
		if _, err := handles.Main.Result(); err != nil {
			status.Error = err.Error()
		}
	case dispatch.StateSuccess:
		status.Status = datatypes.JobSuccess
		status.Progress.Stage = StageDone
		if result, _ := handles.Main.Result(); result != nil {
			if outcome, ok := result.(*JobOutcome); ok {
				status.Outcome = outcome
			}
		}
	}
	return status, nil
}

// Cancel revokes the main handle and every chunk handle. Running work
// is cancelled through its context but not waited on.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string, handles *JobHandles) (*CancelResult, error) {
	if handles == nil || handles.Main == nil {
		return nil, &faults.ConfigurationError{Msg: "job handles must not be nil"}
	}

	result := &CancelResult{}
	revoke := func(h *dispatch.Handle) {
		if h.Ready() {
			result.Errors = append(result.Errors,
				fmt.Sprintf("handle %s already terminal (%s)", h.ID(), h.State()))
			return
		}
		h.Revoke()
		result.CancelledHandles = append(result.CancelledHandles, h.ID())
	}

	revoke(handles.Main)
	for _, h := range handles.Chunks {
		revoke(h)
	}

	o.logger.Info("job cancelled",
		"job_id", jobID,
		"cancelled", len(result.CancelledHandles),
		"skipped", len(result.Errors),
	)
	return result, nil
}

// =============================================================================
// Task handlers
// =============================================================================

func (o *Orchestrator) handleChunk(ctx context.Context, args any) (any, error) {
	ca, ok := args.(chunkArgs)
	if !ok {
		return nil, fmt.Errorf("chunk.process: unexpected args type %T", args)
	}
	result, err := o.processor.Process(ctx, ca.Chunk, ca.Prompt)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// handleJob is the coordinating task: wait for the fan-in barrier,
// merge the survivors, then verify when requested.
func (o *Orchestrator) handleJob(ctx context.Context, args any) (any, error) {
	ja, ok := args.(*jobArgs)
	if !ok {
		return nil, fmt.Errorf("job.run: unexpected args type %T", args)
	}

	results, errs, err := ja.Barrier.Wait(ctx)
	if err != nil {
		status := datatypes.JobFailure
		if ctx.Err() != nil {
			status = datatypes.JobRevoked
		}
		o.recordCompletion(ja.JobID, status, nil)
		return nil, fmt.Errorf("job %s: waiting for chunks: %w", ja.JobID, err)
	}

	survivors := make([]datatypes.ChunkResult, 0, len(results))
	failed := 0
	for slot, r := range results {
		if errs[slot] != nil {
			failed++
			continue
		}
		if cr, ok := r.(*datatypes.ChunkResult); ok && cr != nil {
			survivors = append(survivors, *cr)
		}
	}
	if len(survivors) == 0 {
		o.recordCompletion(ja.JobID, datatypes.JobFailure, nil)
		return nil, fmt.Errorf("job %s: all %d chunks failed", ja.JobID, len(results))
	}
	if failed > 0 {
		o.logger.Warn("job proceeding with partial results",
			"job_id", ja.JobID,
			"failed_chunks", failed,
			"surviving_chunks", len(survivors),
		)
	}

	if ja.Handles != nil {
		ja.Handles.setStage(StageMerging)
	}
	doc, err := o.merger.Merge(ctx, survivors)
	if err != nil {
		o.recordCompletion(ja.JobID, datatypes.JobFailure, nil)
		return nil, fmt.Errorf("job %s: merge: %w", ja.JobID, err)
	}

	outcome := &JobOutcome{
		Document:     doc,
		FinalText:    doc.HumanizedText,
		FailedChunks: failed,
	}

	if ja.Verify && o.verifier != nil {
		if ja.Handles != nil {
			ja.Handles.setStage(StageVerifying)
		}
		report, finalText, err := o.verifier.VerifyAndRefine(ctx, ja.JobID, doc.HumanizedText)
		if err != nil {
			o.recordCompletion(ja.JobID, datatypes.JobFailure, nil)
			return nil, fmt.Errorf("job %s: verification: %w", ja.JobID, err)
		}
		outcome.Report = report
		if strings.TrimSpace(finalText) != "" {
			outcome.FinalText = finalText
		}
	}

	if ja.Handles != nil {
		ja.Handles.setStage(StageDone)
	}
	o.recordCompletion(ja.JobID, datatypes.JobSuccess, outcome.Report)
	return outcome, nil
}

// =============================================================================
// Internals
// =============================================================================

func (o *Orchestrator) validateRequest(chunks []datatypes.ChunkRecord, prompt string) error {
	if err := validation.ValidateChunkCount(len(chunks), o.cfg.Limits); err != nil {
		return err
	}
	if err := validation.ValidatePrompt(prompt, o.cfg.Limits); err != nil {
		return err
	}
	for i, chunk := range chunks {
		if err := validation.ValidateChunkContent(i, chunk.Content, o.cfg.Limits); err != nil {
			return err
		}
	}
	return nil
}

// normalizeChunks fills in missing ids and repairs non-unique indexes
// from list position. Input is not mutated.
func normalizeChunks(chunks []datatypes.ChunkRecord) []datatypes.ChunkRecord {
	out := make([]datatypes.ChunkRecord, len(chunks))
	copy(out, chunks)

	seen := make(map[int]bool, len(out))
	reindex := false
	for _, c := range out {
		if seen[c.Index] {
			reindex = true
			break
		}
		seen[c.Index] = true
	}

	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if reindex {
			out[i].Index = i
		}
	}
	return out
}

func (o *Orchestrator) estimate(count int) time.Duration {
	waves := math.Ceil(float64(count) / float64(o.pool.Concurrency()))
	serial := time.Duration(waves) * o.cfg.PerChunkEstimate
	return time.Duration(float64(serial)*o.cfg.EstimateEfficiency) + o.cfg.MergeOverhead
}

func (o *Orchestrator) recordCompletion(jobID string, status datatypes.JobStatus, report *datatypes.VerificationReport) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := o.store.SaveJobCompletion(ctx, datatypes.JobCompletion{
		JobID:      jobID,
		Status:     status,
		Report:     report,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		o.logger.Error("failed to record job completion",
			"job_id", jobID,
			"error", err.Error(),
		)
	}
}
