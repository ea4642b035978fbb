// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the data model shared across the humanization
// pipeline: chunk records flowing through fan-out, merged documents,
// verification reports, refinement history, and job bookkeeping.
//
// Types here are plain data. Each job owns its own records; no
// component holds a reference into another job's data.
package datatypes

import (
	"time"
)

// =============================================================================
// Chunk Flow
// =============================================================================

// ChunkRecord is one contiguous slice of the original document,
// processed independently and reassembled by index. Immutable once
// handed to the processor. Index must be dense 0..N-1 for a clean
// merge; gaps are tolerated with a warning.
type ChunkRecord struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Index    int            `json:"index"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokenUsage counts tokens consumed by a rewrite call.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}

// ChunkResult is the output of processing one ChunkRecord. One per
// record; owned by the fan-in step until merged.
type ChunkResult struct {
	ChunkID          string         `json:"chunk_id"`
	OriginalContent  string         `json:"original_content"`
	HumanizedContent string         `json:"humanized_content"`
	ProcessingTime   time.Duration  `json:"processing_time"`
	TokenUsage       TokenUsage     `json:"token_usage"`
	Index            int            `json:"index"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ProcessingSummary reconciles per-chunk accounting for one merged
// document.
type ProcessingSummary struct {
	ChunksProcessed            int           `json:"chunks_processed"`
	ChunksMerged               int           `json:"chunks_merged"`
	TotalProcessingTime        time.Duration `json:"total_processing_time"`
	MergeTime                  time.Duration `json:"merge_time"`
	OriginalLength             int           `json:"original_length"`
	HumanizedLength            int           `json:"humanized_length"`
	AverageChunkProcessingTime time.Duration `json:"average_chunk_processing_time"`
}

// MergedDocument is the fan-in output: one coherent document per job.
type MergedDocument struct {
	HumanizedText string            `json:"humanized_text"`
	Summary       ProcessingSummary `json:"processing_summary"`
	TokenUsage    TokenUsage        `json:"token_usage_summary"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// =============================================================================
// Verification
// =============================================================================

// Confidence is the qualitative certainty band attached to a detection
// score or verdict.
type Confidence string

const (
	ConfidenceVeryLow  Confidence = "very_low"
	ConfidenceLow      Confidence = "low"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceHigh     Confidence = "high"
	ConfidenceVeryHigh Confidence = "very_high"
)

// DetectionResult is the ternary classification of a text sample.
type DetectionResult string

const (
	ResultHuman       DetectionResult = "human"
	ResultAIGenerated DetectionResult = "ai_generated"
	ResultUncertain   DetectionResult = "uncertain"
)

// Recommendation is the verification verdict handed back to the
// orchestration layer.
type Recommendation string

const (
	RecommendAccept          Recommendation = "ACCEPT"
	RecommendReject          Recommendation = "REJECT"
	RecommendNeedsRefinement Recommendation = "NEEDS_REFINEMENT"
)

// DetectionScore is one detector's output for one verification pass.
// When the detector errored or timed out, Err carries the description
// and the score is the neutral substitute.
type DetectionScore struct {
	DetectorName     string          `json:"detector_name"`
	DetectorType     string          `json:"detector_type"`
	AIProbability    float64         `json:"ai_probability"`
	Confidence       Confidence      `json:"confidence"`
	Result           DetectionResult `json:"result"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	Err              string          `json:"error,omitempty"`
}

// Errored reports whether the score is an error substitute rather than
// a real detection.
func (s DetectionScore) Errored() bool { return s.Err != "" }

// VerificationReport is the aggregated verdict over a detector set.
// AIProbabilityAvg is the mean over error-free scores only; an
// all-error pass degrades to uncertain at 0.5.
type VerificationReport struct {
	TextID                string           `json:"text_id"`
	OverallResult         DetectionResult  `json:"overall_result"`
	OverallConfidence     Confidence       `json:"overall_confidence"`
	AIProbabilityAvg      float64          `json:"ai_probability_avg"`
	ProcessingTimeTotalMS int64            `json:"processing_time_total_ms"`
	DetectorScores        []DetectionScore `json:"detector_scores"`
	Recommendation        Recommendation   `json:"recommendation"`
	Recommendations       []string         `json:"recommendations,omitempty"`
	Metadata              map[string]any   `json:"metadata,omitempty"`
	Timestamp             time.Time        `json:"timestamp"`
}

// ValidScores returns the scores that carry a real detection.
func (r *VerificationReport) ValidScores() []DetectionScore {
	valid := make([]DetectionScore, 0, len(r.DetectorScores))
	for _, s := range r.DetectorScores {
		if !s.Errored() {
			valid = append(valid, s)
		}
	}
	return valid
}

// =============================================================================
// Refinement
// =============================================================================

// AttemptStatus marks one refinement attempt as completed or failed.
type AttemptStatus string

const (
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
)

// RefinementAttempt records one regenerate-and-reverify cycle.
type RefinementAttempt struct {
	Iteration             int           `json:"iteration"`
	PreviousAIProbability float64       `json:"previous_ai_probability"`
	NewAIProbability      float64       `json:"new_ai_probability"`
	Improvement           float64       `json:"improvement"`
	RefinedPrompt         string        `json:"refined_prompt"`
	PassedVerification    bool          `json:"passed_verification"`
	Status                AttemptStatus `json:"status"`
	ProcessingTime        time.Duration `json:"processing_time"`
}

// RefinementHistory is the append-only sequence of attempts for one
// refinement run, keyed by job for persistence.
type RefinementHistory struct {
	JobID    string              `json:"job_id"`
	Attempts []RefinementAttempt `json:"attempts"`
}

// =============================================================================
// Job Bookkeeping
// =============================================================================

// JobStatus is the lifecycle state of a submitted job. Terminal states
// are SUCCESS, FAILURE, and REVOKED.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobSuccess    JobStatus = "SUCCESS"
	JobFailure    JobStatus = "FAILURE"
	JobRevoked    JobStatus = "REVOKED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailure || s == JobRevoked
}

// TaskIDs names the unit-of-work handles belonging to one job.
type TaskIDs struct {
	Main         string   `json:"main"`
	Group        string   `json:"group"`
	ChunkTaskIDs []string `json:"chunk_task_ids"`
}

// JobRecord is the logical bookkeeping entry for one orchestration run.
// Status is derived from the underlying task handles, not stored as a
// mutable field.
type JobRecord struct {
	JobID        string    `json:"job_id"`
	WorkflowType string    `json:"workflow_type"`
	TaskIDs      TaskIDs   `json:"task_ids"`
	ChunkCount   int       `json:"chunk_count"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// JobCompletion is the record handed to storage when a job reaches a
// terminal state.
type JobCompletion struct {
	JobID      string              `json:"job_id"`
	Status     JobStatus           `json:"status"`
	Report     *VerificationReport `json:"report,omitempty"`
	FinishedAt time.Time           `json:"finished_at"`
}

// =============================================================================
// Chunking
// =============================================================================

// ChunkingStats summarizes a chunking pass.
type ChunkingStats struct {
	ChunkCount    int `json:"chunk_count"`
	TotalChars    int `json:"total_chars"`
	AverageTokens int `json:"average_tokens"`
}

// ChunkingResult is the external chunker's output fed into the
// orchestrator.
type ChunkingResult struct {
	Chunks []ChunkRecord `json:"chunks"`
	Stats  ChunkingStats `json:"stats"`
}
