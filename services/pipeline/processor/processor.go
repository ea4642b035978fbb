// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package processor runs one text chunk through the external rewrite
// call and owns the retry policy for that single unit of work.
//
// # Description
//
// Process validates the chunk, calls the rewriter with a per-call
// timeout, and retries transient faults with exponential backoff and
// jitter up to a fixed budget. A chunk that exhausts its budget is
// routed to the dead-letter sink and never silently dropped; the
// parent job proceeds with the chunks that succeeded.
//
// # Thread Safety
//
// Processor is stateless apart from its collaborators and safe for
// concurrent use; each Process call is independent.
package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/chunker"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// ErrDeadLettered marks a chunk whose retry budget is exhausted. The
// original fault is wrapped alongside it.
var ErrDeadLettered = errors.New("chunk dead-lettered after retry budget exhausted")

// =============================================================================
// Dead Letter
// =============================================================================

// DeadLetterEntry records the identity and final fault of an exhausted
// unit of work, held for manual inspection.
type DeadLetterEntry struct {
	JobID      string                `json:"job_id"`
	Chunk      datatypes.ChunkRecord `json:"chunk"`
	Prompt     string                `json:"prompt"`
	Attempts   int                   `json:"attempts"`
	FinalError string                `json:"final_error"`
	Timestamp  time.Time             `json:"timestamp"`
}

// DeadLetter is the sink for exhausted chunk units.
type DeadLetter interface {
	Record(ctx context.Context, entry DeadLetterEntry)
}

// LogDeadLetter writes dead-letter entries to the structured log.
type LogDeadLetter struct {
	logger *logging.Logger
}

// NewLogDeadLetter creates a logging dead-letter sink.
func NewLogDeadLetter(logger *logging.Logger) *LogDeadLetter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogDeadLetter{logger: logger}
}

// Record logs the full entry at error level.
func (d *LogDeadLetter) Record(ctx context.Context, entry DeadLetterEntry) {
	d.logger.Error("chunk dead-lettered",
		"job_id", entry.JobID,
		"chunk_id", entry.Chunk.ID,
		"chunk_index", entry.Chunk.Index,
		"content_chars", len(entry.Chunk.Content),
		"prompt_chars", len(entry.Prompt),
		"attempts", entry.Attempts,
		"final_error", entry.FinalError,
	)
}

var _ DeadLetter = (*LogDeadLetter)(nil)

// =============================================================================
// Configuration
// =============================================================================

// Config controls validation bounds and the retry policy.
type Config struct {
	// MaxRetries is the retry budget for transient faults.
	// Default: 3.
	MaxRetries int

	// BaseDelay is the first backoff delay; attempt k waits
	// BaseDelay * 2^k (before jitter). Default: 60s.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay before jitter. Default: 600s.
	MaxDelay time.Duration

	// RequestTimeout bounds each individual rewrite call.
	// Default: 120s.
	RequestTimeout time.Duration

	// MaxTokens is the rewrite completion budget. Content whose token
	// count exceeds it is rejected as permanent before any external
	// call. Default: 8192.
	MaxTokens int

	// Params are passed through to the rewriter.
	Params llm.GenerationParams
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 60 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 600 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	return cfg
}

// =============================================================================
// Processor
// =============================================================================

// Processor processes single chunks through the rewrite backend.
type Processor struct {
	cfg        Config
	rewriter   llm.Rewriter
	deadLetter DeadLetter
	tokens     *chunker.TokenCounter
	logger     *logging.Logger
}

// New creates a Processor.
//
// # Inputs
//
//   - cfg: retry and validation bounds; zero fields get defaults.
//   - rewriter: the external rewrite backend. Must not be nil.
//   - deadLetter: sink for exhausted chunks. Nil gets a logging sink.
//   - logger: structured logger. Nil gets the default.
func New(cfg Config, rewriter llm.Rewriter, deadLetter DeadLetter, logger *logging.Logger) (*Processor, error) {
	if rewriter == nil {
		return nil, &faults.ConfigurationError{Msg: "rewriter must not be nil"}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deadLetter == nil {
		deadLetter = NewLogDeadLetter(logger)
	}
	return &Processor{
		cfg:        applyConfigDefaults(cfg),
		rewriter:   rewriter,
		deadLetter: deadLetter,
		tokens:     chunker.NewTokenCounter(),
		logger:     logger,
	}, nil
}

// Process rewrites one chunk.
//
// # Description
//
//	Validates content, then calls the rewriter with a per-call timeout.
//	Transient faults are retried with exponential backoff and jitter;
//	permanent faults return immediately. Budget exhaustion routes the
//	chunk to the dead-letter sink and returns ErrDeadLettered.
//
// # Outputs
//
//	*datatypes.ChunkResult - On success; Metadata carries "retry_count".
//	error - PermanentError for validation faults, ErrDeadLettered after
//	        budget exhaustion, ctx.Err() on cancellation.
func (p *Processor) Process(ctx context.Context, chunk datatypes.ChunkRecord, prompt string) (*datatypes.ChunkResult, error) {
	log := p.logger.With("chunk_id", chunk.ID, "chunk_index", chunk.Index)

	if err := p.validate(chunk); err != nil {
		log.Error("chunk validation failed", "error", err.Error())
		return nil, err
	}

	log.Info("chunk processing started", "content_chars", len(chunk.Content))
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		result, err := p.callRewrite(ctx, chunk.Content, prompt)
		if err == nil {
			elapsed := time.Since(start)
			log.Info("chunk processing succeeded",
				"retry_count", attempt,
				"duration_ms", elapsed.Milliseconds(),
				"total_tokens", result.TokenUsage.Total,
			)
			return p.buildResult(chunk, result, elapsed, attempt), nil
		}

		if faults.IsPermanent(err) {
			log.Error("chunk processing failed permanently", "error", err.Error())
			return nil, fmt.Errorf("process chunk %s: %w", chunk.ID, err)
		}

		lastErr = err
		if attempt == p.cfg.MaxRetries {
			break
		}

		delay := p.backoffDelay(attempt, err)
		log.Warn("chunk processing retry",
			"attempt", attempt+1,
			"max_retries", p.cfg.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, fmt.Errorf("process chunk %s: %w", chunk.ID, err)
		}
	}

	p.deadLetter.Record(ctx, DeadLetterEntry{
		Chunk:      chunk,
		Prompt:     prompt,
		Attempts:   p.cfg.MaxRetries + 1,
		FinalError: lastErr.Error(),
		Timestamp:  time.Now(),
	})
	return nil, fmt.Errorf("chunk %s: %w: %w", chunk.ID, ErrDeadLettered, lastErr)
}

// validate enforces the pre-call bounds. Oversize content is rejected
// before wasting an external request.
func (p *Processor) validate(chunk datatypes.ChunkRecord) error {
	if len(chunk.Content) == 0 {
		return faults.NewPermanent(faults.CodeBadRequest, 0,
			fmt.Sprintf("chunk %s has empty content", chunk.ID), nil)
	}
	if count := p.tokens.Count(chunk.Content); count > p.cfg.MaxTokens {
		return faults.NewPermanent(faults.CodeBadRequest, 0,
			fmt.Sprintf("chunk %s content (%d tokens) exceeds token budget (%d)",
				chunk.ID, count, p.cfg.MaxTokens), nil)
	}
	return nil
}

func (p *Processor) callRewrite(ctx context.Context, text, prompt string) (*llm.RewriteResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	return p.rewriter.Rewrite(callCtx, text, prompt, p.cfg.Params)
}

func (p *Processor) buildResult(chunk datatypes.ChunkRecord, res *llm.RewriteResult, elapsed time.Duration, retries int) *datatypes.ChunkResult {
	metadata := map[string]any{
		"retry_count": retries,
		"model":       res.Model,
	}
	for k, v := range chunk.Metadata {
		metadata[k] = v
	}
	return &datatypes.ChunkResult{
		ChunkID:          chunk.ID,
		OriginalContent:  chunk.Content,
		HumanizedContent: res.Text,
		ProcessingTime:   elapsed,
		TokenUsage:       res.TokenUsage,
		Index:            chunk.Index,
		Metadata:         metadata,
	}
}

// backoffDelay computes the wait before the next attempt: exponential
// with uniform jitter in [0.5, 1.5). A server-suggested Retry-After
// wins when it is longer than the computed delay.
func (p *Processor) backoffDelay(attempt int, err error) time.Duration {
	delay := time.Duration(float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	if ra := faults.RetryAfterOf(err); ra > delay {
		delay = ra
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
