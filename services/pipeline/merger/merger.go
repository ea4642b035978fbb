// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merger combines ordered per-chunk results into one coherent
// document.
//
// # Description
//
// Merge is the fan-in step: it restores total ordering by chunk index,
// detects (but tolerates) missing indices, joins segments with
// paragraph breaks, and normalizes whitespace. An optional
// boundary-smoothing mode rewrites each chunk transition through the
// rewrite backend; smoothing is best-effort and falls back silently to
// the plain join when a smoothing call fails.
//
// Merge output depends only on chunk index, never on arrival order.
//
// # Thread Safety
//
// Merger is safe for concurrent use; each Merge call works on its own
// input slice copy.
package merger

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// transitionPrompt asks the rewriter to smooth one chunk boundary.
const transitionPrompt = "Rewrite the following passage so the transition between its paragraphs flows naturally. Preserve the meaning and all factual content. Return only the rewritten passage."

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Config controls merge behavior.
type Config struct {
	// SmoothBoundaries enables rewrite-backed transition smoothing.
	// Each chunk boundary costs one extra rewrite call, so this is
	// off by default.
	SmoothBoundaries bool

	// BoundarySentences is how many sentences on each side of a
	// boundary feed the smoothing call. Default: 2.
	BoundarySentences int

	// SmoothTimeout bounds each smoothing call. Default: 30s.
	SmoothTimeout time.Duration
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.BoundarySentences == 0 {
		cfg.BoundarySentences = 2
	}
	if cfg.SmoothTimeout == 0 {
		cfg.SmoothTimeout = 30 * time.Second
	}
	return cfg
}

// Merger is the fan-in step of the pipeline.
type Merger struct {
	cfg      Config
	rewriter llm.Rewriter
	logger   *logging.Logger
}

// New creates a Merger. The rewriter is only required when
// SmoothBoundaries is enabled.
func New(cfg Config, rewriter llm.Rewriter, logger *logging.Logger) (*Merger, error) {
	cfg = applyConfigDefaults(cfg)
	if cfg.SmoothBoundaries && rewriter == nil {
		return nil, &faults.ConfigurationError{Msg: "boundary smoothing requires a rewriter"}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Merger{cfg: cfg, rewriter: rewriter, logger: logger}, nil
}

// Merge combines per-chunk results into one document.
//
// # Description
//
//	Sorts results by index, warns on gaps against the expected dense
//	0..N-1 set, joins non-empty segments with double line breaks, and
//	post-processes whitespace. Fails only on an empty input list.
//
// # Outputs
//
//	*datatypes.MergedDocument - Joined document with reconciled
//	    processing summary and aggregated token usage.
//	error - *faults.MergeError when results is empty.
func (m *Merger) Merge(ctx context.Context, results []datatypes.ChunkResult) (*datatypes.MergedDocument, error) {
	if len(results) == 0 {
		return nil, &faults.MergeError{Msg: "no chunk results to merge"}
	}

	mergeStart := time.Now()

	sorted := make([]datatypes.ChunkResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	m.warnOnGaps(sorted)

	segments := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if content := strings.TrimSpace(r.HumanizedContent); content != "" {
			segments = append(segments, content)
		}
	}

	if m.cfg.SmoothBoundaries && len(segments) > 1 {
		segments = m.smoothBoundaries(ctx, segments)
	}

	text := postProcess(strings.Join(segments, "\n\n"))
	mergeTime := time.Since(mergeStart)

	doc := &datatypes.MergedDocument{
		HumanizedText: text,
		Summary:       buildSummary(sorted, len(segments), text, mergeTime),
	}
	for _, r := range sorted {
		doc.TokenUsage.Add(r.TokenUsage)
	}

	m.logger.Info("merge completed",
		"chunks_processed", len(sorted),
		"chunks_merged", len(segments),
		"humanized_chars", len(text),
		"merge_ms", mergeTime.Milliseconds(),
	)
	return doc, nil
}

// warnOnGaps compares the actual index set against the expected dense
// range. A mismatch is never fatal; the job proceeds with what is
// present.
func (m *Merger) warnOnGaps(sorted []datatypes.ChunkResult) {
	actual := make(map[int]bool, len(sorted))
	for _, r := range sorted {
		actual[r.Index] = true
	}
	var missing []int
	for i := 0; i < len(sorted); i++ {
		if !actual[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		m.logger.Warn("chunk index mismatch, merging available chunks",
			"expected_count", len(sorted),
			"missing_indices", missing,
		)
	}
}

// smoothBoundaries rewrites each adjacent segment boundary. A failed
// smoothing call leaves that boundary as a plain join.
func (m *Merger) smoothBoundaries(ctx context.Context, segments []string) []string {
	out := make([]string, 0, len(segments)*2-1)
	for i := 0; i < len(segments); i++ {
		current := segments[i]
		if current == "" {
			continue
		}
		if i == len(segments)-1 {
			out = append(out, current)
			break
		}

		tailBody, tail := splitTail(current, m.cfg.BoundarySentences)
		head, headBody := splitHead(segments[i+1], m.cfg.BoundarySentences)
		if tail == "" || head == "" {
			out = append(out, current)
			continue
		}

		smoothCtx, cancel := context.WithTimeout(ctx, m.cfg.SmoothTimeout)
		res, err := m.rewriter.Rewrite(smoothCtx, tail+"\n\n"+head, transitionPrompt, llm.GenerationParams{})
		cancel()
		if err != nil || strings.TrimSpace(res.Text) == "" {
			m.logger.Debug("boundary smoothing skipped", "boundary", i)
			out = append(out, current)
			continue
		}

		if tailBody != "" {
			out = append(out, tailBody)
		}
		out = append(out, strings.TrimSpace(res.Text))
		segments[i+1] = headBody
		if headBody == "" && i+1 == len(segments)-1 {
			// Next segment fully consumed by the transition
			return out
		}
	}
	return out
}

// postProcess collapses 3+ newlines to exactly 2, strips trailing
// whitespace per line, and ensures exactly one trailing newline.
func postProcess(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	return strings.TrimRight(text, "\n") + "\n"
}

func buildSummary(sorted []datatypes.ChunkResult, merged int, text string, mergeTime time.Duration) datatypes.ProcessingSummary {
	var totalTime time.Duration
	var originalLength int
	for _, r := range sorted {
		totalTime += r.ProcessingTime
		originalLength += len(r.OriginalContent)
	}
	var avg time.Duration
	if len(sorted) > 0 {
		avg = totalTime / time.Duration(len(sorted))
	}
	return datatypes.ProcessingSummary{
		ChunksProcessed:            len(sorted),
		ChunksMerged:               merged,
		TotalProcessingTime:        totalTime,
		MergeTime:                  mergeTime,
		OriginalLength:             originalLength,
		HumanizedLength:            len(text),
		AverageChunkProcessingTime: avg,
	}
}

// splitTail separates the last n sentences from a segment.
func splitTail(text string, n int) (body, tail string) {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return "", text
	}
	cut := len(sentences) - n
	return strings.TrimSpace(strings.Join(sentences[:cut], " ")),
		strings.TrimSpace(strings.Join(sentences[cut:], " "))
}

// splitHead separates the first n sentences from a segment.
func splitHead(text string, n int) (head, body string) {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return text, ""
	}
	return strings.TrimSpace(strings.Join(sentences[:n], " ")),
		strings.TrimSpace(strings.Join(sentences[n:], " "))
}

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+["']?|[^.!?]+$`)

// splitSentences is a lightweight splitter on terminal punctuation.
// Good enough for boundary extraction; not a linguistic tokenizer.
func splitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
