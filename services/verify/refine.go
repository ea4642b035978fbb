// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// LoopStatus is the terminal state of one refinement run.
type LoopStatus string

const (
	LoopCompleted LoopStatus = "COMPLETED"
	LoopExhausted LoopStatus = "EXHAUSTED"
	LoopError     LoopStatus = "ERROR"
)

// Outcome is the result of a refinement run. FinalText carries the
// best text produced; on EXHAUSTED it is the last rewrite even though
// it never passed.
type Outcome struct {
	FinalReport *datatypes.VerificationReport
	FinalText   string
	History     []datatypes.RefinementAttempt
	Status      LoopStatus
}

// RefinementLoop rewrites flagged text and re-verifies until the
// verdict is ACCEPT or the iteration budget runs out. The loop never
// mutates its inputs; re-running on the same initial report has no
// side effects beyond the rewrite calls it makes.
type RefinementLoop struct {
	rewriter llm.Rewriter
	ensemble *Ensemble
	logger   *logging.Logger
}

// NewRefinementLoop creates a loop over the given rewriter and
// ensemble.
func NewRefinementLoop(rewriter llm.Rewriter, ensemble *Ensemble, logger *logging.Logger) (*RefinementLoop, error) {
	if rewriter == nil {
		return nil, &faults.ConfigurationError{Msg: "refinement loop requires a rewriter"}
	}
	if ensemble == nil {
		return nil, &faults.ConfigurationError{Msg: "refinement loop requires an ensemble"}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RefinementLoop{rewriter: rewriter, ensemble: ensemble, logger: logger}, nil
}

// Refine runs up to maxIterations rewrite-and-reverify cycles.
func (l *RefinementLoop) Refine(
	ctx context.Context,
	initialReport *datatypes.VerificationReport,
	text string,
	maxIterations int,
) (*Outcome, error) {
	if initialReport == nil {
		return &Outcome{Status: LoopError}, fmt.Errorf("initial report must not be nil")
	}
	if strings.TrimSpace(text) == "" {
		return &Outcome{Status: LoopError}, fmt.Errorf("text must not be empty")
	}
	if maxIterations <= 0 {
		maxIterations = 3
	}

	if initialReport.Recommendation == datatypes.RecommendAccept {
		return &Outcome{
			FinalReport: initialReport,
			FinalText:   text,
			Status:      LoopCompleted,
		}, nil
	}

	outcome := &Outcome{
		FinalReport: initialReport,
		FinalText:   text,
	}
	currentText := text
	currentReport := initialReport

	for iteration := 1; iteration <= maxIterations; iteration++ {
		start := time.Now()
		prompt := refinedPrompt(currentReport, iteration)

		attempt := datatypes.RefinementAttempt{
			Iteration:             iteration,
			PreviousAIProbability: currentReport.AIProbabilityAvg,
			RefinedPrompt:         prompt,
		}

		rewritten, verifyReport, err := l.cycle(ctx, currentText, prompt)
		if err != nil {
			attempt.Status = datatypes.AttemptFailed
			attempt.ProcessingTime = time.Since(start)
			outcome.History = append(outcome.History, attempt)
			l.logger.Warn("refinement iteration failed",
				"iteration", iteration,
				"error", err.Error(),
			)
			continue
		}

		attempt.NewAIProbability = verifyReport.AIProbabilityAvg
		attempt.Improvement = attempt.PreviousAIProbability - verifyReport.AIProbabilityAvg
		attempt.PassedVerification = verifyReport.Recommendation == datatypes.RecommendAccept
		attempt.Status = datatypes.AttemptCompleted
		attempt.ProcessingTime = time.Since(start)
		outcome.History = append(outcome.History, attempt)

		currentText = rewritten
		currentReport = verifyReport
		outcome.FinalReport = verifyReport
		outcome.FinalText = rewritten

		if attempt.PassedVerification {
			outcome.Status = LoopCompleted
			l.logger.Info("refinement converged",
				"iterations", iteration,
				"final_probability", verifyReport.AIProbabilityAvg,
			)
			return outcome, nil
		}
	}

	outcome.Status = LoopExhausted
	l.logger.Warn("refinement budget exhausted",
		"iterations", maxIterations,
		"final_probability", outcome.FinalReport.AIProbabilityAvg,
	)
	return outcome, nil
}

// cycle performs one rewrite followed by one verification pass.
func (l *RefinementLoop) cycle(ctx context.Context, text, prompt string) (string, *datatypes.VerificationReport, error) {
	result, err := l.rewriter.Rewrite(ctx, text, prompt, llm.GenerationParams{})
	if err != nil {
		return "", nil, fmt.Errorf("rewrite: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", nil, fmt.Errorf("rewrite returned empty text")
	}
	report, err := l.ensemble.Verify(ctx, result.Text, nil, true, 0)
	if err != nil {
		return "", nil, fmt.Errorf("verify: %w", err)
	}
	return result.Text, report, nil
}

// refinedPrompt builds the rewrite instruction, naming the detectors
// that flagged hardest and escalating with the iteration number.
func refinedPrompt(report *datatypes.VerificationReport, iteration int) string {
	var b strings.Builder
	b.WriteString("Rewrite the following text so it reads as natural human writing. ")
	b.WriteString("Vary sentence length and rhythm, prefer concrete wording, and avoid formulaic phrasing. ")

	flaggers := topFlaggers(report, 2)
	if len(flaggers) > 0 {
		b.WriteString(fmt.Sprintf("Automated analysis (%s) still rates the text as machine-written. ", strings.Join(flaggers, ", ")))
	}

	switch {
	case iteration >= 3:
		b.WriteString("Restructure paragraphs aggressively and replace any sentence that feels templated.")
	case iteration == 2:
		b.WriteString("Make substantially larger changes than a light edit.")
	default:
		b.WriteString("Preserve the meaning and all factual content.")
	}
	return b.String()
}

// topFlaggers returns the names of the n highest-probability valid
// scores.
func topFlaggers(report *datatypes.VerificationReport, n int) []string {
	valid := report.ValidScores()
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].AIProbability > valid[j].AIProbability
	})
	var names []string
	for i := 0; i < len(valid) && i < n; i++ {
		names = append(names, valid[i].DetectorName)
	}
	return names
}
