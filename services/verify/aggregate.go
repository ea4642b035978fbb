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
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// AggregatorConfig sets the decision thresholds.
type AggregatorConfig struct {
	// AIThreshold centers the uncertain band: below T-0.2 reads
	// human, above T+0.2 reads AI-generated. Default: 0.5.
	AIThreshold float64

	// ConfidenceThreshold is the minimum confidence band required to
	// act on a verdict. Default: medium.
	ConfidenceThreshold datatypes.Confidence
}

// Aggregator folds per-detector scores into one verdict.
//
// # Thread Safety
//
// Safe for concurrent use. Thresholds may be swapped at runtime via
// UpdateThresholds; in-flight passes keep the values they started with.
type Aggregator struct {
	mu                  sync.RWMutex
	aiThreshold         float64
	confidenceThreshold datatypes.Confidence
}

// NewAggregator creates an aggregator with the given thresholds.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.AIThreshold <= 0 || cfg.AIThreshold >= 1 {
		cfg.AIThreshold = 0.5
	}
	if cfg.ConfidenceThreshold == "" {
		cfg.ConfidenceThreshold = datatypes.ConfidenceMedium
	}
	return &Aggregator{
		aiThreshold:         cfg.AIThreshold,
		confidenceThreshold: cfg.ConfidenceThreshold,
	}
}

// UpdateThresholds swaps the decision thresholds. Zero-valued fields
// fall back to defaults, same as construction.
func (a *Aggregator) UpdateThresholds(cfg AggregatorConfig) {
	if cfg.AIThreshold <= 0 || cfg.AIThreshold >= 1 {
		cfg.AIThreshold = 0.5
	}
	if cfg.ConfidenceThreshold == "" {
		cfg.ConfidenceThreshold = datatypes.ConfidenceMedium
	}
	a.mu.Lock()
	a.aiThreshold = cfg.AIThreshold
	a.confidenceThreshold = cfg.ConfidenceThreshold
	a.mu.Unlock()
}

// thresholds returns a consistent snapshot for one aggregation pass.
func (a *Aggregator) thresholds() (float64, datatypes.Confidence) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.aiThreshold, a.confidenceThreshold
}

var confidenceRank = map[datatypes.Confidence]int{
	datatypes.ConfidenceVeryLow:  0,
	datatypes.ConfidenceLow:      1,
	datatypes.ConfidenceMedium:   2,
	datatypes.ConfidenceHigh:     3,
	datatypes.ConfidenceVeryHigh: 4,
}

func meetsThreshold(c, threshold datatypes.Confidence) bool {
	return confidenceRank[c] >= confidenceRank[threshold]
}

// Aggregate builds the verification report for one pass. An all-error
// score set degrades to an uncertain manual-review report instead of
// raising.
func (a *Aggregator) Aggregate(textID string, scores []datatypes.DetectionScore, elapsed time.Duration) *datatypes.VerificationReport {
	report := &datatypes.VerificationReport{
		TextID:                textID,
		DetectorScores:        scores,
		ProcessingTimeTotalMS: elapsed.Milliseconds(),
		Timestamp:             time.Now().UTC(),
	}

	valid := report.ValidScores()
	if len(valid) == 0 {
		report.OverallResult = datatypes.ResultUncertain
		report.AIProbabilityAvg = 0.5
		report.OverallConfidence = datatypes.ConfidenceVeryLow
		report.Recommendation = datatypes.RecommendNeedsRefinement
		report.Recommendations = []string{
			"all detectors failed; manual review recommended",
		}
		return report
	}

	mean := 0.0
	for _, s := range valid {
		mean += s.AIProbability
	}
	mean /= float64(len(valid))

	variance := 0.0
	for _, s := range valid {
		variance += (s.AIProbability - mean) * (s.AIProbability - mean)
	}
	variance /= float64(len(valid))

	aiThreshold, confidenceThreshold := a.thresholds()

	report.AIProbabilityAvg = mean
	report.OverallResult = classify(mean, aiThreshold)
	report.OverallConfidence = confidenceFromVariance(variance, len(valid))
	report.Recommendation = recommend(mean, report.OverallResult, report.OverallConfidence, aiThreshold, confidenceThreshold)

	if report.Recommendation != datatypes.RecommendAccept {
		report.Recommendations = advisories(mean, valid, aiThreshold)
	}
	return report
}

// classify places the mean probability in the band around the AI
// threshold.
func classify(mean, aiThreshold float64) datatypes.DetectionResult {
	switch {
	case mean < aiThreshold-0.2:
		return datatypes.ResultHuman
	case mean > aiThreshold+0.2:
		return datatypes.ResultAIGenerated
	default:
		return datatypes.ResultUncertain
	}
}

// recommend applies the single threshold policy: accept clear-human
// verdicts and confident uncertainty, reject confident AI verdicts,
// refine everything else.
func recommend(
	mean float64,
	result datatypes.DetectionResult,
	confidence datatypes.Confidence,
	aiThreshold float64,
	confidenceThreshold datatypes.Confidence,
) datatypes.Recommendation {
	confident := meetsThreshold(confidence, confidenceThreshold)
	switch {
	case mean < aiThreshold-0.2:
		return datatypes.RecommendAccept
	case result == datatypes.ResultUncertain && confident:
		return datatypes.RecommendAccept
	case mean > aiThreshold+0.2 && confident:
		return datatypes.RecommendReject
	default:
		return datatypes.RecommendNeedsRefinement
	}
}

func confidenceFromVariance(variance float64, validCount int) datatypes.Confidence {
	if validCount < 2 {
		return datatypes.ConfidenceLow
	}
	switch {
	case variance < 0.05:
		return datatypes.ConfidenceVeryHigh
	case variance < 0.1:
		return datatypes.ConfidenceHigh
	case variance < 0.2:
		return datatypes.ConfidenceMedium
	case variance < 0.3:
		return datatypes.ConfidenceLow
	default:
		return datatypes.ConfidenceVeryLow
	}
}

func advisories(mean float64, valid []datatypes.DetectionScore, aiThreshold float64) []string {
	var out []string
	out = append(out, fmt.Sprintf("mean AI probability %.2f against threshold %.2f", mean, aiThreshold))
	for _, s := range valid {
		if s.AIProbability > aiThreshold+0.2 {
			out = append(out, fmt.Sprintf("detector %s flagged the text at %.2f", s.DetectorName, s.AIProbability))
		}
	}
	return out
}
