// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify implements the AI-text detection side of the pipeline:
// individual detectors, the ensemble that runs them with isolated
// failure handling, the verdict aggregator, and the refinement loop
// that rewrites text until it passes or the budget runs out.
package verify

import (
	"context"
	"math"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// Detector scores a text sample for AI authorship. Detect never
// returns a Go error; faults are carried inside the score's Err field
// so one detector's failure stays isolated from its siblings.
type Detector interface {
	// Name returns the unique detector name used for selection.
	Name() string

	// Type returns the detector category (statistical, commercial,
	// llm_judge).
	Type() string

	// Initialize prepares the detector. Idempotent.
	Initialize(ctx context.Context) error

	// Detect scores the text. The score carries Err when the
	// detection could not be performed.
	Detect(ctx context.Context, text string) datatypes.DetectionScore

	// HealthCheck reports whether the detector is usable right now.
	HealthCheck(ctx context.Context) bool
}

// bandConfidence maps a certainty value in [0,1] to its qualitative
// band.
func bandConfidence(certainty float64) datatypes.Confidence {
	switch {
	case certainty >= 0.8:
		return datatypes.ConfidenceVeryHigh
	case certainty >= 0.6:
		return datatypes.ConfidenceHigh
	case certainty >= 0.4:
		return datatypes.ConfidenceMedium
	case certainty >= 0.2:
		return datatypes.ConfidenceLow
	default:
		return datatypes.ConfidenceVeryLow
	}
}

// classifyProbability maps an AI probability to the ternary result.
func classifyProbability(p float64) datatypes.DetectionResult {
	switch {
	case p < 0.3:
		return datatypes.ResultHuman
	case p > 0.7:
		return datatypes.ResultAIGenerated
	default:
		return datatypes.ResultUncertain
	}
}

// scoreCertainty converts a probability to distance-from-undecided in
// [0,1], the input to bandConfidence.
func scoreCertainty(p float64) float64 {
	return math.Min(1, 2*math.Abs(p-0.5))
}

// errorScore is the neutral substitute used when a detector fails,
// times out, or panics.
func errorScore(name, detectorType, reason string) datatypes.DetectionScore {
	return datatypes.DetectionScore{
		DetectorName:  name,
		DetectorType:  detectorType,
		AIProbability: 0.5,
		Confidence:    datatypes.ConfidenceVeryLow,
		Result:        datatypes.ResultUncertain,
		Err:           reason,
	}
}
