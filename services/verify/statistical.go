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
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

const (
	minStatisticalChars = 50

	// Perplexity interpolation anchors: low perplexity reads as
	// machine-like, high as human-like.
	perplexityLowAnchor  = 50.0
	perplexityHighAnchor = 200.0
	perplexityLowAIProb  = 0.8
	perplexityHighAIProb = 0.2
	burstinessLowAnchor  = 0.3
	burstinessHighAnchor = 0.7
	burstinessLowAIProb  = 0.7
	burstinessHighAIProb = 0.3
	perplexityWeight     = 0.7
	burstinessWeight     = 0.3
	defaultLowSentenceCV = 0.5
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+[\s"')\]]*`)

// StatisticalDetector scores text from surface statistics alone: a
// pseudo-perplexity over the word distribution and the burstiness of
// sentence lengths. No network, no model weights.
//
// # Thread Safety
//
// Stateless after construction; safe for concurrent use.
type StatisticalDetector struct {
	name string
}

// NewStatisticalDetector creates the statistical detector.
func NewStatisticalDetector() *StatisticalDetector {
	return &StatisticalDetector{name: "statistical"}
}

func (d *StatisticalDetector) Name() string { return d.name }

func (d *StatisticalDetector) Type() string { return "statistical" }

func (d *StatisticalDetector) Initialize(ctx context.Context) error { return nil }

func (d *StatisticalDetector) HealthCheck(ctx context.Context) bool { return true }

func (d *StatisticalDetector) Detect(ctx context.Context, text string) datatypes.DetectionScore {
	start := time.Now()
	if len(text) < minStatisticalChars {
		score := errorScore(d.name, d.Type(), "text too short for statistical analysis")
		score.ProcessingTimeMS = time.Since(start).Milliseconds()
		return score
	}

	perplexity := pseudoPerplexity(text)
	burstiness := sentenceBurstiness(text)

	ppProb := interpolate(perplexity,
		perplexityLowAnchor, perplexityLowAIProb,
		perplexityHighAnchor, perplexityHighAIProb)
	bProb := interpolate(burstiness,
		burstinessLowAnchor, burstinessLowAIProb,
		burstinessHighAnchor, burstinessHighAIProb)

	p := perplexityWeight*ppProb + burstinessWeight*bProb
	return datatypes.DetectionScore{
		DetectorName:     d.name,
		DetectorType:     d.Type(),
		AIProbability:    p,
		Confidence:       bandConfidence(scoreCertainty(p)),
		Result:           classifyProbability(p),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Metadata: map[string]any{
			"perplexity": perplexity,
			"burstiness": burstiness,
		},
	}
}

// interpolate maps v through the line (x0,y0)-(x1,y1), saturating
// outside the anchors.
func interpolate(v, x0, y0, x1, y1 float64) float64 {
	if v <= x0 {
		return y0
	}
	if v >= x1 {
		return y1
	}
	return y0 + (v-x0)/(x1-x0)*(y1-y0)
}

// pseudoPerplexity is the exponential of the Shannon entropy over the
// word unigram distribution. Repetitive machine-flavored text lands
// low; varied human prose lands high.
func pseudoPerplexity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[strings.Trim(w, `.,!?;:"'()[]`)]++
	}
	total := float64(len(words))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return math.Pow(2, entropy)
}

// sentenceBurstiness is the coefficient of variation of sentence word
// counts, capped at 1. Fewer than 3 sentences yields the neutral 0.5.
func sentenceBurstiness(text string) float64 {
	sentences := sentenceBoundary.Split(text, -1)
	var lengths []float64
	for _, s := range sentences {
		if n := len(strings.Fields(s)); n > 0 {
			lengths = append(lengths, float64(n))
		}
	}
	if len(lengths) < 3 {
		return defaultLowSentenceCV
	}

	mean := 0.0
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(len(lengths))

	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))

	cv := math.Sqrt(variance) / mean
	return math.Min(cv, 1.0)
}
