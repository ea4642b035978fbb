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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

func score(name string, p float64) datatypes.DetectionScore {
	return datatypes.DetectionScore{
		DetectorName:  name,
		DetectorType:  "test",
		AIProbability: p,
		Result:        classifyProbability(p),
	}
}

func erroredScore(name string) datatypes.DetectionScore {
	return errorScore(name, "test", "failed")
}

func TestAggregate_MeanOverErrorFreeScores(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})
	report := a.Aggregate("t1", []datatypes.DetectionScore{
		score("a", 0.2),
		erroredScore("b"),
		score("c", 0.4),
	}, time.Second)

	// Errored score excluded from the mean
	assert.InDelta(t, 0.3, report.AIProbabilityAvg, 1e-9)
	assert.Len(t, report.DetectorScores, 3)
	assert.Len(t, report.ValidScores(), 2)
	assert.Equal(t, int64(1000), report.ProcessingTimeTotalMS)
}

func TestAggregate_AllErroredDegrades(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})
	report := a.Aggregate("t1", []datatypes.DetectionScore{
		erroredScore("a"),
		erroredScore("b"),
	}, time.Second)

	assert.Equal(t, datatypes.ResultUncertain, report.OverallResult)
	assert.Equal(t, 0.5, report.AIProbabilityAvg)
	assert.Equal(t, datatypes.ConfidenceVeryLow, report.OverallConfidence)
	assert.Equal(t, datatypes.RecommendNeedsRefinement, report.Recommendation)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "manual review")
}

func TestAggregate_OverallResultBands(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})

	tests := []struct {
		name string
		p1   float64
		p2   float64
		want datatypes.DetectionResult
	}{
		{"clearly human", 0.1, 0.1, datatypes.ResultHuman},
		{"just under the band", 0.29, 0.29, datatypes.ResultHuman},
		{"uncertain low edge", 0.3, 0.3, datatypes.ResultUncertain},
		{"uncertain middle", 0.5, 0.5, datatypes.ResultUncertain},
		{"uncertain high edge", 0.7, 0.7, datatypes.ResultUncertain},
		{"clearly ai", 0.9, 0.9, datatypes.ResultAIGenerated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := a.Aggregate("t", []datatypes.DetectionScore{
				score("a", tt.p1), score("b", tt.p2),
			}, time.Second)
			assert.Equal(t, tt.want, report.OverallResult)
		})
	}
}

func TestAggregate_ConfidenceFromVariance(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})

	tests := []struct {
		name   string
		scores []datatypes.DetectionScore
		want   datatypes.Confidence
	}{
		{
			"agreement is very high",
			[]datatypes.DetectionScore{score("a", 0.5), score("b", 0.5)},
			datatypes.ConfidenceVeryHigh,
		},
		{
			"mild disagreement is high",
			[]datatypes.DetectionScore{score("a", 0.25), score("b", 0.75)},
			datatypes.ConfidenceHigh,
		},
		{
			"wide disagreement is medium",
			[]datatypes.DetectionScore{score("a", 0.1), score("b", 0.9)},
			datatypes.ConfidenceMedium,
		},
		{
			"total disagreement is low",
			[]datatypes.DetectionScore{score("a", 0.0), score("b", 1.0)},
			datatypes.ConfidenceLow,
		},
		{
			"single valid score is low",
			[]datatypes.DetectionScore{score("a", 0.9), erroredScore("b")},
			datatypes.ConfidenceLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := a.Aggregate("t", tt.scores, time.Second)
			assert.Equal(t, tt.want, report.OverallConfidence)
		})
	}
}

func TestAggregate_Recommendation(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})

	t.Run("clear human accepts", func(t *testing.T) {
		report := a.Aggregate("t", []datatypes.DetectionScore{
			score("a", 0.1), score("b", 0.1),
		}, time.Second)
		assert.Equal(t, datatypes.RecommendAccept, report.Recommendation)
		assert.Empty(t, report.Recommendations)
	})

	t.Run("confident uncertainty accepts", func(t *testing.T) {
		report := a.Aggregate("t", []datatypes.DetectionScore{
			score("a", 0.5), score("b", 0.5),
		}, time.Second)
		assert.Equal(t, datatypes.RecommendAccept, report.Recommendation)
	})

	t.Run("confident ai verdict rejects", func(t *testing.T) {
		report := a.Aggregate("t", []datatypes.DetectionScore{
			score("a", 0.9), score("b", 0.9),
		}, time.Second)
		assert.Equal(t, datatypes.RecommendReject, report.Recommendation)
		assert.NotEmpty(t, report.Recommendations)
	})

	t.Run("unconfident ai verdict refines", func(t *testing.T) {
		// Single valid score: confidence is low, below the medium bar
		report := a.Aggregate("t", []datatypes.DetectionScore{
			score("a", 0.9), erroredScore("b"),
		}, time.Second)
		assert.Equal(t, datatypes.RecommendNeedsRefinement, report.Recommendation)
	})

	t.Run("unconfident uncertainty refines", func(t *testing.T) {
		report := a.Aggregate("t", []datatypes.DetectionScore{
			score("a", 0.6), erroredScore("b"),
		}, time.Second)
		assert.Equal(t, datatypes.RecommendNeedsRefinement, report.Recommendation)
	})
}

func TestAggregate_CustomThresholds(t *testing.T) {
	a := NewAggregator(AggregatorConfig{
		AIThreshold:         0.7,
		ConfidenceThreshold: datatypes.ConfidenceVeryHigh,
	})

	// 0.45 < 0.7-0.2: human under the shifted threshold
	report := a.Aggregate("t", []datatypes.DetectionScore{
		score("a", 0.45), score("b", 0.45),
	}, time.Second)
	assert.Equal(t, datatypes.ResultHuman, report.OverallResult)
	assert.Equal(t, datatypes.RecommendAccept, report.Recommendation)
}

func TestAggregator_UpdateThresholds(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})

	report := a.Aggregate("t", []datatypes.DetectionScore{
		score("a", 0.75), score("b", 0.75),
	}, time.Second)
	assert.Equal(t, datatypes.ResultAIGenerated, report.OverallResult)

	a.UpdateThresholds(AggregatorConfig{AIThreshold: 0.8})

	report = a.Aggregate("t", []datatypes.DetectionScore{
		score("a", 0.75), score("b", 0.75),
	}, time.Second)
	assert.Equal(t, datatypes.ResultUncertain, report.OverallResult)

	// Zero values fall back to the defaults
	a.UpdateThresholds(AggregatorConfig{})
	report = a.Aggregate("t", []datatypes.DetectionScore{
		score("a", 0.75), score("b", 0.75),
	}, time.Second)
	assert.Equal(t, datatypes.ResultAIGenerated, report.OverallResult)
}
