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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

func TestStatisticalDetector_ShortTextIsUncertain(t *testing.T) {
	d := NewStatisticalDetector()
	score := d.Detect(context.Background(), "too short")

	assert.True(t, score.Errored())
	assert.Equal(t, 0.5, score.AIProbability)
	assert.Equal(t, datatypes.ResultUncertain, score.Result)
	assert.Equal(t, datatypes.ConfidenceVeryLow, score.Confidence)
}

func TestStatisticalDetector_RepetitiveTextScoresHigher(t *testing.T) {
	d := NewStatisticalDetector()

	repetitive := strings.Repeat("The system processes the data. ", 20)
	varied := "Rain hammered the tin roof all night. By dawn, the creek had swallowed " +
		"the footbridge entirely. Nobody expected it. Old Marta, who had lived " +
		"there sixty years, just shrugged and poured another coffee while the " +
		"neighbors argued about sandbags, insurance, and whose fault the culvert was."

	repScore := d.Detect(context.Background(), repetitive)
	varScore := d.Detect(context.Background(), varied)

	require.False(t, repScore.Errored())
	require.False(t, varScore.Errored())
	assert.Greater(t, repScore.AIProbability, varScore.AIProbability)
}

func TestStatisticalDetector_Metadata(t *testing.T) {
	d := NewStatisticalDetector()
	score := d.Detect(context.Background(), strings.Repeat("Some ordinary words flow here. ", 10))

	require.False(t, score.Errored())
	assert.Contains(t, score.Metadata, "perplexity")
	assert.Contains(t, score.Metadata, "burstiness")
	assert.Equal(t, "statistical", score.DetectorName)
	assert.Equal(t, "statistical", score.DetectorType)
}

func TestStatisticalDetector_Lifecycle(t *testing.T) {
	d := NewStatisticalDetector()
	require.NoError(t, d.Initialize(context.Background()))
	require.NoError(t, d.Initialize(context.Background()))
	assert.True(t, d.HealthCheck(context.Background()))
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"saturates low", 10, 0.8},
		{"at low anchor", 50, 0.8},
		{"midpoint", 125, 0.5},
		{"at high anchor", 200, 0.2},
		{"saturates high", 500, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interpolate(tt.v, 50, 0.8, 200, 0.2)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSentenceBurstiness(t *testing.T) {
	t.Run("too few sentences is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, sentenceBurstiness("One sentence. Another one."))
	})

	t.Run("uniform lengths are low", func(t *testing.T) {
		text := "Aa bb cc dd. Ee ff gg hh. Ii jj kk ll. Mm nn oo pp."
		assert.InDelta(t, 0.0, sentenceBurstiness(text), 1e-9)
	})

	t.Run("mixed lengths are higher", func(t *testing.T) {
		text := "Short. This one runs considerably longer than its neighbors do today. Tiny. " +
			"Here is another sentence of respectable middling length overall."
		assert.Greater(t, sentenceBurstiness(text), 0.3)
	})

	t.Run("capped at one", func(t *testing.T) {
		text := "A. B. " + strings.Repeat("word ", 120) + "."
		assert.LessOrEqual(t, sentenceBurstiness(text), 1.0)
	})
}

func TestPseudoPerplexity(t *testing.T) {
	low := pseudoPerplexity(strings.Repeat("same same same. ", 10))
	high := pseudoPerplexity("every word in this particular sentence differs from all others entirely")
	assert.Less(t, low, high)
}
