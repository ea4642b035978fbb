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

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

func TestBandConfidence(t *testing.T) {
	tests := []struct {
		certainty float64
		want      datatypes.Confidence
	}{
		{0.95, datatypes.ConfidenceVeryHigh},
		{0.8, datatypes.ConfidenceVeryHigh},
		{0.79, datatypes.ConfidenceHigh},
		{0.6, datatypes.ConfidenceHigh},
		{0.59, datatypes.ConfidenceMedium},
		{0.4, datatypes.ConfidenceMedium},
		{0.39, datatypes.ConfidenceLow},
		{0.2, datatypes.ConfidenceLow},
		{0.19, datatypes.ConfidenceVeryLow},
		{0.0, datatypes.ConfidenceVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bandConfidence(tt.certainty), "certainty %f", tt.certainty)
	}
}

func TestClassifyProbability(t *testing.T) {
	assert.Equal(t, datatypes.ResultHuman, classifyProbability(0.0))
	assert.Equal(t, datatypes.ResultHuman, classifyProbability(0.29))
	assert.Equal(t, datatypes.ResultUncertain, classifyProbability(0.3))
	assert.Equal(t, datatypes.ResultUncertain, classifyProbability(0.5))
	assert.Equal(t, datatypes.ResultUncertain, classifyProbability(0.7))
	assert.Equal(t, datatypes.ResultAIGenerated, classifyProbability(0.71))
	assert.Equal(t, datatypes.ResultAIGenerated, classifyProbability(1.0))
}

func TestScoreCertainty(t *testing.T) {
	assert.InDelta(t, 0.0, scoreCertainty(0.5), 1e-9)
	assert.InDelta(t, 1.0, scoreCertainty(0.0), 1e-9)
	assert.InDelta(t, 1.0, scoreCertainty(1.0), 1e-9)
	assert.InDelta(t, 0.4, scoreCertainty(0.7), 1e-9)
}

func TestErrorScore(t *testing.T) {
	s := errorScore("d", "statistical", "broken")
	assert.True(t, s.Errored())
	assert.Equal(t, 0.5, s.AIProbability)
	assert.Equal(t, datatypes.ConfidenceVeryLow, s.Confidence)
	assert.Equal(t, datatypes.ResultUncertain, s.Result)
	assert.Equal(t, "broken", s.Err)
}
