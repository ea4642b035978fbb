// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{Prompt: 10, Completion: 20, Total: 30}
	u.Add(TokenUsage{Prompt: 1, Completion: 2, Total: 3})

	assert.Equal(t, 11, u.Prompt)
	assert.Equal(t, 22, u.Completion)
	assert.Equal(t, 33, u.Total)
}

func TestVerificationReport_ValidScores(t *testing.T) {
	report := VerificationReport{
		DetectorScores: []DetectionScore{
			{DetectorName: "statistical", AIProbability: 0.4},
			{DetectorName: "commercial", AIProbability: 0.5, Err: "timed out"},
			{DetectorName: "llm_judge", AIProbability: 0.6},
		},
	}

	valid := report.ValidScores()
	assert.Len(t, valid, 2)
	for _, s := range valid {
		assert.False(t, s.Errored())
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobPending, false},
		{JobProcessing, false},
		{JobSuccess, true},
		{JobFailure, true},
		{JobRevoked, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}
