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
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// fakeCompleter scripts judge replies.
type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func judgeWith(completer chatCompleter) *LLMDetector {
	return &LLMDetector{
		name:   "llm_judge",
		model:  "test-model",
		client: completer,
		sem:    semaphore.NewWeighted(1),
	}
}

func TestLLMDetector_Detect(t *testing.T) {
	t.Run("parses bare number", func(t *testing.T) {
		d := judgeWith(&fakeCompleter{reply: "0.85"})
		score := d.Detect(context.Background(), "text")

		require.False(t, score.Errored())
		assert.InDelta(t, 0.85, score.AIProbability, 1e-9)
		assert.Equal(t, datatypes.ResultAIGenerated, score.Result)
	})

	t.Run("tolerates surrounding prose", func(t *testing.T) {
		d := judgeWith(&fakeCompleter{reply: "I estimate the probability at 0.25 overall."})
		score := d.Detect(context.Background(), "text")

		require.False(t, score.Errored())
		assert.InDelta(t, 0.25, score.AIProbability, 1e-9)
	})

	t.Run("api error degrades", func(t *testing.T) {
		d := judgeWith(&fakeCompleter{err: assert.AnError})
		score := d.Detect(context.Background(), "text")

		assert.True(t, score.Errored())
		assert.Equal(t, 0.5, score.AIProbability)
	})

	t.Run("unparseable reply degrades", func(t *testing.T) {
		d := judgeWith(&fakeCompleter{reply: "definitely a robot wrote this"})
		score := d.Detect(context.Background(), "text")

		assert.True(t, score.Errored())
	})
}

func TestNewLLMDetector(t *testing.T) {
	_, err := NewLLMDetector(nil, "")
	require.Error(t, err)
}

func TestParseJudgeScore(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{"plain", "0.7", 0.7, false},
		{"with punctuation", "0.7.", 0.7, false},
		{"zero", "0", 0, false},
		{"one", "1.0", 1, false},
		{"embedded", "score: 0.33 (moderate)", 0.33, false},
		{"out of range skipped", "42 then 0.5", 0.5, false},
		{"no number", "hard to say", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJudgeScore(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
