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
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

const judgeSystemPrompt = "You are an expert reviewer who estimates how likely a text was " +
	"written by an AI language model. Respond with a single decimal number between 0.0 " +
	"(certainly human) and 1.0 (certainly AI). Respond with the number only."

// chatCompleter is the slice of the OpenAI client the judge needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMDetector asks a language model to judge AI likelihood. The shared
// client session is treated as not safe for concurrent inference, so
// calls are serialized through a weighted semaphore.
type LLMDetector struct {
	name   string
	model  string
	client chatCompleter
	sem    *semaphore.Weighted
}

// NewLLMDetector creates the judge detector on an OpenAI-style client.
func NewLLMDetector(client *openai.Client, model string) (*LLMDetector, error) {
	if client == nil {
		return nil, fmt.Errorf("llm detector requires a client")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMDetector{
		name:   "llm_judge",
		model:  model,
		client: client,
		sem:    semaphore.NewWeighted(1),
	}, nil
}

func (d *LLMDetector) Name() string { return d.name }

func (d *LLMDetector) Type() string { return "llm_judge" }

func (d *LLMDetector) Initialize(ctx context.Context) error { return nil }

func (d *LLMDetector) HealthCheck(ctx context.Context) bool {
	return d.client != nil
}

func (d *LLMDetector) Detect(ctx context.Context, text string) datatypes.DetectionScore {
	start := time.Now()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return d.failed(start, fmt.Sprintf("acquire inference slot: %v", err))
	}
	defer d.sem.Release(1)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return d.failed(start, fmt.Sprintf("judge call: %v", err))
	}
	if len(resp.Choices) == 0 {
		return d.failed(start, "judge returned no choices")
	}

	p, err := parseJudgeScore(resp.Choices[0].Message.Content)
	if err != nil {
		return d.failed(start, err.Error())
	}

	return datatypes.DetectionScore{
		DetectorName:     d.name,
		DetectorType:     d.Type(),
		AIProbability:    p,
		Confidence:       bandConfidence(scoreCertainty(p)),
		Result:           classifyProbability(p),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Metadata:         map[string]any{"model": d.model},
	}
}

func (d *LLMDetector) failed(start time.Time, reason string) datatypes.DetectionScore {
	score := errorScore(d.name, d.Type(), reason)
	score.ProcessingTimeMS = time.Since(start).Milliseconds()
	return score
}

// parseJudgeScore extracts the first decimal in [0,1] from the judge's
// reply, tolerating surrounding prose.
func parseJudgeScore(reply string) (float64, error) {
	for _, field := range strings.Fields(reply) {
		token := strings.Trim(field, `.,;:!"'()`)
		p, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		if p >= 0 && p <= 1 {
			return p, nil
		}
	}
	return 0, fmt.Errorf("judge reply %q contains no probability", reply)
}
