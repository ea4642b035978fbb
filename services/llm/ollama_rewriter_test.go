// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

func newOllamaTestRewriter(serverURL string) *OllamaRewriter {
	return &OllamaRewriter{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    serverURL,
		model:      "test-model",
	}
}

func TestOllamaRewriter_Rewrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "rewrite this", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "rewritten text"},
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	o := newOllamaTestRewriter(server.URL)
	result, err := o.Rewrite(context.Background(), "original text", "rewrite this", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "rewritten text", result.Text)
	assert.Equal(t, "test-model", result.Model)
	assert.Equal(t, 15, result.TokenUsage.Total)
}

func TestOllamaRewriter_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'test-model' not found"})
	}))
	defer server.Close()

	o := newOllamaTestRewriter(server.URL)
	_, err := o.Rewrite(context.Background(), "text", "prompt", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull")
}

func TestOllamaRewriter_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	o := newOllamaTestRewriter(server.URL)
	_, err := o.Rewrite(context.Background(), "text", "prompt", GenerationParams{})
	require.Error(t, err)

	var transient *faults.TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestOllamaRewriter_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	o := newOllamaTestRewriter(server.URL)
	require.NoError(t, o.HealthCheck(context.Background()))

	server.Close()
	require.Error(t, o.HealthCheck(context.Background()))
}

func TestNewOllamaRewriter_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	_, err := NewOllamaRewriter()
	require.Error(t, err)
}
