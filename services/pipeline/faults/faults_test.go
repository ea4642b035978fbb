// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faults

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  Code
		transient bool
	}{
		{429, CodeRateLimited, true},
		{500, CodeServerError, true},
		{502, CodeServerError, true},
		{599, CodeServerError, true},
		{401, CodeAuthError, false},
		{403, CodeAuthError, false},
		{400, CodeBadRequest, false},
		{404, CodeClientError, false},
		{418, CodeClientError, false},
		{0, CodeUnknownError, true},
		{302, CodeUnknownError, true},
		{600, CodeUnknownError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := ClassifyStatus(tt.status, "boom")
			require.Error(t, err)

			if tt.transient {
				var te *TransientError
				require.True(t, errors.As(err, &te), "expected TransientError, got %T", err)
				assert.Equal(t, tt.wantCode, te.Code)
				assert.Equal(t, tt.status, te.StatusCode)
				assert.True(t, IsTransient(err))
				assert.False(t, IsPermanent(err))
			} else {
				var pe *PermanentError
				require.True(t, errors.As(err, &pe), "expected PermanentError, got %T", err)
				assert.Equal(t, tt.wantCode, pe.Code)
				assert.Equal(t, tt.status, pe.StatusCode)
				assert.True(t, IsPermanent(err))
				assert.False(t, IsTransient(err))
			}
		})
	}
}

func TestIsTransient_Wrapped(t *testing.T) {
	inner := NewTransient(CodeServerError, 503, "unavailable", nil)
	wrapped := fmt.Errorf("call rewrite service: %w", inner)

	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsPermanent(wrapped))
}

func TestIsPermanent_Wrapped(t *testing.T) {
	inner := NewPermanent(CodeAuthError, 401, "bad key", nil)
	wrapped := fmt.Errorf("call rewrite service: %w", inner)

	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestRetryAfterOf(t *testing.T) {
	te := NewTransient(CodeRateLimited, 429, "slow down", nil)
	te.RetryAfter = 30 * time.Second
	wrapped := fmt.Errorf("rewrite: %w", te)

	assert.Equal(t, 30*time.Second, RetryAfterOf(wrapped))
	assert.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain")))
}

func TestErrorMessages(t *testing.T) {
	t.Run("transient with status", func(t *testing.T) {
		err := NewTransient(CodeRateLimited, 429, "too many requests", nil)
		assert.Contains(t, err.Error(), "RATE_LIMITED")
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("permanent without status", func(t *testing.T) {
		err := NewPermanent(CodeBadRequest, 0, "empty content", nil)
		assert.Contains(t, err.Error(), "BAD_REQUEST")
		assert.NotContains(t, err.Error(), "status")
	})

	t.Run("chunk", func(t *testing.T) {
		err := &ChunkProcessingError{ChunkID: "c-7", Msg: "empty content"}
		assert.Contains(t, err.Error(), "c-7")
	})

	t.Run("detector", func(t *testing.T) {
		err := NewDetectorError("statistical", "timed out", nil)
		assert.Contains(t, err.Error(), "statistical")
	})

	t.Run("merge", func(t *testing.T) {
		err := &MergeError{Msg: "no results to merge"}
		assert.Contains(t, err.Error(), "no results to merge")
	})

	t.Run("configuration", func(t *testing.T) {
		err := &ConfigurationError{Msg: "missing API key"}
		assert.Contains(t, err.Error(), "missing API key")
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	te := NewTransient(CodeServerError, 500, "upstream", cause)
	assert.True(t, errors.Is(te, cause))

	pe := NewPermanent(CodeAuthError, 403, "forbidden", cause)
	assert.True(t, errors.Is(pe, cause))

	de := NewDetectorError("commercial", "request failed", cause)
	assert.True(t, errors.Is(de, cause))
}
