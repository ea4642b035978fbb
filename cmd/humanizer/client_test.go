// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs", r.URL.Path)

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "some text", req.Text)
		assert.True(t, req.EnableVerification)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(submitResponse{JobID: "job-1", ChunkCount: 2})
	}))
	defer server.Close()

	resp, err := newAPIClient(server.URL).Submit(context.Background(), "some text", "p", true)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, 2, resp.ChunkCount)
}

func TestAPIClient_SubmitServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "prompt cannot be empty"})
	}))
	defer server.Close()

	_, err := newAPIClient(server.URL).Submit(context.Background(), "text", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt cannot be empty")
}

func TestAPIClient_WaitForJob(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/jobs/job-1", r.URL.Path)
		status := jobStatus{JobID: "job-1", Status: "PROCESSING"}
		if polls.Add(1) >= 3 {
			status.Status = "SUCCESS"
			status.FinalText = "done.\n"
		}
		json.NewEncoder(w).Encode(status)
	}))
	defer server.Close()

	status, err := newAPIClient(server.URL).WaitForJob(context.Background(), "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status.Status)
	assert.Equal(t, "done.\n", status.FinalText)
	assert.GreaterOrEqual(t, polls.Load(), int64(3))
}

func TestAPIClient_WaitForJob_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jobStatus{JobID: "job-1", Status: "PROCESSING"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newAPIClient(server.URL).WaitForJob(ctx, "job-1", 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIClient_Unreachable(t *testing.T) {
	_, err := newAPIClient("http://127.0.0.1:1").Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, jobStatus{Status: "PENDING"}.terminal())
	assert.False(t, jobStatus{Status: "PROCESSING"}.terminal())
	assert.True(t, jobStatus{Status: "SUCCESS"}.terminal())
	assert.True(t, jobStatus{Status: "FAILURE"}.terminal())
	assert.True(t, jobStatus{Status: "REVOKED"}.terminal())
}
