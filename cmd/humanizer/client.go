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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// submitRequest mirrors the gateway's POST /v1/jobs payload.
type submitRequest struct {
	Text               string `json:"text"`
	Prompt             string `json:"prompt"`
	EnableVerification bool   `json:"enable_verification"`
}

// submitResponse mirrors the gateway's POST /v1/jobs reply.
type submitResponse struct {
	JobID            string  `json:"job_id"`
	WorkflowType     string  `json:"workflow_type"`
	ChunkCount       int     `json:"chunk_count"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

// jobStatus is the subset of the status body the CLI uses.
type jobStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress struct {
		Percentage float64 `json:"percentage"`
		Completed  int     `json:"completed"`
		Total      int     `json:"total"`
		Stage      string  `json:"stage"`
	} `json:"progress"`
	FinalText    string `json:"final_text"`
	FailedChunks int    `json:"failed_chunks"`
	Error        string `json:"error"`
}

func (s jobStatus) terminal() bool {
	switch s.Status {
	case "SUCCESS", "FAILURE", "REVOKED":
		return true
	}
	return false
}

// apiClient talks to the pipeline gateway.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline server unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Submit starts a job from raw text.
func (c *apiClient) Submit(ctx context.Context, text, prompt string, verify bool) (*submitResponse, error) {
	var resp submitResponse
	err := c.do(ctx, http.MethodPost, "/v1/jobs", submitRequest{
		Text:               text,
		Prompt:             prompt,
		EnableVerification: verify,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the current job view.
func (c *apiClient) Status(ctx context.Context, jobID string) (*jobStatus, error) {
	var status jobStatus
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Cancel revokes a job.
func (c *apiClient) Cancel(ctx context.Context, jobID string) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodDelete, "/v1/jobs/"+jobID, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health fetches the aggregate health view.
func (c *apiClient) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// Metrics fetches the pipeline snapshot.
func (c *apiClient) Metrics(ctx context.Context) (map[string]any, error) {
	var snap map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1/pipeline/metrics", nil, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// WaitForJob polls until the job reaches a terminal state.
func (c *apiClient) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*jobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
