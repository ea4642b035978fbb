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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// CommercialConfig configures a third-party detection API client.
type CommercialConfig struct {
	// Name is the detector's registry name.
	Name string

	// Endpoint is the full URL of the detection endpoint.
	Endpoint string

	// APIKey is sent in APIKeyHeader on every request.
	APIKey string

	// APIKeyHeader defaults to "Authorization" with a Bearer prefix.
	APIKeyHeader string

	// RequestsPerSecond caps the outbound call rate. Default: 2.
	RequestsPerSecond float64

	// Timeout bounds each HTTP call. Default: 30s.
	Timeout time.Duration
}

// CommercialDetector calls an external detection API. Concurrency is
// bounded only by the rate limiter; the provider's API is assumed
// session-safe.
type CommercialDetector struct {
	cfg     CommercialConfig
	client  *http.Client
	limiter *rate.Limiter
}

type commercialRequest struct {
	Text string `json:"text"`
}

type commercialResponse struct {
	AIProbability float64 `json:"ai_probability"`
}

// NewCommercialDetector creates a client for the given provider.
func NewCommercialDetector(cfg CommercialConfig) (*CommercialDetector, error) {
	if cfg.Name == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("commercial detector requires a name and endpoint")
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "Authorization"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CommercialDetector{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

func (d *CommercialDetector) Name() string { return d.cfg.Name }

func (d *CommercialDetector) Type() string { return "commercial" }

func (d *CommercialDetector) Initialize(ctx context.Context) error { return nil }

func (d *CommercialDetector) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (d *CommercialDetector) Detect(ctx context.Context, text string) datatypes.DetectionScore {
	start := time.Now()

	if err := d.limiter.Wait(ctx); err != nil {
		return d.failed(start, fmt.Sprintf("rate limiter wait: %v", err))
	}

	body, err := json.Marshal(commercialRequest{Text: text})
	if err != nil {
		return d.failed(start, fmt.Sprintf("encode request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return d.failed(start, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		value := d.cfg.APIKey
		if d.cfg.APIKeyHeader == "Authorization" {
			value = "Bearer " + value
		}
		req.Header.Set(d.cfg.APIKeyHeader, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return d.failed(start, fmt.Sprintf("detection API call: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return d.failed(start, fmt.Sprintf("detection API status %d: %s", resp.StatusCode, payload))
	}

	var parsed commercialResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return d.failed(start, fmt.Sprintf("decode response: %v", err))
	}
	if parsed.AIProbability < 0 || parsed.AIProbability > 1 {
		return d.failed(start, fmt.Sprintf("probability %f out of range", parsed.AIProbability))
	}

	p := parsed.AIProbability
	return datatypes.DetectionScore{
		DetectorName:     d.cfg.Name,
		DetectorType:     d.Type(),
		AIProbability:    p,
		Confidence:       bandConfidence(scoreCertainty(p)),
		Result:           classifyProbability(p),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}

func (d *CommercialDetector) failed(start time.Time, reason string) datatypes.DetectionScore {
	score := errorScore(d.cfg.Name, d.Type(), reason)
	score.ProcessingTimeMS = time.Since(start).Milliseconds()
	return score
}
