// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/verify"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

type fakePool struct {
	depth  int64
	active int64
}

func (p *fakePool) QueueDepth() int64    { return p.depth }
func (p *fakePool) ActiveWorkers() int64 { return p.active }

type fakeStore struct {
	rate    float64
	samples int
	err     error
}

func (s *fakeStore) PassRate(ctx context.Context, window time.Duration) (float64, int, error) {
	return s.rate, s.samples, s.err
}

type fakeHealthDetector struct {
	name    string
	healthy bool
}

func (d *fakeHealthDetector) Name() string                         { return d.name }
func (d *fakeHealthDetector) Type() string                         { return "fake" }
func (d *fakeHealthDetector) Initialize(ctx context.Context) error { return nil }
func (d *fakeHealthDetector) HealthCheck(ctx context.Context) bool { return d.healthy }
func (d *fakeHealthDetector) Detect(ctx context.Context, text string) datatypes.DetectionScore {
	return datatypes.DetectionScore{DetectorName: d.name}
}

type unhealthyRewriter struct{}

func (r *unhealthyRewriter) Rewrite(ctx context.Context, text, prompt string, params llm.GenerationParams) (*llm.RewriteResult, error) {
	return nil, errors.New("down")
}
func (r *unhealthyRewriter) HealthCheck(ctx context.Context) error { return errors.New("down") }

func TestFacade_Metrics(t *testing.T) {
	pool := &fakePool{depth: 4, active: 2}
	store := &fakeStore{rate: 0.9, samples: 10}
	f := NewFacade(Config{}, pool, &llm.StaticRewriter{}, nil, store, nil, quietLogger())

	f.RecordDetection("statistical", false)
	f.RecordDetection("statistical", false)
	f.RecordDetection("statistical", true)
	f.RecordChunk(2 * time.Second)
	f.RecordChunk(4 * time.Second)

	snap := f.Metrics(context.Background())

	assert.Equal(t, int64(4), snap.QueueDepth)
	assert.Equal(t, int64(2), snap.ActiveWorkers)
	assert.InDelta(t, 1.0/3.0, snap.PerDetectorErrorRate["statistical"], 1e-9)
	assert.InDelta(t, 0.9, snap.PassRate, 1e-9)
	assert.Equal(t, 10, snap.PassRateSamples)
	assert.Equal(t, 3*time.Second, snap.AvgProcessingTime)
	assert.Empty(t, snap.Alerts)
}

func TestFacade_Metrics_Alerts(t *testing.T) {
	store := &fakeStore{rate: 0.2, samples: 10}
	f := NewFacade(Config{}, nil, nil, nil, store, nil, quietLogger())

	f.RecordDetection("flaky", true)
	f.RecordDetection("flaky", true)
	f.RecordDetection("flaky", false)

	snap := f.Metrics(context.Background())
	require.Len(t, snap.Alerts, 2)
	assert.Contains(t, snap.Alerts[0], "flaky")
	assert.Contains(t, snap.Alerts[1], "pass rate")
}

func TestFacade_Metrics_NoPassRateAlertWithoutSamples(t *testing.T) {
	store := &fakeStore{rate: 0, samples: 0}
	f := NewFacade(Config{}, nil, nil, nil, store, nil, quietLogger())

	snap := f.Metrics(context.Background())
	assert.Empty(t, snap.Alerts)
}

func TestFacade_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPromMetrics(reg)
	f := NewFacade(Config{}, &fakePool{depth: 1}, nil, nil, nil, prom, quietLogger())

	f.RecordDetection("statistical", true)
	f.RecordJob("SUCCESS")
	f.RecordChunk(time.Second)
	f.Metrics(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.DetectionsTotal.WithLabelValues("statistical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.DetectorErrorsTotal.WithLabelValues("statistical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.JobsTotal.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.QueueDepth))
}

func TestFacade_DispatchHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPromMetrics(reg)
	f := NewFacade(Config{}, nil, nil, nil, nil, prom, quietLogger())

	hooks := f.DispatchHooks("chunk.process", "job.run")
	hooks.OnSuccess("chunk.process", "h1", nil, 2*time.Second)
	hooks.OnSuccess("chunk.process", "h2", nil, 4*time.Second)
	hooks.OnSuccess("job.run", "h3", nil, time.Second)
	hooks.OnFailure("job.run", "h4", errors.New("merge failed"), time.Second)
	hooks.OnFailure("job.run", "h5", fmt.Errorf("wait: %w", context.Canceled), time.Second)
	hooks.OnFailure("chunk.process", "h6", errors.New("dead-lettered"), time.Second)

	snap := f.Metrics(context.Background())
	assert.Equal(t, 3*time.Second, snap.AvgProcessingTime)
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.JobsTotal.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.JobsTotal.WithLabelValues("FAILURE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.JobsTotal.WithLabelValues("REVOKED")))
}

func TestFacade_HealthCheck(t *testing.T) {
	healthyStore := &fakeStore{}
	brokenStore := &fakeStore{err: errors.New("disk gone")}

	t.Run("all healthy", func(t *testing.T) {
		f := NewFacade(Config{}, nil, &llm.StaticRewriter{},
			[]verify.Detector{&fakeHealthDetector{name: "a", healthy: true}},
			healthyStore, nil, quietLogger())

		h := f.HealthCheck(context.Background())
		assert.Equal(t, StatusHealthy, h.Overall)
		assert.Equal(t, StatusHealthy, h.Services["rewriter"].Status)
		assert.Equal(t, StatusHealthy, h.Services["detector:a"].Status)
		assert.Equal(t, StatusHealthy, h.Services["storage"].Status)
	})

	t.Run("one detector down degrades", func(t *testing.T) {
		f := NewFacade(Config{}, nil, &llm.StaticRewriter{},
			[]verify.Detector{
				&fakeHealthDetector{name: "a", healthy: true},
				&fakeHealthDetector{name: "b", healthy: false},
			},
			healthyStore, nil, quietLogger())

		h := f.HealthCheck(context.Background())
		assert.Equal(t, StatusDegraded, h.Overall)
		assert.Equal(t, StatusUnhealthy, h.Services["detector:b"].Status)
	})

	t.Run("rewriter down degrades", func(t *testing.T) {
		f := NewFacade(Config{}, nil, &unhealthyRewriter{}, nil, healthyStore, nil, quietLogger())
		h := f.HealthCheck(context.Background())
		assert.Equal(t, StatusDegraded, h.Overall)
	})

	t.Run("all critical down is unhealthy", func(t *testing.T) {
		f := NewFacade(Config{}, nil, &unhealthyRewriter{}, nil, brokenStore, nil, quietLogger())
		h := f.HealthCheck(context.Background())
		assert.Equal(t, StatusUnhealthy, h.Overall)
	})
}
