// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor exposes the pipeline's operational surface: a
// metrics snapshot, dependency health checks, and an optional InfluxDB
// sink for periodic snapshot points.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/dispatch"
	"github.com/AleutianAI/HumanizerFOSS/services/verify"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// PoolStats is the worker-pool probe.
type PoolStats interface {
	QueueDepth() int64
	ActiveWorkers() int64
}

// PassRater is the storage probe.
type PassRater interface {
	PassRate(ctx context.Context, window time.Duration) (float64, int, error)
}

// Snapshot is one point-in-time metrics view.
type Snapshot struct {
	QueueDepth           int64              `json:"queue_depth"`
	ActiveWorkers        int64              `json:"active_workers"`
	PerDetectorErrorRate map[string]float64 `json:"per_detector_error_rate"`
	PassRate             float64            `json:"pass_rate"`
	PassRateSamples      int                `json:"pass_rate_samples"`
	AvgProcessingTime    time.Duration      `json:"avg_processing_time"`
	Alerts               []string           `json:"alerts,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
}

// ServiceHealth is one dependency's probe result.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health is the aggregate health view.
type Health struct {
	Overall  string                   `json:"overall"`
	Services map[string]ServiceHealth `json:"services"`
}

// Config tunes the facade's thresholds.
type Config struct {
	// PassRateWindow is the trailing window fed to the storage
	// probe. Default: 1h.
	PassRateWindow time.Duration

	// ErrorRateAlert raises an advisory alert when any detector's
	// error rate exceeds it. Default: 0.5.
	ErrorRateAlert float64

	// PassRateAlert raises an advisory alert when the pass rate
	// falls below it (only with at least one sample). Default: 0.5.
	PassRateAlert float64
}

// Facade aggregates pipeline observability. All collaborators are
// injected; nil probes are skipped.
//
// # Thread Safety
//
// Safe for concurrent use.
type Facade struct {
	cfg       Config
	pool      PoolStats
	rewriter  llm.Rewriter
	detectors []verify.Detector
	store     PassRater
	prom      *PromMetrics
	logger    *logging.Logger

	mu        sync.Mutex
	detRuns   map[string]int64
	detErrors map[string]int64
	procTotal time.Duration
	procCount int64
}

// NewFacade creates the monitoring facade.
func NewFacade(
	cfg Config,
	pool PoolStats,
	rewriter llm.Rewriter,
	detectors []verify.Detector,
	store PassRater,
	prom *PromMetrics,
	logger *logging.Logger,
) *Facade {
	if cfg.PassRateWindow <= 0 {
		cfg.PassRateWindow = time.Hour
	}
	if cfg.ErrorRateAlert <= 0 {
		cfg.ErrorRateAlert = 0.5
	}
	if cfg.PassRateAlert <= 0 {
		cfg.PassRateAlert = 0.5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Facade{
		cfg:       cfg,
		pool:      pool,
		rewriter:  rewriter,
		detectors: detectors,
		store:     store,
		prom:      prom,
		logger:    logger,
		detRuns:   make(map[string]int64),
		detErrors: make(map[string]int64),
	}
}

// RecordDetection counts one detector run.
func (f *Facade) RecordDetection(detector string, errored bool) {
	f.mu.Lock()
	f.detRuns[detector]++
	if errored {
		f.detErrors[detector]++
	}
	f.mu.Unlock()

	if f.prom != nil {
		f.prom.DetectionsTotal.WithLabelValues(detector).Inc()
		if errored {
			f.prom.DetectorErrorsTotal.WithLabelValues(detector).Inc()
		}
	}
}

// RecordChunk counts one processed chunk.
func (f *Facade) RecordChunk(elapsed time.Duration) {
	f.mu.Lock()
	f.procTotal += elapsed
	f.procCount++
	f.mu.Unlock()

	if f.prom != nil {
		f.prom.ChunkSeconds.Observe(elapsed.Seconds())
	}
}

// RecordJob counts one terminal job.
func (f *Facade) RecordJob(status string) {
	if f.prom != nil {
		f.prom.JobsTotal.WithLabelValues(status).Inc()
	}
}

// DispatchHooks adapts the facade to the dispatch registry's lifecycle
// hooks. Executions of chunkTask feed the processing-time series;
// terminal outcomes of jobTask feed the job counter.
func (f *Facade) DispatchHooks(chunkTask, jobTask string) dispatch.Hooks {
	return dispatch.Hooks{
		OnSuccess: func(task, handleID string, result any, elapsed time.Duration) {
			switch task {
			case chunkTask:
				f.RecordChunk(elapsed)
			case jobTask:
				f.RecordJob(string(datatypes.JobSuccess))
			}
		},
		OnFailure: func(task, handleID string, err error, elapsed time.Duration) {
			if task != jobTask {
				return
			}
			status := datatypes.JobFailure
			if errors.Is(err, context.Canceled) {
				status = datatypes.JobRevoked
			}
			f.RecordJob(string(status))
		},
	}
}

// Metrics builds the current snapshot and evaluates alert thresholds.
func (f *Facade) Metrics(ctx context.Context) Snapshot {
	snap := Snapshot{
		PerDetectorErrorRate: make(map[string]float64),
		Timestamp:            time.Now().UTC(),
	}

	if f.pool != nil {
		snap.QueueDepth = f.pool.QueueDepth()
		snap.ActiveWorkers = f.pool.ActiveWorkers()
		if f.prom != nil {
			f.prom.QueueDepth.Set(float64(snap.QueueDepth))
			f.prom.ActiveWorkers.Set(float64(snap.ActiveWorkers))
		}
	}

	f.mu.Lock()
	for name, runs := range f.detRuns {
		if runs > 0 {
			snap.PerDetectorErrorRate[name] = float64(f.detErrors[name]) / float64(runs)
		}
	}
	if f.procCount > 0 {
		snap.AvgProcessingTime = f.procTotal / time.Duration(f.procCount)
	}
	f.mu.Unlock()

	if f.store != nil {
		rate, samples, err := f.store.PassRate(ctx, f.cfg.PassRateWindow)
		if err != nil {
			f.logger.Warn("pass rate probe failed", "error", err.Error())
		} else {
			snap.PassRate = rate
			snap.PassRateSamples = samples
		}
	}

	for name, rate := range snap.PerDetectorErrorRate {
		if rate > f.cfg.ErrorRateAlert {
			snap.Alerts = append(snap.Alerts,
				fmt.Sprintf("detector %s error rate %.2f exceeds %.2f", name, rate, f.cfg.ErrorRateAlert))
		}
	}
	if snap.PassRateSamples > 0 && snap.PassRate < f.cfg.PassRateAlert {
		snap.Alerts = append(snap.Alerts,
			fmt.Sprintf("pass rate %.2f below %.2f over the last %s",
				snap.PassRate, f.cfg.PassRateAlert, f.cfg.PassRateWindow))
	}
	return snap
}

// HealthCheck probes the rewriter, each detector, and storage. A
// single failing dependency degrades the service; losing both the
// rewriter and storage makes it unhealthy.
func (f *Facade) HealthCheck(ctx context.Context) Health {
	health := Health{Services: make(map[string]ServiceHealth)}
	criticalDown := 0
	criticalTotal := 0
	anyDown := false

	if f.rewriter != nil {
		criticalTotal++
		if err := f.rewriter.HealthCheck(ctx); err != nil {
			health.Services["rewriter"] = ServiceHealth{Status: StatusUnhealthy, Message: err.Error()}
			criticalDown++
			anyDown = true
		} else {
			health.Services["rewriter"] = ServiceHealth{Status: StatusHealthy}
		}
	}

	for _, d := range f.detectors {
		name := "detector:" + d.Name()
		if d.HealthCheck(ctx) {
			health.Services[name] = ServiceHealth{Status: StatusHealthy}
		} else {
			health.Services[name] = ServiceHealth{Status: StatusUnhealthy, Message: "health check failed"}
			anyDown = true
		}
	}

	if f.store != nil {
		criticalTotal++
		if _, _, err := f.store.PassRate(ctx, time.Minute); err != nil {
			health.Services["storage"] = ServiceHealth{Status: StatusUnhealthy, Message: err.Error()}
			criticalDown++
			anyDown = true
		} else {
			health.Services["storage"] = ServiceHealth{Status: StatusHealthy}
		}
	}

	switch {
	case criticalTotal > 0 && criticalDown == criticalTotal:
		health.Overall = StatusUnhealthy
	case anyDown:
		health.Overall = StatusDegraded
	default:
		health.Overall = StatusHealthy
	}
	return health
}
