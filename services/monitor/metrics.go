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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics is the prometheus metric set for the pipeline. One
// instance per registry; pass nil to facade constructors to skip
// prometheus entirely.
type PromMetrics struct {
	DetectionsTotal     *prometheus.CounterVec
	DetectorErrorsTotal *prometheus.CounterVec
	JobsTotal           *prometheus.CounterVec
	ChunkSeconds        prometheus.Histogram
	QueueDepth          prometheus.Gauge
	ActiveWorkers       prometheus.Gauge
}

// NewPromMetrics registers the pipeline metric set on the given
// registerer. Use prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	factory := promauto.With(reg)
	return &PromMetrics{
		DetectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "humanizer_detections_total",
			Help: "Detector runs, by detector name.",
		}, []string{"detector"}),
		DetectorErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "humanizer_detector_errors_total",
			Help: "Detector runs that degraded to a neutral score, by detector name.",
		}, []string{"detector"}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "humanizer_jobs_total",
			Help: "Completed jobs, by terminal status.",
		}, []string{"status"}),
		ChunkSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "humanizer_chunk_processing_seconds",
			Help:    "Wall time to process one chunk.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "humanizer_queue_depth",
			Help: "Units waiting for a worker slot.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "humanizer_active_workers",
			Help: "Units currently executing.",
		}),
	}
}
