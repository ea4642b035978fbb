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
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
)

// InfluxConfig configures the snapshot sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Interval between snapshot points. Default: 30s.
	Interval time.Duration
}

// InfluxSink writes periodic facade snapshots to InfluxDB. Purely
// advisory; write failures are logged and skipped.
type InfluxSink struct {
	cfg    InfluxConfig
	client influxdb2.Client
	facade *Facade
	logger *logging.Logger

	stop chan struct{}
	done chan struct{}
}

// NewInfluxSink creates a sink over the given facade.
func NewInfluxSink(cfg InfluxConfig, facade *Facade, logger *logging.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("influx sink requires a url and bucket")
	}
	if facade == nil {
		return nil, errors.New("influx sink requires a facade")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InfluxSink{
		cfg:    cfg,
		client: influxdb2.NewClient(cfg.URL, cfg.Token),
		facade: facade,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start begins the periodic writer. Returns immediately.
func (s *InfluxSink) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.writeOnce()
			}
		}
	}()
}

// Close stops the writer and releases the client.
func (s *InfluxSink) Close() {
	close(s.stop)
	<-s.done
	s.client.Close()
}

func (s *InfluxSink) writeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap := s.facade.Metrics(ctx)
	fields := map[string]any{
		"queue_depth":       snap.QueueDepth,
		"active_workers":    snap.ActiveWorkers,
		"pass_rate":         snap.PassRate,
		"pass_rate_samples": snap.PassRateSamples,
		"avg_processing_ms": snap.AvgProcessingTime.Milliseconds(),
		"alert_count":       len(snap.Alerts),
	}
	point := influxdb2.NewPoint("pipeline_snapshot", nil, fields, snap.Timestamp)

	writeAPI := s.client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
	if err := writeAPI.WritePoint(ctx, point); err != nil {
		s.logger.Warn("influx snapshot write failed", "error", err.Error())
	}

	for name, rate := range snap.PerDetectorErrorRate {
		p := influxdb2.NewPoint("detector_error_rate",
			map[string]string{"detector": name},
			map[string]any{"rate": rate},
			snap.Timestamp)
		if err := writeAPI.WritePoint(ctx, p); err != nil {
			s.logger.Warn("influx detector point write failed",
				"detector", name,
				"error", err.Error(),
			)
		}
	}
}
