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
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// DefaultDetectorTimeout bounds one detector's run inside a pass.
const DefaultDetectorTimeout = 60 * time.Second

// Ensemble runs a set of detectors over one text and aggregates their
// scores. Detector faults never fail a pass: a timeout, error, or
// panic in one detector yields a neutral substitute score while its
// siblings finish undisturbed.
//
// # Thread Safety
//
// Safe for concurrent use once built. The detector set is fixed at
// construction.
// DetectionObserver receives one event per detector run. The monitor
// facade implements this to feed its per-detector error rates.
type DetectionObserver interface {
	RecordDetection(detector string, errored bool)
}

type Ensemble struct {
	detectors  map[string]Detector
	order      []string
	aggregator *Aggregator
	observer   DetectionObserver
	logger     *logging.Logger
}

// NewEnsemble builds an ensemble over the given detectors.
func NewEnsemble(detectors []Detector, aggregator *Aggregator, logger *logging.Logger) (*Ensemble, error) {
	if len(detectors) == 0 {
		return nil, &faults.ConfigurationError{Msg: "ensemble requires at least one detector"}
	}
	if aggregator == nil {
		aggregator = NewAggregator(AggregatorConfig{})
	}
	if logger == nil {
		logger = logging.Default()
	}

	byName := make(map[string]Detector, len(detectors))
	order := make([]string, 0, len(detectors))
	for _, d := range detectors {
		if _, dup := byName[d.Name()]; dup {
			return nil, &faults.ConfigurationError{Msg: fmt.Sprintf("duplicate detector name %s", d.Name())}
		}
		byName[d.Name()] = d
		order = append(order, d.Name())
	}
	return &Ensemble{
		detectors:  byName,
		order:      order,
		aggregator: aggregator,
		logger:     logger,
	}, nil
}

// SetObserver installs the detection observer. Call before the
// ensemble serves verification passes; nil disables observation.
func (e *Ensemble) SetObserver(obs DetectionObserver) {
	e.observer = obs
}

// DetectorNames returns the registered detector names in registration
// order.
func (e *Ensemble) DetectorNames() []string {
	names := make([]string, len(e.order))
	copy(names, e.order)
	return names
}

// Detectors returns the registered detectors.
func (e *Ensemble) Detectors() []Detector {
	out := make([]Detector, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.detectors[name])
	}
	return out
}

// Initialize prepares every detector. Idempotent.
func (e *Ensemble) Initialize(ctx context.Context) error {
	for _, name := range e.order {
		if err := e.detectors[name].Initialize(ctx); err != nil {
			return fmt.Errorf("initialize detector %s: %w", name, err)
		}
	}
	return nil
}

// Verify runs the selected detectors (all when names is empty) and
// aggregates a report. Only empty text is an error; detector faults
// are isolated into substitute scores.
func (e *Ensemble) Verify(
	ctx context.Context,
	text string,
	names []string,
	parallel bool,
	timeout time.Duration,
) (*datatypes.VerificationReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, faults.NewDetectorError("ensemble", "text must not be empty", nil)
	}
	if len(names) == 0 {
		names = e.order
	}
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}

	start := time.Now()
	scores := make([]datatypes.DetectionScore, len(names))

	if parallel {
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				scores[i] = e.runOne(ctx, name, text, timeout)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, name := range names {
			scores[i] = e.runOne(ctx, name, text, timeout)
		}
	}

	for _, s := range scores {
		if e.observer != nil {
			e.observer.RecordDetection(s.DetectorName, s.Errored())
		}
		if s.Errored() {
			e.logger.Warn("detector degraded to neutral score",
				"detector", s.DetectorName,
				"reason", s.Err,
			)
		}
	}

	return e.aggregator.Aggregate(textIDFor(text), scores, time.Since(start)), nil
}

// runOne executes a single detector under its own timeout, recovering
// panics into an error score.
func (e *Ensemble) runOne(ctx context.Context, name, text string, timeout time.Duration) datatypes.DetectionScore {
	d, ok := e.detectors[name]
	if !ok {
		return errorScore(name, "unknown", fmt.Sprintf("detector %s not registered", name))
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan datatypes.DetectionScore, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- errorScore(d.Name(), d.Type(), fmt.Sprintf("detector panicked: %v", r))
			}
		}()
		ch <- d.Detect(dctx, text)
	}()

	select {
	case score := <-ch:
		return score
	case <-dctx.Done():
		return errorScore(d.Name(), d.Type(),
			fmt.Sprintf("detector timed out after %s", timeout))
	}
}

func textIDFor(text string) string {
	if len(text) > 16 {
		text = text[:16]
	}
	return fmt.Sprintf("text-%x", []byte(text))
}
