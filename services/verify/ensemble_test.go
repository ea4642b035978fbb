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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

// fakeDetector is a scriptable detector for ensemble tests.
type fakeDetector struct {
	name    string
	prob    float64
	delay   time.Duration
	panics  bool
	detect  func(ctx context.Context, text string) datatypes.DetectionScore
	initErr error
}

func (d *fakeDetector) Name() string { return d.name }

func (d *fakeDetector) Type() string { return "fake" }

func (d *fakeDetector) Initialize(ctx context.Context) error { return d.initErr }

func (d *fakeDetector) HealthCheck(ctx context.Context) bool { return true }

func (d *fakeDetector) Detect(ctx context.Context, text string) datatypes.DetectionScore {
	if d.panics {
		panic("scripted panic")
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return errorScore(d.name, d.Type(), ctx.Err().Error())
		}
	}
	if d.detect != nil {
		return d.detect(ctx, text)
	}
	p := d.prob
	return datatypes.DetectionScore{
		DetectorName:  d.name,
		DetectorType:  d.Type(),
		AIProbability: p,
		Confidence:    bandConfidence(scoreCertainty(p)),
		Result:        classifyProbability(p),
	}
}

func newTestEnsemble(t *testing.T, detectors ...Detector) *Ensemble {
	t.Helper()
	e, err := NewEnsemble(detectors, NewAggregator(AggregatorConfig{}), quietLogger())
	require.NoError(t, err)
	return e
}

const sampleText = "A reasonably long piece of sample text for the detection ensemble to chew on."

func TestNewEnsemble(t *testing.T) {
	t.Run("rejects empty detector set", func(t *testing.T) {
		_, err := NewEnsemble(nil, nil, quietLogger())
		require.Error(t, err)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := NewEnsemble([]Detector{
			&fakeDetector{name: "d"},
			&fakeDetector{name: "d"},
		}, nil, quietLogger())
		require.Error(t, err)
	})

	t.Run("preserves registration order", func(t *testing.T) {
		e := newTestEnsemble(t,
			&fakeDetector{name: "one"},
			&fakeDetector{name: "two"},
			&fakeDetector{name: "three"},
		)
		assert.Equal(t, []string{"one", "two", "three"}, e.DetectorNames())
	})
}

func TestEnsemble_Verify_Parallel(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.2},
		&fakeDetector{name: "b", prob: 0.4},
	)

	report, err := e.Verify(context.Background(), sampleText, nil, true, time.Second)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, report.AIProbabilityAvg, 1e-9)
	require.Len(t, report.DetectorScores, 2)
	// Scores land in selection order regardless of finish order
	assert.Equal(t, "a", report.DetectorScores[0].DetectorName)
	assert.Equal(t, "b", report.DetectorScores[1].DetectorName)
}

func TestEnsemble_Verify_Sequential(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.2},
		&fakeDetector{name: "b", prob: 0.6},
	)

	report, err := e.Verify(context.Background(), sampleText, nil, false, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, report.AIProbabilityAvg, 1e-9)
}

// captureObserver records the last errored flag per detector.
type captureObserver struct {
	mu     sync.Mutex
	events map[string]bool
}

func (o *captureObserver) RecordDetection(detector string, errored bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]bool)
	}
	o.events[detector] = errored
}

func TestEnsemble_Verify_ObserverSeesEveryRun(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.2},
		&fakeDetector{name: "b", panics: true},
	)
	obs := &captureObserver{}
	e.SetObserver(obs)

	_, err := e.Verify(context.Background(), sampleText, nil, true, time.Second)
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, map[string]bool{"a": false, "b": true}, obs.events)
}

func TestEnsemble_Verify_EmptyTextFails(t *testing.T) {
	e := newTestEnsemble(t, &fakeDetector{name: "a"})

	_, err := e.Verify(context.Background(), "   ", nil, true, time.Second)
	require.Error(t, err)
}

func TestEnsemble_Verify_SelectsByName(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.1},
		&fakeDetector{name: "b", prob: 0.9},
	)

	report, err := e.Verify(context.Background(), sampleText, []string{"b"}, true, time.Second)
	require.NoError(t, err)
	require.Len(t, report.DetectorScores, 1)
	assert.Equal(t, "b", report.DetectorScores[0].DetectorName)
}

func TestEnsemble_Verify_UnknownNameSubstitutes(t *testing.T) {
	e := newTestEnsemble(t, &fakeDetector{name: "a", prob: 0.2})

	report, err := e.Verify(context.Background(), sampleText, []string{"a", "ghost"}, true, time.Second)
	require.NoError(t, err)
	require.Len(t, report.DetectorScores, 2)
	assert.True(t, report.DetectorScores[1].Errored())
	// Mean comes from the real score alone
	assert.InDelta(t, 0.2, report.AIProbabilityAvg, 1e-9)
}

func TestEnsemble_Verify_TimeoutIsolated(t *testing.T) {
	// The slow detector times out; its sibling's score is untouched
	e := newTestEnsemble(t,
		&fakeDetector{name: "slow", delay: 500 * time.Millisecond, prob: 0.9},
		&fakeDetector{name: "fast", prob: 0.2},
	)

	report, err := e.Verify(context.Background(), sampleText, nil, true, 20*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, report.DetectorScores, 2)
	slow, fast := report.DetectorScores[0], report.DetectorScores[1]
	assert.True(t, slow.Errored())
	assert.Equal(t, 0.5, slow.AIProbability)
	assert.False(t, fast.Errored())
	assert.Equal(t, 0.2, fast.AIProbability)
	assert.InDelta(t, 0.2, report.AIProbabilityAvg, 1e-9)
}

func TestEnsemble_Verify_PanicIsolated(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "bomb", panics: true},
		&fakeDetector{name: "steady", prob: 0.3},
	)

	report, err := e.Verify(context.Background(), sampleText, nil, true, time.Second)
	require.NoError(t, err)

	require.Len(t, report.DetectorScores, 2)
	assert.True(t, report.DetectorScores[0].Errored())
	assert.Contains(t, report.DetectorScores[0].Err, "panicked")
	assert.False(t, report.DetectorScores[1].Errored())
}

func TestEnsemble_Initialize(t *testing.T) {
	t.Run("propagates failures", func(t *testing.T) {
		e := newTestEnsemble(t,
			&fakeDetector{name: "ok"},
			&fakeDetector{name: "broken", initErr: assert.AnError},
		)
		require.Error(t, e.Initialize(context.Background()))
	})

	t.Run("idempotent", func(t *testing.T) {
		e := newTestEnsemble(t, &fakeDetector{name: "ok"})
		require.NoError(t, e.Initialize(context.Background()))
		require.NoError(t, e.Initialize(context.Background()))
	})
}
