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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

type recordingStore struct {
	mu        sync.Mutex
	reports   map[string]*datatypes.VerificationReport
	histories map[string]datatypes.RefinementHistory
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		reports:   make(map[string]*datatypes.VerificationReport),
		histories: make(map[string]datatypes.RefinementHistory),
	}
}

func (s *recordingStore) SaveReport(ctx context.Context, jobID string, report *datatypes.VerificationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[jobID] = report
	return nil
}

func (s *recordingStore) SaveRefinementHistory(ctx context.Context, history datatypes.RefinementHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[history.JobID] = history
	return nil
}

func TestService_VerifyAndRefine_AcceptSkipsRefinement(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.1},
		&fakeDetector{name: "b", prob: 0.1},
	)
	rewriter := &llm.StaticRewriter{}
	loop, err := NewRefinementLoop(rewriter, e, quietLogger())
	require.NoError(t, err)
	store := newRecordingStore()

	svc, err := NewService(ServiceConfig{}, e, loop, store, quietLogger())
	require.NoError(t, err)

	report, finalText, err := svc.VerifyAndRefine(context.Background(), "job-1", sampleText)
	require.NoError(t, err)

	assert.Equal(t, datatypes.RecommendAccept, report.Recommendation)
	assert.Equal(t, sampleText, finalText)
	assert.Equal(t, 0, rewriter.Calls())
	assert.Contains(t, store.reports, "job-1")
	assert.NotContains(t, store.histories, "job-1")
}

func TestService_VerifyAndRefine_RefinesFlaggedText(t *testing.T) {
	// Single detector: the initial verdict is an unconfident flag,
	// which routes through refinement rather than a hard reject
	e := newTestEnsemble(t, contentScored("a", "REFINED"))
	rewriter := &llm.StaticRewriter{
		Transform: func(text, prompt string) string { return "REFINED " + text },
	}
	loop, err := NewRefinementLoop(rewriter, e, quietLogger())
	require.NoError(t, err)
	store := newRecordingStore()

	svc, err := NewService(ServiceConfig{}, e, loop, store, quietLogger())
	require.NoError(t, err)

	report, finalText, err := svc.VerifyAndRefine(context.Background(), "job-2", sampleText)
	require.NoError(t, err)

	assert.Equal(t, datatypes.RecommendAccept, report.Recommendation)
	assert.Contains(t, finalText, "REFINED")
	assert.Equal(t, 1, rewriter.Calls())

	require.Contains(t, store.histories, "job-2")
	assert.Len(t, store.histories["job-2"].Attempts, 1)
}

func TestService_VerifyAndRefine_NoLoopReturnsVerdict(t *testing.T) {
	e := newTestEnsemble(t,
		&fakeDetector{name: "a", prob: 0.9},
	)
	svc, err := NewService(ServiceConfig{}, e, nil, nil, quietLogger())
	require.NoError(t, err)

	report, finalText, err := svc.VerifyAndRefine(context.Background(), "job-3", sampleText)
	require.NoError(t, err)

	assert.Equal(t, datatypes.RecommendNeedsRefinement, report.Recommendation)
	assert.Equal(t, sampleText, finalText)
}

func TestService_VerifyAndRefine_EmptyTextFails(t *testing.T) {
	e := newTestEnsemble(t, &fakeDetector{name: "a"})
	svc, err := NewService(ServiceConfig{}, e, nil, nil, quietLogger())
	require.NoError(t, err)

	_, _, err = svc.VerifyAndRefine(context.Background(), "job-4", " ")
	require.Error(t, err)
}

func TestNewService_RequiresEnsemble(t *testing.T) {
	_, err := NewService(ServiceConfig{}, nil, nil, nil, quietLogger())
	require.Error(t, err)
}
