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
	"time"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// ReportStore persists verification artifacts.
type ReportStore interface {
	SaveReport(ctx context.Context, jobID string, report *datatypes.VerificationReport) error
	SaveRefinementHistory(ctx context.Context, history datatypes.RefinementHistory) error
}

// ServiceConfig tunes one verification-and-refinement pass.
type ServiceConfig struct {
	// MaxIterations bounds the refinement loop. Default: 3.
	MaxIterations int

	// DetectorTimeout bounds each detector run. Default: 60s.
	DetectorTimeout time.Duration

	// Sequential disables parallel detector execution.
	Sequential bool
}

// Service is the verification entry point the orchestrator calls: one
// ensemble pass, then refinement when the verdict asks for it.
type Service struct {
	cfg      ServiceConfig
	ensemble *Ensemble
	loop     *RefinementLoop
	store    ReportStore
	logger   *logging.Logger
}

// NewService creates the verification service. Loop and store may be
// nil; refinement and persistence are then skipped.
func NewService(cfg ServiceConfig, ensemble *Ensemble, loop *RefinementLoop, store ReportStore, logger *logging.Logger) (*Service, error) {
	if ensemble == nil {
		return nil, &faults.ConfigurationError{Msg: "verification service requires an ensemble"}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.DetectorTimeout <= 0 {
		cfg.DetectorTimeout = DefaultDetectorTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		cfg:      cfg,
		ensemble: ensemble,
		loop:     loop,
		store:    store,
		logger:   logger,
	}, nil
}

// VerifyAndRefine runs the full verification side of a job and returns
// the final report and the final (possibly rewritten) text.
func (s *Service) VerifyAndRefine(ctx context.Context, jobID, text string) (*datatypes.VerificationReport, string, error) {
	report, err := s.ensemble.Verify(ctx, text, nil, !s.cfg.Sequential, s.cfg.DetectorTimeout)
	if err != nil {
		return nil, "", err
	}

	finalText := text
	if report.Recommendation == datatypes.RecommendNeedsRefinement && s.loop != nil {
		outcome, err := s.loop.Refine(ctx, report, text, s.cfg.MaxIterations)
		if err != nil {
			return nil, "", err
		}
		report = outcome.FinalReport
		finalText = outcome.FinalText
		s.saveHistory(jobID, outcome.History)
	}

	s.saveReport(jobID, report)
	return report, finalText, nil
}

func (s *Service) saveReport(jobID string, report *datatypes.VerificationReport) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.SaveReport(ctx, jobID, report); err != nil {
		s.logger.Error("failed to persist verification report",
			"job_id", jobID,
			"error", err.Error(),
		)
	}
}

func (s *Service) saveHistory(jobID string, attempts []datatypes.RefinementAttempt) {
	if s.store == nil || len(attempts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.store.SaveRefinementHistory(ctx, datatypes.RefinementHistory{
		JobID:    jobID,
		Attempts: attempts,
	})
	if err != nil {
		s.logger.Error("failed to persist refinement history",
			"job_id", jobID,
			"error", err.Error(),
		)
	}
}
