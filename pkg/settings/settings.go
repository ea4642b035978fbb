// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings loads tunable pipeline thresholds from a YAML file
// and hot-reloads them when the file changes on disk.
package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VerifySettings are the detection and refinement knobs.
type VerifySettings struct {
	// AIThreshold is the probability above which text reads as
	// AI-generated. Default: 0.5
	AIThreshold float64 `yaml:"ai_threshold"`

	// ConfidenceThreshold is the minimum ensemble confidence needed
	// to accept an uncertain verdict. Default: "medium"
	ConfidenceThreshold string `yaml:"confidence_threshold"`

	// MaxIterations caps the refinement loop. Default: 3
	MaxIterations int `yaml:"max_iterations"`

	// DetectorTimeout bounds a single detector call. Default: 60s
	DetectorTimeout time.Duration `yaml:"detector_timeout"`
}

// PipelineSettings are the fan-out knobs.
type PipelineSettings struct {
	// Workers is the chunk worker pool size. Default: 4
	Workers int `yaml:"workers"`

	// ChunkSize is the target chunk length in characters. Default: 2000
	ChunkSize int `yaml:"chunk_size"`

	// MaxRetries is the per-chunk retry budget. Default: 3
	MaxRetries int `yaml:"max_retries"`
}

// Settings is the full tunable configuration.
type Settings struct {
	Verify   VerifySettings   `yaml:"verify"`
	Pipeline PipelineSettings `yaml:"pipeline"`
}

// Defaults returns the settings used when no file is present.
func Defaults() Settings {
	return Settings{
		Verify: VerifySettings{
			AIThreshold:         0.5,
			ConfidenceThreshold: "medium",
			MaxIterations:       3,
			DetectorTimeout:     60 * time.Second,
		},
		Pipeline: PipelineSettings{
			Workers:    4,
			ChunkSize:  2000,
			MaxRetries: 3,
		},
	}
}

// Validate rejects values that would wedge or misconfigure the
// pipeline.
func (s Settings) Validate() error {
	if s.Verify.AIThreshold < 0 || s.Verify.AIThreshold > 1 {
		return fmt.Errorf("verify.ai_threshold %.2f must be in [0, 1]", s.Verify.AIThreshold)
	}
	switch s.Verify.ConfidenceThreshold {
	case "very_low", "low", "medium", "high", "very_high":
	default:
		return fmt.Errorf("verify.confidence_threshold %q is not a confidence level", s.Verify.ConfidenceThreshold)
	}
	if s.Verify.MaxIterations <= 0 {
		return fmt.Errorf("verify.max_iterations %d must be positive", s.Verify.MaxIterations)
	}
	if s.Verify.DetectorTimeout <= 0 {
		return fmt.Errorf("verify.detector_timeout must be positive")
	}
	if s.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers %d must be positive", s.Pipeline.Workers)
	}
	if s.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size %d must be positive", s.Pipeline.ChunkSize)
	}
	if s.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries %d must not be negative", s.Pipeline.MaxRetries)
	}
	return nil
}

// Load reads and validates settings from a YAML file. Fields the file
// omits keep their defaults.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}
