// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, `
verify:
  ai_threshold: 0.6
  max_iterations: 5
pipeline:
  workers: 8
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, s.Verify.AIThreshold, 1e-9)
	assert.Equal(t, 5, s.Verify.MaxIterations)
	assert.Equal(t, 8, s.Pipeline.Workers)
	// Omitted fields keep defaults
	assert.Equal(t, "medium", s.Verify.ConfidenceThreshold)
	assert.Equal(t, 2000, s.Pipeline.ChunkSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "verify: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"threshold above one", func(s *Settings) { s.Verify.AIThreshold = 1.5 }},
		{"threshold below zero", func(s *Settings) { s.Verify.AIThreshold = -0.1 }},
		{"bad confidence level", func(s *Settings) { s.Verify.ConfidenceThreshold = "sorta" }},
		{"zero iterations", func(s *Settings) { s.Verify.MaxIterations = 0 }},
		{"zero detector timeout", func(s *Settings) { s.Verify.DetectorTimeout = 0 }},
		{"zero workers", func(s *Settings) { s.Pipeline.Workers = 0 }},
		{"zero chunk size", func(s *Settings) { s.Pipeline.ChunkSize = 0 }},
		{"negative retries", func(s *Settings) { s.Pipeline.MaxRetries = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Defaults()
			tc.mutate(&s)
			require.Error(t, s.Validate())
		})
	}

	require.NoError(t, Defaults().Validate())
}

func TestWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "verify:\n  ai_threshold: 0.5\n")

	w, err := NewWatcher(path, logging.New(logging.Config{Quiet: true}))
	require.NoError(t, err)
	defer w.Close()

	changed := make(chan Settings, 1)
	w.OnChange(func(s Settings) {
		select {
		case changed <- s:
		default:
		}
	})

	writeFile(t, path, "verify:\n  ai_threshold: 0.7\n")

	select {
	case s := <-changed:
		assert.InDelta(t, 0.7, s.Verify.AIThreshold, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("reload handler never fired")
	}
	assert.InDelta(t, 0.7, w.Current().Verify.AIThreshold, 1e-9)
}

func TestWatcher_KeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "verify:\n  ai_threshold: 0.5\n")

	w, err := NewWatcher(path, logging.New(logging.Config{Quiet: true}))
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, path, "verify:\n  ai_threshold: 9.9\n")

	// The bad write must not replace the current settings. Give the
	// debounced reload time to run before asserting.
	require.Eventually(t, func() bool {
		return w.Current().Verify.AIThreshold == 0.5
	}, 2*time.Second, 50*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.InDelta(t, 0.5, w.Current().Verify.AIThreshold, 1e-9)
}

func TestWatcher_RequiresValidInitialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "verify:\n  ai_threshold: 2.0\n")

	_, err := NewWatcher(path, logging.New(logging.Config{Quiet: true}))
	require.Error(t, err)
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "pipeline:\n  workers: 2\n")

	w, err := NewWatcher(path, logging.New(logging.Config{Quiet: true}))
	require.NoError(t, err)
	w.Close()
	w.Close()
}
