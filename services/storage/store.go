// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists pipeline artifacts in embedded BadgerDB:
// verification reports, refinement histories, and job completions.
// The orchestration core holds no durable state of its own; everything
// worth keeping lands here.
//
// Key layout:
//
//	report/<rfc3339nano-ts>/<job_id> - verification reports, time-ordered
//	refine/<job_id>                  - refinement history
//	job/<job_id>                     - job completion record
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	reportPrefix = "report/"
	refinePrefix = "refine/"
	jobPrefix    = "job/"

	// Fixed-width timestamp so keys sort lexicographically by time.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Config holds configuration for the store's BadgerDB instance.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set negative to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC runs. Default: 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests: in-memory mode, no
// sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		GCInterval: -1,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the pipeline's persistence layer.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB handles transaction isolation.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open creates the store, opening (or creating) the database directory.
//
// # Outputs
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot be
//	        opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:     db,
		stopGC: make(chan struct{}),
		doneGC: make(chan struct{}),
	}

	interval := cfg.GCInterval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	if interval > 0 && !cfg.InMemory {
		go s.runGC(interval, ratio)
	} else {
		close(s.doneGC)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect
			for {
				if err := s.db.RunValueLogGC(ratio); err != nil {
					break
				}
			}
		}
	}
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	<-s.doneGC
	return s.db.Close()
}

// =============================================================================
// Reports
// =============================================================================

// SaveReport persists a verification report under a time-ordered key.
func (s *Store) SaveReport(ctx context.Context, jobID string, report *datatypes.VerificationReport) error {
	if jobID == "" {
		return errors.New("job id must not be empty")
	}
	if report == nil {
		return errors.New("report must not be nil")
	}

	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	key := fmt.Sprintf("%s%s/%s", reportPrefix, ts.UTC().Format(tsLayout), jobID)

	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// GetReport returns the most recent report for a job.
func (s *Store) GetReport(ctx context.Context, jobID string) (*datatypes.VerificationReport, error) {
	if jobID == "" {
		return nil, errors.New("job id must not be empty")
	}

	var report *datatypes.VerificationReport
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(reportPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse scan from the end of the report keyspace: the
		// first key ending in /<jobID> is the newest
		suffix := []byte("/" + jobID)
		for it.Seek([]byte(reportPrefix + "\xff")); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !bytes.HasSuffix(key, suffix) {
				continue
			}
			return it.Item().Value(func(val []byte) error {
				report = &datatypes.VerificationReport{}
				return json.Unmarshal(val, report)
			})
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReportsByTimeRange returns all reports with a timestamp in
// [from, to), oldest first.
func (s *Store) ListReportsByTimeRange(ctx context.Context, from, to time.Time) ([]*datatypes.VerificationReport, error) {
	if !to.After(from) {
		return nil, errors.New("time range must be non-empty")
	}

	startKey := []byte(reportPrefix + from.UTC().Format(tsLayout))
	endKey := reportPrefix + to.UTC().Format(tsLayout)

	var reports []*datatypes.VerificationReport
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reportPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(startKey); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if key >= endKey {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				r := &datatypes.VerificationReport{}
				if err := json.Unmarshal(val, r); err != nil {
					return err
				}
				reports = append(reports, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// =============================================================================
// Refinement histories
// =============================================================================

// SaveRefinementHistory persists the refinement attempts for a job,
// replacing any previous history.
func (s *Store) SaveRefinementHistory(ctx context.Context, history datatypes.RefinementHistory) error {
	if history.JobID == "" {
		return errors.New("job id must not be empty")
	}
	value, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode refinement history: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(refinePrefix+history.JobID), value)
	})
}

// GetRefinementHistory returns a job's refinement history.
func (s *Store) GetRefinementHistory(ctx context.Context, jobID string) (*datatypes.RefinementHistory, error) {
	if jobID == "" {
		return nil, errors.New("job id must not be empty")
	}
	var history *datatypes.RefinementHistory
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(refinePrefix + jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			history = &datatypes.RefinementHistory{}
			return json.Unmarshal(val, history)
		})
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// =============================================================================
// Job completions
// =============================================================================

// SaveJobCompletion persists the terminal record for a job.
func (s *Store) SaveJobCompletion(ctx context.Context, completion datatypes.JobCompletion) error {
	if completion.JobID == "" {
		return errors.New("job id must not be empty")
	}
	value, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("encode job completion: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(jobPrefix+completion.JobID), value)
	})
}

// GetJobCompletion returns a job's terminal record.
func (s *Store) GetJobCompletion(ctx context.Context, jobID string) (*datatypes.JobCompletion, error) {
	if jobID == "" {
		return nil, errors.New("job id must not be empty")
	}
	var completion *datatypes.JobCompletion
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobPrefix + jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			completion = &datatypes.JobCompletion{}
			return json.Unmarshal(val, completion)
		})
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// PassRate returns the fraction of reports in the trailing window
// whose verdict was ACCEPT, along with the report count. A window with
// no reports yields a zero rate.
func (s *Store) PassRate(ctx context.Context, window time.Duration) (float64, int, error) {
	if window <= 0 {
		return 0, 0, errors.New("window must be positive")
	}
	now := time.Now().UTC()
	reports, err := s.ListReportsByTimeRange(ctx, now.Add(-window), now.Add(time.Second))
	if err != nil {
		return 0, 0, err
	}
	if len(reports) == 0 {
		return 0, 0, nil
	}
	accepted := 0
	for _, r := range reports {
		if r.Recommendation == datatypes.RecommendAccept {
			accepted++
		}
	}
	return float64(accepted) / float64(len(reports)), len(reports), nil
}
