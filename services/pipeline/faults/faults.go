// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faults defines the error taxonomy shared across the
// humanization pipeline.
//
// Two axes matter to callers: whether a fault is retryable
// (TransientError vs PermanentError), and which component boundary it
// belongs to (chunk, detector, merge, configuration). Component-local
// faults are caught and degraded in place; job-level faults propagate
// to the caller.
//
// # Classification
//
// External HTTP faults are classified with ClassifyStatus. The rule is
// reproduced exactly from the rewrite-service contract:
//
//   - 429            -> transient (RATE_LIMITED)
//   - 500-599        -> transient (SERVER_ERROR)
//   - 401, 403       -> permanent (AUTH_ERROR)
//   - 400            -> permanent (BAD_REQUEST)
//   - other 4xx      -> permanent (CLIENT_ERROR)
//   - anything else  -> transient (UNKNOWN_ERROR), fail-safe toward retrying
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies the classified cause of an external fault.
type Code string

const (
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeServerError  Code = "SERVER_ERROR"
	CodeAuthError    Code = "AUTH_ERROR"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeClientError  Code = "CLIENT_ERROR"
	CodeUnknownError Code = "UNKNOWN_ERROR"
)

// =============================================================================
// Transient / Permanent
// =============================================================================

// TransientError is a retryable fault (network, rate limit, server
// fault). Units of work hitting a TransientError are retried with
// backoff up to the retry budget, then dead-lettered.
type TransientError struct {
	Code       Code
	StatusCode int
	// RetryAfter is a server-suggested wait, zero when absent.
	RetryAfter time.Duration
	Msg        string
	cause      error
}

// NewTransient creates a TransientError with an optional wrapped cause.
func NewTransient(code Code, statusCode int, msg string, cause error) *TransientError {
	return &TransientError{Code: code, StatusCode: statusCode, Msg: msg, cause: cause}
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient fault (%s, status %d): %s", e.Code, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("transient fault (%s): %s", e.Code, e.Msg)
}

func (e *TransientError) Unwrap() error { return e.cause }

// PermanentError is a non-retryable fault (validation, auth, malformed
// request). It is surfaced to the caller immediately.
type PermanentError struct {
	Code       Code
	StatusCode int
	Msg        string
	cause      error
}

// NewPermanent creates a PermanentError with an optional wrapped cause.
func NewPermanent(code Code, statusCode int, msg string, cause error) *PermanentError {
	return &PermanentError{Code: code, StatusCode: statusCode, Msg: msg, cause: cause}
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("permanent fault (%s, status %d): %s", e.Code, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("permanent fault (%s): %s", e.Code, e.Msg)
}

func (e *PermanentError) Unwrap() error { return e.cause }

// =============================================================================
// Component Faults
// =============================================================================

// ChunkProcessingError is a chunk-specific integrity fault (empty
// content, oversize, missing after merge). It never aborts sibling
// chunks.
type ChunkProcessingError struct {
	ChunkID string
	Msg     string
}

func (e *ChunkProcessingError) Error() string {
	return fmt.Sprintf("chunk %s: %s", e.ChunkID, e.Msg)
}

// ConfigurationError is an invalid-setup fault. It fails fast before
// any work is dispatched.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// DetectorError is a per-detector fault. It never propagates to fail
// the ensemble; the detector's score is substituted with a neutral one
// and the error text is recorded on the score.
type DetectorError struct {
	Detector string
	Msg      string
	cause    error
}

// NewDetectorError creates a DetectorError with an optional wrapped cause.
func NewDetectorError(detector, msg string, cause error) *DetectorError {
	return &DetectorError{Detector: detector, Msg: msg, cause: cause}
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %s", e.Detector, e.Msg)
}

func (e *DetectorError) Unwrap() error { return e.cause }

// MergeError is raised only for a structurally empty result set.
// Missing indices degrade to a logged warning instead.
type MergeError struct {
	Msg string
}

func (e *MergeError) Error() string {
	return "merge error: " + e.Msg
}

// =============================================================================
// Classification
// =============================================================================

// ClassifyStatus converts an HTTP status from an external service into
// the matching taxonomy error. Unrecognized statuses are treated as
// transient so an unknown fault errs toward retrying.
func ClassifyStatus(statusCode int, msg string) error {
	switch {
	case statusCode == 429:
		return NewTransient(CodeRateLimited, statusCode, msg, nil)
	case statusCode >= 500 && statusCode < 600:
		return NewTransient(CodeServerError, statusCode, msg, nil)
	case statusCode == 401 || statusCode == 403:
		return NewPermanent(CodeAuthError, statusCode, msg, nil)
	case statusCode == 400:
		return NewPermanent(CodeBadRequest, statusCode, msg, nil)
	case statusCode >= 400 && statusCode < 500:
		return NewPermanent(CodeClientError, statusCode, msg, nil)
	default:
		return NewTransient(CodeUnknownError, statusCode, msg, nil)
	}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryAfterOf extracts the server-suggested wait from a transient
// error chain, zero when none is present.
func RetryAfterOf(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
