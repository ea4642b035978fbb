// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for job submissions.
//
// These validators run before any work is dispatched, so a malformed
// request fails fast instead of fanning out and dying chunk by chunk.
package validation

import (
	"fmt"
	"strings"
)

// Limits bound the shape of an acceptable job submission.
type Limits struct {
	// MaxChunks caps the number of chunks per job.
	MaxChunks int

	// MaxChunkChars caps the content length of a single chunk.
	MaxChunkChars int

	// MaxPromptChars caps the humanization prompt length.
	MaxPromptChars int
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxChunks:      100,
		MaxChunkChars:  50000,
		MaxPromptChars: 10000,
	}
}

// ValidatePrompt rejects empty prompts and prompts above the size
// ceiling.
func ValidatePrompt(prompt string, limits Limits) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if len(prompt) > limits.MaxPromptChars {
		return fmt.Errorf("prompt exceeds %d characters (got %d)", limits.MaxPromptChars, len(prompt))
	}
	return nil
}

// ValidateChunkCount rejects an empty chunk list and lists above the
// configured ceiling.
func ValidateChunkCount(count int, limits Limits) error {
	if count == 0 {
		return fmt.Errorf("chunk list cannot be empty")
	}
	if count > limits.MaxChunks {
		return fmt.Errorf("chunk count %d exceeds maximum %d", count, limits.MaxChunks)
	}
	return nil
}

// ValidateChunkContent rejects blank content and content above the
// per-chunk size ceiling.
func ValidateChunkContent(index int, content string, limits Limits) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("chunk %d has empty content", index)
	}
	if len(content) > limits.MaxChunkChars {
		return fmt.Errorf("chunk %d content exceeds %d characters (got %d)", index, limits.MaxChunkChars, len(content))
	}
	return nil
}
