// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chunker splits raw documents into chunk records ready for
// the fan-out stage.
//
// # Description
//
// Splitting uses a recursive-character strategy that prefers paragraph
// boundaries, then sentence boundaries, then falls back to hard cuts.
// Each resulting chunk gets a fresh UUID and a dense index so the
// merge stage can reassemble the document in order.
//
// # Thread Safety
//
// Splitters and counters are stateless after construction and safe for
// concurrent use.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

// Config controls chunk sizing.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	// Default: 2000.
	ChunkSize int

	// Overlap is the number of characters shared between adjacent
	// chunks. Default: 0; rewritten chunks are joined verbatim, so
	// overlap would duplicate text in the merged output.
	Overlap int
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	return cfg
}

// Split breaks text into ordered chunk records.
//
// # Inputs
//
//   - text: the raw document. Must contain non-whitespace content.
//   - cfg: sizing knobs; zero values take defaults.
//
// # Outputs
//
//   - []datatypes.ChunkRecord: chunks with dense indexes starting at 0.
//   - error: *faults.ConfigurationError for empty input or an overlap
//     at least as large as the chunk size.
func Split(text string, cfg Config) ([]datatypes.ChunkRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &faults.ConfigurationError{Msg: "text to split must not be empty"}
	}
	cfg = applyConfigDefaults(cfg)
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, &faults.ConfigurationError{
			Msg: fmt.Sprintf("overlap %d must be smaller than chunk size %d", cfg.Overlap, cfg.ChunkSize),
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.Overlap),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]datatypes.ChunkRecord, 0, len(segments))
	for _, segment := range segments {
		content := strings.TrimSpace(segment)
		if content == "" {
			continue
		}
		chunks = append(chunks, datatypes.ChunkRecord{
			ID:      uuid.NewString(),
			Content: content,
			Index:   len(chunks),
		})
	}
	if len(chunks) == 0 {
		return nil, &faults.ConfigurationError{Msg: "text to split must not be empty"}
	}
	return chunks, nil
}
