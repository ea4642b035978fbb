// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chunker

import (
	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates how many model tokens a chunk consumes.
//
// # Description
//
// Uses tiktoken's cl100k_base encoding when available. If the encoding
// tables cannot be loaded the counter falls back to the chars/4
// heuristic, which overestimates for prose but never underestimates
// badly enough to blow a context window.
type TokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter. Never fails; a missing encoding
// just selects the heuristic path.
func NewTokenCounter() *TokenCounter {
	tke, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{tke: tke}
}

// Count returns the token count for text.
func (c *TokenCounter) Count(text string) int {
	if c.tke == nil {
		return (len(text) + 3) / 4
	}
	return len(c.tke.Encode(text, nil, nil))
}
