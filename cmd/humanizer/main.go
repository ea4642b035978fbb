// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command humanizer is the CLI for the humanization pipeline service.
//
// It submits text to a running pipeline server, follows job progress,
// and prints the rewritten document. Text comes from a file argument
// or from piped stdin.
//
// # Usage
//
//	humanizer run draft.txt --prompt "Rewrite conversationally"
//	cat draft.txt | humanizer run --verify
//	humanizer status <job-id>
//	humanizer health
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
