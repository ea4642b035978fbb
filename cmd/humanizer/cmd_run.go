// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// readInputText resolves the document to humanize: an explicit file
// argument wins, otherwise piped stdin is read.
func readInputText(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	}

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("no input: pass a file argument or pipe text on stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// runRunCommand submits the document and waits for the result.
func runRunCommand(cmd *cobra.Command, args []string) error {
	text, err := readInputText(args)
	if err != nil {
		return err
	}

	interval, err := time.ParseDuration(pollInterval)
	if err != nil || interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ctx := cmd.Context()
	client := newAPIClient(serverURL)

	submitted, err := client.Submit(ctx, text, prompt, enableVerify)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "job %s submitted (%d chunks, ~%.0fs)\n",
		submitted.JobID, submitted.ChunkCount, submitted.EstimatedSeconds)

	status, err := client.WaitForJob(ctx, submitted.JobID, interval)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(status)
	}

	switch status.Status {
	case "SUCCESS":
		if status.FailedChunks > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d chunks failed and were dropped\n", status.FailedChunks)
		}
		fmt.Print(status.FinalText)
		return nil
	default:
		return fmt.Errorf("job %s finished as %s: %s", status.JobID, status.Status, status.Error)
	}
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	status, err := newAPIClient(serverURL).Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(status)
	}
	fmt.Printf("job %s: %s (%.0f%%, stage %s)\n",
		status.JobID, status.Status, status.Progress.Percentage, status.Progress.Stage)
	return nil
}

func runCancelCommand(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient(serverURL).Cancel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
	health, err := newAPIClient(serverURL).Health(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(health)
}

func runMetricsCommand(cmd *cobra.Command, args []string) error {
	snap, err := newAPIClient(serverURL).Metrics(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
