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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL    string
	prompt       string
	enableVerify bool
	jsonOutput   bool
	pollInterval string

	rootCmd = &cobra.Command{
		Use:   "humanizer",
		Short: "A cli for the text humanization pipeline",
		Long: `Humanizer submits text to a running pipeline server, follows the
job until it finishes, and prints the rewritten document.`,
	}

	// --- Job submission ---
	runCmd = &cobra.Command{
		Use:   "run [file]",
		Short: "Humanize a document (from a file or piped stdin) and wait for the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRunCommand, // Defined in cmd_run.go
	}

	// --- Job administration ---
	statusCmd = &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatusCommand,
	}
	cancelCmd = &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Revoke a running job",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancelCommand,
	}

	// --- Service introspection ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Display the pipeline server's dependency health",
		RunE:  runHealthCommand,
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Display the pipeline server's metrics snapshot",
		RunE:  runMetricsCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:12310",
		"Base URL of the pipeline server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output as JSON for scripting")

	runCmd.Flags().StringVarP(&prompt, "prompt", "p",
		"Rewrite the following text so it reads as natural human writing. Preserve the meaning.",
		"Humanization prompt sent with the job")
	runCmd.Flags().BoolVar(&enableVerify, "verify", false,
		"Run the AI-detection ensemble and refinement loop on the result")
	runCmd.Flags().StringVar(&pollInterval, "poll-interval", "500ms",
		"How often to poll job status")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(metricsCmd)
}
