// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/chunker"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// ChunkInput is one pre-split chunk in a submission.
type ChunkInput struct {
	ID      string `json:"id"`
	Content string `json:"content" binding:"required"`
	Index   int    `json:"index"`
}

// SubmitJobRequest is the POST /v1/jobs payload.
//
// # Description
//
// Callers provide either raw text (the gateway splits it) or a
// pre-split chunk list, never both. The prompt steers the rewrite.
type SubmitJobRequest struct {
	Text               string       `json:"text"`
	Chunks             []ChunkInput `json:"chunks" binding:"omitempty,dive"`
	Prompt             string       `json:"prompt" binding:"required"`
	EnableVerification bool         `json:"enable_verification"`
	JobID              string       `json:"job_id"`
}

// SubmitJobResponse is the POST /v1/jobs reply.
type SubmitJobResponse struct {
	JobID            string  `json:"job_id"`
	WorkflowType     string  `json:"workflow_type"`
	ChunkCount       int     `json:"chunk_count"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

// SubmitJob handles POST /v1/jobs.
func SubmitJob(orch *pipeline.Orchestrator, jobs *JobRegistry, chunkCfg chunker.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var chunks []datatypes.ChunkRecord
		switch {
		case req.Text != "" && len(req.Chunks) > 0:
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide either text or chunks, not both"})
			return
		case req.Text != "":
			split, err := chunker.Split(req.Text, chunkCfg)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			chunks = split
		case len(req.Chunks) > 0:
			chunks = make([]datatypes.ChunkRecord, len(req.Chunks))
			for i, in := range req.Chunks {
				chunks[i] = datatypes.ChunkRecord{ID: in.ID, Content: in.Content, Index: in.Index}
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide text or a chunk list"})
			return
		}

		result, err := orch.Start(c.Request.Context(), chunks, req.Prompt, req.EnableVerification, req.JobID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		jobs.Put(result.JobID, result.Handles)
		slog.Info("job submitted",
			"job_id", result.JobID,
			"workflow", result.WorkflowType,
			"chunks", len(chunks))

		c.JSON(http.StatusAccepted, SubmitJobResponse{
			JobID:            result.JobID,
			WorkflowType:     result.WorkflowType,
			ChunkCount:       len(chunks),
			EstimatedSeconds: result.EstimatedCompletionTime.Seconds(),
		})
	}
}

// jobStatusBody extends the orchestrator's status view with the final
// payload once the job is done.
type jobStatusBody struct {
	*pipeline.StatusResult
	FinalText    string                        `json:"final_text,omitempty"`
	FailedChunks int                           `json:"failed_chunks,omitempty"`
	Report       *datatypes.VerificationReport `json:"report,omitempty"`
}

func statusBody(status *pipeline.StatusResult) jobStatusBody {
	body := jobStatusBody{StatusResult: status}
	if status.Outcome != nil {
		body.FinalText = status.Outcome.FinalText
		body.FailedChunks = status.Outcome.FailedChunks
		body.Report = status.Outcome.Report
	}
	return body
}

// GetJobStatus handles GET /v1/jobs/:id.
func GetJobStatus(orch *pipeline.Orchestrator, jobs *JobRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		handles, ok := jobs.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + jobID})
			return
		}

		status, err := orch.Status(c.Request.Context(), jobID, handles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, statusBody(status))
	}
}

// CancelJob handles DELETE /v1/jobs/:id.
func CancelJob(orch *pipeline.Orchestrator, jobs *JobRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		handles, ok := jobs.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + jobID})
			return
		}

		result, err := orch.Cancel(c.Request.Context(), jobID, handles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
