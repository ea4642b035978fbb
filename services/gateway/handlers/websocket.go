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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

// streamInterval is how often progress updates go out.
const streamInterval = 500 * time.Millisecond

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// StreamJob handles GET /v1/jobs/:id/stream.
//
// # Description
//
// Upgrades the connection and pushes the job's status every
// streamInterval until the job reaches a terminal state. The terminal
// status message includes the final text, then the connection closes.
func StreamJob(orch *pipeline.Orchestrator, jobs *JobRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		handles, ok := jobs.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + jobID})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Websocket client connected", "job_id", jobID)

		ctx := c.Request.Context()
		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()

		for {
			status, err := orch.Status(ctx, jobID, handles)
			if err != nil {
				_ = sendJSON(ws, gin.H{"error": err.Error()})
				return
			}
			if err := sendJSON(ws, statusBody(status)); err != nil {
				return
			}
			if status.Status.Terminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
