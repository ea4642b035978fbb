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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/HumanizerFOSS/services/monitor"
)

// HealthCheck handles GET /v1/health.
//
// # Description
//
// Probes every injected dependency through the monitoring facade.
// Degraded still returns 200 so load balancers keep routing; only a
// fully unhealthy service returns 503. Without a facade the endpoint
// reports liveness only.
func HealthCheck(facade *monitor.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		if facade == nil {
			c.JSON(http.StatusOK, gin.H{"overall": monitor.StatusHealthy})
			return
		}

		health := facade.HealthCheck(c.Request.Context())
		code := http.StatusOK
		if health.Overall == monitor.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// PipelineMetrics handles GET /v1/pipeline/metrics.
func PipelineMetrics(facade *monitor.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		if facade == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitoring is not configured"})
			return
		}
		c.JSON(http.StatusOK, facade.Metrics(c.Request.Context()))
	}
}
