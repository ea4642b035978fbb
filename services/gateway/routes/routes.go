// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/HumanizerFOSS/services/gateway/handlers"
	"github.com/AleutianAI/HumanizerFOSS/services/monitor"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/chunker"
)

// Options carries everything route registration needs.
type Options struct {
	Orchestrator  *pipeline.Orchestrator
	Jobs          *handlers.JobRegistry
	Facade        *monitor.Facade
	Registry      prometheus.Gatherer
	ChunkConfig   chunker.Config
	EnableMetrics bool
}

func SetupRoutes(router *gin.Engine, opts Options) {
	router.GET("/health", handlers.HealthCheck(opts.Facade))

	if opts.EnableMetrics {
		gatherer := opts.Registry
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/health", handlers.HealthCheck(opts.Facade))

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", handlers.SubmitJob(opts.Orchestrator, opts.Jobs, opts.ChunkConfig))
			jobs.GET("/:id", handlers.GetJobStatus(opts.Orchestrator, opts.Jobs))
			jobs.DELETE("/:id", handlers.CancelJob(opts.Orchestrator, opts.Jobs))
			jobs.GET("/:id/stream", handlers.StreamJob(opts.Orchestrator, opts.Jobs))
		}

		pipelineAdmin := v1.Group("/pipeline")
		{
			pipelineAdmin.GET("/metrics", handlers.PipelineMetrics(opts.Facade))
		}
	}
}
