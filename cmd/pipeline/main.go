// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pipeline starts the humanization pipeline HTTP server.
//
// This is the main entry point for the containerized pipeline service.
// It reads configuration from environment variables and starts the
// gateway with the full fan-out/verify stack behind it.
//
// # Environment Variables
//
//   - PIPELINE_PORT: HTTP server port (default: 12310)
//   - PIPELINE_WORKERS: chunk worker pool size (default: 4)
//   - DATA_DIR: Badger storage directory (default: ./data)
//   - SETTINGS_FILE: YAML thresholds file, hot-reloaded (optional)
//   - REWRITER_BACKEND: rewrite provider - openai, ollama (default: openai)
//   - OPENAI_API_KEY: rewrite backend key (or /run/secrets/openai_api_key)
//   - OLLAMA_BASE_URL / OLLAMA_MODEL: local backend settings
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - DETECTOR_API_URL / DETECTOR_API_KEY: commercial detector (optional)
//   - ENABLE_LLM_JUDGE: add the LLM judge detector (default: false)
//   - INFLUX_URL / INFLUX_TOKEN / INFLUX_ORG / INFLUX_BUCKET: snapshot
//     sink (optional)
//
// # Usage
//
//	# Build
//	go build -o pipeline ./cmd/pipeline
//
//	# Run
//	./pipeline
//
//	# Or via container
//	podman-compose up pipeline
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
	"github.com/AleutianAI/HumanizerFOSS/pkg/secrets"
	"github.com/AleutianAI/HumanizerFOSS/pkg/settings"
	"github.com/AleutianAI/HumanizerFOSS/services/gateway"
	"github.com/AleutianAI/HumanizerFOSS/services/llm"
	"github.com/AleutianAI/HumanizerFOSS/services/monitor"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/dispatch"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/merger"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/processor"
	"github.com/AleutianAI/HumanizerFOSS/services/storage"
	"github.com/AleutianAI/HumanizerFOSS/services/verify"
)

func main() {
	// Setup structured logging
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	logger := logging.New(logging.Config{Service: "pipeline", JSON: true})
	defer logger.Close()

	// Tunable thresholds, hot-reloaded when a settings file is given
	tunables := settings.Defaults()
	var watcher *settings.Watcher
	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		var err error
		watcher, err = settings.NewWatcher(path, logger)
		if err != nil {
			log.Fatalf("Failed to load settings file: %v", err)
		}
		defer watcher.Close()
		tunables = watcher.Current()
	}

	workers := getEnvInt("PIPELINE_WORKERS", tunables.Pipeline.Workers)
	dataDir := getEnvString("DATA_DIR", "./data")

	slog.Info("Starting pipeline",
		"port", getEnvInt("PIPELINE_PORT", 12310),
		"workers", workers,
		"data_dir", dataDir,
	)

	// Storage
	store, err := storage.Open(storage.DefaultConfig(dataDir))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	// Rewrite backend
	rewriter, err := buildRewriter()
	if err != nil {
		log.Fatalf("Failed to initialize rewriter: %v", err)
	}

	// Fan-out infrastructure
	registry := dispatch.NewRegistry(dispatch.Hooks{}, logger)
	pool, err := dispatch.NewPool(registry, workers, logger)
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}

	// Observability. The facade observes the dispatch table and every
	// detector run.
	detectors := buildDetectors(logger)
	prom := monitor.NewPromMetrics(prometheus.DefaultRegisterer)
	facade := monitor.NewFacade(monitor.Config{}, pool, rewriter, detectors, store, prom, logger)
	registry.SetHooks(facade.DispatchHooks(pipeline.TaskChunkProcess, pipeline.TaskJobRun))

	proc, err := processor.New(processor.Config{
		MaxRetries: tunables.Pipeline.MaxRetries,
	}, rewriter, processor.NewLogDeadLetter(logger), logger)
	if err != nil {
		log.Fatalf("Failed to create processor: %v", err)
	}

	merge, err := merger.New(merger.Config{}, rewriter, logger)
	if err != nil {
		log.Fatalf("Failed to create merger: %v", err)
	}

	// Detection ensemble
	aggregator := verify.NewAggregator(verify.AggregatorConfig{
		AIThreshold:         tunables.Verify.AIThreshold,
		ConfidenceThreshold: datatypesConfidence(tunables.Verify.ConfidenceThreshold),
	})
	if watcher != nil {
		watcher.OnChange(func(s settings.Settings) {
			aggregator.UpdateThresholds(verify.AggregatorConfig{
				AIThreshold:         s.Verify.AIThreshold,
				ConfidenceThreshold: datatypesConfidence(s.Verify.ConfidenceThreshold),
			})
		})
	}

	ensemble, err := verify.NewEnsemble(detectors, aggregator, logger)
	if err != nil {
		log.Fatalf("Failed to create ensemble: %v", err)
	}
	ensemble.SetObserver(facade)

	loop, err := verify.NewRefinementLoop(rewriter, ensemble, logger)
	if err != nil {
		log.Fatalf("Failed to create refinement loop: %v", err)
	}
	verifier, err := verify.NewService(verify.ServiceConfig{
		MaxIterations:   tunables.Verify.MaxIterations,
		DetectorTimeout: tunables.Verify.DetectorTimeout,
	}, ensemble, loop, store, logger)
	if err != nil {
		log.Fatalf("Failed to create verification service: %v", err)
	}

	// Orchestrator
	orch, err := pipeline.New(pipeline.Config{}, registry, pool, proc, merge, verifier, store, logger)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	if url := os.Getenv("INFLUX_URL"); url != "" {
		sink, err := monitor.NewInfluxSink(monitor.InfluxConfig{
			URL:    url,
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    os.Getenv("INFLUX_ORG"),
			Bucket: os.Getenv("INFLUX_BUCKET"),
		}, facade, logger)
		if err != nil {
			log.Fatalf("Failed to create influx sink: %v", err)
		}
		sink.Start()
		defer sink.Close()
	}

	// Gateway
	svc, err := gateway.New(gateway.Config{
		Port:         getEnvInt("PIPELINE_PORT", 12310),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ChunkSize:    tunables.Pipeline.ChunkSize,
	}, gateway.Deps{
		Orchestrator: orch,
		Facade:       facade,
		Registry:     prometheus.DefaultGatherer,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Pipeline error: %v", err)
	}
}

// buildRewriter picks the rewrite backend from REWRITER_BACKEND.
func buildRewriter() (llm.Rewriter, error) {
	switch backend := getEnvString("REWRITER_BACKEND", "openai"); backend {
	case "openai":
		slog.Info("Using OpenAI rewrite backend")
		return llm.NewOpenAIRewriter()
	case "ollama":
		slog.Info("Using Ollama rewrite backend")
		return llm.NewOllamaRewriter()
	default:
		slog.Warn("Unknown rewrite backend, defaulting to openai", "backend", backend)
		return llm.NewOpenAIRewriter()
	}
}

// buildDetectors assembles the ensemble from the environment. The
// statistical detector is always present; the commercial API and LLM
// judge detectors join when configured.
func buildDetectors(logger *logging.Logger) []verify.Detector {
	detectors := []verify.Detector{verify.NewStatisticalDetector()}

	if url := os.Getenv("DETECTOR_API_URL"); url != "" {
		commercial, err := verify.NewCommercialDetector(verify.CommercialConfig{
			Name:     "commercial",
			Endpoint: url,
			APIKey:   os.Getenv("DETECTOR_API_KEY"),
		})
		if err != nil {
			log.Fatalf("Failed to create commercial detector: %v", err)
		}
		detectors = append(detectors, commercial)
		slog.Info("Commercial detector enabled", "endpoint", url)
	}

	if getEnvBool("ENABLE_LLM_JUDGE", false) {
		enclave, err := secrets.Load("OPENAI_API_KEY", "/run/secrets/openai_api_key")
		if err != nil {
			log.Fatalf("LLM judge requires an OpenAI key: %v", err)
		}
		key, release, err := secrets.Open(enclave)
		if err != nil {
			log.Fatalf("Failed to open OpenAI key: %v", err)
		}
		client := openai.NewClient(key)
		release()

		judge, err := verify.NewLLMDetector(client, os.Getenv("OPENAI_JUDGE_MODEL"))
		if err != nil {
			log.Fatalf("Failed to create LLM judge: %v", err)
		}
		detectors = append(detectors, judge)
		slog.Info("LLM judge detector enabled")
	}

	return detectors
}

// datatypesConfidence converts a settings confidence string to the
// typed form. Settings validation already restricts the values.
func datatypesConfidence(level string) datatypes.Confidence {
	return datatypes.Confidence(level)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
