// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides the HTTP surface for the humanization
// pipeline.
//
// This package contains the main gateway Service that coordinates the
// outer components of the system: HTTP routing, job submission and
// lifecycle endpoints, websocket progress streaming, health checks,
// and observability infrastructure.
//
// # Usage
//
//	cfg := gateway.Config{Port: 12310}
//	svc, err := gateway.New(cfg, deps)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/HumanizerFOSS/services/gateway/handlers"
	"github.com/AleutianAI/HumanizerFOSS/services/gateway/routes"
	"github.com/AleutianAI/HumanizerFOSS/services/monitor"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/chunker"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gateway service.
//
// # Description
//
// Service abstracts the gateway lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway configuration options.
//
// # Description
//
// Config centralizes all configuration for the gateway service. Values
// can be populated from environment variables, config files, or
// programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, tracing is disabled.
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// ChunkSize is the target chunk length in characters when the
	// gateway splits raw text itself. Default: 2000
	ChunkSize int
}

// Deps carries the gateway's injected collaborators.
//
// # Fields
//
//   - Orchestrator: required; runs submitted jobs.
//   - Facade: optional; backs /v1/health and /v1/pipeline/metrics.
//   - Registry: optional prometheus registry for /metrics. Defaults
//     to prometheus.DefaultGatherer.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Facade       *monitor.Facade
	Registry     prometheus.Gatherer
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	deps          Deps
	router        *gin.Engine
	jobs          *handlers.JobRegistry
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new gateway Service with the given configuration.
//
// # Description
//
// New initializes all gateway components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (if an endpoint is set)
//  3. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - deps: Injected collaborators. Orchestrator must not be nil.
//
// # Outputs
//
//   - Service: Ready-to-run gateway service
//   - error: Non-nil if initialization fails
func New(cfg Config, deps Deps) (Service, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("gateway requires an orchestrator")
	}

	s := &service{
		config: applyConfigDefaults(cfg),
		deps:   deps,
		jobs:   handlers.NewJobRegistry(),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting gateway server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	cfg.EnableMetrics = true
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured
// collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("humanizer-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("humanizer-gateway"))

	routes.SetupRoutes(s.router, routes.Options{
		Orchestrator:  s.deps.Orchestrator,
		Jobs:          s.jobs,
		Facade:        s.deps.Facade,
		Registry:      s.deps.Registry,
		ChunkConfig:   chunker.Config{ChunkSize: s.config.ChunkSize},
		EnableMetrics: s.config.EnableMetrics,
	})
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
