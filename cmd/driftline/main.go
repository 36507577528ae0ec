// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/driftline/driftline/pkg/logging"
	"github.com/driftline/driftline/services/llm"
	"github.com/driftline/driftline/services/orchestrator/config"
	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/handlers"
	"github.com/driftline/driftline/services/orchestrator/history"
	"github.com/driftline/driftline/services/orchestrator/lifecycle"
	"github.com/driftline/driftline/services/orchestrator/observability"
	"github.com/driftline/driftline/services/orchestrator/pipeline"
	"github.com/driftline/driftline/services/orchestrator/prompts"
	"github.com/driftline/driftline/services/orchestrator/retrieval"
	"github.com/driftline/driftline/services/orchestrator/routes"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("driftline-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// noChunkSearcher stands in when no vector backend is configured. Every
// turn routes direct.
type noChunkSearcher struct{}

func (noChunkSearcher) Search(_ context.Context, _ datatypes.Session, _ string, _ int) ([]retrieval.Chunk, error) {
	return nil, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("DRIFTLINE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logging.Default()
	defer appLogger.Close()
	logger := appLogger.Slog()
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		cleanup, err := initTracer(cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	observability.InitMetrics()

	// --- Storage and retrieval ---
	var weaviateClient *weaviate.Client
	var store history.Store
	var searcher retrieval.Searcher

	if cfg.Weaviate.Host != "" {
		client, err := weaviate.NewClient(weaviate.Config{
			Host:   cfg.Weaviate.Host,
			Scheme: cfg.Weaviate.Scheme,
		})
		if err != nil {
			slog.Error("Failed to create Weaviate client", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := datatypes.EnsureSchema(ctx, client, logger); err != nil {
				slog.Error("Failed to ensure Weaviate schema", "error", err)
			}
			cancel()
			weaviateClient = client
		}
	}

	if weaviateClient != nil {
		store = history.NewWeaviateStore(weaviateClient, logger)
		searcher = retrieval.NewWeaviateSearcher(weaviateClient, logger)
	} else {
		slog.Warn("No Weaviate backend configured. Using in-memory history; all turns route direct.")
		store = history.NewMemoryStore()
		searcher = noChunkSearcher{}
	}

	// --- LLM backend ---
	var llmClient llm.LLMClient
	switch cfg.LLM.Provider {
	case "openai":
		llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM provider, defaulting to ollama", "provider", cfg.LLM.Provider)
		llmClient, err = llm.NewOllamaClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// --- Orchestration core ---
	registry := prompts.NewRegistry()
	gate := retrieval.NewGate(searcher, logger)
	p := pipeline.New(llmClient, gate, searcher, store, registry, pipeline.Config{
		MaxHistoryMessages: cfg.Pipeline.MaxHistoryMessages,
		Persona:            cfg.Pipeline.Persona,
		Temperature:        cfg.Pipeline.Temperature,
		Provider:           cfg.LLM.Provider,
		Model:              cfg.LLM.Model,
	}, logger)
	controller := lifecycle.NewController(store, llmClient, p, registry, lifecycle.Config{
		SeedPrompt: cfg.Lifecycle.SeedPrompt,
	}, logger)
	turnHandler := handlers.NewTurnStreamHandler(controller)

	// --- HTTP ---
	router := gin.Default()
	router.Use(otelgin.Middleware("driftline-orchestrator"))

	routes.SetupRoutes(router, weaviateClient, store, turnHandler)

	log.Println("Starting the orchestrator server on", cfg.Server.Addr)
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
