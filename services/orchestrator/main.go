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
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/shrutib31/soul-buddy/services/classifier"
	"github.com/shrutib31/soul-buddy/services/crypto"
	"github.com/shrutib31/soul-buddy/services/generator"
	"github.com/shrutib31/soul-buddy/services/graph/nodes"
	"github.com/shrutib31/soul-buddy/services/guardrail"
	"github.com/shrutib31/soul-buddy/services/identity"
	"github.com/shrutib31/soul-buddy/services/llm"
	"github.com/shrutib31/soul-buddy/services/orchestrator/config"
	"github.com/shrutib31/soul-buddy/services/orchestrator/middleware"
	"github.com/shrutib31/soul-buddy/services/orchestrator/routes"
	"github.com/shrutib31/soul-buddy/services/privacy"
	"github.com/shrutib31/soul-buddy/services/store"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "soulbuddy-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("soulbuddy-orchestrator")))
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// --- storage + crypto ---
	sealer, err := crypto.NewLocalSeedEncrypter(cfg.DeploymentSecret)
	if err != nil {
		log.Fatalf("failed to create seed encrypter: %v", err)
	}
	keys := crypto.NewKeyManager(sealer)
	defer keys.Close()

	st, err := store.NewStore(cfg.DBPath, keys, logger)
	if err != nil {
		log.Fatalf("failed to open conversation store: %v", err)
	}
	defer st.Close()

	resolver := identity.NewResolver(st, identity.DefaultAnonymousExpiration, logger)

	// --- model backends ---
	ollamaClient, err := llm.NewOllamaClient()
	if err != nil {
		log.Fatalf("failed to create ollama client: %v", err)
	}
	var remote llm.LLMClient
	if openaiClient, err := llm.NewOpenAIClient(); err != nil {
		slog.Warn("OpenAI backend unavailable, generating with ollama only", "error", err)
	} else {
		remote = openaiClient
	}

	cls := classifier.New(
		classifier.NewHTTPScoreModel(cfg.ScorerURL),
		classifier.Config{CacheTTL: 5 * time.Minute},
	)

	gen := generator.New(ollamaClient, remote, generator.Config{
		Strategy:  generator.Strategy(cfg.Settings.Generation.Strategy),
		MaxTokens: cfg.Settings.Generation.MaxTokens,
	}, logger)

	rules := guardrail.NewRuleSet(logger)
	if path := cfg.Settings.Guardrail.RulesFile; path != "" {
		if err := rules.LoadFile(path); err != nil {
			log.Fatalf("failed to load guardrail rules from %s: %v", path, err)
		}
	}
	defer rules.Close()
	checker := guardrail.NewChecker(ollamaClient, rules, logger)

	// --- turn pipeline ---
	pipeline, err := nodes.NewPipeline(nodes.Dependencies{
		Resolver:    resolver,
		Redactor:    privacy.NewRedactor(),
		Classifier:  cls,
		Turns:       st,
		Drafter:     gen,
		Reviewer:    checker,
		MaxAttempts: cfg.Settings.Guardrail.MaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to assemble turn pipeline: %v", err)
	}

	// --- HTTP surface ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("soulbuddy-orchestrator"))

	routes.SetupRoutes(router, routes.Deps{
		Runner:    pipeline,
		Turns:     st,
		Lifecycle: resolver,
		Limiter:   middleware.NewRateLimiter(cfg.Settings.RateLimit.RPS, cfg.Settings.RateLimit.Burst),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("orchestrator listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Drain in-flight turns before exit; a killed turn mid-store leaves a
	// half-written transcript.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
