// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command hydronav starts the Hydronav resolve API server.
//
// Hydronav routes natural-language questions about hydroelectric operations
// data to the single best retrieval tool, resolving plant references to
// canonical codes along the way.
//
// Usage:
//
//	go run ./cmd/hydronav
//	go run ./cmd/hydronav -port 9090
//
// With a local Ollama embedding service:
//
//	EMBEDDING_SERVICE_URL=http://localhost:11434/api/embed go run ./cmd/hydronav
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/resolve/health
//
//	# Route a query without executing
//	curl -X POST http://localhost:8080/v1/resolve/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "useful volume of Balbina"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hydronav/hydronav/services/resolve"
	badgerstore "github.com/hydronav/hydronav/services/resolve/storage/badger"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	withDocSearch := flag.Bool("with-docsearch", false, "Enable the Weaviate document_search tool")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace context flows from inbound
	// headers through all handlers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdownTracing := setupTracing(*debug)
	defer shutdownTracing()

	// Embedding cache BadgerDB. Graceful degradation: if unavailable, the
	// cache runs in in-memory-only mode and warm-up hits the provider.
	cacheDir := os.Getenv("HYDRONAV_CACHE_DIR")
	if cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cacheDir = filepath.Join(home, ".hydronav", "cache")
		}
	}
	var db *badgerstore.DB
	if cacheDir != "" {
		opened, err := badgerstore.Open(cacheDir, slog.Default())
		if err != nil {
			slog.Warn("Embedding cache BadgerDB unavailable, persistence disabled",
				slog.String("path", cacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			db = opened
		}
	}

	ctx := context.Background()
	service, err := resolve.NewService(ctx, resolve.ServiceConfig{
		DB:              db,
		EnableDocSearch: *withDocSearch,
		Logger:          slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to build resolve service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Warm tool embeddings in the background so startup never blocks on the
	// embedding provider. Until warm-up finishes, query-time embeds fill the
	// cache on demand.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in warm-up goroutine recovered", slog.Any("panic", r))
			}
		}()
		warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		start := time.Now()
		if warmErr := service.Warm(warmCtx); warmErr != nil {
			slog.Warn("Tool embedding warm-up failed, keyword-only routing until provider recovers",
				slog.String("error", warmErr.Error()),
				slog.Duration("duration", time.Since(start)),
			)
			return
		}
		slog.Info("Tool embedding warm-up complete", slog.Duration("duration", time.Since(start)))
	}()

	handlers := resolve.NewHandlers(service)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("hydronav-resolve"))
	if *debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	resolve.RegisterRoutes(v1, handlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Hydronav resolve server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown error", slog.String("error", err.Error()))
		}
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close embedding cache BadgerDB", slog.String("error", err.Error()))
			}
		}
	}()

	slog.Info("Starting Hydronav resolve server",
		slog.String("address", srv.Addr),
		slog.Bool("docsearch", *withDocSearch),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupTracing installs a stdout span exporter in debug mode. Production
// deployments point OTEL at a collector instead; without one, spans are
// created but never exported, which is free.
func setupTracing(debug bool) func() {
	if !debug {
		return func() {}
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("Failed to create stdout trace exporter", slog.String("error", err.Error()))
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("Trace provider shutdown error", slog.String("error", err.Error()))
		}
	}
}
