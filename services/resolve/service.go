// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve wires the tool-resolution pipeline into an HTTP service:
// tool registry, plant registry, routing rules, embedding cache and router,
// exposed under /v1/resolve.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/agent/tools"
	"github.com/hydronav/hydronav/services/resolve/config"
	"github.com/hydronav/hydronav/services/resolve/docsearch"
	"github.com/hydronav/hydronav/services/resolve/entity"
	"github.com/hydronav/hydronav/services/resolve/routing"
	badgerstore "github.com/hydronav/hydronav/services/resolve/storage/badger"
)

// ServiceConfig configures a resolve Service.
type ServiceConfig struct {
	// DB is the shared BadgerDB for embedding persistence. Nil disables
	// persistence (vectors live only in process memory).
	DB *badgerstore.DB

	// EnableDocSearch registers the Weaviate-backed document_search tool.
	// Off by default so environments without Weaviate still start.
	EnableDocSearch bool

	// Logger is the service logger. Nil uses slog.Default().
	Logger *slog.Logger
}

// Service owns the resolution pipeline and its dependencies.
//
// # Thread Safety
//
// Safe for concurrent use after New returns.
type Service struct {
	router   *routing.Router
	registry *agent.Registry
	matcher  *entity.Matcher
	plants   *entity.Registry
	cache    *routing.EmbeddingCache
	logger   *slog.Logger
}

// NewService builds the full pipeline.
//
// # Description
//
// Loads routing rules and the plant table, builds the matcher and the tool
// set, and wires the router. Rule load failure is fatal (the rules ship
// embedded, so failure means a broken build or a bad override); plant table
// failure degrades the matcher instead of failing startup.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rules, err := config.GetRoutingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: load routing rules: %w", err)
	}

	plants := entity.LoadRegistry(ctx, logger)
	matcher := entity.NewMatcher(plants, nil, rules.Thresholds.FuzzyThreshold, logger)

	registry := agent.NewRegistry()
	if err := registry.Register(tools.NewReservoirVolumeTool(matcher, plants, logger)); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if err := registry.Register(tools.NewGenerationLimitsTool(matcher, plants, logger)); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if cfg.EnableDocSearch {
		search, serr := docsearch.NewSearchTool(logger)
		if serr != nil {
			return nil, fmt.Errorf("resolve: %w", serr)
		}
		if err := registry.Register(search); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	var store routing.CacheStore
	if cfg.DB != nil {
		store = routing.NewBadgerCacheStore(cfg.DB, logger)
	}
	cache := routing.NewEmbeddingCache(logger, store)
	router := routing.NewRouter(registry, rules, matcher.Expander(), cache, logger)

	return &Service{
		router:   router,
		registry: registry,
		matcher:  matcher,
		plants:   plants,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Warm pre-computes tool embeddings. Call once at startup; failure leaves
// the service functional with keyword-only routing.
func (s *Service) Warm(ctx context.Context) error {
	return s.cache.Warm(ctx, s.registry.Descriptors())
}

// Router returns the wired router.
func (s *Service) Router() *routing.Router {
	return s.router
}

// Registry returns the tool registry.
func (s *Service) Registry() *agent.Registry {
	return s.registry
}

// Matcher returns the plant entity matcher.
func (s *Service) Matcher() *entity.Matcher {
	return s.matcher
}

// Plants returns the plant registry.
func (s *Service) Plants() *entity.Registry {
	return s.plants
}
