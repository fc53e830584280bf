// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing selects the single best tool for a natural-language query.
//
// The pipeline runs cheapest-first: follow-up envelope, priority keyword
// rules, abbreviation expansion, then semantic ranking with threshold-based
// ambiguity detection. Every stage either produces a definitive outcome or
// hands the query to the next stage; a query never executes more than one
// tool and never executes a tool below the confidence floor.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/config"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

var routingTracer = otel.Tracer("hydronav.resolve.routing")

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routerOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydronav",
		Subsystem: "routing",
		Name:      "outcome_total",
		Help:      "Router decisions by outcome kind and deciding strategy",
	}, []string{"kind", "reason"})

	routerResolveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydronav",
		Subsystem: "routing",
		Name:      "resolve_latency_seconds",
		Help:      "End-to-end latency of Router.Resolve",
		Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1.0, 3.0},
	})
)

// =============================================================================
// Router
// =============================================================================

// Router orchestrates the tool-resolution pipeline.
//
// # Description
//
// A Router owns no conversation state: disambiguation round-trips through
// the client via envelopes, so two replicas behind a load balancer behave
// identically. All mutable state lives in the embedding cache, which is
// merely a performance artifact.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Router struct {
	registry *agent.Registry
	priority *PriorityMatcher
	expander *entity.Expander
	ranker   *Ranker
	decider  *Decider
	labels   map[string]string
	logger   *slog.Logger
}

// NewRouter wires the pipeline from its already-constructed stages.
//
// # Inputs
//
//   - registry: Tool registry. Registration order is the ranking tiebreak.
//   - rules: Validated routing rules (priority rules, labels, thresholds).
//   - expander: Abbreviation expander built from the plant registry.
//   - cache: Warmed (or warmable) embedding cache.
//   - logger: Structured logger. May be nil.
func NewRouter(registry *agent.Registry, rules *config.RoutingRules, expander *entity.Expander, cache *EmbeddingCache, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		priority: NewPriorityMatcher(rules.PriorityRules),
		expander: expander,
		ranker:   NewRanker(cache),
		decider:  NewDecider(rules.Thresholds, rules.ToolLabels),
		labels:   rules.ToolLabels,
		logger:   logger,
	}
}

// Resolve decides what to do with a query without executing anything.
//
// # Description
//
// Stages, cheapest first:
//
//  1. Structured follow-up envelope: a query carrying the envelope sentinel
//     is a disambiguation answer; the named tool executes directly,
//     bypassing all thresholds.
//  2. Priority keyword rules: deterministic substring overrides for
//     phrasings the embedding model gets wrong.
//  3. Abbreviation expansion, then semantic ranking of the expanded query
//     against every tool's capability text.
//  4. Threshold decision: execute, disambiguate, or decline.
//
// When the embedding provider is unavailable the router degrades to a
// keyword-only pass over each tool's CanHandle: a single lexical claimant
// executes, anything else declines. Resolve itself never returns an error;
// failure modes collapse into a decline outcome.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Router) Resolve(ctx context.Context, query string) *Outcome {
	start := time.Now()
	ctx, span := routingTracer.Start(ctx, "Router.Resolve")
	defer span.End()
	defer func() { routerResolveLatency.Observe(time.Since(start).Seconds()) }()

	outcome := r.resolve(ctx, query)

	routerOutcomeTotal.WithLabelValues(string(outcome.Kind), outcome.Reason).Inc()
	span.SetAttributes(
		attribute.String("outcome", string(outcome.Kind)),
		attribute.String("reason", outcome.Reason),
		attribute.String("tool", outcome.ToolName),
	)
	return outcome
}

func (r *Router) resolve(ctx context.Context, query string) *Outcome {
	if tool, original, err := ParseFollowUp(query, r.labels); err == nil {
		if _, ok := r.registry.Get(tool); !ok {
			r.logger.Warn("router: follow-up names unregistered tool",
				slog.String("tool", tool),
			)
			return &Outcome{Kind: OutcomeDecline, Query: original, Reason: "follow_up"}
		}
		r.logger.Info("router: follow-up envelope resolved",
			slog.String("tool", tool),
		)
		return &Outcome{Kind: OutcomeExecute, ToolName: tool, Query: original, Reason: "follow_up"}
	}

	if tool, reason, ok := r.priority.Match(query); ok {
		if _, registered := r.registry.Get(tool); registered {
			r.logger.Info("router: priority rule matched",
				slog.String("tool", tool),
				slog.String("rule_reason", reason),
			)
			return &Outcome{Kind: OutcomeExecute, ToolName: tool, Query: query, Reason: "priority_rule"}
		}
		r.logger.Warn("router: priority rule targets unregistered tool, continuing",
			slog.String("tool", tool),
		)
	}

	expanded := r.expander.Expand(query)
	if expanded != query {
		r.logger.Debug("router: expanded abbreviations",
			slog.String("expanded", expanded),
		)
	}

	ranked, err := r.ranker.Rank(ctx, expanded, r.registry.Descriptors())
	if err != nil {
		r.logger.Warn("router: semantic ranking unavailable, keyword-only fallback",
			slog.String("error", err.Error()),
		)
		return r.keywordFallback(expanded)
	}

	return r.decider.Decide(expanded, ranked)
}

// keywordFallback routes without embeddings: execute only when exactly one
// tool lexically claims the query.
func (r *Router) keywordFallback(query string) *Outcome {
	var claimant agent.Tool
	for _, tool := range r.registry.Tools() {
		if tool.CanHandle(query) {
			if claimant != nil {
				return &Outcome{Kind: OutcomeDecline, Query: query, Reason: "keyword_fallback"}
			}
			claimant = tool
		}
	}
	if claimant == nil {
		return &Outcome{Kind: OutcomeDecline, Query: query, Reason: "keyword_fallback"}
	}
	return &Outcome{
		Kind:     OutcomeExecute,
		ToolName: claimant.Name(),
		Query:    query,
		Reason:   "keyword_fallback",
	}
}

// Run resolves the query and, when the outcome is execute, runs the
// selected tool.
//
// # Description
//
// Exactly one tool executes per call, or none. Disambiguate and decline
// outcomes return with a nil result and no error; the caller inspects the
// outcome kind.
//
// # Outputs
//
//   - *agent.Result: Tool output, nil unless the outcome was execute.
//   - *Outcome: Always non-nil.
//   - error: RouterError with ErrCodeToolFailed when the selected tool's
//     Execute fails, or ErrCodeUnknownTool if the registry changed between
//     resolve and dispatch.
func (r *Router) Run(ctx context.Context, query string, opts agent.Options) (*agent.Result, *Outcome, error) {
	ctx, span := routingTracer.Start(ctx, "Router.Run")
	defer span.End()

	outcome := r.Resolve(ctx, query)
	if outcome.Kind != OutcomeExecute {
		return nil, outcome, nil
	}

	tool, ok := r.registry.Get(outcome.ToolName)
	if !ok {
		err := NewRouterError(ErrCodeUnknownTool,
			fmt.Sprintf("resolved tool %q is not registered", outcome.ToolName), false)
		span.SetStatus(codes.Error, err.Error())
		return nil, outcome, err
	}

	result, err := tool.Execute(ctx, outcome.Query, opts)
	if err != nil {
		werr := WrapRouterError(ErrCodeToolFailed,
			fmt.Sprintf("tool %q failed", outcome.ToolName), err)
		span.SetStatus(codes.Error, werr.Error())
		return nil, outcome, werr
	}

	r.logger.Info("router: tool executed",
		slog.String("tool", outcome.ToolName),
		slog.String("reason", outcome.Reason),
	)
	return result, outcome, nil
}
