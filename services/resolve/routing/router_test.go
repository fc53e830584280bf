// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/config"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

// =============================================================================
// Fake Tool
// =============================================================================

type fakeTool struct {
	name       string
	capability string
	keywords   []string
	execCount  atomic.Int64
	execErr    error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.capability }

func (f *fakeTool) CanHandle(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (f *fakeTool) Execute(_ context.Context, query string, _ agent.Options) (*agent.Result, error) {
	f.execCount.Add(1)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &agent.Result{ToolName: f.name, Query: query, Summary: "ok"}, nil
}

// deadCache returns an embedding cache whose provider is unreachable, so any
// embed attempt fails fast.
func deadCache(t *testing.T) *EmbeddingCache {
	t.Helper()
	cache := NewEmbeddingCache(slog.Default(), nil)
	cache.url = "http://127.0.0.1:1/api/embed"
	cache.client = &http.Client{Timeout: 100 * time.Millisecond}
	return cache
}

func newTestRouter(t *testing.T, cache *EmbeddingCache, tools ...*fakeTool) (*Router, *agent.Registry) {
	t.Helper()
	registry := agent.NewRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register %q: %v", tool.name, err)
		}
	}
	rules := &config.RoutingRules{
		PriorityRules: testPriorityRules(),
		ToolLabels:    testLabels(),
		Thresholds:    testThresholds(),
	}
	return NewRouter(registry, rules, entity.NewExpander(nil), cache, slog.Default()), registry
}

func reservoirFake() *fakeTool {
	return &fakeTool{
		name:       "reservoir_volume",
		capability: "cap-reservoir",
		keywords:   []string{"reservoir", "volume", "earl"},
	}
}

func generationFake() *fakeTool {
	return &fakeTool{
		name:       "generation_limits",
		capability: "cap-generation",
		keywords:   []string{"generation", "gtmin", "gtmax"},
	}
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestRouter_PriorityRuleNeedsNoEmbeddings(t *testing.T) {
	// The provider is down; the priority rule must still route.
	router, _ := newTestRouter(t, deadCache(t), reservoirFake(), generationFake())

	outcome := router.Resolve(context.Background(), "what is the gtmax of Itaipu")
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if outcome.ToolName != "generation_limits" {
		t.Errorf("tool = %q, want generation_limits", outcome.ToolName)
	}
	if outcome.Reason != "priority_rule" {
		t.Errorf("reason = %q, want priority_rule", outcome.Reason)
	}
}

func TestRouter_FollowUpEnvelopeBypassesThresholds(t *testing.T) {
	router, _ := newTestRouter(t, deadCache(t), reservoirFake(), generationFake())

	env := BuildEnvelope("reservoir_volume", "how full is Balbina")
	outcome := router.Resolve(context.Background(), env)
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if outcome.ToolName != "reservoir_volume" {
		t.Errorf("tool = %q, want reservoir_volume", outcome.ToolName)
	}
	if outcome.Query != "how full is Balbina" {
		t.Errorf("query = %q, want the original query", outcome.Query)
	}
	if outcome.Reason != "follow_up" {
		t.Errorf("reason = %q, want follow_up", outcome.Reason)
	}
}

func TestRouter_FollowUpUnregisteredToolDeclines(t *testing.T) {
	// "document_search" is a known label but nothing registered under it.
	router, _ := newTestRouter(t, deadCache(t), reservoirFake())

	outcome := router.Resolve(context.Background(), BuildEnvelope("document_search", "find the manual"))
	if outcome.Kind != OutcomeDecline {
		t.Errorf("kind = %v, want decline for unregistered follow-up tool", outcome.Kind)
	}
}

func TestRouter_FollowUpRegisteredUnlabeledToolExecutes(t *testing.T) {
	// A tool can be registered without a short label. Its envelope must
	// still execute directly; only registration gates a follow-up, never
	// the label table.
	diagnostics := &fakeTool{
		name:       "diagnostics_dump",
		capability: "cap-diagnostics",
		keywords:   []string{"diagnostics"},
	}
	router, _ := newTestRouter(t, deadCache(t), reservoirFake(), diagnostics)

	outcome := router.Resolve(context.Background(), BuildEnvelope("diagnostics_dump", "dump the case state"))
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if outcome.ToolName != "diagnostics_dump" {
		t.Errorf("tool = %q, want diagnostics_dump", outcome.ToolName)
	}
	if outcome.Reason != "follow_up" {
		t.Errorf("reason = %q, want follow_up", outcome.Reason)
	}
}

func TestRouter_SemanticExecute(t *testing.T) {
	cache := NewEmbeddingCache(slog.Default(), nil)
	router, _ := newTestRouter(t, cache, reservoirFake(), generationFake())

	query := "how much water is stored right now"
	seedVector(cache, query, []float32{1, 0, 0})
	seedVector(cache, "cap-reservoir", []float32{0.9, 0.1, 0})  // cos ≈ 0.99
	seedVector(cache, "cap-generation", []float32{0, 1, 0})     // cos = 0

	outcome := router.Resolve(context.Background(), query)
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if outcome.ToolName != "reservoir_volume" {
		t.Errorf("tool = %q, want reservoir_volume", outcome.ToolName)
	}
	if outcome.Reason != "semantic" {
		t.Errorf("reason = %q, want semantic", outcome.Reason)
	}
}

func TestRouter_SemanticDisambiguate(t *testing.T) {
	cache := NewEmbeddingCache(slog.Default(), nil)
	router, _ := newTestRouter(t, cache, reservoirFake(), generationFake())

	query := "plant data please"
	// Both capabilities land above the search floor within the ambiguity gap.
	seedVector(cache, query, []float32{1, 0})
	seedVector(cache, "cap-reservoir", []float32{0.58, float32(math.Sqrt(1 - 0.58*0.58))})
	seedVector(cache, "cap-generation", []float32{0.52, float32(math.Sqrt(1 - 0.52*0.52))})

	outcome := router.Resolve(context.Background(), query)
	if outcome.Kind != OutcomeDisambiguate {
		t.Fatalf("kind = %v, want disambiguate", outcome.Kind)
	}
	if len(outcome.Options) != 2 {
		t.Fatalf("got %d options, want 2", len(outcome.Options))
	}
	if outcome.Options[0].ToolName != "reservoir_volume" {
		t.Errorf("top option = %q, want reservoir_volume", outcome.Options[0].ToolName)
	}
}

func TestRouter_SemanticDecline(t *testing.T) {
	cache := NewEmbeddingCache(slog.Default(), nil)
	router, _ := newTestRouter(t, cache, reservoirFake(), generationFake())

	query := "what is the weather tomorrow"
	seedVector(cache, query, []float32{1, 0})
	seedVector(cache, "cap-reservoir", []float32{0.2, float32(math.Sqrt(1 - 0.2*0.2))})
	seedVector(cache, "cap-generation", []float32{0.1, float32(math.Sqrt(1 - 0.1*0.1))})

	outcome := router.Resolve(context.Background(), query)
	if outcome.Kind != OutcomeDecline {
		t.Errorf("kind = %v, want decline", outcome.Kind)
	}
}

// =============================================================================
// Keyword Fallback Tests
// =============================================================================

func TestRouter_KeywordFallbackSingleClaimant(t *testing.T) {
	router, _ := newTestRouter(t, deadCache(t), reservoirFake(), generationFake())

	// No priority variant fires and embeddings are down; only the reservoir
	// tool lexically claims "earl".
	outcome := router.Resolve(context.Background(), "show earl for all plants")
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if outcome.ToolName != "reservoir_volume" {
		t.Errorf("tool = %q, want reservoir_volume", outcome.ToolName)
	}
	if outcome.Reason != "keyword_fallback" {
		t.Errorf("reason = %q, want keyword_fallback", outcome.Reason)
	}
}

func TestRouter_KeywordFallbackMultipleClaimantsDecline(t *testing.T) {
	a := reservoirFake()
	a.keywords = []string{"plant"}
	b := generationFake()
	b.keywords = []string{"plant"}
	router, _ := newTestRouter(t, deadCache(t), a, b)

	outcome := router.Resolve(context.Background(), "plant overview")
	if outcome.Kind != OutcomeDecline {
		t.Errorf("kind = %v, want decline when two tools claim the query", outcome.Kind)
	}
}

func TestRouter_KeywordFallbackNoClaimantDeclines(t *testing.T) {
	router, _ := newTestRouter(t, deadCache(t), reservoirFake(), generationFake())

	outcome := router.Resolve(context.Background(), "unrelated question entirely")
	if outcome.Kind != OutcomeDecline {
		t.Errorf("kind = %v, want decline", outcome.Kind)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRouter_RunExecutesExactlyOneTool(t *testing.T) {
	reservoir := reservoirFake()
	generation := generationFake()
	router, _ := newTestRouter(t, deadCache(t), reservoir, generation)

	result, outcome, err := router.Run(context.Background(), "gtmin of Balbina", agent.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if result == nil || result.ToolName != "generation_limits" {
		t.Fatalf("result = %+v, want generation_limits output", result)
	}
	if got := generation.execCount.Load(); got != 1 {
		t.Errorf("generation tool executed %d times, want 1", got)
	}
	if got := reservoir.execCount.Load(); got != 0 {
		t.Errorf("reservoir tool executed %d times, want 0", got)
	}
}

func TestRouter_RunDeclineExecutesNothing(t *testing.T) {
	reservoir := reservoirFake()
	router, _ := newTestRouter(t, deadCache(t), reservoir)

	result, outcome, err := router.Run(context.Background(), "completely off topic", agent.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != OutcomeDecline {
		t.Fatalf("kind = %v, want decline", outcome.Kind)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if reservoir.execCount.Load() != 0 {
		t.Error("declined query must not execute any tool")
	}
}

func TestRouter_RunWrapsToolFailure(t *testing.T) {
	generation := generationFake()
	generation.execErr = errors.New("dataset unreadable")
	router, _ := newTestRouter(t, deadCache(t), generation)

	_, outcome, err := router.Run(context.Background(), "gtmax of Itaipu", agent.Options{})
	if outcome.Kind != OutcomeExecute {
		t.Fatalf("kind = %v, want execute", outcome.Kind)
	}
	if !IsCode(err, ErrCodeToolFailed) {
		t.Errorf("expected ErrCodeToolFailed, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "generation_limits") {
		t.Errorf("error should name the failing tool, got %v", err)
	}
}
