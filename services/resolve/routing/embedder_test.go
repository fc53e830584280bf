// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hydronav/hydronav/services/resolve/agent"
)

// =============================================================================
// Mock Embedding Server
// =============================================================================

// mockEmbedServer returns deterministic unit vectors derived from the input
// text, so two different texts get different directions and equal texts get
// equal vectors. callCount is atomic because Warm() fires concurrent
// requests.
func mockEmbedServer(t *testing.T, dim int, callCount *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callCount != nil {
			callCount.Add(1)
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		vec := make([]float32, dim)
		seed := float32(len(req.Input)%dim+1) / float32(dim)
		for i := range vec {
			vec[i] = seed * float32(i+1)
		}

		resp := embedResponse{Embeddings: [][]float32{vec}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestCache(t *testing.T, serverURL string) *EmbeddingCache {
	t.Helper()
	cache := NewEmbeddingCache(slog.Default(), nil)
	cache.url = serverURL
	cache.model = "test-model"
	return cache
}

func testDescriptors() []agent.Descriptor {
	return []agent.Descriptor{
		{Name: "reservoir_volume", Capability: "Retrieves reservoir storage and useful volume data"},
		{Name: "generation_limits", Capability: "Retrieves minimum and maximum generation limits"},
		{Name: "document_search", Capability: "Searches ingested documents with free text"},
	}
}

// =============================================================================
// Embed Tests
// =============================================================================

func TestEmbeddingCache_Embed_CacheHitSkipsProvider(t *testing.T) {
	var calls atomic.Int64
	server := mockEmbedServer(t, 8, &calls)
	defer server.Close()

	cache := newTestCache(t, server.URL)

	first, err := cache.Embed(context.Background(), "useful volume of balbina")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Embed(context.Background(), "useful volume of balbina")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1 (second lookup must hit the cache)", calls.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cache returned a different vector for the same text")
		}
	}
}

func TestEmbeddingCache_Embed_UnitNormalized(t *testing.T) {
	server := mockEmbedServer(t, 8, nil)
	defer server.Close()

	cache := newTestCache(t, server.URL)
	vec, err := cache.Embed(context.Background(), "some query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("vector not unit-normalized: norm=%.6f", math.Sqrt(sum))
	}
}

func TestEmbeddingCache_Embed_ProviderDown(t *testing.T) {
	server := mockEmbedServer(t, 8, nil)
	server.Close() // all calls fail with connection refused

	cache := newTestCache(t, server.URL)
	cache.client = &http.Client{Timeout: 100 * time.Millisecond}

	_, err := cache.Embed(context.Background(), "query")
	if err == nil {
		t.Fatal("expected error when provider is unreachable")
	}
	if !IsCode(err, ErrCodeEmbeddingUnavailable) {
		t.Errorf("expected ErrCodeEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbeddingCache_Embed_QueryTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(embeddingQueryTimeout + time.Second)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer slow.Close()

	cache := newTestCache(t, slow.URL)

	start := time.Now()
	_, err := cache.Embed(context.Background(), "query")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsCode(err, ErrCodeEmbeddingUnavailable) {
		t.Errorf("expected ErrCodeEmbeddingUnavailable, got %v", err)
	}
	if elapsed > embeddingQueryTimeout+time.Second {
		t.Errorf("Embed took %v, want under %v", elapsed, embeddingQueryTimeout+time.Second)
	}
}

func TestEmbeddingCache_Embed_ZeroVectorRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0, 0, 0}}})
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if _, err := cache.Embed(context.Background(), "query"); err == nil {
		t.Error("expected error for zero vector")
	}
}

// =============================================================================
// Warm Tests
// =============================================================================

func TestEmbeddingCache_Warm_EmptyDescriptors(t *testing.T) {
	server := mockEmbedServer(t, 4, nil)
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if err := cache.Warm(context.Background(), nil); err != nil {
		t.Errorf("expected no error for empty descriptors, got %v", err)
	}
}

func TestEmbeddingCache_Warm_Success(t *testing.T) {
	server := mockEmbedServer(t, 8, nil)
	defer server.Close()

	cache := newTestCache(t, server.URL)
	descs := testDescriptors()

	if err := cache.Warm(context.Background(), descs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range descs {
		if _, ok := cache.CachedVector(d.Capability); !ok {
			t.Errorf("expected cached vector for %q", d.Name)
		}
	}
}

func TestEmbeddingCache_Warm_AllFail(t *testing.T) {
	server := mockEmbedServer(t, 8, nil)
	server.Close()

	cache := newTestCache(t, server.URL)
	cache.client = &http.Client{Timeout: 100 * time.Millisecond}

	err := cache.Warm(context.Background(), testDescriptors())
	if err == nil {
		t.Fatal("expected error when every warm-up embed fails")
	}
	if !IsCode(err, ErrCodeEmbeddingUnavailable) {
		t.Errorf("expected ErrCodeEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbeddingCache_Warm_UsesStore(t *testing.T) {
	var calls atomic.Int64
	server := mockEmbedServer(t, 8, &calls)
	defer server.Close()

	store := newMemCacheStore()

	// First cache warms against the provider and persists.
	first := NewEmbeddingCache(slog.Default(), store)
	first.url = server.URL
	first.model = "test-model"
	if err := first.Warm(context.Background(), testDescriptors()); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	warmCalls := calls.Load()
	if warmCalls == 0 {
		t.Fatal("expected provider calls during first warm-up")
	}

	// Second cache with the same store and corpus loads without the provider.
	second := NewEmbeddingCache(slog.Default(), store)
	second.url = server.URL
	second.model = "test-model"
	if err := second.Warm(context.Background(), testDescriptors()); err != nil {
		t.Fatalf("warm from store failed: %v", err)
	}
	if calls.Load() != warmCalls {
		t.Errorf("second warm-up hit the provider %d extra times, want 0", calls.Load()-warmCalls)
	}
	for _, d := range testDescriptors() {
		if _, ok := second.CachedVector(d.Capability); !ok {
			t.Errorf("expected store-loaded vector for %q", d.Name)
		}
	}
}

// memCacheStore is an in-memory CacheStore for tests.
type memCacheStore struct {
	entries map[string]map[string][]float32
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{entries: make(map[string]map[string][]float32)}
}

func (s *memCacheStore) LoadEmbeddings(_ context.Context, corpusHash string) (map[string][]float32, error) {
	return s.entries[corpusHash], nil
}

func (s *memCacheStore) SaveEmbeddings(_ context.Context, corpusHash string, vectors map[string][]float32) error {
	s.entries[corpusHash] = vectors
	return nil
}
