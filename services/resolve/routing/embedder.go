// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/hydronav/hydronav/services/resolve/agent"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	embeddingCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydronav",
		Subsystem: "routing",
		Name:      "embedding_cache_total",
		Help:      "Embedding cache lookups by outcome: hit, miss, error",
	}, []string{"outcome"})

	embeddingCallLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydronav",
		Subsystem: "routing",
		Name:      "embedding_call_latency_seconds",
		Help:      "Latency of outbound embedding provider calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0},
	})
)

// =============================================================================
// Embedding Cache
// =============================================================================

// embeddingWarmConcurrency bounds parallel provider calls during warm-up.
// Each call is independent and idempotent, so racing duplicates is harmless.
const embeddingWarmConcurrency = 8

// embeddingQueryTimeout is the per-call timeout for query-time embedding.
// Embed sits on the hot path; on timeout the router degrades to keyword-only
// routing rather than blocking the query.
const embeddingQueryTimeout = 3 * time.Second

// embedRequest is the Ollama /api/embed request body.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the Ollama /api/embed response body.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbeddingCache is a content-addressed cache of text→vector results for
// both tool capability texts and user queries.
//
// # Description
//
// Entries are keyed by the SHA-256 of the exact text embedded; a hit skips
// the provider call entirely, and an edited capability text hashes
// differently so stale vectors are unreachable rather than invalidated
// explicitly. Vectors are unit-normalized at write time so ranking reduces
// to a dot product.
//
// Writes are idempotent (same text → same vector), so concurrent population
// needs no coordination beyond the map lock: last-writer-wins converges.
//
// Tool vectors persist in BadgerDB between restarts keyed by a corpus hash
// of all capability texts plus the model name; see CacheStore. A nil store
// means in-memory-only mode — correct for tests.
//
// # Thread Safety
//
// Safe for concurrent use.
type EmbeddingCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32 // sha256(text) hex → unit-normalized vector

	url    string
	model  string
	client *http.Client
	logger *slog.Logger
	store  CacheStore
}

// NewEmbeddingCache creates an unwarmed embedding cache.
//
// # Description
//
// Reads EMBEDDING_SERVICE_URL and EMBEDDING_MODEL from the environment,
// falling back to a local Ollama endpoint and nomic-embed-text. Call Warm()
// at startup to pre-compute tool vectors; Embed() works without warming but
// pays a provider call per novel text.
//
// # Inputs
//
//   - logger: Logger for warnings and debug output. May be nil.
//   - store: Optional BadgerDB persistence. Nil disables persistence.
func NewEmbeddingCache(logger *slog.Logger, store CacheStore) *EmbeddingCache {
	if logger == nil {
		logger = slog.Default()
	}

	url := os.Getenv("EMBEDDING_SERVICE_URL")
	if url == "" {
		url = "http://localhost:11434/api/embed"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}

	return &EmbeddingCache{
		vectors: make(map[string][]float32),
		url:     url,
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second, // warm-up calls; query calls get a tighter per-call ctx
		},
		logger: logger,
		store:  store,
	}
}

// Model returns the embedding model name in use.
func (c *EmbeddingCache) Model() string {
	return c.model
}

// Embed returns the unit-normalized vector for text, from cache when
// available.
//
// # Outputs
//
//   - []float32: Unit-normalized embedding vector.
//   - error: RouterError with ErrCodeEmbeddingUnavailable when the provider
//     call fails or times out. Callers degrade to keyword-only routing.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := textHash(text)

	c.mu.RLock()
	vec, hit := c.vectors[key]
	c.mu.RUnlock()
	if hit {
		embeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	embeddingCacheTotal.WithLabelValues("miss").Inc()

	callCtx, cancel := context.WithTimeout(ctx, embeddingQueryTimeout)
	defer cancel()

	raw, err := c.callProvider(callCtx, text)
	if err != nil {
		embeddingCacheTotal.WithLabelValues("error").Inc()
		return nil, WrapRouterError(ErrCodeEmbeddingUnavailable, "embedding provider call failed", err)
	}

	normalized, ok := unitNormalize(raw)
	if !ok {
		embeddingCacheTotal.WithLabelValues("error").Inc()
		return nil, NewRouterError(ErrCodeEmbeddingUnavailable, "embedding provider returned zero vector", true)
	}

	c.mu.Lock()
	c.vectors[key] = normalized
	c.mu.Unlock()

	return normalized, nil
}

// CachedVector returns the cached vector for text without triggering a
// provider call.
func (c *EmbeddingCache) CachedVector(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[textHash(text)]
	return vec, ok
}

// Warm pre-computes vectors for every tool capability text.
//
// # Description
//
// Checks the persistent store first: a corpus-hash hit loads all vectors
// without any provider call. Otherwise capability texts are embedded with a
// bounded worker pool (embeddingWarmConcurrency). Individual failures are
// logged and skipped — the affected tool simply misses from ranking until
// its text is embedded on demand. Newly computed vectors are persisted
// best-effort.
//
// # Inputs
//
//   - ctx: Context for the warm-up calls. Cancellation aborts pending embeds.
//   - descs: Tool descriptors to embed. Empty slice is a no-op.
//
// # Outputs
//
//   - error: Non-nil only when the provider is completely unreachable
//     (every call failed).
//
// # Thread Safety
//
// Not safe to call concurrently with itself. Call once at startup.
func (c *EmbeddingCache) Warm(ctx context.Context, descs []agent.Descriptor) error {
	if len(descs) == 0 {
		return nil
	}

	corpusHash := computeCorpusHash(descs, c.model)
	if c.store != nil {
		cached, err := c.store.LoadEmbeddings(ctx, corpusHash)
		if err != nil {
			c.logger.Warn("embedding cache: store load failed, continuing with provider warm-up",
				slog.String("error", err.Error()),
			)
		} else if len(cached) > 0 {
			c.mu.Lock()
			for key, vec := range cached {
				c.vectors[key] = vec // normalized before save
			}
			c.mu.Unlock()
			c.logger.Info("embedding cache: loaded from store, skipping provider warm-up",
				slog.Int("vector_count", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return nil
		}
	}

	c.logger.Info("embedding cache: starting warm-up",
		slog.Int("tool_count", len(descs)),
		slog.String("url", c.url),
		slog.String("model", c.model),
	)

	type result struct {
		key    string
		vector []float32
	}

	resultCh := make(chan result, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, embeddingWarmConcurrency)

	for _, desc := range descs {
		d := desc
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			raw, err := c.callProvider(gctx, d.Capability)
			if err != nil {
				c.logger.Warn("embedding cache: failed to embed tool capability",
					slog.String("tool", d.Name),
					slog.String("error", err.Error()),
				)
				// Individual failure is not fatal.
				return nil
			}
			if normalized, ok := unitNormalize(raw); ok {
				resultCh <- result{key: textHash(d.Capability), vector: normalized}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("embedding cache warm-up: %w", err)
	}
	close(resultCh)

	c.mu.Lock()
	embedded := 0
	for r := range resultCh {
		c.vectors[r.key] = r.vector
		embedded++
	}
	var toSave map[string][]float32
	if embedded > 0 && c.store != nil {
		toSave = make(map[string][]float32, len(c.vectors))
		for k, v := range c.vectors {
			toSave[k] = v
		}
	}
	c.mu.Unlock()

	c.logger.Info("embedding cache: warm-up complete",
		slog.Int("embedded_tools", embedded),
		slog.Int("requested_tools", len(descs)),
	)

	if embedded == 0 {
		return NewRouterError(ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("embedding provider unreachable at %s", c.url), true)
	}

	// Persist after releasing the lock; failure is non-fatal, vectors are in RAM.
	if toSave != nil {
		if err := c.store.SaveEmbeddings(ctx, corpusHash, toSave); err != nil {
			c.logger.Warn("embedding cache: failed to persist vectors",
				slog.String("error", err.Error()),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
		}
	}

	return nil
}

// callProvider calls the embedding endpoint and returns the raw vector.
func (c *EmbeddingCache) callProvider(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	defer func() { embeddingCallLatency.Observe(time.Since(start).Seconds()) }()

	reqBody, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return parsed.Embeddings[0], nil
}

// =============================================================================
// Vector Helpers
// =============================================================================

// textHash returns the hex SHA-256 of the exact text embedded.
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// unitNormalize returns v scaled to unit length. ok=false for a zero vector.
func unitNormalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / float32(norm)
	}
	return out, true
}

// dotProduct computes the dot product of two float32 vectors. Mismatched
// lengths use the shorter.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
