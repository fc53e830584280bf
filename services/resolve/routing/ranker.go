// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hydronav/hydronav/services/resolve/agent"
)

// MatchCandidate pairs a tool descriptor with its similarity score against
// the query, already clipped to [0, 1].
type MatchCandidate struct {
	Tool  agent.Descriptor
	Score float64
}

// Ranker scores tool capability texts against a query embedding.
//
// # Description
//
// All vectors are unit-normalized at cache-write time, so cosine similarity
// collapses to a dot product. Raw cosine lives in [-1, 1]; negative values
// carry no routing signal here (the capability corpus is small and
// same-domain), so scores clip to [0, 1] before thresholding.
//
// # Thread Safety
//
// Safe for concurrent use.
type Ranker struct {
	cache *EmbeddingCache
}

// NewRanker creates a ranker over the given embedding cache.
func NewRanker(cache *EmbeddingCache) *Ranker {
	return &Ranker{cache: cache}
}

// Rank embeds the query and returns candidates ordered best-first.
//
// # Description
//
// Tool vectors missing from the cache (warm-up partially failed) are
// embedded on demand; a tool whose vector cannot be obtained is skipped
// rather than failing the whole ranking. Sorting is stable with ties broken
// by descriptor order, which is registration order.
//
// # Outputs
//
//   - []MatchCandidate: Scored candidates, best first. May be shorter than
//     descs when individual tool embeds failed.
//   - error: RouterError with ErrCodeEmbeddingUnavailable when the query
//     itself cannot be embedded. Callers fall back to keyword-only routing.
func (r *Ranker) Rank(ctx context.Context, query string, descs []agent.Descriptor) ([]MatchCandidate, error) {
	ctx, span := routingTracer.Start(ctx, "Ranker.Rank")
	defer span.End()
	span.SetAttributes(attribute.Int("tool_count", len(descs)))

	if len(descs) == 0 {
		return nil, nil
	}

	queryVec, err := r.cache.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]MatchCandidate, 0, len(descs))
	for _, desc := range descs {
		toolVec, ok := r.cache.CachedVector(desc.Capability)
		if !ok {
			toolVec, err = r.cache.Embed(ctx, desc.Capability)
			if err != nil {
				continue // tool drops out of this ranking only
			}
		}
		score := float64(dotProduct(queryVec, toolVec))
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, MatchCandidate{Tool: desc, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > 0 {
		span.SetAttributes(
			attribute.String("top_tool", candidates[0].Tool.Name),
			attribute.Float64("top_score", candidates[0].Score),
		)
	}
	return candidates, nil
}
