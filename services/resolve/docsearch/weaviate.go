// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package docsearch implements the document_search tool over a Weaviate
// vector store. It is the router's catch-all: its capability text is broad
// on purpose so free-text questions that fit no structured tool still land
// somewhere useful.
package docsearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/hydronav/hydronav/services/resolve/agent"
)

// documentClass is the Weaviate class holding ingested documents.
const documentClass = "HydronavDocument"

// defaultLimit caps hits per search when the caller sets no MaxRows.
const defaultLimit = 5

// Hit is one retrieved document chunk.
type Hit struct {
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	Title    string  `json:"title,omitempty"`
	Distance float64 `json:"distance"`
}

// SearchTool is the document_search tool backed by Weaviate nearText.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client is goroutine-safe.
type SearchTool struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewSearchTool connects to the Weaviate instance named by WEAVIATE_HOST
// and WEAVIATE_SCHEME (defaults: localhost:8080, http).
//
// # Outputs
//
//   - *SearchTool: Ready tool. Connection problems surface at query time,
//     not here; the client is lazy.
//   - error: Non-nil only on invalid configuration.
func NewSearchTool(logger *slog.Logger) (*SearchTool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	host := os.Getenv("WEAVIATE_HOST")
	if host == "" {
		host = "localhost:8080"
	}
	scheme := os.Getenv("WEAVIATE_SCHEME")
	if scheme == "" {
		scheme = "http"
	}

	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("docsearch: create weaviate client: %w", err)
	}
	return &SearchTool{client: client, logger: logger}, nil
}

func (t *SearchTool) Name() string { return "document_search" }

func (t *SearchTool) Description() string {
	return "Searches the ingested document collection with semantic free-text " +
		"search: operational manuals, deck file documentation, methodology notes " +
		"and reports. Answers general questions that no structured dataset covers."
}

// CanHandle always claims the query: document search is the catch-all and
// ranking decides whether it actually wins.
func (t *SearchTool) CanHandle(query string) bool {
	return strings.TrimSpace(query) != ""
}

// Execute runs a nearText search and returns the top hits.
func (t *SearchTool) Execute(ctx context.Context, query string, opts agent.Options) (*agent.Result, error) {
	limit := opts.MaxRows
	if limit <= 0 {
		limit = defaultLimit
	}

	nearText := t.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "title"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	resp, err := t.client.GraphQL().Get().
		WithClassName(documentClass).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("docsearch: weaviate query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("docsearch: weaviate returned error: %s", resp.Errors[0].Message)
	}

	hits := parseHits(resp.Data)
	t.logger.Debug("docsearch: query complete",
		slog.Int("hits", len(hits)),
	)

	summary := fmt.Sprintf("Found %d matching documents.", len(hits))
	if len(hits) == 0 {
		summary = "No matching documents found."
	}

	return &agent.Result{
		ToolName: t.Name(),
		Query:    query,
		Summary:  summary,
		Payload:  hits,
	}, nil
}

// parseHits walks the untyped GraphQL response shape
// Data["Get"][documentClass] → []object.
func parseHits(data map[string]models.JSONObject) []Hit {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objs, ok := get[documentClass].([]any)
	if !ok {
		return nil
	}

	hits := make([]Hit, 0, len(objs))
	for _, o := range objs {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		hit := Hit{
			Content: stringField(m, "content"),
			Source:  stringField(m, "source"),
			Title:   stringField(m, "title"),
		}
		if add, ok := m["_additional"].(map[string]any); ok {
			if d, ok := add["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
