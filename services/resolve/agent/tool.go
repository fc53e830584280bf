// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent defines the tool contract the router dispatches against and
// the ordered registry of available tools.
package agent

import (
	"context"
	"fmt"
	"sync"
)

// Options carries execution parameters a caller may pass through to a tool.
type Options struct {
	// DatasetPath optionally points a file-backed tool at a specific dataset
	// directory instead of its default.
	DatasetPath string

	// MaxRows caps tabular results. 0 means the tool's default.
	MaxRows int
}

// Result is what a tool returns for a resolved query.
type Result struct {
	// ToolName is the executing tool's registered name.
	ToolName string `json:"tool_name"`

	// Query is the query the tool actually executed (post-expansion).
	Query string `json:"query"`

	// Summary is a one-line human-readable answer.
	Summary string `json:"summary"`

	// Payload is the tool-specific structured result.
	Payload any `json:"payload,omitempty"`
}

// Tool is a registered, named data-retrieval operation.
//
// # Description
//
// The router depends only on this interface, never on concrete tool types.
// Description() is the natural-language capability text the semantic ranker
// embeds; CanHandle is a cheap lexical pre-check a tool may implement
// conservatively (returning true is always safe — ranking decides).
type Tool interface {
	// Name returns the stable registered identifier.
	Name() string

	// CanHandle reports whether the tool recognizes the query lexically.
	CanHandle(query string) bool

	// Execute runs the operation for the query.
	Execute(ctx context.Context, query string, opts Options) (*Result, error)

	// Description returns the capability text used for semantic ranking.
	Description() string
}

// Descriptor is the ranker's view of a tool: its name and the capability
// text to embed. Embeddings are cached elsewhere keyed by a hash of the
// capability text, so descriptors stay plain data.
type Descriptor struct {
	Name       string
	Capability string
}

// Registry holds the available tools in registration order.
//
// # Description
//
// Order is part of the contract: the ranker breaks score ties by registry
// order, so registration order is preserved and exposed.
//
// # Thread Safety
//
// Safe for concurrent use. Registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	ordered []Tool
	byName  map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are rejected: the disambiguation
// envelope encodes tool names, so they must be unambiguous.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("register: tool must not be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register: tool name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register: duplicate tool name %q", name)
	}
	r.byName[name] = tool
	r.ordered = append(r.ordered, tool)
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Descriptors returns ranking descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, Descriptor{Name: t.Name(), Capability: t.Description()})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
