// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Routing Rules
// =============================================================================

//go:embed routing_rules.yaml
var defaultRoutingRulesYAML []byte

// MaxYAMLFileSize bounds embedded/loaded YAML tables. Large inputs here are
// always a mistake (the tables are curated by hand).
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("hydronav.resolve.config")

// =============================================================================
// Routing Rules Types
// =============================================================================

// RoutingRules defines the static tables consumed by the tool router:
// ordered priority-keyword rules, the per-tool disambiguation labels, and
// the scoring thresholds.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RoutingRules struct {
	// PriorityRules are evaluated in list order; the first variant hit wins.
	PriorityRules []PriorityRule `yaml:"priority_rules"`

	// ToolLabels maps tool name to the short label shown in disambiguation
	// prompts. Tools absent from this map are omitted from option lists.
	ToolLabels map[string]string `yaml:"tool_labels"`

	// Thresholds are the router's scoring knobs.
	Thresholds Thresholds `yaml:"thresholds"`
}

// PriorityRule forces a deterministic tool selection when any of its variant
// strings appears in the query.
type PriorityRule struct {
	// Tool is the tool to force when a variant matches.
	Tool string `yaml:"tool"`

	// Variants are case-insensitive substrings matched against the query.
	Variants []string `yaml:"variants"`

	// Reason explains why this rule exists (for logging/tracing).
	Reason string `yaml:"reason"`
}

// Thresholds holds the router's scoring parameters.
type Thresholds struct {
	// MinSearchScore is the floor below which a candidate never appears in a
	// disambiguation option list.
	MinSearchScore float64 `yaml:"min_search_score"`

	// MinExecuteScore is the minimum top score required to execute or
	// disambiguate; below it the router declines.
	MinExecuteScore float64 `yaml:"min_execute_score"`

	// AmbiguityDiff is the top1-top2 score gap under which the router emits a
	// disambiguation prompt instead of executing.
	AmbiguityDiff float64 `yaml:"ambiguity_diff"`

	// MaxOptions caps the number of disambiguation options.
	MaxOptions int `yaml:"max_options"`

	// FuzzyThreshold is the minimum similarity ratio for fuzzy plant-name
	// matching in the entity matcher.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultMinSearchScore is the default disambiguation option floor.
	DefaultMinSearchScore = 0.4

	// DefaultMinExecuteScore is the default execution floor.
	DefaultMinExecuteScore = 0.55

	// DefaultAmbiguityDiff is the default near-tie gap.
	DefaultAmbiguityDiff = 0.1

	// DefaultMaxOptions is the default disambiguation option cap.
	DefaultMaxOptions = 5

	// DefaultFuzzyThreshold is the default entity fuzzy-match floor.
	DefaultFuzzyThreshold = 0.5
)

// =============================================================================
// Singleton Routing Rules
// =============================================================================

var (
	routingRulesMu      sync.RWMutex
	cachedRoutingRules  *RoutingRules
	routingRulesLoadErr error
)

// GetRoutingRules returns the cached routing rules, loading the embedded
// defaults on first call.
//
// Thread Safety: Safe for concurrent use.
func GetRoutingRules(ctx context.Context) (*RoutingRules, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRoutingRules: ctx must not be nil")
	}

	routingRulesMu.RLock()
	if cachedRoutingRules != nil || routingRulesLoadErr != nil {
		rules, err := cachedRoutingRules, routingRulesLoadErr
		routingRulesMu.RUnlock()
		return rules, err
	}
	routingRulesMu.RUnlock()

	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()

	if cachedRoutingRules == nil && routingRulesLoadErr == nil {
		cachedRoutingRules, routingRulesLoadErr = LoadRoutingRules(ctx, defaultRoutingRulesYAML)
	}
	return cachedRoutingRules, routingRulesLoadErr
}

// ResetRoutingRules clears the cached rules so tests can reload with
// different data.
func ResetRoutingRules() {
	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()
	cachedRoutingRules = nil
	routingRulesLoadErr = nil
}

// LoadRoutingRules parses and validates routing rules from YAML bytes.
//
// # Description
//
// Applies defaults for any missing threshold, then validates rule
// consistency (non-empty tool names, at least one variant per rule,
// non-empty labels).
//
// # Outputs
//
//   - *RoutingRules: The validated rules. Never nil on success.
//   - error: Non-nil if parsing or validation fails.
func LoadRoutingRules(ctx context.Context, data []byte) (*RoutingRules, error) {
	_, span := configTracer.Start(ctx, "config.LoadRoutingRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRoutingRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRoutingRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rules RoutingRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: parsing YAML: %w", err)
	}

	applyThresholdDefaults(&rules.Thresholds)

	if err := validateRoutingRules(&rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("priority_rules", len(rules.PriorityRules)),
		attribute.Int("tool_labels", len(rules.ToolLabels)),
	)

	slog.Info("routing rules loaded",
		slog.Int("priority_rules", len(rules.PriorityRules)),
		slog.Int("tool_labels", len(rules.ToolLabels)),
	)

	return &rules, nil
}

func applyThresholdDefaults(t *Thresholds) {
	if t.MinSearchScore <= 0 {
		t.MinSearchScore = DefaultMinSearchScore
	}
	if t.MinExecuteScore <= 0 {
		t.MinExecuteScore = DefaultMinExecuteScore
	}
	if t.AmbiguityDiff <= 0 {
		t.AmbiguityDiff = DefaultAmbiguityDiff
	}
	if t.MaxOptions <= 0 {
		t.MaxOptions = DefaultMaxOptions
	}
	if t.FuzzyThreshold <= 0 {
		t.FuzzyThreshold = DefaultFuzzyThreshold
	}
}

// validateRoutingRules checks all rules for consistency.
func validateRoutingRules(rules *RoutingRules) error {
	for i, pr := range rules.PriorityRules {
		if pr.Tool == "" {
			return fmt.Errorf("priority_rule[%d]: tool must not be empty", i)
		}
		if len(pr.Variants) == 0 {
			return fmt.Errorf("priority_rule[%d] (%s): variants must not be empty", i, pr.Tool)
		}
		for j, v := range pr.Variants {
			if v == "" {
				return fmt.Errorf("priority_rule[%d] (%s): variant[%d] must not be empty", i, pr.Tool, j)
			}
		}
	}

	for tool, label := range rules.ToolLabels {
		if label == "" {
			return fmt.Errorf("tool_labels[%s]: label must not be empty", tool)
		}
	}

	t := rules.Thresholds
	if t.MinSearchScore > t.MinExecuteScore {
		return fmt.Errorf("thresholds: min_search_score (%.2f) must not exceed min_execute_score (%.2f)",
			t.MinSearchScore, t.MinExecuteScore)
	}
	return nil
}
