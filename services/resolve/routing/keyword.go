// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"strings"

	"github.com/hydronav/hydronav/services/resolve/config"
)

// PriorityMatcher is the deterministic fast path in front of semantic
// ranking: an ordered list of (tool, variant-substring set) rules for the
// small number of phrasings the embedding model scores inconsistently.
//
// # Description
//
// Rules are evaluated in list order and the first variant hit wins, so rule
// order in routing_rules.yaml is a precedence contract. Matching is plain
// case-insensitive substring containment — no tokenization, no scoring.
// Pure function of the static rule table and the input string.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type PriorityMatcher struct {
	rules []priorityRule
}

type priorityRule struct {
	tool     string
	variants []string // lowercased
	reason   string
}

// NewPriorityMatcher builds a matcher from validated config rules.
func NewPriorityMatcher(rules []config.PriorityRule) *PriorityMatcher {
	compiled := make([]priorityRule, 0, len(rules))
	for _, r := range rules {
		variants := make([]string, 0, len(r.Variants))
		for _, v := range r.Variants {
			variants = append(variants, strings.ToLower(v))
		}
		compiled = append(compiled, priorityRule{tool: r.Tool, variants: variants, reason: r.Reason})
	}
	return &PriorityMatcher{rules: compiled}
}

// Match returns the first rule's tool whose variant set has a substring hit
// in the query.
//
// # Outputs
//
//   - tool: The forced tool name, or "" if no rule matched.
//   - reason: The rule's reason, for logging.
//   - ok: True when a rule matched.
func (pm *PriorityMatcher) Match(query string) (tool string, reason string, ok bool) {
	if query == "" {
		return "", "", false
	}
	queryLower := strings.ToLower(query)

	for _, rule := range pm.rules {
		for _, variant := range rule.variants {
			if strings.Contains(queryLower, variant) {
				return rule.tool, rule.reason, true
			}
		}
	}
	return "", "", false
}
