// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"testing"

	"github.com/hydronav/hydronav/services/resolve/config"
)

func testPriorityRules() []config.PriorityRule {
	return []config.PriorityRule{
		{
			Tool:     "reservoir_volume",
			Variants: []string{"volume útil", "useful volume", "varp"},
			Reason:   "embedding model scores these inconsistently",
		},
		{
			Tool:     "generation_limits",
			Variants: []string{"gtmin", "gtmax"},
			Reason:   "deck jargon the model has never seen",
		},
	}
}

func TestPriorityMatcher_Match(t *testing.T) {
	pm := NewPriorityMatcher(testPriorityRules())

	tests := []struct {
		name     string
		query    string
		wantTool string
		wantOK   bool
	}{
		{"diacritic variant", "qual o volume útil de Furnas?", "reservoir_volume", true},
		{"english variant", "useful volume of Balbina", "reservoir_volume", true},
		{"case insensitive", "USEFUL VOLUME of itaipu", "reservoir_volume", true},
		{"jargon variant", "what is the gtmax of Itaipu", "generation_limits", true},
		{"substring inside word", "show me varp for plant 12", "reservoir_volume", true},
		{"no variant", "tell me about deck files", "", false},
		{"empty query", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, reason, ok := pm.Match(tt.query)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if tool != tt.wantTool {
				t.Errorf("Match(%q) tool = %q, want %q", tt.query, tool, tt.wantTool)
			}
			if ok && reason == "" {
				t.Errorf("Match(%q) returned empty reason", tt.query)
			}
		})
	}
}

func TestPriorityMatcher_RuleOrderIsPrecedence(t *testing.T) {
	// Both rules could claim this query; the first listed rule must win.
	pm := NewPriorityMatcher([]config.PriorityRule{
		{Tool: "first", Variants: []string{"storage"}},
		{Tool: "second", Variants: []string{"storage level"}},
	})

	tool, _, ok := pm.Match("storage level of Furnas")
	if !ok || tool != "first" {
		t.Errorf("Match = (%q, %v), want first rule to win", tool, ok)
	}
}

func TestPriorityMatcher_NoRules(t *testing.T) {
	pm := NewPriorityMatcher(nil)
	if _, _, ok := pm.Match("anything at all"); ok {
		t.Error("expected no match with an empty rule set")
	}
}
