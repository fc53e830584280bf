// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

func newGenerationTool(t *testing.T) *GenerationLimitsTool {
	t.Helper()
	registry := testRegistry()
	matcher := entity.NewMatcher(registry, nil, 0.5, nil)
	return NewGenerationLimitsTool(matcher, registry, nil)
}

func TestGenerationLimitsTool_ResolvedPlant(t *testing.T) {
	tool := newGenerationTool(t)

	result, err := tool.Execute(context.Background(), "what is the gtmax of Itaipu", agent.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	limits, ok := result.Payload.([]GenerationLimits)
	if !ok {
		t.Fatalf("payload type %T, want []GenerationLimits", result.Payload)
	}
	if len(limits) != 1 {
		t.Fatalf("got %d rows, want 1", len(limits))
	}

	l := limits[0]
	if l.PlantName != "ITAIPU" || l.PlantCode != 66 || l.FullName != "Itaipu" {
		t.Errorf("wrong plant: %+v", l)
	}
	if l.GtMinMW != 900.0 || l.GtMaxMW != 7000.0 || l.AvailabilityPct != 98.5 {
		t.Errorf("dataset values wrong: %+v", l)
	}
	if !strings.Contains(result.Summary, "GTMIN 900.0 MW") || !strings.Contains(result.Summary, "GTMAX 7000.0 MW") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestGenerationLimitsTool_NumericPlantReference(t *testing.T) {
	tool := newGenerationTool(t)

	result, err := tool.Execute(context.Background(), "generation limits for plant 7", agent.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limits := result.Payload.([]GenerationLimits)
	if len(limits) != 1 || limits[0].PlantName != "BALB" {
		t.Errorf("plant 7 should resolve to BALB, got %+v", limits)
	}
}

func TestGenerationLimitsTool_NoPlantReturnsAllRows(t *testing.T) {
	tool := newGenerationTool(t)

	result, err := tool.Execute(context.Background(), "show all generation limits", agent.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limits := result.Payload.([]GenerationLimits)
	if len(limits) != 16 {
		t.Errorf("got %d rows, want the full table", len(limits))
	}
}

func TestGenerationLimitsTool_CanHandle(t *testing.T) {
	tool := newGenerationTool(t)

	for _, q := range []string{"gtmin of Furnas", "GTMAX please", "plant availability", "limite de geração"} {
		if !tool.CanHandle(q) {
			t.Errorf("CanHandle(%q) = false, want true", q)
		}
	}
	if tool.CanHandle("useful volume of Balbina") {
		t.Error("CanHandle should not claim reservoir queries")
	}
}
