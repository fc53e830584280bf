// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

var generationKeywords = []string{
	"gtmin", "gtmax", "generation", "geração", "geracao", "limit", "limite",
	"availability", "disponibilidade",
}

// GenerationLimits is one plant's thermal-equivalent generation envelope.
type GenerationLimits struct {
	PlantCode       int     `json:"plant_code"`
	PlantName       string  `json:"plant_name"`
	FullName        string  `json:"full_name"`
	GtMinMW         float64 `json:"gtmin_mw"`
	GtMaxMW         float64 `json:"gtmax_mw"`
	AvailabilityPct float64 `json:"availability_pct"`
}

// GenerationLimitsTool answers minimum/maximum generation and availability
// queries. Same shape as ReservoirVolumeTool over a different dataset.
//
// # Thread Safety
//
// Safe for concurrent use.
type GenerationLimitsTool struct {
	matcher  *entity.Matcher
	registry *entity.Registry
	logger   *slog.Logger
}

// NewGenerationLimitsTool creates the tool over the shared matcher and
// registry.
func NewGenerationLimitsTool(matcher *entity.Matcher, registry *entity.Registry, logger *slog.Logger) *GenerationLimitsTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationLimitsTool{matcher: matcher, registry: registry, logger: logger}
}

func (t *GenerationLimitsTool) Name() string { return "generation_limits" }

func (t *GenerationLimitsTool) Description() string {
	return "Retrieves generation limit data for hydroelectric plants: minimum " +
		"generation (GTMIN), maximum generation (GTMAX) in megawatts and unit " +
		"availability percentage. Answers questions about generation limits, " +
		"dispatch bounds and plant availability."
}

func (t *GenerationLimitsTool) CanHandle(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range generationKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Execute answers a generation-limits query.
func (t *GenerationLimitsTool) Execute(ctx context.Context, query string, opts agent.Options) (*agent.Result, error) {
	_, span := toolsTracer.Start(ctx, "GenerationLimitsTool.Execute")
	defer span.End()

	rows, err := loadDataset("generation_limits.csv", opts.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("generation_limits: %w", err)
	}

	subset := datasetSubset(rows, t.registry)
	rec, resolved := t.matcher.ResolveRecord(query, subset)
	span.SetAttributes(attribute.Bool("plant_resolved", resolved))

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = 20
	}

	var selected []datasetRow
	if resolved {
		selected = findRows(rows, rec.FileFormName)
		if len(selected) == 0 {
			return &agent.Result{
				ToolName: t.Name(),
				Query:    query,
				Summary:  fmt.Sprintf("No generation limit data available for %s (code %d).", rec.CuratedFullName, rec.Code),
			}, nil
		}
	} else {
		selected = rows
	}
	if len(selected) > maxRows {
		selected = selected[:maxRows]
	}

	limits := make([]GenerationLimits, 0, len(selected))
	for _, row := range selected {
		l, convErr := t.toLimits(row)
		if convErr != nil {
			t.logger.Warn("generation_limits: skipping malformed row",
				slog.String("plant", row.PlantName),
				slog.String("error", convErr.Error()),
			)
			continue
		}
		limits = append(limits, l)
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("generation_limits: no readable rows for query")
	}

	summary := fmt.Sprintf("Generation limits for %d plants.", len(limits))
	if resolved {
		l := limits[0]
		summary = fmt.Sprintf("%s (%s): GTMIN %.1f MW, GTMAX %.1f MW, availability %.1f%%.",
			l.FullName, l.PlantName, l.GtMinMW, l.GtMaxMW, l.AvailabilityPct)
	}

	return &agent.Result{
		ToolName: t.Name(),
		Query:    query,
		Summary:  summary,
		Payload:  limits,
	}, nil
}

func (t *GenerationLimitsTool) toLimits(row datasetRow) (GenerationLimits, error) {
	gtmin, err := fieldFloat(row, "gtmin_mw")
	if err != nil {
		return GenerationLimits{}, err
	}
	gtmax, err := fieldFloat(row, "gtmax_mw")
	if err != nil {
		return GenerationLimits{}, err
	}
	avail, err := fieldFloat(row, "availability_pct")
	if err != nil {
		return GenerationLimits{}, err
	}

	l := GenerationLimits{
		PlantName:       row.PlantName,
		GtMinMW:         gtmin,
		GtMaxMW:         gtmax,
		AvailabilityPct: avail,
	}
	if rec, ok := t.registry.ByFileFormName(row.PlantName); ok {
		l.PlantCode = rec.Code
		l.FullName = rec.CuratedFullName
	} else {
		l.FullName = row.PlantName
	}
	return l, nil
}
