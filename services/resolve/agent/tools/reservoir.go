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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

var toolsTracer = otel.Tracer("hydronav.resolve.tools")

// reservoirKeywords are the lexical triggers for CanHandle. They mirror the
// priority-rule variants but are broader; CanHandle only needs to be a cheap
// over-approximation.
var reservoirKeywords = []string{
	"volume", "varp", "storage", "reservoir", "reservatório", "earm", "earl",
}

// ReservoirVolume is one plant's storage snapshot.
type ReservoirVolume struct {
	PlantCode  int     `json:"plant_code"`
	PlantName  string  `json:"plant_name"`
	FullName   string  `json:"full_name"`
	Month      string  `json:"month"`
	EarlPct    float64 `json:"earl_pct"`
	UsefulHm3  float64 `json:"useful_volume_hm3"`
	TotalHm3   float64 `json:"total_volume_hm3"`
	StationRef int     `json:"station_ref,omitempty"`
}

// ReservoirVolumeTool answers reservoir storage and useful-volume queries.
//
// # Description
//
// Execute resolves a plant reference in the query through the entity
// matcher, restricted to plants actually present in the dataset, and
// returns that plant's rows. Without a resolvable plant it returns the
// whole table capped at MaxRows. Rows are located by deck name, never by
// position.
//
// # Thread Safety
//
// Safe for concurrent use.
type ReservoirVolumeTool struct {
	matcher  *entity.Matcher
	registry *entity.Registry
	logger   *slog.Logger
}

// NewReservoirVolumeTool creates the tool over the shared matcher and
// registry.
func NewReservoirVolumeTool(matcher *entity.Matcher, registry *entity.Registry, logger *slog.Logger) *ReservoirVolumeTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservoirVolumeTool{matcher: matcher, registry: registry, logger: logger}
}

func (t *ReservoirVolumeTool) Name() string { return "reservoir_volume" }

func (t *ReservoirVolumeTool) Description() string {
	return "Retrieves reservoir storage data for hydroelectric plants: stored energy " +
		"percentage (EARL), useful volume and total volume in cubic hectometers, " +
		"per plant per month. Answers questions about volume útil, useful volume, " +
		"VARP, reservoir levels and how full a reservoir is."
}

func (t *ReservoirVolumeTool) CanHandle(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range reservoirKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Execute answers a storage query.
func (t *ReservoirVolumeTool) Execute(ctx context.Context, query string, opts agent.Options) (*agent.Result, error) {
	_, span := toolsTracer.Start(ctx, "ReservoirVolumeTool.Execute")
	defer span.End()

	rows, err := loadDataset("reservoir_volumes.csv", opts.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("reservoir_volume: %w", err)
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
			// Registry knows the plant but the dataset does not carry it.
			return &agent.Result{
				ToolName: t.Name(),
				Query:    query,
				Summary:  fmt.Sprintf("No reservoir data available for %s (code %d).", rec.CuratedFullName, rec.Code),
			}, nil
		}
	} else {
		selected = rows
	}
	if len(selected) > maxRows {
		selected = selected[:maxRows]
	}

	volumes := make([]ReservoirVolume, 0, len(selected))
	for _, row := range selected {
		v, convErr := t.toVolume(row)
		if convErr != nil {
			t.logger.Warn("reservoir_volume: skipping malformed row",
				slog.String("plant", row.PlantName),
				slog.String("error", convErr.Error()),
			)
			continue
		}
		volumes = append(volumes, v)
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("reservoir_volume: no readable rows for query")
	}

	summary := fmt.Sprintf("Reservoir storage for %d plants.", len(volumes))
	if resolved {
		v := volumes[0]
		summary = fmt.Sprintf("%s (%s): %.1f%% stored, useful volume %.1f hm³ of %.1f hm³ total (%s).",
			v.FullName, v.PlantName, v.EarlPct, v.UsefulHm3, v.TotalHm3, v.Month)
	}

	return &agent.Result{
		ToolName: t.Name(),
		Query:    query,
		Summary:  summary,
		Payload:  volumes,
	}, nil
}

func (t *ReservoirVolumeTool) toVolume(row datasetRow) (ReservoirVolume, error) {
	earl, err := fieldFloat(row, "earl_pct")
	if err != nil {
		return ReservoirVolume{}, err
	}
	useful, err := fieldFloat(row, "useful_volume_hm3")
	if err != nil {
		return ReservoirVolume{}, err
	}
	total, err := fieldFloat(row, "total_volume_hm3")
	if err != nil {
		return ReservoirVolume{}, err
	}

	v := ReservoirVolume{
		PlantName: row.PlantName,
		Month:     row.Fields["month"],
		EarlPct:   earl,
		UsefulHm3: useful,
		TotalHm3:  total,
	}
	if rec, ok := t.registry.ByFileFormName(row.PlantName); ok {
		v.PlantCode = rec.Code
		v.FullName = rec.CuratedFullName
		v.StationRef = rec.StationRef
	} else {
		v.FullName = row.PlantName
	}
	return v, nil
}

// datasetSubset maps dataset plant names to registry codes so the matcher
// only considers plants that actually have data.
func datasetSubset(rows []datasetRow, registry *entity.Registry) []int {
	seen := make(map[int]bool)
	var codes []int
	for _, row := range rows {
		if rec, ok := registry.ByFileFormName(row.PlantName); ok && !seen[rec.Code] {
			seen[rec.Code] = true
			codes = append(codes, rec.Code)
		}
	}
	if len(codes) == 0 {
		return nil // degraded registry: fall back to unrestricted matching
	}
	return codes
}
