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

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Plant Reference Table
// =============================================================================

//go:embed plants.yaml
var defaultPlantTableYAML []byte

// =============================================================================
// Plant Table Types
// =============================================================================

// PlantTable is the curated reference table for generation plants. It is the
// single source of truth for the canonical code space: deck files may order
// rows differently, so readers locate rows by FileFormName, never by index.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type PlantTable struct {
	Plants []PlantRow `yaml:"plants"`
}

// PlantRow is one entry of the plant reference table.
type PlantRow struct {
	// Code is the canonical plant identifier.
	Code int `yaml:"code"`

	// FileFormName is the (often abbreviated) name used inside deck files.
	FileFormName string `yaml:"file_form_name"`

	// CuratedFullName is the human-readable plant name.
	CuratedFullName string `yaml:"curated_full_name"`

	// StationRef is the hydrological gauging station number. 0 = none.
	StationRef int `yaml:"station_ref"`
}

// =============================================================================
// Singleton Plant Table
// =============================================================================

var (
	plantTableMu      sync.RWMutex
	cachedPlantTable  *PlantTable
	plantTableLoadErr error
)

// GetPlantTable returns the cached plant reference table, loading the
// embedded defaults on first call.
//
// Thread Safety: Safe for concurrent use.
func GetPlantTable(ctx context.Context) (*PlantTable, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetPlantTable: ctx must not be nil")
	}

	plantTableMu.RLock()
	if cachedPlantTable != nil || plantTableLoadErr != nil {
		table, err := cachedPlantTable, plantTableLoadErr
		plantTableMu.RUnlock()
		return table, err
	}
	plantTableMu.RUnlock()

	plantTableMu.Lock()
	defer plantTableMu.Unlock()

	if cachedPlantTable == nil && plantTableLoadErr == nil {
		cachedPlantTable, plantTableLoadErr = LoadPlantTable(ctx, defaultPlantTableYAML)
	}
	return cachedPlantTable, plantTableLoadErr
}

// ResetPlantTable clears the cached table so tests can reload with
// different data.
func ResetPlantTable() {
	plantTableMu.Lock()
	defer plantTableMu.Unlock()
	cachedPlantTable = nil
	plantTableLoadErr = nil
}

// LoadPlantTable parses and validates a plant reference table from YAML bytes.
//
// # Description
//
// Validates that every row carries a positive unique code and a non-empty
// file-form name. Duplicate codes are rejected outright: the code space is
// the one invariant every downstream reader relies on.
//
// # Outputs
//
//   - *PlantTable: The validated table. Never nil on success.
//   - error: Non-nil if parsing or validation fails.
func LoadPlantTable(ctx context.Context, data []byte) (*PlantTable, error) {
	_, span := configTracer.Start(ctx, "config.LoadPlantTable")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadPlantTable: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadPlantTable: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var table PlantTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("LoadPlantTable: parsing YAML: %w", err)
	}

	seen := make(map[int]string, len(table.Plants))
	for i, row := range table.Plants {
		if row.Code <= 0 {
			return nil, fmt.Errorf("LoadPlantTable: plant[%d] (%s): code must be positive, got %d",
				i, row.FileFormName, row.Code)
		}
		if row.FileFormName == "" {
			return nil, fmt.Errorf("LoadPlantTable: plant[%d] (code %d): file_form_name must not be empty",
				i, row.Code)
		}
		if prev, dup := seen[row.Code]; dup {
			return nil, fmt.Errorf("LoadPlantTable: duplicate code %d (%s and %s)",
				row.Code, prev, row.FileFormName)
		}
		seen[row.Code] = row.FileFormName
	}

	span.SetAttributes(attribute.Int("plant_count", len(table.Plants)))
	slog.Info("plant reference table loaded", slog.Int("plant_count", len(table.Plants)))

	return &table, nil
}
