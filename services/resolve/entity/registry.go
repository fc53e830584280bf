// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package entity resolves natural-language plant references (full names,
// deck abbreviations, numeric codes) to the canonical plant code.
package entity

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hydronav/hydronav/services/resolve/config"
)

// AssetRecord is one plant of the reference table.
//
// Code is the canonical identifier all downstream readers expect. It is
// deliberately decoupled from any data file's row ordering: readers re-locate
// rows by FileFormName because deck files disagree about positions.
type AssetRecord struct {
	// Code is the canonical plant identifier. Unique within a registry.
	Code int

	// FileFormName is the (often abbreviated) name used inside deck files.
	FileFormName string

	// CuratedFullName is the human-readable plant name.
	CuratedFullName string

	// StationRef is the hydrological gauging station number. 0 = absent.
	StationRef int
}

// Registry is the in-memory view of the plant reference table plus the
// derived lookup structures the matcher needs.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Registry struct {
	records []AssetRecord
	byCode  map[int]AssetRecord

	// byNameLongestFirst holds (lowercased name, record) pairs covering both
	// name forms, sorted by name length descending so a short name never
	// shadows a longer one during exact matching.
	byNameLongestFirst []nameEntry

	degraded bool
}

type nameEntry struct {
	name   string
	record AssetRecord
}

// NewRegistry builds a Registry from reference table rows.
//
// # Description
//
// Rows are assumed pre-validated (unique positive codes) by the config
// loader. Both name forms of every row are indexed; duplicates between the
// two forms collapse to one entry.
func NewRegistry(rows []config.PlantRow) *Registry {
	records := make([]AssetRecord, 0, len(rows))
	byCode := make(map[int]AssetRecord, len(rows))
	var names []nameEntry

	for _, row := range rows {
		rec := AssetRecord{
			Code:            row.Code,
			FileFormName:    row.FileFormName,
			CuratedFullName: row.CuratedFullName,
			StationRef:      row.StationRef,
		}
		records = append(records, rec)
		byCode[rec.Code] = rec

		fileForm := strings.ToLower(rec.FileFormName)
		names = append(names, nameEntry{name: fileForm, record: rec})
		if full := strings.ToLower(rec.CuratedFullName); full != "" && full != fileForm {
			names = append(names, nameEntry{name: full, record: rec})
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i].name) > len(names[j].name)
	})

	return &Registry{
		records:            records,
		byCode:             byCode,
		byNameLongestFirst: names,
	}
}

// NewDegradedRegistry returns an empty registry flagged as degraded. Used
// when the reference table fails to load: name-only matching still works
// against whatever subset a caller provides, but code validation and
// abbreviation expansion are unavailable.
func NewDegradedRegistry() *Registry {
	return &Registry{
		byCode:   make(map[int]AssetRecord),
		degraded: true,
	}
}

// LoadRegistry loads the curated plant table and builds a Registry.
//
// # Description
//
// A load failure is not fatal: the matcher degrades to name/fuzzy-only mode
// (no numeric-code validation, no abbreviation expansion). The degradation
// is logged once here, not per query.
func LoadRegistry(ctx context.Context, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	table, err := config.GetPlantTable(ctx)
	if err != nil {
		logger.Warn("entity: plant reference table unavailable, matcher degraded to name-only mode",
			slog.String("error", err.Error()),
		)
		return NewDegradedRegistry()
	}
	return NewRegistry(table.Plants)
}

// Records returns all records in table order.
func (r *Registry) Records() []AssetRecord {
	return r.records
}

// ByCode looks up a record by canonical code.
func (r *Registry) ByCode(code int) (AssetRecord, bool) {
	rec, ok := r.byCode[code]
	return rec, ok
}

// ByFileFormName looks up a record by its deck-file name,
// case-insensitively.
func (r *Registry) ByFileFormName(name string) (AssetRecord, bool) {
	for _, rec := range r.records {
		if strings.EqualFold(rec.FileFormName, name) {
			return rec, true
		}
	}
	return AssetRecord{}, false
}

// Degraded reports whether the registry was built without a reference table.
func (r *Registry) Degraded() bool {
	return r.degraded
}

// namesLongestFirst returns the (lowercased) name index, longest name first.
// When subset is non-nil, entries are filtered to records whose code appears
// in the subset.
func (r *Registry) namesLongestFirst(subset map[int]bool) []nameEntry {
	if subset == nil {
		return r.byNameLongestFirst
	}
	filtered := make([]nameEntry, 0, len(r.byNameLongestFirst))
	for _, e := range r.byNameLongestFirst {
		if subset[e.record.Code] {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
