// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools implements the concrete data-retrieval tools the router
// dispatches to: reservoir storage, generation limits, and document search
// lives in its own package.
//
// Dataset rows are always located by plant name, never by row index. The
// upstream deck files reorder rows between publications, so a stored index
// is meaningless the day after it was computed.
package tools

import (
	"embed"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed data/reservoir_volumes.csv data/generation_limits.csv
var datasetFS embed.FS

// datasetRow is one parsed CSV record with the plant name split off.
type datasetRow struct {
	PlantName string
	Fields    map[string]string
}

// loadDataset reads a named CSV dataset, from datasetPath when set,
// otherwise from the embedded copy.
//
// # Description
//
// The first column must be the plant name; remaining columns are returned
// as a name→value map per row so each tool interprets only the columns it
// documents. Header names are lowercased. Blank plant names are skipped.
func loadDataset(name string, datasetPath string) ([]datasetRow, error) {
	var raw []byte
	var err error
	if datasetPath != "" {
		raw, err = os.ReadFile(filepath.Join(datasetPath, name))
	} else {
		raw, err = datasetFS.ReadFile("data/" + name)
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", name, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", name)
	}

	header := records[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	if header[0] != "plant_name" {
		return nil, fmt.Errorf("dataset %s: first column must be plant_name, got %q", name, header[0])
	}

	rows := make([]datasetRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("dataset %s: row has %d columns, header has %d", name, len(rec), len(header))
		}
		plant := strings.TrimSpace(rec[0])
		if plant == "" {
			continue
		}
		fields := make(map[string]string, len(header)-1)
		for i := 1; i < len(header); i++ {
			fields[header[i]] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, datasetRow{PlantName: plant, Fields: fields})
	}
	return rows, nil
}

// fieldFloat parses a numeric column, returning 0 for blank values.
func fieldFloat(row datasetRow, column string) (float64, error) {
	v := row.Fields[column]
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", column, err)
	}
	return f, nil
}

// findRows returns every dataset row whose plant name matches fileFormName
// case-insensitively. Deck files occasionally repeat a plant across blocks,
// so callers get all of them.
func findRows(rows []datasetRow, fileFormName string) []datasetRow {
	var out []datasetRow
	for _, r := range rows {
		if strings.EqualFold(r.PlantName, fileFormName) {
			out = append(out, r)
		}
	}
	return out
}
