// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import (
	"testing"

	"github.com/hydronav/hydronav/services/resolve/config"
)

func testRows() []config.PlantRow {
	return []config.PlantRow{
		{Code: 1, FileFormName: "CAMARGOS", CuratedFullName: "Camargos", StationRef: 1},
		{Code: 7, FileFormName: "BALB", CuratedFullName: "Balbina", StationRef: 269},
		{Code: 12, FileFormName: "ITUMBIARA", CuratedFullName: "Itumbiara", StationRef: 31},
		{Code: 31, FileFormName: "ILHA SOLT", CuratedFullName: "Ilha Solteira", StationRef: 34},
		{Code: 33, FileFormName: "S.SIMAO", CuratedFullName: "Sao Simao", StationRef: 33},
		{Code: 66, FileFormName: "ITAIPU", CuratedFullName: "Itaipu", StationRef: 266},
		{Code: 288, FileFormName: "SERRA MESA", CuratedFullName: "Serra da Mesa", StationRef: 270},
	}
}

func TestExpander_Expand(t *testing.T) {
	exp := NewExpander(NewRegistry(testRows()))

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"simple abbreviation", "useful volume of BALB", "useful volume of balbina"},
		{"lowercase abbreviation", "useful volume of balb", "useful volume of balbina"},
		{"dotted abbreviation", "gtmax of S.SIMAO", "gtmax of sao simao"},
		{"multi word abbreviation", "ILHA SOLT storage", "ilha solteira storage"},
		{"no abbreviation present", "volume of Itaipu", "volume of Itaipu"},
		{"empty query", "", ""},
		{"short form inside longer word", "HERBALB extract", "HERBALB extract"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exp.Expand(tt.query); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestExpander_Idempotent(t *testing.T) {
	exp := NewExpander(NewRegistry(testRows()))

	once := exp.Expand("how full is BALB right now")
	twice := exp.Expand(once)
	if once != twice {
		t.Errorf("expansion not idempotent: %q then %q", once, twice)
	}
}

func TestExpander_IdenticalPairsSkipped(t *testing.T) {
	// CAMARGOS/Camargos and ITAIPU/Itaipu differ only in case, so they must
	// not enter the dictionary.
	exp := NewExpander(NewRegistry(testRows()))

	// Only BALB, ILHA SOLT, S.SIMAO and SERRA MESA genuinely abbreviate.
	if exp.Size() != 4 {
		t.Errorf("dictionary size = %d, want 4", exp.Size())
	}
	if got := exp.Expand("CAMARGOS volume"); got != "CAMARGOS volume" {
		t.Errorf("identical pair expanded: %q", got)
	}
}

func TestExpander_DegradedRegistry(t *testing.T) {
	exp := NewExpander(NewDegradedRegistry())
	if exp.Size() != 0 {
		t.Errorf("degraded registry dictionary size = %d, want 0", exp.Size())
	}
	if got := exp.Expand("volume of BALB"); got != "volume of BALB" {
		t.Errorf("degraded expander changed query: %q", got)
	}
}

func TestExpander_NilRegistry(t *testing.T) {
	exp := NewExpander(nil)
	if got := exp.Expand("anything"); got != "anything" {
		t.Errorf("nil-registry expander changed query: %q", got)
	}
}
