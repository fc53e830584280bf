// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import (
	"math"
	"testing"
)

func TestLevenshteinSimilarity_Ratio(t *testing.T) {
	sim := LevenshteinSimilarity{}

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "balbina", "balbina", 1.0},
		{"case insensitive", "BALBINA", "balbina", 1.0},
		{"both empty", "", "", 1.0},
		{"one substitution", "balbino", "balbina", 1.0 - 1.0/7.0},
		{"completely different", "abc", "xyz", 0.0},
		{"empty against word", "", "furnas", 0.0},
		{"prefix", "itaipu", "itai", 1.0 - 2.0/6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sim.Ratio(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshteinSimilarity_Symmetric(t *testing.T) {
	sim := LevenshteinSimilarity{}
	if sim.Ratio("serra da mesa", "serra mesa") != sim.Ratio("serra mesa", "serra da mesa") {
		t.Error("expected Ratio to be symmetric")
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"balb", "balbina", 3},
	}

	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
