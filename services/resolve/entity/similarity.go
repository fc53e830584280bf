// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import "strings"

// Similarity scores how alike two strings are, in [0.0, 1.0]. The matcher's
// fuzzy stage is parameterized on this so any edit-distance-ratio
// implementation is substitutable.
type Similarity interface {
	Ratio(a, b string) float64
}

// LevenshteinSimilarity implements Similarity as a normalized edit-distance
// ratio: 1 - distance/maxLen. Case-insensitive.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
type LevenshteinSimilarity struct{}

// Ratio returns 1.0 for equal strings (after lowercasing) and degrades
// toward 0.0 with edit distance.
func (LevenshteinSimilarity) Ratio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings using
// two rows instead of a full matrix for memory efficiency.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
