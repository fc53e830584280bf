// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Abbreviation Expander
// =============================================================================

// Expander substitutes known deck abbreviations ("BALB") with the curated
// full plant name ("Balbina") before matching or embedding a query.
//
// # Description
//
// The dictionary is derived from the plant reference table: every row whose
// FileFormName differs (case-insensitively) from its CuratedFullName
// contributes a short→full pair; identical pairs are skipped. Substitution is
// whole-word only and processes short forms longest-first, so a two-letter
// form can never fire inside a longer abbreviation it happens to prefix.
//
// Expansion is idempotent: full names are not themselves short forms, so
// expanding an already-expanded query is a no-op.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Expander struct {
	rules []expandRule
}

type expandRule struct {
	short   string
	full    string
	pattern *regexp.Regexp
}

// NewExpander builds an Expander from the registry's reference table.
//
// A degraded (table-less) registry yields an empty expander whose Expand is
// the identity function.
func NewExpander(registry *Registry) *Expander {
	if registry == nil {
		return &Expander{}
	}

	shorts := make([]expandRule, 0, len(registry.records))
	for _, rec := range registry.records {
		short := strings.ToLower(strings.TrimSpace(rec.FileFormName))
		full := strings.ToLower(strings.TrimSpace(rec.CuratedFullName))
		if short == "" || full == "" || short == full {
			continue
		}
		shorts = append(shorts, expandRule{short: short, full: full})
	}

	// Longest short form first: "ILHA SOLT" must expand before a hypothetical
	// "ILHA" entry gets a chance to clip it.
	sort.SliceStable(shorts, func(i, j int) bool {
		return len(shorts[i].short) > len(shorts[j].short)
	})

	for i := range shorts {
		// \b does not treat '.' as a word character, so forms like
		// "p.primavera" need explicit boundary handling: require the match to
		// not be embedded in a longer word run.
		shorts[i].pattern = regexp.MustCompile(`(?i)(^|[^\p{L}\d])` + regexp.QuoteMeta(shorts[i].short) + `($|[^\p{L}\d])`)
	}

	return &Expander{rules: shorts}
}

// Expand substitutes every known short form found in the query with its full
// name. Returns the query unchanged when the dictionary is empty or nothing
// matches.
func (e *Expander) Expand(query string) string {
	if len(e.rules) == 0 || query == "" {
		return query
	}

	expanded := query
	for _, rule := range e.rules {
		expanded = rule.pattern.ReplaceAllString(expanded, "${1}"+rule.full+"${2}")
	}
	return expanded
}

// Size returns the number of short→full pairs in the dictionary.
func (e *Expander) Size() int {
	return len(e.rules)
}
