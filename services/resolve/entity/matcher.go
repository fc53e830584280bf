// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	matcherResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydronav",
		Subsystem: "entity",
		Name:      "resolved_total",
		Help:      "Plant resolutions by winning stage: numeric, exact, contained, fuzzy, keyword, none",
	}, []string{"stage"})
)

// =============================================================================
// Matcher
// =============================================================================

// numericPatterns cover the common phrasings for referencing a plant by its
// numeric code. Order matters: the explicit "code N" form is tried before the
// looser "#N" form.
var numericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:plant|usina|asset|unit)\s*#?\s*(\d{1,4})\b`),
	regexp.MustCompile(`(?i)\bcode\s*#?\s*(\d{1,4})\b`),
	regexp.MustCompile(`#(\d{1,4})\b`),
}

// matchStopwords are words carrying no identifying signal in either queries
// or plant names. Mix of English and Portuguese connectives because deck
// names and user queries use both.
var matchStopwords = map[string]bool{
	"the": true, "of": true, "for": true, "and": true, "at": true, "in": true,
	"de": true, "da": true, "do": true, "das": true, "dos": true, "e": true,
}

// DefaultFuzzyThreshold is the minimum similarity ratio the fuzzy stage
// accepts when no threshold is configured.
const DefaultFuzzyThreshold = 0.5

// Matcher resolves a plant reference inside a free-form query to the
// canonical plant code.
//
// # Description
//
// The matcher runs an explicit ordered pipeline of stages, each tried only
// when the previous produced nothing:
//
//  1. numeric   — extract a code from "plant 12" / "code 12" phrasings and
//     validate it against the registry
//  2. exact     — whole-query equality against either name form, longest
//     name first
//  3. contained — all significant name words present as whole words
//  4. fuzzy     — similarity-ratio scoring above a threshold
//  5. keyword   — word-overlap scoring as a last resort
//
// Stages 2-5 run on the abbreviation-expanded query first; when expansion
// changed the query and the expanded pass found nothing, they are retried on
// the raw query so an unfortunate expansion cannot mask a direct match.
// A query that survives all stages unresolved returns ok=false — the matcher
// never guesses.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Matcher struct {
	registry       *Registry
	expander       *Expander
	sim            Similarity
	fuzzyThreshold float64
	logger         *slog.Logger
	stages         []matchStage
}

// matchStage is one step of the resolution pipeline. Returning ok=false
// means "continue to the next stage", never a hard failure.
type matchStage struct {
	name string
	run  func(query string, names []nameEntry) (AssetRecord, bool)
}

// NewMatcher creates a Matcher over the given registry.
//
// # Inputs
//
//   - registry: Plant registry. A degraded registry disables the numeric
//     stage's code validation set and abbreviation expansion. Must not be nil.
//   - sim: Similarity strategy for the fuzzy and keyword stages. Nil uses
//     LevenshteinSimilarity.
//   - fuzzyThreshold: Minimum fuzzy ratio. <=0 uses DefaultFuzzyThreshold.
//   - logger: Logger. May be nil.
func NewMatcher(registry *Registry, sim Similarity, fuzzyThreshold float64, logger *slog.Logger) *Matcher {
	if sim == nil {
		sim = LevenshteinSimilarity{}
	}
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Matcher{
		registry:       registry,
		expander:       NewExpander(registry),
		sim:            sim,
		fuzzyThreshold: fuzzyThreshold,
		logger:         logger,
	}

	// The pipeline order is the precedence contract; keep it visible here
	// rather than buried in control flow.
	m.stages = []matchStage{
		{name: "exact", run: m.stageExact},
		{name: "contained", run: m.stageContained},
		{name: "fuzzy", run: m.stageFuzzy},
		{name: "keyword", run: m.stageKeyword},
	}

	return m
}

// Resolve resolves a plant reference in the query to its canonical code.
//
// # Inputs
//
//   - query: Free-form query text containing a plant reference.
//   - subset: Optional restriction to a set of canonical codes (e.g. the
//     plants present in the dataset being filtered). Nil means the whole
//     registry.
//
// # Outputs
//
//   - int: Canonical plant code.
//   - bool: False when no stage produced a match.
func (m *Matcher) Resolve(query string, subset []int) (int, bool) {
	rec, ok := m.ResolveRecord(query, subset)
	if !ok {
		return 0, false
	}
	return rec.Code, true
}

// ResolveStation resolves a plant reference and additionally returns the
// plant's hydrological station number (0 when the plant has none).
func (m *Matcher) ResolveStation(query string, subset []int) (code int, station int, ok bool) {
	rec, ok := m.ResolveRecord(query, subset)
	if !ok {
		return 0, 0, false
	}
	return rec.Code, rec.StationRef, true
}

// ResolveRecord resolves a plant reference to the full registry record.
func (m *Matcher) ResolveRecord(query string, subset []int) (AssetRecord, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		matcherResolvedTotal.WithLabelValues("none").Inc()
		return AssetRecord{}, false
	}

	var subsetSet map[int]bool
	if subset != nil {
		subsetSet = make(map[int]bool, len(subset))
		for _, code := range subset {
			subsetSet[code] = true
		}
	}

	// Numeric extraction runs on the raw query: expansion never touches
	// digits and the code is validated against the registry anyway.
	if rec, ok := m.stageNumeric(query, subsetSet); ok {
		matcherResolvedTotal.WithLabelValues("numeric").Inc()
		m.logResolved("numeric", query, rec)
		return rec, true
	}

	names := m.registry.namesLongestFirst(subsetSet)

	expanded := m.expander.Expand(query)
	if rec, stage, ok := m.runNameStages(expanded, names); ok {
		matcherResolvedTotal.WithLabelValues(stage).Inc()
		m.logResolved(stage, query, rec)
		return rec, true
	}

	// Expansion can introduce false negatives (a substituted full name may
	// tokenize differently than what the user typed). Retry on the raw query
	// when expansion actually changed it.
	if expanded != query {
		if rec, stage, ok := m.runNameStages(query, names); ok {
			matcherResolvedTotal.WithLabelValues(stage).Inc()
			m.logResolved(stage, query, rec)
			return rec, true
		}
	}

	matcherResolvedTotal.WithLabelValues("none").Inc()
	m.logger.Debug("entity: no plant identified",
		slog.String("query_preview", previewForLog(query)),
	)
	return AssetRecord{}, false
}

// Expander returns the matcher's abbreviation expander, shared with callers
// that expand queries before embedding them.
func (m *Matcher) Expander() *Expander {
	return m.expander
}

func (m *Matcher) runNameStages(query string, names []nameEntry) (AssetRecord, string, bool) {
	queryLower := strings.ToLower(query)
	for _, stage := range m.stages {
		if rec, ok := stage.run(queryLower, names); ok {
			return rec, stage.name, true
		}
	}
	return AssetRecord{}, "", false
}

func (m *Matcher) logResolved(stage, query string, rec AssetRecord) {
	m.logger.Debug("entity: plant resolved",
		slog.String("stage", stage),
		slog.Int("code", rec.Code),
		slog.String("plant", rec.FileFormName),
		slog.String("query_preview", previewForLog(query)),
	)
}

// =============================================================================
// Stage 1: Numeric Code Extraction
// =============================================================================

// stageNumeric extracts a numeric code from the query and validates it
// against the registry. The matched registry entry — not the raw number — is
// what downstream readers consume: its FileFormName re-locates the row
// inside whatever dataset is being filtered, because file-internal row
// ordering is not trusted.
func (m *Matcher) stageNumeric(query string, subset map[int]bool) (AssetRecord, bool) {
	for _, pattern := range numericPatterns {
		match := pattern.FindStringSubmatch(query)
		if match == nil {
			continue
		}
		code, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		rec, known := m.registry.ByCode(code)
		if !known {
			// Out-of-range numbers fall through to the name stages rather
			// than erroring: "plant 9999" may still name a plant elsewhere
			// in the sentence.
			continue
		}
		if subset != nil && !subset[code] {
			continue
		}
		return rec, true
	}
	return AssetRecord{}, false
}

// =============================================================================
// Stage 2: Exact Name Match
// =============================================================================

// stageExact matches the whole query against either name form. Entries are
// pre-sorted longest-first so a short name cannot win against a longer one
// it happens to prefix.
func (m *Matcher) stageExact(queryLower string, names []nameEntry) (AssetRecord, bool) {
	for _, e := range names {
		if queryLower == e.name {
			return e.record, true
		}
	}
	return AssetRecord{}, false
}

// =============================================================================
// Stage 3: Contained Name Match
// =============================================================================

// stageContained requires all significant words of a multi-word name to
// appear as whole words anywhere in the query; single-word names need one
// word-boundary hit.
func (m *Matcher) stageContained(queryLower string, names []nameEntry) (AssetRecord, bool) {
	queryWords := wordSet(queryLower)

	for _, e := range names {
		nameWords := SignificantWords(e.name)
		if len(nameWords) == 0 {
			continue
		}

		allPresent := true
		for _, w := range nameWords {
			if !queryWords[w] {
				allPresent = false
				break
			}
		}
		if allPresent {
			return e.record, true
		}
	}
	return AssetRecord{}, false
}

// =============================================================================
// Stage 4: Fuzzy Match
// =============================================================================

// stageFuzzy scores the query against every candidate name with the
// similarity strategy and keeps the best candidate above the threshold.
// Besides the whole-query ratio, each significant query token is compared
// against each significant name token so "balbino" can still reach
// "Balbina" inside a longer sentence.
func (m *Matcher) stageFuzzy(queryLower string, names []nameEntry) (AssetRecord, bool) {
	queryTokens := SignificantWords(queryLower)

	var best AssetRecord
	bestScore := 0.0

	for _, e := range names {
		score := m.sim.Ratio(queryLower, e.name)
		nameTokens := SignificantWords(e.name)
		for _, qt := range queryTokens {
			for _, nt := range nameTokens {
				if r := m.sim.Ratio(qt, nt); r > score {
					score = r
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = e.record
		}
	}

	if bestScore >= m.fuzzyThreshold {
		return best, true
	}
	return AssetRecord{}, false
}

// =============================================================================
// Stage 5: Keyword Overlap Fallback
// =============================================================================

// stageKeyword is the last resort: word-overlap scoring between query and
// candidate names. A candidate only qualifies with at least one common
// significant word — the similarity and length terms are tie-breakers, not
// grounds for a match on their own.
//
// score = common + 10·[query words ⊆ name words] + 5·ratio + len(name)/100
func (m *Matcher) stageKeyword(queryLower string, names []nameEntry) (AssetRecord, bool) {
	queryTokens := SignificantWords(queryLower)
	if len(queryTokens) == 0 {
		return AssetRecord{}, false
	}

	var best AssetRecord
	bestScore := 0.0
	found := false

	for _, e := range names {
		nameTokens := SignificantWords(e.name)
		if len(nameTokens) == 0 {
			continue
		}

		nameSet := make(map[string]bool, len(nameTokens))
		for _, t := range nameTokens {
			nameSet[t] = true
		}

		common := 0
		subset := true
		for _, qt := range queryTokens {
			if nameSet[qt] {
				common++
			} else {
				subset = false
			}
		}
		if common == 0 {
			continue
		}

		score := float64(common) + 5.0*m.sim.Ratio(queryLower, e.name) + float64(len(e.name))/100.0
		if subset {
			score += 10.0
		}
		if score > bestScore {
			bestScore = score
			best = e.record
			found = true
		}
	}

	return best, found
}

// =============================================================================
// Tokenization Helpers
// =============================================================================

var wordSplitter = regexp.MustCompile(`[\p{L}\d]+`)

// SignificantWords returns the lowercased words of s longer than two runes
// and not in the stopword set.
func SignificantWords(s string) []string {
	raw := wordSplitter.FindAllString(strings.ToLower(s), -1)
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if len([]rune(w)) <= 2 || matchStopwords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// wordSet returns every word of s (no significance filtering) as a set.
func wordSet(s string) map[string]bool {
	raw := wordSplitter.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]bool, len(raw))
	for _, w := range raw {
		set[w] = true
	}
	return set
}

// previewForLog truncates a query for structured log fields.
func previewForLog(q string) string {
	const maxLen = 80
	if len(q) <= maxLen {
		return q
	}
	return q[:maxLen] + "..."
}
