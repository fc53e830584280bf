// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"fmt"
	"strings"

	"github.com/hydronav/hydronav/services/resolve/config"
	"github.com/hydronav/hydronav/services/resolve/entity"
)

// envelopeSentinel prefixes structured disambiguation follow-ups. The
// envelope round-trips the tool name and original query through the client
// so a follow-up selection needs no server-side conversation state.
const envelopeSentinel = "HYDRONAV_TOOL"

// OutcomeKind is the router's decision for a query.
type OutcomeKind string

const (
	// OutcomeExecute means exactly one tool was selected with confidence.
	OutcomeExecute OutcomeKind = "execute"

	// OutcomeDisambiguate means several tools scored too close to call; the
	// caller must present Options and send the pick back as a follow-up.
	OutcomeDisambiguate OutcomeKind = "disambiguate"

	// OutcomeDecline means no tool cleared the search floor; the caller
	// falls through to its general-purpose flow.
	OutcomeDecline OutcomeKind = "decline"
)

// DisambiguationOption is one selectable candidate in a disambiguation
// prompt.
type DisambiguationOption struct {
	// ToolName is the stable identifier, echoed back in the envelope.
	ToolName string `json:"tool_name"`

	// ShortLabel is the human-readable label shown to the user.
	ShortLabel string `json:"short_label"`

	// Score is the clipped similarity score, for diagnostics.
	Score float64 `json:"score"`

	// Envelope is the pre-built follow-up string for this option.
	Envelope string `json:"envelope"`
}

// Outcome is the router's answer for one query.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// ToolName is set for OutcomeExecute.
	ToolName string `json:"tool_name,omitempty"`

	// Query is the query the selected tool should run (post-expansion, or
	// the original extracted from a follow-up envelope).
	Query string `json:"query"`

	// Reason records which strategy decided: "follow_up", "priority_rule",
	// "semantic", "keyword_fallback", or "below_threshold".
	Reason string `json:"reason"`

	// Options is set for OutcomeDisambiguate, best-scored first.
	Options []DisambiguationOption `json:"options,omitempty"`
}

// BuildEnvelope encodes a tool selection and the original query into a
// structured follow-up string.
func BuildEnvelope(toolName, originalQuery string) string {
	return fmt.Sprintf("%s:%s:%s", envelopeSentinel, toolName, originalQuery)
}

// ParseFollowUp decodes a disambiguation follow-up into a tool name and the
// original query.
//
// # Description
//
// The structured envelope ("HYDRONAV_TOOL:<tool>:<query>") is checked
// first; tool names never contain a colon, so the first two separators are
// unambiguous and the query may contain colons freely. Any well-formed
// envelope parses regardless of the label table: labels exist for prompt
// rendering and legacy matching, while registration is the router's check.
//
// The legacy shape ("<query> - <label>") is kept for older clients. Its
// separator is a plain " - " and the label is free text, so matching is
// best-effort: exact label, then substring either direction, then a token
// overlap of at least half the label's significant words. A legacy follow-up whose
// query itself contains " - " stays inherently ambiguous; the structured
// envelope exists to retire that shape.
//
// # Inputs
//
//   - selection: The follow-up string as sent by the client.
//   - labels: tool name → short label, from routing_rules.yaml.
//
// # Outputs
//
//   - tool: The resolved tool name.
//   - query: The original query to execute.
//   - error: RouterError with ErrCodeAmbiguousFollowUp when neither shape
//     matches. Callers re-enter the selection as a plain query.
func ParseFollowUp(selection string, labels map[string]string) (tool string, query string, err error) {
	if strings.HasPrefix(selection, envelopeSentinel+":") {
		parts := strings.SplitN(selection, ":", 3)
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return "", "", NewRouterError(ErrCodeAmbiguousFollowUp,
				"malformed structured follow-up envelope", false)
		}
		return parts[1], parts[2], nil
	}

	idx := strings.LastIndex(selection, " - ")
	if idx <= 0 {
		return "", "", NewRouterError(ErrCodeAmbiguousFollowUp,
			"selection matches neither follow-up shape", false)
	}
	query = strings.TrimSpace(selection[:idx])
	label := strings.TrimSpace(selection[idx+len(" - "):])
	if query == "" || label == "" {
		return "", "", NewRouterError(ErrCodeAmbiguousFollowUp,
			"legacy follow-up has empty query or label", false)
	}

	tool, ok := matchLabel(label, labels)
	if !ok {
		return "", "", NewRouterError(ErrCodeAmbiguousFollowUp,
			fmt.Sprintf("could not identify tool from label %q", label), false)
	}
	return tool, query, nil
}

// matchLabel resolves a free-text label to a tool name: exact match, then
// substring either direction, then ≥50% overlap of the configured label's
// significant words. Stopwords and short connectives would otherwise inflate
// the overlap and let an unrelated label clear the bar.
func matchLabel(label string, labels map[string]string) (string, bool) {
	labelLower := strings.ToLower(label)

	for tool, configured := range labels {
		if strings.EqualFold(configured, label) {
			return tool, true
		}
	}
	for tool, configured := range labels {
		confLower := strings.ToLower(configured)
		if strings.Contains(confLower, labelLower) || strings.Contains(labelLower, confLower) {
			return tool, true
		}
	}

	labelTokens := tokenSet(label)
	bestTool := ""
	bestOverlap := 0.0
	for tool, configured := range labels {
		confTokens := tokenSet(configured)
		if len(confTokens) == 0 {
			continue
		}
		common := 0
		for tok := range confTokens {
			if labelTokens[tok] {
				common++
			}
		}
		overlap := float64(common) / float64(len(confTokens))
		if overlap >= 0.5 && overlap > bestOverlap {
			bestTool = tool
			bestOverlap = overlap
		}
	}
	return bestTool, bestTool != ""
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range entity.SignificantWords(s) {
		out[tok] = true
	}
	return out
}

// Decider applies the confidence thresholds to a ranked candidate list.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Decider struct {
	thresholds config.Thresholds
	labels     map[string]string
}

// NewDecider creates a decider from validated config.
func NewDecider(thresholds config.Thresholds, labels map[string]string) *Decider {
	return &Decider{thresholds: thresholds, labels: labels}
}

// Decide turns a ranked candidate list into an outcome.
//
// # Description
//
// The rules, in order:
//
//  1. Empty list, or top score below min_execute_score: decline. A top
//     score below the execute floor is a weak signal even with no rival,
//     and executing the wrong tool costs more than falling through.
//  2. Otherwise, collect rivals: candidates at or above min_search_score
//     and strictly within ambiguity_diff of the top score that have a
//     configured short label. Candidates without a label are omitted; a
//     disambiguation prompt cannot present them, and echoing one back
//     would only re-enter this decision.
//  3. Two or more such options: disambiguate (capped at max_options),
//     best first.
//  4. Otherwise: execute the top candidate.
//
// # Inputs
//
//   - query: The query to carry into the outcome (post-expansion).
//   - ranked: Candidates from the ranker, best first.
func (d *Decider) Decide(query string, ranked []MatchCandidate) *Outcome {
	if len(ranked) == 0 || ranked[0].Score < d.thresholds.MinExecuteScore {
		return &Outcome{Kind: OutcomeDecline, Query: query, Reason: "below_threshold"}
	}

	top := ranked[0].Score
	var options []DisambiguationOption
	for _, c := range ranked {
		if c.Score < d.thresholds.MinSearchScore || top-c.Score >= d.thresholds.AmbiguityDiff {
			continue
		}
		label, ok := d.labels[c.Tool.Name]
		if !ok || label == "" {
			continue
		}
		options = append(options, DisambiguationOption{
			ToolName:   c.Tool.Name,
			ShortLabel: label,
			Score:      c.Score,
			Envelope:   BuildEnvelope(c.Tool.Name, query),
		})
	}

	if len(options) >= 2 {
		if len(options) > d.thresholds.MaxOptions {
			options = options[:d.thresholds.MaxOptions]
		}
		return &Outcome{Kind: OutcomeDisambiguate, Query: query, Reason: "semantic", Options: options}
	}

	return &Outcome{
		Kind:     OutcomeExecute,
		ToolName: ranked[0].Tool.Name,
		Query:    query,
		Reason:   "semantic",
	}
}
