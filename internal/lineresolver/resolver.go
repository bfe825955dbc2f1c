// Package lineresolver maps agent-reported lines onto the valid
// commentable lines of a diff, and normalizes a full findings batch
// against it before dedup.
package lineresolver

import (
	"github.com/odd-ai/reviewers/internal/domain"
)

// Reason values explain why validation failed or a finding was altered.
const (
	ReasonFileNotInDiff = "file_not_in_diff"
	ReasonFileDeleted   = "file_deleted"
	ReasonLineNotValid  = "line_not_valid"
)

// Outcome kinds record what normalizeFindingsForDiff did to one finding.
const (
	OutcomeValid      = "valid"
	OutcomeNormalized = "normalized"
	OutcomeDowngraded = "downgraded"
	OutcomeDropped    = "dropped"
)

// Options controls ValidateLine's behavior for one call.
type Options struct {
	AdditionsOnly  bool
	SuggestNearest bool
	SourceAgent    string
}

// ValidationResult is ValidateLine's return value.
type ValidationResult struct {
	Valid            bool
	IsAddition       bool
	NearestValidLine int // 0 when none found
	Reason           string
}

// Resolver holds the per-file LineMapping index built once per run.
type Resolver struct {
	mappings     map[string]domain.LineMapping
	deletedFiles map[string]bool
}

// New builds a Resolver from the canonical files' line mappings and the
// deleted-file set produced by diffmodel.Canonicalize.
func New(mappings map[string]domain.LineMapping, deletedFiles map[string]bool) *Resolver {
	return &Resolver{mappings: mappings, deletedFiles: deletedFiles}
}

// lineAgentEmitsDiffOrdinals lists the agent identifiers permitted to
// report diff-ordinal line numbers (counted across the whole patch body)
// instead of new-file line numbers; the resolver translates for them.
// Static agents are assumed to already emit new-file numbers.
var lineAgentEmitsDiffOrdinals = map[string]bool{
	"opencode":          true,
	"pr_agent":          true,
	"ai_semantic_review": true,
	"local_llm":         true,
}

// ValidateLine reports whether line is a commentable position in file.
func (r *Resolver) ValidateLine(file string, line int, opts Options) ValidationResult {
	if r.deletedFiles[file] {
		return ValidationResult{Valid: false, Reason: ReasonFileDeleted}
	}

	mapping, ok := r.mappings[file]
	if !ok {
		return ValidationResult{Valid: false, Reason: ReasonFileNotInDiff}
	}

	resolvedLine := line
	if lineAgentEmitsDiffOrdinals[opts.SourceAgent] {
		if translated, ok := translateDiffOrdinal(mapping, line); ok {
			resolvedLine = translated
		}
	}

	validSet := mapping.AllLines
	if opts.AdditionsOnly {
		validSet = mapping.AddedLines
	}

	if validSet[resolvedLine] {
		return ValidationResult{Valid: true, IsAddition: mapping.AddedLines[resolvedLine]}
	}

	result := ValidationResult{Valid: false, Reason: ReasonLineNotValid}
	if opts.SuggestNearest {
		if nearest, found := nearestLine(mapping, resolvedLine, opts.AdditionsOnly); found {
			result.NearestValidLine = nearest
		}
	}
	return result
}

// translateDiffOrdinal maps a 1-based ordinal counted across every line
// the hunks contribute (added and context, in hunk/line order) onto its
// new-file line number.
func translateDiffOrdinal(mapping domain.LineMapping, ordinal int) (int, bool) {
	if ordinal <= 0 {
		return 0, false
	}
	count := 0
	for _, h := range mapping.Hunks {
		for _, l := range h.Lines {
			if l.Kind == domain.LineAdded || l.Kind == domain.LineContext {
				count++
				if count == ordinal {
					return l.NewLineNum, true
				}
			}
		}
	}
	return 0, false
}

// nearestLine returns the element of the valid set closest to line by
// absolute distance; the lower line number wins ties.
func nearestLine(mapping domain.LineMapping, line int, additionsOnly bool) (int, bool) {
	validSet := mapping.AllLines
	if additionsOnly {
		validSet = mapping.AddedLines
	}
	if len(validSet) == 0 {
		return 0, false
	}

	best := 0
	bestDist := -1
	for _, candidate := range mapping.SortedAllLines() {
		if !validSet[candidate] {
			continue
		}
		dist := candidate - line
		if dist < 0 {
			dist = -dist
		}
		// SortedAllLines is ascending, so the first candidate at a given
		// distance is already the lower line — ties resolve themselves.
		if bestDist == -1 || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	return best, bestDist != -1
}
