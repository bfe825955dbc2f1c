// Package dedup implements exact and proximity-based duplicate
// suppression over Finding/PartialFinding batches, grounded on the
// teacher's usecase/review deduplication pass.
package dedup

import (
	"fmt"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
)

// DeduplicateFindings preserves the first occurrence per DedupeKey,
// stable order. Idempotent: DeduplicateFindings(DeduplicateFindings(xs))
// == DeduplicateFindings(xs).
func DeduplicateFindings(findings []domain.Finding) []domain.Finding {
	seen := make(map[domain.DedupeKey]bool, len(findings))
	out := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		f = fingerprint.EnsureFingerprint(f)
		key := fingerprint.DedupeKeyOfFinding(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// partialKey includes sourceAgent so cross-agent duplicates are preserved
// — no single failed agent is authoritative about whether an issue is
// real, so every agent's partial finding for the same identity survives.
func partialKey(f domain.PartialFinding) string {
	fp := f.Fingerprint
	if fp == "" {
		fp = fingerprint.New(f.RuleID, f.File, f.Message)
	}
	return fmt.Sprintf("%s:%s:%s:%d", f.SourceAgent, fp, f.File, f.Line)
}

// DeduplicatePartialFindings preserves the first occurrence per
// (sourceAgent, fingerprint, file, line), stable order.
func DeduplicatePartialFindings(findings []domain.PartialFinding) []domain.PartialFinding {
	seen := make(map[string]bool, len(findings))
	out := make([]domain.PartialFinding, 0, len(findings))
	for _, f := range findings {
		if f.Fingerprint == "" {
			f.Fingerprint = fingerprint.New(f.RuleID, f.File, f.Message)
		}
		key := partialKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
