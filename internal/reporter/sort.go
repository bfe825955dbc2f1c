package reporter

import (
	"sort"

	"github.com/odd-ai/reviewers/internal/domain"
)

// SortFindings orders findings by (severity ascending error<warning<info,
// file ascending lexicographic, line ascending with undefined treated as
// 0), per §5's ordering guarantee. Sorts in place and also returns the
// slice for chaining.
func SortFindings(findings []domain.Finding) []domain.Finding {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return findings
}
