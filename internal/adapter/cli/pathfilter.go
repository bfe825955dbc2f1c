package cli

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
)

// filterByPathFilters narrows diff files to cfg.PathFilters before they
// ever reach an agent: a file matching any exclude pattern is dropped,
// then (if any include patterns are configured) a file must match at
// least one to survive. Empty Include/Exclude lists are no-ops, grounded
// on the pack's github.com/bmatcuk/doublestar/v4 glob matcher for
// "**"-aware path patterns (gitignore-style double-star globs), which a
// plain path/filepath.Match cannot express.
func filterByPathFilters(files []domain.DiffFile, filters config.PathFilters) []domain.DiffFile {
	if len(filters.Include) == 0 && len(filters.Exclude) == 0 {
		return files
	}

	kept := make([]domain.DiffFile, 0, len(files))
	for _, f := range files {
		if matchesAny(f.Path, filters.Exclude) {
			continue
		}
		if len(filters.Include) > 0 && !matchesAny(f.Path, filters.Include) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
