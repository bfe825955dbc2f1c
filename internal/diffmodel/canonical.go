package diffmodel

import (
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// CanonicalSet is the output of Canonicalize: the normalized files plus
// the deleted-path set every later stage consults as a belt-and-suspenders
// filter before anchoring a finding.
type CanonicalSet struct {
	Files        []domain.DiffFile
	DeletedFiles map[string]bool
}

// Canonicalize produces the canonical view every downstream consumer
// (line resolver, dedup key builder, reporter) must operate on exclusively.
// It strips a single leading slash, collapses backslashes to forward
// slashes, rejects ".." segments with apperrors.Validation, and strips
// "./" prefixes. It never touches the filesystem. Status, additions/
// deletions, and the raw patch pass through unchanged — hunk line numbers
// inside the patch remain authoritative and are never rewritten here.
func Canonicalize(files []domain.DiffFile) (CanonicalSet, error) {
	out := CanonicalSet{DeletedFiles: map[string]bool{}}

	for _, f := range files {
		path, err := CanonicalPath(f.Path)
		if err != nil {
			return CanonicalSet{}, err
		}
		f.Path = path

		if f.Status == domain.FileStatusRenamed && f.OldPath != "" {
			oldPath, err := CanonicalPath(f.OldPath)
			if err != nil {
				return CanonicalSet{}, err
			}
			f.OldPath = oldPath
		}

		if f.Status == domain.FileStatusDeleted {
			out.DeletedFiles[f.Path] = true
		}

		out.Files = append(out.Files, f)
	}

	return out, nil
}

// CanonicalPath normalizes a single path per the rules in §4.1: strip a
// single leading slash, backslash→forward slash, reject ".." segments,
// strip "./" prefixes. Exported so other packages (lineresolver) can
// canonicalize a path-bearing value, e.g. a Finding.File, the same way
// Canonicalize does for diff files.
func CanonicalPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")

	segments := strings.Split(p, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == ".." {
			return "", apperrors.Validation("invalid path %q: contains '..' segment", p)
		}
		if seg == "." || seg == "" {
			continue
		}
		cleaned = append(cleaned, seg)
	}

	return strings.Join(cleaned, "/"), nil
}
