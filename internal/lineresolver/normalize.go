package lineresolver

import (
	"github.com/odd-ai/reviewers/internal/diffmodel"
	"github.com/odd-ai/reviewers/internal/domain"
)

// InvalidDetail is the per-finding record kept for the drift signal and
// for test assertions: what was wrong, and what the resolver suggested.
type InvalidDetail struct {
	File         string
	OriginalLine int
	Reason       string
	Nearest      int
	SourceAgent  string
}

// Stats counts how normalizeFindingsForDiff classified a batch.
type Stats struct {
	Total        int
	Valid        int
	Normalized   int
	Downgraded   int
	Dropped      int
	DeletedFiles int
}

// NormalizeResult is normalizeFindingsForDiff's return value.
type NormalizeResult struct {
	Findings       []domain.Finding
	Stats          Stats
	InvalidDetails []InvalidDetail
}

// NormalizeConfig controls whether an invalid line is auto-corrected to
// the nearest valid one or downgraded to a file-level comment.
type NormalizeConfig struct {
	AutoFixNearest bool
}

// NormalizeFindingsForDiff walks findings, canonicalizing each file
// reference and either keeping, auto-fixing, downgrading, or dropping its
// line per §4.3. File-level findings (Line == 0) on files that are not
// deleted pass through as valid without consulting the resolver; on a
// deleted file they are counted as downgraded like any other finding.
func (r *Resolver) NormalizeFindingsForDiff(findings []domain.Finding, cfg NormalizeConfig) NormalizeResult {
	result := NormalizeResult{Stats: Stats{Total: len(findings)}}

	for _, f := range findings {
		if f.SourceAgent == "" || f.File == "" || f.Message == "" {
			// ValidationError: fails the canonical schema before dedup.
			result.Stats.Dropped++
			result.InvalidDetails = append(result.InvalidDetails, InvalidDetail{
				File: f.File, OriginalLine: f.Line, Reason: "schema_invalid", SourceAgent: f.SourceAgent,
			})
			continue
		}

		canonical, err := diffmodel.CanonicalPath(f.File)
		if err != nil {
			result.Stats.Dropped++
			result.InvalidDetails = append(result.InvalidDetails, InvalidDetail{
				File: f.File, OriginalLine: f.Line, Reason: "invalid_path", SourceAgent: f.SourceAgent,
			})
			continue
		}
		f.File = canonical

		if r.deletedFiles[f.File] {
			original := f.Line
			f.Line = 0
			f.EndLine = 0
			result.Stats.Downgraded++
			result.Stats.DeletedFiles++
			result.InvalidDetails = append(result.InvalidDetails, InvalidDetail{
				File: f.File, OriginalLine: original, Reason: ReasonFileDeleted, SourceAgent: f.SourceAgent,
			})
			result.Findings = append(result.Findings, f)
			continue
		}

		if f.Line == 0 {
			result.Stats.Valid++
			result.Findings = append(result.Findings, f)
			continue
		}

		validation := r.ValidateLine(f.File, f.Line, Options{SuggestNearest: cfg.AutoFixNearest, SourceAgent: f.SourceAgent})
		if validation.Valid {
			result.Stats.Valid++
			result.Findings = append(result.Findings, f)
			continue
		}

		if cfg.AutoFixNearest && validation.NearestValidLine != 0 {
			original := f.Line
			f.Line = validation.NearestValidLine
			if f.EndLine != 0 {
				f.EndLine = validation.NearestValidLine
			}
			result.Stats.Normalized++
			result.InvalidDetails = append(result.InvalidDetails, InvalidDetail{
				File: f.File, OriginalLine: original, Reason: validation.Reason,
				Nearest: validation.NearestValidLine, SourceAgent: f.SourceAgent,
			})
			result.Findings = append(result.Findings, f)
			continue
		}

		original := f.Line
		f.Line = 0
		f.EndLine = 0
		result.Stats.Downgraded++
		result.InvalidDetails = append(result.InvalidDetails, InvalidDetail{
			File: f.File, OriginalLine: original, Reason: validation.Reason, SourceAgent: f.SourceAgent,
		})
		result.Findings = append(result.Findings, f)
	}

	return result
}
