package reporter

import (
	"context"
	"time"

	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/dedup"
	"github.com/odd-ai/reviewers/internal/diffmodel"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
	"github.com/odd-ai/reviewers/internal/lineresolver"
	"github.com/odd-ai/reviewers/internal/orchestrator"
	"github.com/odd-ai/reviewers/internal/stale"
)

// InlineCommentDelay is the minimum time between inline comment posts,
// §5's rate-limit guarantee against forge API abuse.
const InlineCommentDelay = 100 * time.Millisecond

// maxGroupLineDistance is how close two same-file findings must be to be
// folded into one grouped inline comment.
const maxGroupLineDistance = 3

// maxAnnotationsPerRequest is GitHub's check-run annotation cap; ADO has
// no equivalent but the cap is applied uniformly for simplicity.
const maxAnnotationsPerRequest = 50

// Logger is the minimal surface Publish needs for structured logging
// (comment resolution and a failed summary-comment upsert).
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]any)
	LogWarning(ctx context.Context, message string, fields map[string]any)
}

// staleLoggerAdapter satisfies internal/stale.Logger by forwarding to the
// reporter's Logger with the stale package's two fixed event names.
type staleLoggerAdapter struct{ l Logger }

func (a staleLoggerAdapter) LogCommentResolution(ctx context.Context, fields map[string]any) {
	if a.l != nil {
		a.l.LogInfo(ctx, "comment_resolution", fields)
	}
}

func (a staleLoggerAdapter) LogCommentResolutionWarning(ctx context.Context, fields map[string]any) {
	if a.l != nil {
		a.l.LogWarning(ctx, "comment_resolution_warning", fields)
	}
}

// PublishResult summarizes what Publish did, for the caller's own logging
// or tests.
type PublishResult struct {
	Conclusion         Conclusion
	Stats              lineresolver.Stats
	PostedComments     int
	SkippedByProximity int
	ResolvedComments   int
}

// Publish runs the full lifecycle described in §4.8: canonicalize,
// resolve lines, normalize, dedupe, sort, summarize, dispatch by
// reporting mode, gate, place inline comments, then resolve stale
// comments. It completes the check (or status) before returning.
func Publish(
	ctx context.Context,
	forge Forge,
	handle CheckHandle,
	pr domain.ForgePRContext,
	findings []domain.Finding,
	partials []domain.PartialFinding,
	diffFiles []domain.DiffFile,
	cfg config.Config,
	passes []orchestrator.PassOutcome,
	logger Logger,
) (PublishResult, error) {
	canon, err := diffmodel.Canonicalize(diffFiles)
	if err != nil {
		return PublishResult{}, err
	}

	mappings := make(map[string]domain.LineMapping, len(canon.Files))
	for _, f := range canon.Files {
		hunks := diffmodel.ParseHunks(f.Patch)
		mappings[f.Path] = diffmodel.BuildLineMapping(f.Path, hunks)
	}
	resolver := lineresolver.New(mappings, canon.DeletedFiles)

	normResult := resolver.NormalizeFindingsForDiff(findings, lineresolver.NormalizeConfig{AutoFixNearest: true})
	deduped := dedup.DeduplicateFindings(normResult.Findings)
	deduped = SortFindings(deduped)
	dedupedPartials := dedup.DeduplicatePartialFindings(partials)

	summary := BuildSummary(deduped, dedupedPartials, normResult.Stats, passes)

	mode := reportingMode(cfg)
	result := PublishResult{Stats: normResult.Stats}

	var existing []domain.Comment
	if mode.wantsComments {
		existing, err = forge.ExistingComments(ctx, pr)
		if err != nil {
			existing = nil
		}
	}

	if mode.wantsComments {
		if err := forge.UpsertSummaryComment(ctx, pr, summary); err != nil && logger != nil {
			logger.LogWarning(ctx, "summary comment upsert failed", map[string]any{"error": err.Error()})
		}
	}

	conclusion := ConclusionSuccess
	if cfg.Gating.Enabled && anyAtOrAboveSeverity(deduped, domain.Severity(cfg.Gating.FailOnSeverity)) {
		conclusion = ConclusionFailure
	}

	if mode.wantsComments {
		posted, skipped := placeInlineComments(ctx, forge, pr, deduped, existing, maxInlineComments(cfg))
		result.PostedComments = posted
		result.SkippedByProximity = skipped
	}

	if mode.wantsCheck {
		annotations := buildAnnotations(deduped)
		title := "AI Review"
		if err := forge.CompleteCheck(ctx, handle, pr, conclusion, title, summary, annotations); err != nil {
			return result, err
		}
	}

	if mode.wantsComments {
		currentFindings := deduped
		for _, c := range existing {
			staleKeys := stale.IdentifyStaleComments(c.Markers, currentFindings)
			staleSet := make(map[domain.DedupeKey]bool, len(staleKeys))
			for _, k := range staleKeys {
				staleSet[k] = true
			}
			res := stale.ResolveComment(ctx, c, staleSet, staleLoggerAdapter{logger})
			if res.BodyChanged {
				if err := forge.UpdateCommentBody(ctx, pr, c.ID, res.NewBody); err == nil {
					result.ResolvedComments++
				}
			}
		}
	}

	result.Conclusion = conclusion
	return result, nil
}

func anyAtOrAboveSeverity(findings []domain.Finding, threshold domain.Severity) bool {
	thresholdRank := threshold.Rank()
	for _, f := range findings {
		if f.Severity.Rank() <= thresholdRank {
			return true
		}
	}
	return false
}

func buildAnnotations(findings []domain.Finding) []Annotation {
	annotations := make([]Annotation, 0, len(findings))
	for _, f := range findings {
		if len(annotations) >= maxAnnotationsPerRequest {
			break
		}
		end := f.EndLine
		if end < f.Line {
			end = f.Line
		}
		annotations = append(annotations, Annotation{
			File:      f.File,
			StartLine: f.Line,
			EndLine:   end,
			Severity:  f.Severity,
			Message:   f.Message,
			Title:     f.RuleID,
		})
	}
	return annotations
}

// placeInlineComments groups adjacent findings, skips proximity
// duplicates against the existing comment set, and posts the rest with
// the mandated inter-post delay.
func placeInlineComments(ctx context.Context, forge Forge, pr domain.ForgePRContext, findings []domain.Finding, existing []domain.Comment, max int) (posted int, skipped int) {
	var existingKeys []domain.DedupeKey
	for _, c := range existing {
		existingKeys = append(existingKeys, c.Markers...)
	}
	exactKeySet := make(map[domain.DedupeKey]bool, len(existingKeys))
	for _, k := range existingKeys {
		exactKeySet[k] = true
	}
	proximityMap := dedup.BuildProximityMap(existingKeys)

	groups := groupAdjacentFindings(findings)

	for _, group := range groups {
		if posted >= max {
			break
		}

		dup := false
		for _, f := range group {
			if dup = dedup.IsDuplicateByProximity(f, exactKeySet, proximityMap); dup {
				break
			}
		}
		if dup {
			skipped++
			continue
		}

		comment := buildGroupComment(group)
		if _, err := forge.PostInlineComment(ctx, pr, comment); err != nil {
			continue
		}
		posted++

		for _, f := range group {
			key := fingerprint.DedupeKeyOfFinding(f)
			exactKeySet[key] = true
			proximityMap = dedup.UpdateProximityMap(proximityMap, f)
		}

		select {
		case <-ctx.Done():
			return posted, skipped
		case <-time.After(InlineCommentDelay):
		}
	}

	return posted, skipped
}

// groupAdjacentFindings folds same-file findings within maxGroupLineDistance
// lines of each other into a single group, preserving input order (already
// sorted by severity, file, line).
func groupAdjacentFindings(findings []domain.Finding) [][]domain.Finding {
	var groups [][]domain.Finding
	for _, f := range findings {
		if len(groups) > 0 {
			last := groups[len(groups)-1]
			lastFinding := last[len(last)-1]
			if lastFinding.File == f.File && abs(f.Line-lastFinding.Line) <= maxGroupLineDistance {
				groups[len(groups)-1] = append(last, f)
				continue
			}
		}
		groups = append(groups, []domain.Finding{f})
	}
	return groups
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func buildGroupComment(group []domain.Finding) InlineComment {
	first := group[0]
	end := first.Line
	var body string
	var keys []domain.DedupeKey
	for _, f := range group {
		key := fingerprint.DedupeKeyOfFinding(f)
		keys = append(keys, key)
		body += string(f.Severity) + ": " + f.Message + "\n"
		body += fingerprint.BuildFingerprintMarker(key) + "\n"
		if f.Line > end {
			end = f.Line
		}
	}
	return InlineComment{
		File:         first.File,
		Line:         first.Line,
		EndLine:      end,
		Body:         body,
		Fingerprints: keys,
	}
}

type reportMode struct {
	wantsCheck    bool
	wantsComments bool
}

func reportingMode(cfg config.Config) reportMode {
	if cfg.Reporting.ADO.Mode != "" {
		switch cfg.Reporting.ADO.Mode {
		case "status_only":
			return reportMode{wantsCheck: true}
		case "threads_only":
			return reportMode{wantsComments: true}
		default:
			return reportMode{wantsCheck: true, wantsComments: true}
		}
	}

	switch cfg.Reporting.GitHub.Mode {
	case "checks_only":
		return reportMode{wantsCheck: true}
	case "comments_only":
		return reportMode{wantsComments: true}
	case "checks_and_comments", "":
		return reportMode{wantsCheck: true, wantsComments: true}
	default:
		return reportMode{wantsCheck: true, wantsComments: true}
	}
}

func maxInlineComments(cfg config.Config) int {
	if cfg.Reporting.ADO.Mode != "" && cfg.Reporting.ADO.MaxInlineComments > 0 {
		return cfg.Reporting.ADO.MaxInlineComments
	}
	if cfg.Reporting.GitHub.MaxInlineComments > 0 {
		return cfg.Reporting.GitHub.MaxInlineComments
	}
	return 50
}
