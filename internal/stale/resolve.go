// Package stale implements stale-comment identification and grouped
// partial resolution: a prior-run comment whose markers no longer match
// any current finding is resolved outright; a comment covering several
// findings where only some went stale is struck through block-by-block,
// leaving every still-active finding's rendering untouched byte-for-byte.
package stale

import (
	"context"
	"strings"

	"github.com/odd-ai/reviewers/internal/dedup"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
)

// ResolvedSuffix is appended to a fully resolved comment body.
const ResolvedSuffix = "\n\n✅ Resolved - This issue appears to have been fixed."

// Logger is the minimal logging surface this package needs.
type Logger interface {
	LogCommentResolution(ctx context.Context, fields map[string]any)
	LogCommentResolutionWarning(ctx context.Context, fields map[string]any)
}

// IdentifyStaleComments returns the subset of existingKeys with no current
// finding sharing its (fingerprint, file) identity within the proximity
// threshold.
func IdentifyStaleComments(existingKeys []domain.DedupeKey, currentFindings []domain.Finding) []domain.DedupeKey {
	proximityMap := domain.ProximityMap{}
	for _, f := range currentFindings {
		f = fingerprint.EnsureFingerprint(f)
		key := domain.ProximityMapKey(f.Fingerprint, f.File)
		proximityMap[key] = append(proximityMap[key], f.Line)
	}

	var stale []domain.DedupeKey
	for _, key := range existingKeys {
		fp, file, line, err := fingerprint.ParseDedupeKey(key)
		if err != nil {
			continue // malformed keys are handled by the per-comment marker scan, not here
		}
		lines := proximityMap[domain.ProximityMapKey(fp, file)]
		if !hasNearbyLine(lines, line) {
			stale = append(stale, key)
		}
	}
	return stale
}

func hasNearbyLine(lines []int, target int) bool {
	for _, l := range lines {
		d := l - target
		if d < 0 {
			d = -d
		}
		if d <= dedup.LineProximityThreshold {
			return true
		}
	}
	return false
}

// Resolution describes what ResolveComment decided to do with one forge
// comment, ready for the reporter to apply (update body, or leave as is).
type Resolution struct {
	CommentID         string
	FullyResolved     bool
	Malformed         bool
	NewBody           string // only meaningful when FullyResolved or a strike-through was applied
	BodyChanged       bool
	FingerprintCount  int
	StaleCount        int
}

// ResolveComment applies §4.6's per-comment logic. staleSet is the set of
// keys IdentifyStaleComments returned, as a membership set for O(1) checks.
func ResolveComment(ctx context.Context, comment domain.Comment, staleSet map[domain.DedupeKey]bool, logger Logger) Resolution {
	spans := fingerprint.ExtractFingerprintMarkerSpans(comment.Body)
	if len(spans) == 0 {
		return Resolution{CommentID: comment.ID}
	}

	malformed := false
	uniqueKeys := map[domain.DedupeKey]bool{}
	for _, s := range spans {
		if _, _, _, err := fingerprint.ParseDedupeKey(s.Key); err != nil {
			malformed = true
			continue
		}
		uniqueKeys[s.Key] = true
	}

	if malformed {
		if logger != nil {
			logger.LogCommentResolutionWarning(ctx, map[string]any{
				"commentId": comment.ID,
				"reason":    "malformed_marker",
			})
		}
		return Resolution{CommentID: comment.ID, Malformed: true}
	}

	if len(uniqueKeys) == 0 {
		return Resolution{CommentID: comment.ID}
	}

	staleCount := 0
	for k := range uniqueKeys {
		if staleSet[k] {
			staleCount++
		}
	}

	fullyResolved := staleCount == len(uniqueKeys)

	result := Resolution{
		CommentID:        comment.ID,
		FingerprintCount: len(uniqueKeys),
		StaleCount:       staleCount,
		FullyResolved:    fullyResolved,
	}

	if fullyResolved {
		stripped := stripMarkers(comment.Body, spans)
		result.NewBody = "~~" + stripped + "~~" + reemitMarkers(spans) + ResolvedSuffix
		result.BodyChanged = true
	} else if staleCount > 0 {
		newBody, changed := strikeThroughStaleBlocks(comment.Body, spans, staleSet)
		result.NewBody = newBody
		result.BodyChanged = changed
	}

	if logger != nil {
		logger.LogCommentResolution(ctx, map[string]any{
			"commentId":        comment.ID,
			"fingerprintCount": result.FingerprintCount,
			"staleCount":       result.StaleCount,
			"resolved":         result.FullyResolved,
		})
	}

	return result
}

// stripMarkers removes every marker span from body, leaving the
// human-readable text untouched, for the fully-resolved wrap step (markers
// are re-emitted explicitly afterward rather than left inline inside the
// struck-through text).
func stripMarkers(body string, spans []fingerprint.MarkerSpan) string {
	var sb strings.Builder
	last := 0
	for _, s := range spans {
		sb.WriteString(body[last:s.Start])
		last = s.End
	}
	sb.WriteString(body[last:])
	return sb.String()
}

func reemitMarkers(spans []fingerprint.MarkerSpan) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString("\n")
		sb.WriteString(fingerprint.BuildFingerprintMarker(s.Key))
	}
	return sb.String()
}

// strikeThroughStaleBlocks wraps only the stale findings' rendered blocks
// in "~~...~~ ✅", leaving every byte of the active findings' blocks — and
// all markers — untouched. A "block" is the text from the end of the
// previous marker (or the start of the body) up to and including the
// current marker; this matches the reporter's own grouped-comment
// rendering, which emits exactly one marker at the end of each finding's
// block.
func strikeThroughStaleBlocks(body string, spans []fingerprint.MarkerSpan, staleSet map[domain.DedupeKey]bool) (string, bool) {
	var sb strings.Builder
	last := 0
	changed := false

	for _, s := range spans {
		blockText := body[last:s.Start]
		if staleSet[s.Key] && strings.TrimSpace(blockText) != "" {
			sb.WriteString("~~")
			sb.WriteString(blockText)
			sb.WriteString("~~ ✅")
			changed = true
		} else {
			sb.WriteString(blockText)
		}
		sb.WriteString(body[s.Start:s.End])
		last = s.End
	}
	sb.WriteString(body[last:])

	return sb.String(), changed
}
