package stale

import (
	"context"
	"testing"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	resolutions []map[string]any
	warnings    []map[string]any
}

func (r *recordingLogger) LogCommentResolution(ctx context.Context, fields map[string]any) {
	r.resolutions = append(r.resolutions, fields)
}
func (r *recordingLogger) LogCommentResolutionWarning(ctx context.Context, fields map[string]any) {
	r.warnings = append(r.warnings, fields)
}

func k(file, msg string, line int) domain.DedupeKey {
	fp := fingerprint.New("", file, msg)
	return fingerprint.BuildDedupeKey(fp, file, line)
}

func TestIdentifyStaleCommentsNoMatchingCurrentFinding(t *testing.T) {
	existing := k("a.ts", "issue one", 10)
	current := []domain.Finding{{File: "a.ts", Message: "unrelated issue", Line: 10}}
	stale := IdentifyStaleComments([]domain.DedupeKey{existing}, current)
	assert.Contains(t, stale, existing)
}

func TestIdentifyStaleCommentsMatchWithinProximity(t *testing.T) {
	fp := fingerprint.New("R1", "a.ts", "missing null check")
	existing := fingerprint.BuildDedupeKey(fp, "a.ts", 11)
	current := []domain.Finding{{Fingerprint: fp, RuleID: "R1", File: "a.ts", Message: "missing null check", Line: 14}}
	stale := IdentifyStaleComments([]domain.DedupeKey{existing}, current)
	assert.Empty(t, stale)
}

// Scenario 4: both markers in a grouped comment go stale.
func TestResolveCommentFullResolution(t *testing.T) {
	k1 := k("a.ts", "issue one", 10)
	k2 := k("a.ts", "issue two", 20)
	body := "🔴 **Line 10** issue one\n" + fingerprint.BuildFingerprintMarker(k1) +
		"\n🔴 **Line 20** issue two\n" + fingerprint.BuildFingerprintMarker(k2)

	staleSet := map[domain.DedupeKey]bool{k1: true, k2: true}
	logger := &recordingLogger{}

	result := ResolveComment(context.Background(), domain.Comment{ID: "c1", Body: body}, staleSet, logger)

	require.True(t, result.FullyResolved)
	assert.Contains(t, result.NewBody, "~~")
	assert.Contains(t, result.NewBody, "✅ Resolved - This issue appears to have been fixed.")
	assert.Contains(t, result.NewBody, string(k1))
	assert.Contains(t, result.NewBody, string(k2))

	require.Len(t, logger.resolutions, 1)
	assert.Equal(t, 2, logger.resolutions[0]["fingerprintCount"])
	assert.Equal(t, 2, logger.resolutions[0]["staleCount"])
	assert.Equal(t, true, logger.resolutions[0]["resolved"])
}

// Scenario 3: a grouped comment where only some markers are stale.
func TestResolveCommentPartialResolutionPreservesActiveBlock(t *testing.T) {
	k1 := k("a.ts", "issue one", 10)
	k2 := k("a.ts", "issue two", 20)
	k3 := k("a.ts", "issue three", 30)

	activeBlock := "🔴 **Line 20** issue two, still active\n"
	body := "🔴 **Line 10** issue one\n" + fingerprint.BuildFingerprintMarker(k1) +
		"\n" + activeBlock + fingerprint.BuildFingerprintMarker(k2) +
		"\n🔴 **Line 30** issue three\n" + fingerprint.BuildFingerprintMarker(k3)

	staleSet := map[domain.DedupeKey]bool{k1: true, k3: true}

	result := ResolveComment(context.Background(), domain.Comment{ID: "c1", Body: body}, staleSet, nil)

	require.False(t, result.FullyResolved)
	assert.Contains(t, result.NewBody, activeBlock+string(fingerprint.BuildFingerprintMarker(k2)))
	assert.NotContains(t, result.NewBody, "~~"+activeBlock)
	assert.Contains(t, result.NewBody, string(k1))
	assert.Contains(t, result.NewBody, string(k2))
	assert.Contains(t, result.NewBody, string(k3))
	assert.NotContains(t, result.NewBody, "✅ Resolved")
}

func TestResolveCommentMalformedMarkerEmitsOneWarningAndSkipsResolution(t *testing.T) {
	body := "some text\n<!-- odd-ai-reviewers:fingerprint:v1:not-well-formed -->"
	logger := &recordingLogger{}

	result := ResolveComment(context.Background(), domain.Comment{ID: "c1", Body: body}, map[domain.DedupeKey]bool{}, logger)

	assert.True(t, result.Malformed)
	assert.False(t, result.FullyResolved)
	require.Len(t, logger.warnings, 1)
	assert.Equal(t, "malformed_marker", logger.warnings[0]["reason"])
}

func TestResolveCommentNoMarkersIsNoOp(t *testing.T) {
	result := ResolveComment(context.Background(), domain.Comment{ID: "c1", Body: "plain text, no markers"}, map[domain.DedupeKey]bool{}, nil)
	assert.False(t, result.FullyResolved)
	assert.False(t, result.Malformed)
	assert.Empty(t, result.NewBody)
}
