package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/domain"
)

func buildTestState() State {
	s := NewState(domain.ForgePRContext{Owner: "acme", Repo: "widgets", PRNumber: 42})
	s.ReviewedCommits = []string{"deadbeefcafef00d"}
	tf, _ := NewTrackedFindingFromFinding(domain.Finding{
		Fingerprint: "fp1",
		File:        "a.go",
		Line:        10,
		Severity:    domain.SeverityWarning,
		Message:     "possible nil deref",
		RuleID:      "R1",
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "deadbeefcafef00d")
	s.Findings[tf.Fingerprint] = tf
	s.LastUpdated = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	return s
}

func TestIsTrackingCommentDetectsMarker(t *testing.T) {
	body, err := Render(buildTestState())
	require.NoError(t, err)
	assert.True(t, IsTrackingComment(body))
	assert.False(t, IsTrackingComment("just a regular comment"))
}

func TestRenderParseRoundTrip(t *testing.T) {
	original := buildTestState()
	body, err := Render(original)
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)

	assert.Equal(t, original.Owner, parsed.Owner)
	assert.Equal(t, original.Repo, parsed.Repo)
	assert.Equal(t, original.PRNumber, parsed.PRNumber)
	assert.Equal(t, original.ReviewedCommits, parsed.ReviewedCommits)
	require.Contains(t, parsed.Findings, domain.Fingerprint("fp1"))
	assert.Equal(t, "possible nil deref", parsed.Findings["fp1"].Finding.Message)
	assert.Equal(t, FindingStatusOpen, parsed.Findings["fp1"].Status)
}

func TestParseRejectsMissingMarkers(t *testing.T) {
	_, err := Parse("no markers here")
	assert.Error(t, err)
}

func TestParseRejectsMalformedBase64(t *testing.T) {
	body := Marker + "\n" + metadataStart + "\nnot-valid-base64!!!\n" + metadataEnd
	_, err := Parse(body)
	assert.Error(t, err)
}

func TestParseSkipsFindingsWithEmptyFingerprint(t *testing.T) {
	state := buildTestState()
	tf := state.Findings["fp1"]
	tf.Fingerprint = ""
	tf.Finding.Fingerprint = ""
	delete(state.Findings, "fp1")
	state.Findings[""] = tf

	body, err := Render(state)
	require.NoError(t, err)
	parsed, err := Parse(body)
	require.NoError(t, err)
	assert.Empty(t, parsed.Findings)
}
