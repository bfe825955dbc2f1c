package reporter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

type fakeForge struct {
	existing         []domain.Comment
	completedConcl   Conclusion
	completedSummary string
	annotations      []Annotation
	inlinePosted     []InlineComment
	updatedBodies    map[string]string
}

func newFakeForge(existing []domain.Comment) *fakeForge {
	return &fakeForge{existing: existing, updatedBodies: map[string]string{}}
}

func (f *fakeForge) StartCheck(ctx context.Context, pr domain.ForgePRContext) (CheckHandle, error) {
	return CheckHandle{ID: "check-1"}, nil
}

func (f *fakeForge) CompleteCheck(ctx context.Context, handle CheckHandle, pr domain.ForgePRContext, conclusion Conclusion, title, summary string, annotations []Annotation) error {
	f.completedConcl = conclusion
	f.completedSummary = summary
	f.annotations = annotations
	return nil
}

func (f *fakeForge) ExistingComments(ctx context.Context, pr domain.ForgePRContext) ([]domain.Comment, error) {
	return f.existing, nil
}

func (f *fakeForge) UpsertSummaryComment(ctx context.Context, pr domain.ForgePRContext, body string) error {
	return nil
}

func (f *fakeForge) UpsertMarkedComment(ctx context.Context, pr domain.ForgePRContext, marker, body string) (string, error) {
	return "marked-id", nil
}

func (f *fakeForge) PostInlineComment(ctx context.Context, pr domain.ForgePRContext, c InlineComment) (string, error) {
	f.inlinePosted = append(f.inlinePosted, c)
	return "comment-id", nil
}

func (f *fakeForge) UpdateCommentBody(ctx context.Context, pr domain.ForgePRContext, commentID string, body string) error {
	f.updatedBodies[commentID] = body
	return nil
}

func basePublishConfig() config.Config {
	return config.Config{
		Reporting: config.ReportingConfig{
			GitHub: config.GitHubReportingConfig{Mode: "checks_and_comments", MaxInlineComments: 50},
		},
		Gating: config.GatingConfig{Enabled: true, FailOnSeverity: string(domain.SeverityError)},
	}
}

func TestPublishSuccessWhenNoFindingsAtOrAboveThreshold(t *testing.T) {
	forge := newFakeForge(nil)
	findings := []domain.Finding{{Severity: domain.SeverityInfo, File: "a.go", Line: 3, Message: "nit", SourceAgent: "lint"}}
	diff := []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,1 +1,3 @@\n context\n+added\n+added two\n"}}

	result, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, findings, nil, diff, basePublishConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConclusionSuccess, result.Conclusion)
	assert.Equal(t, ConclusionSuccess, forge.completedConcl)
}

func TestPublishFailureWhenErrorSeverityPresent(t *testing.T) {
	forge := newFakeForge(nil)
	findings := []domain.Finding{{Severity: domain.SeverityError, File: "a.go", Line: 2, Message: "bug", SourceAgent: "lint"}}
	diff := []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,1 +1,3 @@\n context\n+added\n+added two\n"}}

	result, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, findings, nil, diff, basePublishConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConclusionFailure, result.Conclusion)
}

func TestPublishPostsInlineCommentsForEachGroup(t *testing.T) {
	forge := newFakeForge(nil)
	findings := []domain.Finding{
		{Severity: domain.SeverityWarning, File: "a.go", Line: 2, Message: "issue one", SourceAgent: "lint"},
		{Severity: domain.SeverityWarning, File: "b.go", Line: 50, Message: "issue two", SourceAgent: "lint"},
	}
	diff := []domain.DiffFile{
		{Path: "a.go", Patch: "@@ -1,1 +1,3 @@\n context\n+added\n+added two\n"},
		{Path: "b.go", Patch: "@@ -48,1 +48,3 @@\n context\n+added\n+added two\n"},
	}

	result, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, findings, nil, diff, basePublishConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PostedComments)
	assert.Len(t, forge.inlinePosted, 2)
}

func TestPublishSkipsProximityDuplicateAgainstExistingComment(t *testing.T) {
	finding := domain.Finding{Severity: domain.SeverityWarning, File: "a.go", Line: 2, Message: "issue one", SourceAgent: "lint", RuleID: "R1"}
	key := fingerprint.DedupeKeyOfFinding(finding)
	forge := newFakeForge([]domain.Comment{{ID: "c1", File: "a.go", Line: 2, Markers: []domain.DedupeKey{key}}})

	diff := []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,1 +1,3 @@\n context\n+added\n+added two\n"}}
	result, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, []domain.Finding{finding}, nil, diff, basePublishConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.PostedComments)
	assert.Equal(t, 1, result.SkippedByProximity)
}

func TestPublishResolvesStaleExistingComment(t *testing.T) {
	key := domain.DedupeKey("deadbeefdeadbeefdeadbeefdeadbeef:a.go:9")
	marker := fingerprint.BuildFingerprintMarker(key)
	stale := domain.Comment{
		ID:      "c1",
		File:    "a.go",
		Line:    9,
		Body:    "fixed a while ago\n" + marker,
		Markers: []domain.DedupeKey{key},
	}
	forge := newFakeForge([]domain.Comment{stale})

	diff := []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,1 +1,1 @@\n context\n"}}
	_, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, nil, nil, diff, basePublishConfig(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, forge.updatedBodies, "c1")
}

func TestPublishIncludesAgentStatusInSummary(t *testing.T) {
	forge := newFakeForge(nil)
	passes := []orchestrator.PassOutcome{
		{Name: "lint", Results: []domain.AgentResult{domain.Success("eslint", nil)}},
	}
	diff := []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,1 +1,1 @@\n context\n"}}

	_, err := Publish(context.Background(), forge, CheckHandle{}, domain.ForgePRContext{}, nil, nil, diff, basePublishConfig(), passes, nil)
	require.NoError(t, err)
	assert.Contains(t, forge.completedSummary, "eslint")
}
