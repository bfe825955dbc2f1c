// Package reporter implements the provider-neutral publish lifecycle:
// canonicalize -> resolve lines -> normalize -> dedupe -> sort -> summarize
// -> dispatch -> gate -> place inline comments -> resolve stale comments.
// Concrete forge bindings (githubforge, adoforge) implement the Forge
// interface; this package owns none of their wire formats, grounded on the
// teacher's internal/usecase/github/poster.go lifecycle split between a
// use-case layer and an adapter client.
package reporter

import (
	"context"

	"github.com/odd-ai/reviewers/internal/domain"
)

// Conclusion is the terminal state of the run's check/status.
type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
)

// CheckHandle identifies the in-progress check/status created at start, to
// be completed once publish finishes.
type CheckHandle struct {
	ID string
}

// Annotation is one GitHub-style check-run annotation; ADO has no
// equivalent and ignores these.
type Annotation struct {
	File      string
	StartLine int
	EndLine   int
	Severity  domain.Severity
	Message   string
	Title     string
}

// InlineComment is one grouped placement the reporter asks the forge to
// post: a file, a line range (Line == EndLine for single-line), and a
// rendered body ending in its fingerprint marker(s).
type InlineComment struct {
	File         string
	Line         int
	EndLine      int
	Body         string
	Fingerprints []domain.DedupeKey
}

// Forge is the provider-neutral surface the reporter drives. Every method
// is called at most a bounded number of times per publish call; forge
// bindings are responsible for their own retry/backoff.
type Forge interface {
	// StartCheck creates an in-progress status. A failure here is
	// non-fatal: the run command logs it and hands reporter.Publish a
	// zero-value CheckHandle, falling back to a create-on-complete path.
	StartCheck(ctx context.Context, pr domain.ForgePRContext) (CheckHandle, error)

	// CompleteCheck transitions the check to completed with the given
	// conclusion, title, summary body, and annotations (already capped by
	// the caller to the provider's per-request limit).
	CompleteCheck(ctx context.Context, handle CheckHandle, pr domain.ForgePRContext, conclusion Conclusion, title, summary string, annotations []Annotation) error

	// ExistingComments returns every bot-relevant comment/thread on the PR,
	// each with its fingerprint markers already extracted.
	ExistingComments(ctx context.Context, pr domain.ForgePRContext) ([]domain.Comment, error)

	// UpsertSummaryComment finds the bot's summary comment (detected by a
	// distinctive header line in its own body) and updates it, or creates
	// a new one if none exists.
	UpsertSummaryComment(ctx context.Context, pr domain.ForgePRContext, body string) error

	// UpsertMarkedComment is UpsertSummaryComment generalized to an
	// arbitrary caller-supplied marker prefix, returning the comment/
	// thread ID. internal/tracking uses this to persist its state
	// comment independently of the summary comment.
	UpsertMarkedComment(ctx context.Context, pr domain.ForgePRContext, marker, body string) (string, error)

	// PostInlineComment posts one grouped inline comment and returns its
	// new comment/thread ID.
	PostInlineComment(ctx context.Context, pr domain.ForgePRContext, c InlineComment) (string, error)

	// UpdateCommentBody overwrites an existing comment/thread's body, used
	// by stale resolution to strike through or fully resolve it.
	UpdateCommentBody(ctx context.Context, pr domain.ForgePRContext, commentID string, body string) error
}
