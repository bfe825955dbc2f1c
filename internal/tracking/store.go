package tracking

import (
	"context"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// Store persists State across runs, grounded on the teacher's
// internal/usecase/review.TrackingStore.
type Store interface {
	// Load returns the tracking state for pr, or a fresh empty State
	// (not an error) if none exists yet.
	Load(ctx context.Context, pr domain.ForgePRContext) (State, error)

	// Save persists state.
	Save(ctx context.Context, state State) error
}

// forge is the subset of reporter.Forge a Store needs. Defined locally
// rather than importing reporter.Forge directly to avoid a dependency
// cycle risk if reporter ever needs internal/tracking.
type forge interface {
	ExistingComments(ctx context.Context, pr domain.ForgePRContext) ([]domain.Comment, error)
	UpsertMarkedComment(ctx context.Context, pr domain.ForgePRContext, marker, body string) (string, error)
}

// ForgeStore persists tracking state as a single hidden comment on the
// PR, found and replaced via reporter.Forge's marker-prefixed
// find-or-create path.
type ForgeStore struct {
	forge forge
}

// NewForgeStore builds a Store backed by f (a *githubforge.Client or
// *adoforge.Client).
func NewForgeStore(f forge) *ForgeStore {
	return &ForgeStore{forge: f}
}

var _ Store = (*ForgeStore)(nil)

// Load scans pr's existing comments for the tracking marker and parses
// it. Absence of a tracking comment, or a parse failure on one that
// exists (corrupted by a manual edit, say), both degrade to a fresh
// State rather than failing the run — every finding will look new, which
// is the same behavior as reviewing this PR for the first time.
func (s *ForgeStore) Load(ctx context.Context, pr domain.ForgePRContext) (State, error) {
	comments, err := s.forge.ExistingComments(ctx, pr)
	if err != nil {
		return State{}, apperrors.WrapNetwork(err, apperrors.IsRetryable(err), "list comments for tracking state")
	}
	for _, c := range comments {
		if !IsTrackingComment(c.Body) {
			continue
		}
		state, err := Parse(c.Body)
		if err != nil {
			return NewState(pr), nil
		}
		return state, nil
	}
	return NewState(pr), nil
}

// Save renders state and upserts it as the PR's tracking comment.
func (s *ForgeStore) Save(ctx context.Context, state State) error {
	body, err := Render(state)
	if err != nil {
		return err
	}
	pr := domain.ForgePRContext{Owner: state.Owner, Repo: state.Repo, PRNumber: state.PRNumber}
	_, err = s.forge.UpsertMarkedComment(ctx, pr, Marker, body)
	if err != nil {
		return apperrors.WrapNetwork(err, apperrors.IsRetryable(err), "save tracking state")
	}
	return nil
}
