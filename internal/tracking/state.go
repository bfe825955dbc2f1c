// Package tracking persists a PR's finding lifecycle across review runs,
// grounded on the teacher's internal/domain/tracking.go and
// internal/usecase/review/tracking.go: findings are identified by their
// stable domain.Fingerprint (not file/line, which drift), carry an
// open/resolved/acknowledged/disputed status, and are reconciled against
// each new run's findings so a finding that stops reproducing is
// auto-resolved instead of re-posted. This is a best-effort supplement —
// a Store failure degrades to "every finding looks new" rather than
// aborting the run.
package tracking

import (
	"fmt"
	"time"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// FindingStatus is the lifecycle state of a tracked finding.
type FindingStatus string

const (
	FindingStatusOpen         FindingStatus = "open"
	FindingStatusResolved     FindingStatus = "resolved"
	FindingStatusAcknowledged FindingStatus = "acknowledged"
	FindingStatusDisputed     FindingStatus = "disputed"
)

// IsValid reports whether s is one of the recognized statuses.
func (s FindingStatus) IsValid() bool {
	switch s {
	case FindingStatusOpen, FindingStatusResolved, FindingStatusAcknowledged, FindingStatusDisputed:
		return true
	default:
		return false
	}
}

// MaxStatusReasonLength bounds the human-supplied reason text carried on
// a status transition.
const MaxStatusReasonLength = 500

// TrackedFinding wraps a domain.Finding with cross-run lifecycle state.
type TrackedFinding struct {
	Finding      domain.Finding
	Fingerprint  domain.Fingerprint
	Status       FindingStatus
	StatusReason string
	FirstSeen    time.Time
	LastSeen     time.Time
	SeenCount    int
	ReviewCommit string
	ResolvedAt   *time.Time
	ResolvedIn   *string
}

// NewTrackedFindingFromFinding starts a TrackedFinding in open status, as
// of the first run that detected it.
func NewTrackedFindingFromFinding(f domain.Finding, seenAt time.Time, reviewCommit string) (TrackedFinding, error) {
	if f.Fingerprint == "" {
		return TrackedFinding{}, apperrors.Validation("finding has no fingerprint")
	}
	if seenAt.IsZero() {
		return TrackedFinding{}, apperrors.Validation("seenAt timestamp is required")
	}
	return TrackedFinding{
		Finding:      f,
		Fingerprint:  f.Fingerprint,
		Status:       FindingStatusOpen,
		FirstSeen:    seenAt,
		LastSeen:     seenAt,
		SeenCount:    1,
		ReviewCommit: reviewCommit,
	}, nil
}

// MarkSeen records another run detecting this finding, preserving status.
func (tf *TrackedFinding) MarkSeen(seenAt time.Time) {
	tf.LastSeen = seenAt
	tf.SeenCount++
}

// UpdateStatus transitions tf to status, with side effects matching the
// teacher's: reopening clears reason/resolution, resolving stamps
// ResolvedAt/ResolvedIn, and acknowledged/disputed clear any prior
// resolution while recording reason.
func (tf *TrackedFinding) UpdateStatus(status FindingStatus, reason, currentCommit string, at time.Time) error {
	if !status.IsValid() {
		return apperrors.Validation("invalid finding status %q", status)
	}
	if len(reason) > MaxStatusReasonLength {
		return apperrors.Validation("status reason exceeds %d characters", MaxStatusReasonLength)
	}

	if status == FindingStatusOpen {
		tf.Status = status
		tf.StatusReason = ""
		tf.ResolvedAt = nil
		tf.ResolvedIn = nil
		return nil
	}

	tf.Status = status
	tf.StatusReason = reason
	if status == FindingStatusResolved {
		resolvedAt := at
		tf.ResolvedAt = &resolvedAt
		if currentCommit != "" {
			tf.ResolvedIn = &currentCommit
		} else {
			tf.ResolvedIn = nil
		}
		return nil
	}

	tf.ResolvedAt = nil
	tf.ResolvedIn = nil
	return nil
}

// IsActive reports whether tf still needs attention.
func (tf TrackedFinding) IsActive() bool { return tf.Status == FindingStatusOpen }

// State is one PR's tracking snapshot: every commit reviewed so far and
// every finding's lifecycle, keyed by fingerprint.
type State struct {
	Owner           string
	Repo            string
	PRNumber        int
	ReviewedCommits []string
	Findings        map[domain.Fingerprint]TrackedFinding
	LastUpdated     time.Time
}

// NewState builds an empty tracking state scoped to pr.
func NewState(pr domain.ForgePRContext) State {
	return State{
		Owner:    pr.Owner,
		Repo:     pr.Repo,
		PRNumber: pr.PRNumber,
		Findings: make(map[domain.Fingerprint]TrackedFinding),
	}
}

// key uniquely identifies the PR this state belongs to, for log lines and
// store lookups that need a flat string.
func (s State) key() string { return fmt.Sprintf("%s/%s#%d", s.Owner, s.Repo, s.PRNumber) }

// HasBeenReviewed reports whether commitSHA already appears in
// ReviewedCommits.
func (s State) HasBeenReviewed(commitSHA string) bool {
	for _, sha := range s.ReviewedCommits {
		if sha == commitSHA {
			return true
		}
	}
	return false
}

// ActiveFindings returns every finding still in open status.
func (s State) ActiveFindings() []TrackedFinding {
	active := make([]TrackedFinding, 0, len(s.Findings))
	for _, f := range s.Findings {
		if f.IsActive() {
			active = append(active, f)
		}
	}
	return active
}

// clone deep-copies the mutable parts of s (the Findings map and
// ReviewedCommits slice) so Reconcile can return a new State
// without aliasing the caller's.
func (s State) clone() State {
	findings := make(map[domain.Fingerprint]TrackedFinding, len(s.Findings))
	for fp, tf := range s.Findings {
		findings[fp] = tf
	}
	var commits []string
	if len(s.ReviewedCommits) > 0 {
		commits = make([]string, len(s.ReviewedCommits))
		copy(commits, s.ReviewedCommits)
	}
	return State{
		Owner:           s.Owner,
		Repo:            s.Repo,
		PRNumber:        s.PRNumber,
		ReviewedCommits: commits,
		Findings:        findings,
		LastUpdated:     s.LastUpdated,
	}
}
