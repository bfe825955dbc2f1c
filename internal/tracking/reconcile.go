package tracking

import (
	"time"

	"github.com/odd-ai/reviewers/internal/domain"
)

// Reconciliation categorizes the outcome of comparing one run's findings
// against the prior State, grounded on the teacher's
// internal/usecase/review/deduplication.go ReconcileFindings.
type Reconciliation struct {
	// New findings have never been tracked before; the caller is
	// responsible for adding them to State via NewTrackedFindingFromFinding.
	New []domain.Finding

	// Updated findings were already tracked and open/acknowledged/disputed;
	// only LastSeen/SeenCount changed.
	Updated []TrackedFinding

	// RedetectedResolved findings were marked resolved but reappeared.
	// They stay resolved — reopening is a human decision — but the
	// caller should surface this as a warning.
	RedetectedResolved []TrackedFinding

	// Resolved findings were open, anchored in a file this run touched,
	// and are no longer detected: auto-resolved.
	Resolved []TrackedFinding
}

// Reconcile compares newFindings against state and returns the updated
// State (state itself is not mutated) plus a categorized Reconciliation.
// changedFiles scopes auto-resolution: a finding in a file this run did
// not touch is left untouched rather than resolved, since its absence
// from newFindings may just mean the agent wasn't asked to look there.
func Reconcile(state State, newFindings []domain.Finding, changedFiles []string, commitSHA string, at time.Time) (State, Reconciliation) {
	next := state.clone()
	if next.Findings == nil {
		next.Findings = make(map[domain.Fingerprint]TrackedFinding)
	}

	changed := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changed[f] = true
	}

	current := make(map[domain.Fingerprint]bool, len(newFindings))
	for _, f := range newFindings {
		current[f.Fingerprint] = true
	}

	var result Reconciliation
	for _, f := range newFindings {
		existing, ok := next.Findings[f.Fingerprint]
		if !ok {
			result.New = append(result.New, f)
			continue
		}

		switch existing.Status {
		case FindingStatusResolved:
			result.RedetectedResolved = append(result.RedetectedResolved, existing)
		case FindingStatusOpen, FindingStatusAcknowledged, FindingStatusDisputed:
			existing.MarkSeen(at)
			next.Findings[f.Fingerprint] = existing
			result.Updated = append(result.Updated, existing)
		}
	}

	for fp, tracked := range next.Findings {
		if tracked.Status != FindingStatusOpen {
			continue
		}
		if !changed[tracked.Finding.File] {
			continue
		}
		if current[fp] {
			continue
		}
		if err := tracked.UpdateStatus(FindingStatusResolved, "finding no longer detected", commitSHA, at); err != nil {
			continue
		}
		next.Findings[fp] = tracked
		result.Resolved = append(result.Resolved, tracked)
	}

	next.LastUpdated = at
	return next, result
}
