package orchestrator

import "github.com/odd-ai/reviewers/internal/domain"

// TrustDecision is the outcome of evaluating a RunContext's forge metadata
// against the configured trust policy, before any agent runs.
type TrustDecision struct {
	Allowed bool
	Skip    bool
	Reason  string // e.g. "fork_pr", "draft_pr"; empty when Allowed
}

// EvaluateTrust implements §4.7's trust gate: fork PRs are skipped unless
// trustedOnly is false, draft PRs are always skipped, and a non-PR
// ("push mode") run is allowed through to produce a check only.
func EvaluateTrust(forgeCtx domain.ForgePRContext, trustedOnly bool) TrustDecision {
	if forgeCtx.PushMode {
		return TrustDecision{Allowed: true}
	}

	if forgeCtx.IsDraft {
		return TrustDecision{Skip: true, Reason: "draft_pr"}
	}

	if forgeCtx.IsFork && trustedOnly {
		return TrustDecision{Skip: true, Reason: "fork_pr"}
	}

	return TrustDecision{Allowed: true}
}

// GitHubForkDetector reports whether the PR's head and base repos differ.
func GitHubForkDetector(headRepoFullName, baseRepoFullName string) bool {
	return headRepoFullName != baseRepoFullName
}

// ADOForkDetector reports whether the source repository URI differs from
// the build repository URI; an empty source URI means fork status cannot
// be determined from this signal and is treated as not-a-fork.
func ADOForkDetector(sourceRepoURI, buildRepoURI string) bool {
	if sourceRepoURI == "" {
		return false
	}
	return sourceRepoURI != buildRepoURI
}
