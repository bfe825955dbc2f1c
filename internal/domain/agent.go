package domain

import "context"

// AgentStatus is the terminal state of one agent invocation, feeding the
// reporter's "Failed"/"Skipped" summary sections.
type AgentStatus string

const (
	AgentStatusSuccess AgentStatus = "success"
	AgentStatusFailure AgentStatus = "failure"
	AgentStatusSkipped AgentStatus = "skipped"
	AgentStatusCached  AgentStatus = "cached"
)

// AgentResult is the discriminated union every agent invocation produces
// exactly one of: Success carries complete findings, Failure carries an
// error plus whatever partial findings were salvaged before the failure,
// Skipped carries a reason (budget_exceeded, trust, disabled, ...).
type AgentResult struct {
	AgentID string
	Status  AgentStatus

	Findings        []Finding        // set only on Success
	PartialFindings []PartialFinding // set only on Failure
	Err             error            // set only on Failure
	SkipReason      string           // set only on Skipped
}

// Success constructs a Success AgentResult.
func Success(agentID string, findings []Finding) AgentResult {
	return AgentResult{AgentID: agentID, Status: AgentStatusSuccess, Findings: findings}
}

// Failure constructs a Failure AgentResult.
func Failure(agentID string, err error, partial []PartialFinding) AgentResult {
	return AgentResult{AgentID: agentID, Status: AgentStatusFailure, Err: err, PartialFindings: partial}
}

// Skipped constructs a Skipped AgentResult.
func Skipped(agentID, reason string) AgentResult {
	return AgentResult{AgentID: agentID, Status: AgentStatusSkipped, SkipReason: reason}
}

// Cached constructs a Cached AgentResult carrying a prior Success's
// findings, replacing a live invocation.
func Cached(agentID string, findings []Finding) AgentResult {
	return AgentResult{AgentID: agentID, Status: AgentStatusCached, Findings: findings}
}

// ForgePRContext identifies the pull request (or push) a run targets,
// in whichever forge's native terms.
type ForgePRContext struct {
	Owner      string
	Repo       string
	PRNumber   int // 0 for push-mode (non-PR) runs
	HeadSHA    string
	BaseSHA    string
	IsFork     bool
	IsDraft    bool
	PushMode   bool // true when there is no PR: produce a check only
}

// BudgetState tracks remaining spend for the run. It is mutated by a
// single owner, the orchestrator; agents receive a read-only quote and
// never mutate it directly.
type BudgetState struct {
	RemainingFiles     int
	RemainingDiffLines int
	RemainingTokens    int
	RemainingPRUSD     float64
	RemainingMonthlyUSD float64
}

// CanAfford reports whether the estimated spend fits in what remains of
// both the per-PR and monthly USD ceilings, and the token budget.
func (b BudgetState) CanAfford(estimatedTokens int, estimatedUSD float64) bool {
	if estimatedTokens > b.RemainingTokens {
		return false
	}
	if estimatedUSD > b.RemainingPRUSD {
		return false
	}
	if estimatedUSD > b.RemainingMonthlyUSD {
		return false
	}
	return true
}

// Spend deducts an agent invocation's actual or estimated cost from the
// budget. A remaining value that would drop below zero is clamped to zero.
func (b *BudgetState) Spend(tokens int, usd float64) {
	b.RemainingTokens -= tokens
	b.RemainingPRUSD -= usd
	b.RemainingMonthlyUSD -= usd
	if b.RemainingTokens < 0 {
		b.RemainingTokens = 0
	}
	if b.RemainingPRUSD < 0 {
		b.RemainingPRUSD = 0
	}
	if b.RemainingMonthlyUSD < 0 {
		b.RemainingMonthlyUSD = 0
	}
}

// ForgeCheck is a handle to the in-progress build status created at
// orchestration start and completed after publication.
type ForgeCheck struct {
	ID        string // forge-native check-run or commit-status identifier
	StartedAt string // RFC3339, set by the binding at creation
}

// RunContext is the read-only slice of state agents receive. The
// orchestrator owns the mutable backing field (Budget) for the run's
// lifetime; agents see Budget by value (a quote, not a handle).
type RunContext struct {
	Ctx          context.Context
	Diff         []DiffFile
	ForgeContext ForgePRContext
	ConfigHash   string
	Budget       BudgetState
}
