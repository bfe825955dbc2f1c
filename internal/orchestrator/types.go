// Package orchestrator schedules passes of agents against a RunContext,
// enforcing preflight validation, trust checks, per-agent budgets and
// timeouts, and a partial-failure policy — the pass/agent execution
// pipeline at the heart of the reviewer, generalized from the teacher's
// usecase/review.Orchestrator (a sequential, deps-struct-driven review
// loop) and internal/adapter/verify/agent.go's agent-loop/cost-ceiling
// shape.
package orchestrator

import (
	"context"
	"time"

	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
)

// DefaultAgentTimeout is the per-invocation deadline when an AgentSpec
// does not override it.
const DefaultAgentTimeout = 120 * time.Second

// AgentSpec is static per-agent metadata the orchestrator consults when
// building its environment and budget decisions: whether it is
// LLM-backed (and so subject to budget checks and gets LLM secrets), and
// the env vars it additionally needs beyond the always-stripped forge
// tokens.
type AgentSpec struct {
	ID           string
	LLMBacked    bool
	NeedsSecrets []string // e.g. "ANTHROPIC_API_KEY" — passed only to agents that declare them
	Timeout      time.Duration
}

// Agent is what a registered agent implementation provides: given a
// read-only RunContext and its scoped environment, produce exactly one
// AgentResult.
type Agent interface {
	Spec() AgentSpec
	Run(ctx context.Context, runCtx domain.RunContext, env map[string]string) domain.AgentResult
}

// PassOutcome records one pass's agent results, in execution order.
type PassOutcome struct {
	Name    string
	Results []domain.AgentResult
}

// RunResult is the orchestrator's final output: every pass's outcome plus
// the accumulated complete and partial findings, ready for the reporter.
type RunResult struct {
	Passes          []PassOutcome
	Findings        []domain.Finding
	PartialFindings []domain.PartialFinding
	Cancelled       bool
	FatalErr        error // set only when a required pass failed preflight/execution
}

// Clock is injected so tests can control timing without sleeping;
// production code uses RealClock.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Deps bundles the orchestrator's collaborators. Config-object input,
// not variadic options: a single record flows through the pipeline.
type Deps struct {
	Config config.Config
	Agents map[string]Agent
	Cache  Cache
	Logger Logger
	Clock  Clock
}

// Logger is the minimal surface the orchestrator needs.
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]any)
	LogWarning(ctx context.Context, message string, fields map[string]any)
}
