package orchestrator

import (
	"context"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
)

// Orchestrator runs configured passes of agents against a RunContext. It
// owns the single mutable BudgetState for the run and is the only writer
// to it, per §5's single-mutator requirement.
type Orchestrator struct {
	deps Deps
}

// New constructs an Orchestrator from its dependencies. Deps.Clock
// defaults to RealClock and Deps.Cache to NoopCache when left zero, so
// callers that don't care about timing or caching can omit them.
func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Cache == nil {
		deps.Cache = NoopCache{}
	}
	return &Orchestrator{deps: deps}
}

// Run executes every enabled pass in order, feeding the accumulated
// complete and partial findings into the returned RunResult. It evaluates
// trust before running anything: a skip at the trust gate produces an
// empty RunResult with no passes executed (push-mode and trusted PRs fall
// through to normal execution).
func (o *Orchestrator) Run(ctx context.Context, runCtx domain.RunContext, provider Provider, env map[string]string) RunResult {
	decision := EvaluateTrust(runCtx.ForgeContext, o.deps.Config.TrustedOnly)
	if decision.Skip {
		return RunResult{}
	}

	result := RunResult{}
	budget := runCtx.Budget

	for _, pass := range o.deps.Config.Passes {
		if !pass.Enabled {
			continue
		}

		select {
		case <-ctx.Done():
			result.Cancelled = true
			return result
		default:
		}

		outcome, passFatalErr, updatedBudget := o.runPass(ctx, pass, runCtx, provider, env, budget)
		budget = updatedBudget
		result.Passes = append(result.Passes, outcome)

		for _, r := range outcome.Results {
			switch r.Status {
			case domain.AgentStatusSuccess, domain.AgentStatusCached:
				result.Findings = append(result.Findings, r.Findings...)
			case domain.AgentStatusFailure:
				result.PartialFindings = append(result.PartialFindings, r.PartialFindings...)
			}
		}

		if passFatalErr != nil {
			result.FatalErr = passFatalErr
			return result
		}

		if ctx.Err() != nil {
			result.Cancelled = true
			return result
		}
	}

	return result
}

// runPass executes one pass's agents in order, consulting the cache before
// each invocation and the budget before any LLM-backed agent. It returns
// the pass outcome, a fatal error (non-nil only when pass.Required and an
// agent failed or was skipped for budget), and the budget state after
// this pass's spend.
func (o *Orchestrator) runPass(ctx context.Context, pass config.PassConfig, runCtx domain.RunContext, provider Provider, env map[string]string, budget domain.BudgetState) (PassOutcome, error, domain.BudgetState) {
	outcome := PassOutcome{Name: pass.Name}

	for _, agentID := range pass.Agents {
		agent, ok := o.deps.Agents[agentID]
		if !ok {
			result := domain.Skipped(agentID, "agent_not_registered")
			outcome.Results = append(outcome.Results, result)
			continue
		}

		spec := agent.Spec()

		if spec.LLMBacked {
			estimatedTokens := estimateRunTokens(runCtx)
			estimatedUSD := EstimateCostUSD(provider, estimatedTokens)
			if !budget.CanAfford(estimatedTokens, estimatedUSD) {
				result := domain.Skipped(agentID, BudgetSkipReason)
				outcome.Results = append(outcome.Results, result)
				if pass.Required {
					return outcome, apperrors.Budget("required pass %q: agent %q skipped: %s", pass.Name, agentID, BudgetSkipReason), budget
				}
				continue
			}
			budget.Spend(estimatedTokens, estimatedUSD)
		}

		cacheKey := CacheKey(runCtx.ForgeContext.PRNumber, runCtx.ForgeContext.HeadSHA, runCtx.ConfigHash, agentID)
		if cached, hit, err := o.deps.Cache.Get(ctx, cacheKey); err == nil && hit {
			result := domain.Cached(agentID, cached.Findings)
			outcome.Results = append(outcome.Results, result)
			continue
		}

		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = DefaultAgentTimeout
		}
		agentCtx, cancel := context.WithTimeout(ctx, timeout)
		scopedEnv := BuildAgentEnv(env, env, spec)
		result := o.runAgent(agentCtx, agentID, agent, runCtx, scopedEnv)
		cancel()

		if result.Status == domain.AgentStatusSuccess {
			_ = o.deps.Cache.Put(ctx, cacheKey, result)
		}

		outcome.Results = append(outcome.Results, result)

		if result.Status == domain.AgentStatusFailure && pass.Required {
			return outcome, apperrors.WrapAgent(result.Err, false, "required pass %q: agent %q failed", pass.Name, agentID), budget
		}
	}

	return outcome, nil, budget
}

// runAgent invokes the agent, translating a context-deadline timeout into
// the spec's canonical Failure{error:"timeout"} shape.
func (o *Orchestrator) runAgent(ctx context.Context, agentID string, agent Agent, runCtx domain.RunContext, env map[string]string) domain.AgentResult {
	runCtx.Ctx = ctx
	result := agent.Run(ctx, runCtx, env)

	if ctx.Err() == context.DeadlineExceeded && result.Status != domain.AgentStatusSuccess {
		return domain.Failure(agentID, apperrors.Agent(true, "agent %q timed out", agentID), result.PartialFindings)
	}
	return result
}

// estimateRunTokens counts the bounded diff's tokens with EstimateTokens
// (tiktoken, falling back to ~4 chars/token when no encoder loads), for
// budget checks made before the agent actually runs (and before we know
// which tokenizer the agent itself will use).
func estimateRunTokens(runCtx domain.RunContext) int {
	var sb strings.Builder
	for _, f := range runCtx.Diff {
		sb.WriteString(f.Patch)
	}
	return EstimateTokens(sb.String())
}
