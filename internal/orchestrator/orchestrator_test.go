package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
)

type stubAgent struct {
	spec     AgentSpec
	result   domain.AgentResult
	delay    time.Duration
	runCount int
}

func (s *stubAgent) Spec() AgentSpec { return s.spec }

func (s *stubAgent) Run(ctx context.Context, runCtx domain.RunContext, env map[string]string) domain.AgentResult {
	s.runCount++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.AgentResult{AgentID: s.spec.ID}
		}
	}
	return s.result
}

func baseRunCtx() domain.RunContext {
	return domain.RunContext{
		Ctx: context.Background(),
		Budget: domain.BudgetState{
			RemainingFiles:      200,
			RemainingDiffLines:  1000,
			RemainingTokens:     1_000_000,
			RemainingPRUSD:      5.0,
			RemainingMonthlyUSD: 100.0,
		},
	}
}

func TestOrchestratorRunSucceedsAndCollectsFindings(t *testing.T) {
	lint := &stubAgent{
		spec:   AgentSpec{ID: "eslint"},
		result: domain.Success("eslint", []domain.Finding{{Message: "x", File: "a.go"}}),
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"eslint": lint}})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	require.Nil(t, result.FatalErr)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, 1, lint.runCount)
}

func TestOrchestratorSkipsDisabledPass(t *testing.T) {
	lint := &stubAgent{spec: AgentSpec{ID: "eslint"}, result: domain.Success("eslint", nil)}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"eslint"}, Enabled: false},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"eslint": lint}})
	o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	assert.Equal(t, 0, lint.runCount)
}

func TestOrchestratorAgentTimeoutProducesFailureWithNoFatal(t *testing.T) {
	slow := &stubAgent{
		spec:  AgentSpec{ID: "slowlint", Timeout: 20 * time.Millisecond},
		delay: 200 * time.Millisecond,
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"slowlint"}, Enabled: true, Required: false},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"slowlint": slow}})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	require.Nil(t, result.FatalErr)
	require.Len(t, result.Passes, 1)
	require.Len(t, result.Passes[0].Results, 1)
	outcome := result.Passes[0].Results[0]
	assert.Equal(t, domain.AgentStatusFailure, outcome.Status)
	assert.Contains(t, outcome.Err.Error(), "timed out")
	assert.Empty(t, outcome.PartialFindings)
}

func TestOrchestratorRequiredPassTimeoutIsFatal(t *testing.T) {
	slow := &stubAgent{
		spec:  AgentSpec{ID: "slowlint", Timeout: 20 * time.Millisecond},
		delay: 200 * time.Millisecond,
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"slowlint"}, Enabled: true, Required: true},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"slowlint": slow}})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	require.Error(t, result.FatalErr)
}

func TestOrchestratorSkipsLLMAgentWhenBudgetExhausted(t *testing.T) {
	semantic := &stubAgent{
		spec:   AgentSpec{ID: "ai_semantic_review", LLMBacked: true},
		result: domain.Success("ai_semantic_review", []domain.Finding{{Message: "should not run"}}),
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "semantic", Agents: []string{"ai_semantic_review"}, Enabled: true},
		},
	}
	runCtx := baseRunCtx()
	runCtx.Diff = []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,3 +1,3 @@\n-old\n+new line with enough content to cost tokens\n"}}
	runCtx.Budget.RemainingTokens = 0
	runCtx.Budget.RemainingPRUSD = 0

	o := New(Deps{Config: cfg, Agents: map[string]Agent{"ai_semantic_review": semantic}})
	result := o.Run(context.Background(), runCtx, ProviderOpenAI, nil)
	require.Nil(t, result.FatalErr)
	require.Len(t, result.Passes[0].Results, 1)
	assert.Equal(t, domain.AgentStatusSkipped, result.Passes[0].Results[0].Status)
	assert.Equal(t, BudgetSkipReason, result.Passes[0].Results[0].SkipReason)
	assert.Equal(t, 0, semantic.runCount)
}

func TestOrchestratorRequiredPassBudgetExhaustionIsFatal(t *testing.T) {
	semantic := &stubAgent{spec: AgentSpec{ID: "ai_semantic_review", LLMBacked: true}}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "semantic", Agents: []string{"ai_semantic_review"}, Enabled: true, Required: true},
		},
	}
	runCtx := baseRunCtx()
	runCtx.Diff = []domain.DiffFile{{Path: "a.go", Patch: "@@ -1,3 +1,3 @@\n-old\n+new line with enough content to cost tokens\n"}}
	runCtx.Budget.RemainingTokens = 0

	o := New(Deps{Config: cfg, Agents: map[string]Agent{"ai_semantic_review": semantic}})
	result := o.Run(context.Background(), runCtx, ProviderOpenAI, nil)
	require.Error(t, result.FatalErr)
}

func TestOrchestratorDeterministicAgentIgnoresBudget(t *testing.T) {
	lint := &stubAgent{
		spec:   AgentSpec{ID: "eslint", LLMBacked: false},
		result: domain.Success("eslint", []domain.Finding{{Message: "ran"}}),
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	runCtx := baseRunCtx()
	runCtx.Budget.RemainingTokens = 0
	runCtx.Budget.RemainingPRUSD = 0

	o := New(Deps{Config: cfg, Agents: map[string]Agent{"eslint": lint}})
	result := o.Run(context.Background(), runCtx, ProviderNone, nil)
	assert.Equal(t, 1, lint.runCount)
	require.Len(t, result.Findings, 1)
}

func TestOrchestratorFailureCollectsPartialFindingsWithoutAbortingRun(t *testing.T) {
	failing := &stubAgent{
		spec:   AgentSpec{ID: "flaky"},
		result: domain.Failure("flaky", errors.New("boom"), []domain.PartialFinding{{Message: "partial"}}),
	}
	next := &stubAgent{
		spec:   AgentSpec{ID: "eslint"},
		result: domain.Success("eslint", []domain.Finding{{Message: "ok"}}),
	}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "p1", Agents: []string{"flaky"}, Enabled: true, Required: false},
			{Name: "p2", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"flaky": failing, "eslint": next}})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	require.Nil(t, result.FatalErr)
	assert.Len(t, result.PartialFindings, 1)
	assert.Len(t, result.Findings, 1)
	assert.Equal(t, 1, next.runCount)
}

func TestOrchestratorRequiredPassFailureAbortsRemainingPasses(t *testing.T) {
	failing := &stubAgent{
		spec:   AgentSpec{ID: "flaky"},
		result: domain.Failure("flaky", errors.New("boom"), nil),
	}
	next := &stubAgent{spec: AgentSpec{ID: "eslint"}, result: domain.Success("eslint", nil)}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "p1", Agents: []string{"flaky"}, Enabled: true, Required: true},
			{Name: "p2", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"flaky": failing, "eslint": next}})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	require.Error(t, result.FatalErr)
	assert.Equal(t, 0, next.runCount)
}

func TestOrchestratorSkipsEverythingOnForkWithTrustedOnly(t *testing.T) {
	lint := &stubAgent{spec: AgentSpec{ID: "eslint"}, result: domain.Success("eslint", nil)}
	cfg := config.Config{
		TrustedOnly: true,
		Passes: []config.PassConfig{
			{Name: "p1", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	runCtx := baseRunCtx()
	runCtx.ForgeContext.IsFork = true

	o := New(Deps{Config: cfg, Agents: map[string]Agent{"eslint": lint}})
	result := o.Run(context.Background(), runCtx, ProviderNone, nil)
	assert.Equal(t, 0, lint.runCount)
	assert.Empty(t, result.Passes)
}

func TestOrchestratorCancellationProducesPartialResults(t *testing.T) {
	slow := &stubAgent{spec: AgentSpec{ID: "slow"}, delay: 500 * time.Millisecond}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "p1", Agents: []string{"slow"}, Enabled: true},
			{Name: "p2", Agents: []string{"slow"}, Enabled: true},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"slow": slow}})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := o.Run(ctx, baseRunCtx(), ProviderNone, nil)
	assert.True(t, result.Cancelled)
}

func TestOrchestratorCacheHitSkipsAgentInvocation(t *testing.T) {
	lint := &stubAgent{spec: AgentSpec{ID: "eslint"}, result: domain.Success("eslint", []domain.Finding{{Message: "live"}})}
	cached := domain.Success("eslint", []domain.Finding{{Message: "from cache"}})
	cache := &fixedHitCache{result: cached}
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "p1", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	o := New(Deps{Config: cfg, Agents: map[string]Agent{"eslint": lint}, Cache: cache})
	result := o.Run(context.Background(), baseRunCtx(), ProviderNone, nil)
	assert.Equal(t, 0, lint.runCount)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "from cache", result.Findings[0].Message)
}

type fixedHitCache struct{ result domain.AgentResult }

func (c *fixedHitCache) Get(ctx context.Context, key string) (domain.AgentResult, bool, error) {
	return c.result, true, nil
}

func (c *fixedHitCache) Put(ctx context.Context, key string, result domain.AgentResult) error {
	return nil
}
