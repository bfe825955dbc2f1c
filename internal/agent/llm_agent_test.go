package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/llm"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

type fakeLLMClient struct {
	resp llm.Response
	err  error
	got  llm.Request
}

func (f *fakeLLMClient) Review(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.got = req
	return f.resp, f.err
}

func TestLLMAgentSpecForcesLLMBacked(t *testing.T) {
	a := NewLLMAgent("ai_semantic_review", &fakeLLMClient{}, orchestrator.AgentSpec{})
	spec := a.Spec()
	assert.True(t, spec.LLMBacked)
	assert.Equal(t, "ai_semantic_review", spec.ID)
}

func TestLLMAgentRunStampsSourceAgent(t *testing.T) {
	client := &fakeLLMClient{resp: llm.Response{
		Summary:  "ok",
		Findings: []domain.Finding{{File: "a.go", Message: "issue"}},
	}}
	a := NewLLMAgent("ai_semantic_review", client, orchestrator.AgentSpec{})

	result := a.Run(context.Background(), domain.RunContext{Diff: []domain.DiffFile{{Path: "a.go", Patch: "@@ -1 +1 @@\n-a\n+b\n"}}}, nil)
	require.Equal(t, domain.AgentStatusSuccess, result.Status)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "ai_semantic_review", result.Findings[0].SourceAgent)
	assert.Contains(t, client.got.Prompt, "a.go")
}

func TestLLMAgentRunTranslatesProviderErrorToFailure(t *testing.T) {
	client := &fakeLLMClient{err: assertError{"provider down"}}
	a := NewLLMAgent("ai_semantic_review", client, orchestrator.AgentSpec{})

	result := a.Run(context.Background(), domain.RunContext{}, nil)
	assert.Equal(t, domain.AgentStatusFailure, result.Status)
	require.Error(t, result.Err)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
