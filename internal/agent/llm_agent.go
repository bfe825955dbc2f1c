package agent

import (
	"context"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/llm"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// maxPromptChars bounds the diff text folded into one LLM prompt; the
// orchestrator's own per-pass budget check already gates whether this
// agent runs at all, so this is a hard backstop against a single
// pathologically large diff rather than the primary cost control.
const maxPromptChars = 60000

// LLMAgent drives one llm.Client as an orchestrator.Agent: it renders the
// bounded diff into a prompt, asks the provider for a JSON review, and
// translates the reply into an AgentResult.
type LLMAgent struct {
	id     string
	client llm.Client
	spec   orchestrator.AgentSpec
}

// NewLLMAgent builds an LLM-backed agent identified by id, calling
// client. spec.LLMBacked is forced true regardless of the caller's input,
// since every LLMAgent is budget-gated by definition.
func NewLLMAgent(id string, client llm.Client, spec orchestrator.AgentSpec) *LLMAgent {
	spec.ID = id
	spec.LLMBacked = true
	return &LLMAgent{id: id, client: client, spec: spec}
}

var _ orchestrator.Agent = (*LLMAgent)(nil)

// Spec returns the agent's static metadata.
func (a *LLMAgent) Spec() orchestrator.AgentSpec { return a.spec }

// Run renders the diff, calls the provider, and returns its findings.
func (a *LLMAgent) Run(ctx context.Context, runCtx domain.RunContext, env map[string]string) domain.AgentResult {
	prompt := renderDiffPrompt(runCtx.Diff)

	resp, err := a.client.Review(ctx, llm.Request{Prompt: prompt, MaxTokens: 4096})
	if err != nil {
		return domain.Failure(a.id, apperrors.WrapAgent(err, apperrors.IsRetryable(err), "agent %q", a.id), nil)
	}

	for i := range resp.Findings {
		resp.Findings[i].SourceAgent = a.id
	}
	return domain.Success(a.id, resp.Findings)
}

// renderDiffPrompt folds every changed file's unified patch into one
// prompt: once maxPromptChars is reached later files are dropped rather
// than the whole request failing, and the result is cut at maxPromptChars.
func renderDiffPrompt(files []domain.DiffFile) string {
	var sb strings.Builder
	sb.WriteString("Review the following pull request diff. Flag real bugs, security issues, and significant style violations. Ignore nitpicks.\n\n")
	for _, f := range files {
		if sb.Len() >= maxPromptChars {
			break
		}
		sb.WriteString("--- ")
		sb.WriteString(f.Path)
		sb.WriteString(" ---\n")
		sb.WriteString(f.Patch)
		sb.WriteString("\n")
	}
	prompt := sb.String()
	if len(prompt) > maxPromptChars {
		prompt = prompt[:maxPromptChars]
	}
	return prompt
}
