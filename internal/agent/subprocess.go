// Package agent provides the concrete orchestrator.Agent implementations
// the CLI registers: one driving an external static-analysis binary as a
// subprocess, and one driving an LLM provider in process. Both are thin
// translators onto orchestrator.RunSubprocess/domain.AgentResult — the
// process-isolation, timeout, and environment-scoping mechanics already
// live in internal/orchestrator, grounded on the teacher's
// internal/adapter/verify/agent.go agent-loop shape.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// SubprocessAgent runs an external analyzer binary and parses its stdout
// as a JSON array of findings (or a {"findings": [...]} envelope).
type SubprocessAgent struct {
	id      string
	command string
	args    []string
	spec    orchestrator.AgentSpec
}

// NewSubprocessAgent builds a subprocess-backed agent identified by id,
// invoking command with args. needsSecrets lists env vars (beyond the
// always-stripped forge tokens) the subprocess requires, e.g. a
// third-party analyzer's own API key.
func NewSubprocessAgent(id, command string, args []string, needsSecrets []string, timeout orchestrator.AgentSpec) *SubprocessAgent {
	timeout.ID = id
	timeout.NeedsSecrets = needsSecrets
	return &SubprocessAgent{id: id, command: command, args: args, spec: timeout}
}

var _ orchestrator.Agent = (*SubprocessAgent)(nil)

// Spec returns the agent's static metadata.
func (a *SubprocessAgent) Spec() orchestrator.AgentSpec { return a.spec }

// Run executes the subprocess and parses its stdout as findings. Nothing
// is written to its stdin; the diff in runCtx is not passed to it.
func (a *SubprocessAgent) Run(ctx context.Context, runCtx domain.RunContext, env map[string]string) domain.AgentResult {
	stdout, stderr, err := orchestrator.RunSubprocess(ctx, a.command, a.args, env, a.spec.Timeout)
	if err != nil {
		return domain.Failure(a.id, apperrors.WrapAgent(err, false, "agent %q: %s", a.id, strings.TrimSpace(string(stderr))), nil)
	}

	findings, err := parseFindingsJSON(stdout)
	if err != nil {
		return domain.Failure(a.id, apperrors.WrapAgent(err, false, "agent %q: invalid findings JSON", a.id), nil)
	}

	for i := range findings {
		findings[i].SourceAgent = a.id
	}
	return domain.Success(a.id, findings)
}

// parseFindingsJSON accepts either a bare JSON array of findings or an
// envelope object carrying a "findings" key, since static analyzers in
// the wild emit both shapes.
func parseFindingsJSON(raw []byte) ([]domain.Finding, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}

	var findings []domain.Finding
	if err := json.Unmarshal([]byte(trimmed), &findings); err == nil {
		return findings, nil
	}

	var envelope struct {
		Findings []domain.Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, apperrors.WrapValidation(err, "parse subprocess findings output")
	}
	return envelope.Findings, nil
}
