package cli

import (
	"strings"

	"github.com/odd-ai/reviewers/internal/agent"
	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/llm"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// llmAgentNames are the config-declared agent identifiers that run
// in-process against the resolved LLM provider rather than as a
// subprocess; every other name is treated as the binary to exec.
var llmAgentNames = map[string]bool{
	"ai_semantic_review": true,
	"local_llm":          true,
}

// buildAgentRegistry maps every agent name referenced by cfg.Passes to a
// concrete orchestrator.Agent. Names in llmAgentNames share the single
// resolved llm.Client; everything else (opencode, pr_agent, or any
// operator-defined name) is run as a subprocess of the same name found on
// PATH, grounded on the teacher's cmd/cr/main.go buildProviders registry
// pattern generalized from a fixed provider list to arbitrary config-
// declared names.
func buildAgentRegistry(cfg config.Config, client llm.Client) map[string]orchestrator.Agent {
	names := map[string]bool{}
	for _, pass := range cfg.Passes {
		for _, name := range pass.Agents {
			names[name] = true
		}
	}

	registry := make(map[string]orchestrator.Agent, len(names))
	for name := range names {
		if llmAgentNames[strings.ToLower(name)] {
			registry[name] = agent.NewLLMAgent(name, client, orchestrator.AgentSpec{})
			continue
		}
		registry[name] = agent.NewSubprocessAgent(name, name, nil, nil, orchestrator.AgentSpec{
			Timeout: orchestrator.DefaultAgentTimeout,
		})
	}
	return registry
}
