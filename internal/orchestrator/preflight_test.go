package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/config"
)

func TestResolveProviderSingleKeyAutoSelectsAnthropic(t *testing.T) {
	p, model, err := ResolveProvider(config.Config{}, Credentials{AnthropicAPIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p)
	assert.NotEmpty(t, model)
}

func TestResolveProviderAnthropicAndOpenAIKeysAreAmbiguous(t *testing.T) {
	p, _, err := ResolveProvider(config.Config{}, Credentials{
		AnthropicAPIKey: "sk-ant-test",
		OpenAIAPIKey:    "sk-test",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi-key ambiguity")
	_ = p
}

func TestResolveProviderExplicitProviderWinsOverAmbiguity(t *testing.T) {
	cfg := config.Config{Provider: "openai"}
	p, _, err := ResolveProvider(cfg, Credentials{
		AnthropicAPIKey: "sk-ant-test",
		OpenAIAPIKey:    "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)
}

func TestResolveProviderAzureRequiresAllThreeKeys(t *testing.T) {
	_, _, err := ResolveProvider(config.Config{}, Credentials{
		AzureOpenAIAPIKey:   "key",
		AzureOpenAIEndpoint: "https://example.openai.azure.com",
	})
	require.Error(t, err)
}

func TestResolveProviderAzureCompleteRequiresModel(t *testing.T) {
	_, _, err := ResolveProvider(config.Config{}, Credentials{
		AzureOpenAIAPIKey:   "key",
		AzureOpenAIEndpoint: "https://example.openai.azure.com",
		AzureOpenAIDeploy:   "gpt4-deploy",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment-name MODEL")
}

func TestResolveProviderNoCredentials(t *testing.T) {
	_, _, err := ResolveProvider(config.Config{}, Credentials{})
	require.Error(t, err)
}

func TestResolveProviderRejectsMismatchedModelFamily(t *testing.T) {
	_, _, err := ResolveProvider(config.Config{}, Credentials{
		AnthropicAPIKey: "sk-ant-test",
		Model:           "gpt-4o",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPT-family")
}

func TestResolveProviderConfiguredProviderMissingCredentials(t *testing.T) {
	cfg := config.Config{Provider: "anthropic"}
	_, _, err := ResolveProvider(cfg, Credentials{OpenAIAPIKey: "sk-test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching credentials")
}

func TestPreflightSkipsProviderResolutionWhenNoLLMAgentsEnabled(t *testing.T) {
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "lint", Agents: []string{"eslint"}, Enabled: true},
		},
	}
	agents := map[string]AgentSpec{
		"eslint": {ID: "eslint", LLMBacked: false},
	}
	result, err := Preflight(cfg, Credentials{}, nil, agents)
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, result.Provider)
}

func TestPreflightFailsWhenLLMAgentEnabledButNoCredentials(t *testing.T) {
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "semantic", Agents: []string{"ai_semantic_review"}, Enabled: true, Required: true},
		},
	}
	agents := map[string]AgentSpec{
		"ai_semantic_review": {ID: "ai_semantic_review", LLMBacked: true},
	}
	_, err := Preflight(cfg, Credentials{}, nil, agents)
	require.Error(t, err)
}

func TestPreflightRejectsLegacyEnvVar(t *testing.T) {
	cfg := config.Config{}
	_, err := Preflight(cfg, Credentials{}, []string{"OPENAI_MODEL=gpt-4"}, nil)
	require.Error(t, err)
}

func TestPreflightResolvesProviderForEnabledLLMAgent(t *testing.T) {
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "semantic", Agents: []string{"ai_semantic_review"}, Enabled: true},
		},
	}
	agents := map[string]AgentSpec{
		"ai_semantic_review": {ID: "ai_semantic_review", LLMBacked: true},
	}
	result, err := Preflight(cfg, Credentials{AnthropicAPIKey: "sk-ant-test"}, nil, agents)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, result.Provider)
}

func TestPreflightIgnoresDisabledPasses(t *testing.T) {
	cfg := config.Config{
		Passes: []config.PassConfig{
			{Name: "semantic", Agents: []string{"ai_semantic_review"}, Enabled: false},
		},
	}
	agents := map[string]AgentSpec{
		"ai_semantic_review": {ID: "ai_semantic_review", LLMBacked: true},
	}
	result, err := Preflight(cfg, Credentials{}, nil, agents)
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, result.Provider)
}
