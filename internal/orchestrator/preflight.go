package orchestrator

import (
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/config"
)

// Provider identifies the resolved LLM provider for a run.
type Provider string

const (
	ProviderAnthropic   Provider = "anthropic"
	ProviderAzureOpenAI Provider = "azure-openai"
	ProviderOpenAI      Provider = "openai"
	ProviderNone        Provider = ""
)

// Credentials is the subset of the environment preflight inspects to
// resolve a provider; callers build this from os.Environ() (or a test
// fixture) so resolution stays pure and unit-testable.
type Credentials struct {
	AnthropicAPIKey     string
	OpenAIAPIKey        string
	AzureOpenAIAPIKey   string
	AzureOpenAIEndpoint string
	AzureOpenAIDeploy   string
	Model               string
}

// defaultModels gives each auto-selected provider a sane default when
// MODEL is unset.
var defaultModels = map[Provider]string{
	ProviderAnthropic:   "claude-3-5-sonnet-20241022",
	ProviderOpenAI:      "gpt-4o-mini",
	ProviderAzureOpenAI: "",
}

// ResolveProvider picks the run's LLM provider. An explicit cfg.Provider
// short-circuits resolution as long as its credentials are present;
// otherwise a single credential set (Azure-OpenAI counts only when all
// three Azure keys are present) auto-selects that provider. When more
// than one provider's credentials are set and cfg.Provider is empty,
// resolution fails with a ConfigError naming "multi-key ambiguity"; no
// priority order is applied to choose among them.
func ResolveProvider(cfg config.Config, creds Credentials) (Provider, string, error) {
	azureComplete := creds.AzureOpenAIAPIKey != "" && creds.AzureOpenAIEndpoint != "" && creds.AzureOpenAIDeploy != ""

	available := map[Provider]bool{}
	if creds.AnthropicAPIKey != "" {
		available[ProviderAnthropic] = true
	}
	if azureComplete {
		available[ProviderAzureOpenAI] = true
	}
	if creds.OpenAIAPIKey != "" {
		available[ProviderOpenAI] = true
	}

	if cfg.Provider != "" {
		p := Provider(cfg.Provider)
		if !available[p] {
			return ProviderNone, "", apperrors.Config("configured provider %q has no matching credentials", cfg.Provider)
		}
		return finalizeModel(p, creds)
	}

	if len(available) == 0 {
		return ProviderNone, "", apperrors.Config("no LLM provider credentials found (ANTHROPIC_API_KEY, AZURE_OPENAI_*, or OPENAI_API_KEY)")
	}

	if len(available) > 1 {
		return ProviderNone, "", apperrors.Config("multi-key ambiguity: multiple provider credentials are set with no explicit provider configured; set `provider` or remove the unused key(s)")
	}

	for p := range available {
		return finalizeModel(p, creds)
	}
	return ProviderNone, "", apperrors.Config("no LLM provider credentials found")
}

func finalizeModel(p Provider, creds Credentials) (Provider, string, error) {
	model := creds.Model
	if model == "" {
		model = defaultModels[p]
	}
	if p == ProviderAzureOpenAI && model == "" {
		return ProviderNone, "", apperrors.Config("Azure OpenAI requires an explicit deployment-name MODEL")
	}
	if err := validateModelFamily(p, model); err != nil {
		return ProviderNone, "", err
	}
	return p, model, nil
}

// validateModelFamily rejects an explicit MODEL that does not match the
// resolved provider's family: Claude models require Anthropic
// credentials, GPT-family requires OpenAI/Azure.
func validateModelFamily(p Provider, model string) error {
	lower := strings.ToLower(model)
	isClaude := strings.Contains(lower, "claude")
	isGPT := strings.Contains(lower, "gpt") || strings.Contains(lower, "o1") || strings.Contains(lower, "o3")

	switch p {
	case ProviderAnthropic:
		if isGPT {
			return apperrors.Config("model %q is GPT-family but provider resolved to anthropic", model)
		}
	case ProviderOpenAI, ProviderAzureOpenAI:
		if isClaude {
			return apperrors.Config("model %q is a Claude model but provider resolved to %s", model, p)
		}
	}
	return nil
}

// PreflightResult is the provider and model Preflight resolved; both are
// empty when no enabled pass references an LLM-backed agent.
type PreflightResult struct {
	Provider Provider
	Model    string
}

// Preflight runs once before any agent: it rejects legacy env vars, then,
// if any enabled pass (required or not) references an LLM-backed agent,
// resolves the provider and fails fatally when none resolves.
func Preflight(cfg config.Config, creds Credentials, legacyEnviron []string, agents map[string]AgentSpec) (PreflightResult, error) {
	if err := config.ValidateLegacyEnv(legacyEnviron); err != nil {
		return PreflightResult{}, err
	}

	needsLLM := false
	for _, pass := range cfg.Passes {
		if !pass.Enabled {
			continue
		}
		for _, agentID := range pass.Agents {
			spec, ok := agents[agentID]
			if ok && spec.LLMBacked {
				needsLLM = true
			}
		}
	}

	if !needsLLM {
		return PreflightResult{}, nil
	}

	// Any pass referencing an LLM-backed agent makes provider resolution
	// a hard prerequisite; failure here is always fatal to the run.
	provider, model, err := ResolveProvider(cfg, creds)
	if err != nil {
		return PreflightResult{}, err
	}
	return PreflightResult{Provider: provider, Model: model}, nil
}

