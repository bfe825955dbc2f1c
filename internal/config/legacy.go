package config

import (
	"github.com/odd-ai/reviewers/internal/apperrors"
)

// legacyReplacements maps a legacy environment variable name to the
// canonical replacement the migration message should name.
var legacyReplacements = map[string]string{
	"OPENAI_MODEL":              "MODEL",
	"OPENCODE_MODEL":            "MODEL",
	"PR_AGENT_API_KEY":          "OPENAI_API_KEY or ANTHROPIC_API_KEY",
	"AI_SEMANTIC_REVIEW_API_KEY": "OPENAI_API_KEY or ANTHROPIC_API_KEY",
}

// ValidateLegacyEnv inspects the process environment (as name=value pairs,
// the shape os.Environ() returns) and rejects any legacy variable name
// with a ConfigError naming its canonical replacement.
func ValidateLegacyEnv(environ []string) error {
	present := map[string]bool{}
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				present[kv[:i]] = true
				break
			}
		}
	}

	for legacy, replacement := range legacyReplacements {
		if present[legacy] {
			return apperrors.Config("legacy environment variable %q is no longer supported; use %s instead", legacy, replacement)
		}
	}
	return nil
}
