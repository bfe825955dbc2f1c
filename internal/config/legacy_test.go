package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLegacyEnvRejectsKnownLegacyVar(t *testing.T) {
	err := ValidateLegacyEnv([]string{"OPENAI_MODEL=gpt-4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODEL")
}

func TestValidateLegacyEnvAllowsCanonicalVars(t *testing.T) {
	err := ValidateLegacyEnv([]string{"MODEL=gpt-4o-mini", "ANTHROPIC_API_KEY=sk-test"})
	require.NoError(t, err)
}

func TestValidateLegacyEnvEmptyEnviron(t *testing.T) {
	require.NoError(t, ValidateLegacyEnv(nil))
}
