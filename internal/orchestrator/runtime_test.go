package orchestrator

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildAgentEnvStripsForgeTokensFromBase(t *testing.T) {
	base := map[string]string{"PATH": "/usr/bin", "GITHUB_TOKEN": "leaked"}
	env := BuildAgentEnv(base, nil, AgentSpec{})
	_, present := env["GITHUB_TOKEN"]
	assert.False(t, present)
	assert.Equal(t, "/usr/bin", env["PATH"])
}

func TestBuildAgentEnvPassesDeclaredSecretsOnly(t *testing.T) {
	secrets := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-test",
	}
	spec := AgentSpec{NeedsSecrets: []string{"ANTHROPIC_API_KEY"}}
	env := BuildAgentEnv(nil, secrets, spec)
	assert.Equal(t, "sk-ant-test", env["ANTHROPIC_API_KEY"])
	_, present := env["OPENAI_API_KEY"]
	assert.False(t, present)
}

func TestBuildAgentEnvNeverPassesForgeTokenEvenIfDeclared(t *testing.T) {
	secrets := map[string]string{"GITHUB_TOKEN": "should-never-leak"}
	spec := AgentSpec{NeedsSecrets: []string{"GITHUB_TOKEN"}}
	env := BuildAgentEnv(nil, secrets, spec)
	_, present := env["GITHUB_TOKEN"]
	assert.False(t, present)
}

func TestEnvSliceRoundTrips(t *testing.T) {
	env := map[string]string{"A": "1", "B": "2"}
	slice := EnvSlice(env)
	sort.Strings(slice)
	assert.Equal(t, []string{"A=1", "B=2"}, slice)
}

func TestRunSubprocessCapturesStdout(t *testing.T) {
	stdout, _, err := RunSubprocess(context.Background(), "echo", []string{"hello"}, nil, time.Second)
	assert.NoError(t, err)
	assert.Contains(t, string(stdout), "hello")
}

func TestRunSubprocessRespectsTimeout(t *testing.T) {
	_, _, err := RunSubprocess(context.Background(), "sleep", []string{"5"}, nil, 50*time.Millisecond)
	assert.Error(t, err)
}
