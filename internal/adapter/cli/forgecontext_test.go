package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectForgeKindPrefersExplicitOverride(t *testing.T) {
	assert.Equal(t, forgeADO, detectForgeKind("ado"))
	assert.Equal(t, forgeGitHub, detectForgeKind("github"))
}

func TestDetectForgeKindFallsBackToEnv(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	assert.Equal(t, forgeGitHub, detectForgeKind(""))
}

func TestResolveGitHubPRContextParsesRepoAndPRNumber(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("GITHUB_SHA", "deadbeef")
	t.Setenv("PR_NUMBER", "42")

	pr, err := resolveGitHubPRContext()
	require.NoError(t, err)
	assert.Equal(t, "acme", pr.Owner)
	assert.Equal(t, "widgets", pr.Repo)
	assert.Equal(t, 42, pr.PRNumber)
	assert.False(t, pr.PushMode)
}

func TestResolveGitHubPRContextPushModeWithoutPRNumber(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("PR_NUMBER", "")

	pr, err := resolveGitHubPRContext()
	require.NoError(t, err)
	assert.True(t, pr.PushMode)
}

func TestResolveGitHubPRContextRejectsMalformedRepository(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "not-a-slash-separated-repo")
	_, err := resolveGitHubPRContext()
	assert.Error(t, err)
}

func TestResolveADOForkAndTokenPrefersSystemAccessToken(t *testing.T) {
	t.Setenv("SYSTEM_PULLREQUEST_SOURCEREPOSITORYURI", "https://fork/repo")
	t.Setenv("BUILD_REPOSITORY_URI", "https://origin/repo")
	t.Setenv("SYSTEM_ACCESSTOKEN", "sys-token")
	t.Setenv("AZURE_DEVOPS_PAT", "pat-token")

	isFork, token := resolveADOForkAndToken()
	assert.True(t, isFork)
	assert.Equal(t, "sys-token", token)
}

func TestResolveADOForkAndTokenFallsBackToPAT(t *testing.T) {
	t.Setenv("SYSTEM_PULLREQUEST_SOURCEREPOSITORYURI", "https://origin/repo")
	t.Setenv("BUILD_REPOSITORY_URI", "https://origin/repo")
	t.Setenv("SYSTEM_ACCESSTOKEN", "")
	t.Setenv("AZURE_DEVOPS_PAT", "pat-token")

	isFork, token := resolveADOForkAndToken()
	assert.False(t, isFork)
	assert.Equal(t, "pat-token", token)
}
