package cli

import (
	"os"
	"strconv"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// forgeKind identifies which CI platform's environment variables to
// read; set explicitly by flag/env since both can be present in a
// self-hosted runner image.
type forgeKind string

const (
	forgeGitHub forgeKind = "github"
	forgeADO    forgeKind = "ado"
)

// detectForgeKind inspects well-known CI environment variables, preferring
// an explicit override.
func detectForgeKind(override string) forgeKind {
	switch strings.ToLower(override) {
	case "github":
		return forgeGitHub
	case "ado", "azure-devops":
		return forgeADO
	}
	if os.Getenv("GITHUB_ACTIONS") != "" {
		return forgeGitHub
	}
	if os.Getenv("SYSTEM_TEAMFOUNDATIONCOLLECTIONURI") != "" {
		return forgeADO
	}
	return forgeGitHub
}

// resolveGitHubPRContext builds a domain.ForgePRContext from the standard
// GitHub Actions pull_request environment (GITHUB_REPOSITORY, GITHUB_SHA,
// GITHUB_BASE_SHA, GITHUB_PR_IS_DRAFT, GITHUB_PR_IS_FORK, and the PR
// number the workflow exports as PR_NUMBER — GitHub Actions does not put
// the PR number in a plain env var, so the calling workflow is expected
// to set it from github.event.pull_request.number). Without PR_NUMBER the
// context is a push-mode run.
func resolveGitHubPRContext() (domain.ForgePRContext, error) {
	repo := os.Getenv("GITHUB_REPOSITORY")
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return domain.ForgePRContext{}, apperrors.Config("GITHUB_REPOSITORY must be set as owner/repo, got %q", repo)
	}

	pr := domain.ForgePRContext{
		Owner:   owner,
		Repo:    name,
		HeadSHA: os.Getenv("GITHUB_SHA"),
		BaseSHA: os.Getenv("GITHUB_BASE_SHA"),
	}

	if n := os.Getenv("PR_NUMBER"); n != "" {
		num, err := strconv.Atoi(n)
		if err != nil {
			return domain.ForgePRContext{}, apperrors.WrapConfig(err, "parsing PR_NUMBER %q", n)
		}
		pr.PRNumber = num
	} else {
		pr.PushMode = true
	}

	pr.IsDraft = os.Getenv("GITHUB_PR_IS_DRAFT") == "true"
	pr.IsFork = os.Getenv("GITHUB_PR_IS_FORK") == "true"
	return pr, nil
}

// resolveADOPRContext builds a domain.ForgePRContext from the standard
// Azure Pipelines pull-request-trigger environment, per §4.10's fork
// detection and token resolution.
func resolveADOPRContext() (domain.ForgePRContext, error) {
	repo := os.Getenv("BUILD_REPOSITORY_NAME")
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		owner, name = "", repo
	}

	pr := domain.ForgePRContext{
		Owner:   owner,
		Repo:    name,
		HeadSHA: os.Getenv("BUILD_SOURCEVERSION"),
	}

	if n := os.Getenv("SYSTEM_PULLREQUEST_PULLREQUESTID"); n != "" {
		num, err := strconv.Atoi(n)
		if err != nil {
			return domain.ForgePRContext{}, apperrors.WrapConfig(err, "parsing SYSTEM_PULLREQUEST_PULLREQUESTID %q", n)
		}
		pr.PRNumber = num
	} else {
		pr.PushMode = true
	}

	isFork, _ := resolveADOForkAndToken()
	pr.IsFork = isFork
	return pr, nil
}

// resolveADOForkAndToken resolves fork status and the bearer token the
// forge client needs, separately from the PR context the orchestrator
// needs.
func resolveADOForkAndToken() (isFork bool, token string) {
	sourceURI := os.Getenv("SYSTEM_PULLREQUEST_SOURCEREPOSITORYURI")
	buildURI := os.Getenv("BUILD_REPOSITORY_URI")
	systemToken := os.Getenv("SYSTEM_ACCESSTOKEN")
	pat := os.Getenv("AZURE_DEVOPS_PAT")

	isFork = sourceURI != "" && sourceURI != buildURI
	token = systemToken
	if token == "" {
		token = pat
	}
	return isFork, token
}

func adoBaseURL() string {
	collectionURI := strings.TrimRight(os.Getenv("SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"), "/")
	project := os.Getenv("SYSTEM_TEAMPROJECT")
	repoID := os.Getenv("BUILD_REPOSITORY_ID")
	return collectionURI + "/" + project + "/_apis/git/repositories/" + repoID
}
