package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/cache/sqlite"
	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/gitengine"
	"github.com/odd-ai/reviewers/internal/llm"
	"github.com/odd-ai/reviewers/internal/observability"
	"github.com/odd-ai/reviewers/internal/orchestrator"
	"github.com/odd-ai/reviewers/internal/reporter"
	"github.com/odd-ai/reviewers/internal/reporter/adoforge"
	"github.com/odd-ai/reviewers/internal/reporter/githubforge"
	"github.com/odd-ai/reviewers/internal/sarifout"
	"github.com/odd-ai/reviewers/internal/tracking"
)

// newRunCommand builds the "run" subcommand: the end-to-end review pass
// against the current PR, grounded on the teacher's cmd/cr/main.go single
// review invocation (our orchestrator/reporter split replaces its
// merge/planning-provider machinery with a thinner pipeline).
func newRunCommand() *cobra.Command {
	var repoDir string
	var baseRef string
	var targetRef string
	var sarifPath string
	var forgeOverride string
	var cacheDB string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one review pass against the current pull request and publish findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return cmdRun(cmd.Context(), runOptions{
				configPath:    configPath,
				repoDir:       repoDir,
				baseRef:       baseRef,
				targetRef:     targetRef,
				sarifPath:     sarifPath,
				forgeOverride: forgeOverride,
				cacheDB:       cacheDB,
			})
		},
	}

	cmd.Flags().StringVar(&repoDir, "repo", ".", "path to the git repository under review")
	cmd.Flags().StringVar(&baseRef, "base", "", "base ref to diff against (defaults to GITHUB_BASE_SHA / SYSTEM_PULLREQUEST_TARGETBRANCH)")
	cmd.Flags().StringVar(&targetRef, "head", "", "target ref under review (defaults to HEAD)")
	cmd.Flags().StringVar(&sarifPath, "sarif", "", "optional path to write a SARIF artifact of the run's findings")
	cmd.Flags().StringVar(&forgeOverride, "forge", "", "force the forge binding (github or ado) instead of auto-detecting from CI env vars")
	cmd.Flags().StringVar(&cacheDB, "cache-db", ".reviewer-cache.db", "path to the sqlite agent-result cache")
	return cmd
}

type runOptions struct {
	configPath    string
	repoDir       string
	baseRef       string
	targetRef     string
	sarifPath     string
	forgeOverride string
	cacheDB       string
}

func cmdRun(ctx context.Context, opts runOptions) error {
	logger := observability.NewDefaultLogger()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	kind := detectForgeKind(opts.forgeOverride)
	var pr domain.ForgePRContext
	var forge reporter.Forge
	switch kind {
	case forgeADO:
		pr, err = resolveADOPRContext()
		if err != nil {
			return err
		}
		_, token := resolveADOForkAndToken()
		forge = adoforge.NewClient(adoBaseURL(), token, cfg.Reporting.ADO.ThreadStatus)
	default:
		pr, err = resolveGitHubPRContext()
		if err != nil {
			return err
		}
		client := githubforge.NewClient(os.Getenv("GITHUB_TOKEN"))
		if apiURL := os.Getenv("GITHUB_API_URL"); apiURL != "" {
			client.SetBaseURL(apiURL)
		}
		forge = client
	}

	engine := gitengine.NewEngine(opts.repoDir)
	base := opts.baseRef
	if base == "" {
		base = resolveBaseRef(kind, pr)
	}
	target := opts.targetRef
	if target == "" {
		target = "HEAD"
	}
	diff, err := engine.GetCumulativeDiff(ctx, base, target, false)
	if err != nil {
		return err
	}
	if pr.HeadSHA == "" {
		pr.HeadSHA = diff.HeadSHA
	}
	if pr.BaseSHA == "" {
		pr.BaseSHA = diff.BaseSHA
	}
	diff.Files = filterByPathFilters(diff.Files, cfg.PathFilters)

	store, err := sqlite.Open(opts.cacheDB)
	if err != nil {
		logger.LogWarning(ctx, "cache_unavailable", map[string]any{"error": err.Error()})
		store = nil
	} else {
		defer store.Close()
	}

	provider, model, err := orchestrator.ResolveProvider(cfg, resolveCredentials())
	if err != nil {
		return err
	}
	client, err := buildLLMClient(provider, model)
	if err != nil {
		return err
	}

	configHash := hashConfig(cfg)
	budget := buildBudgetState(ctx, cfg.Limits, store, time.Now())

	runCtx := domain.RunContext{
		Ctx:          ctx,
		Diff:         diff.Files,
		ForgeContext: pr,
		ConfigHash:   configHash,
		Budget:       budget,
	}

	var cache orchestrator.Cache
	if store != nil {
		cache = store
	}

	orch := orchestrator.New(orchestrator.Deps{
		Config: cfg,
		Agents: buildAgentRegistry(cfg, client),
		Cache:  cache,
		Logger: logger,
	})

	env := buildAgentEnv()
	result := orch.Run(ctx, runCtx, provider, env)
	if result.FatalErr != nil {
		return result.FatalErr
	}

	trackStore := tracking.NewForgeStore(forge)
	state, err := trackStore.Load(ctx, pr)
	if err != nil {
		logger.LogWarning(ctx, "tracking_load_failed", map[string]any{"error": err.Error()})
		state = tracking.NewState(pr)
	}

	changedFiles := make([]string, 0, len(diff.Files))
	for _, f := range diff.Files {
		changedFiles = append(changedFiles, f.Path)
	}
	nextState, reconciliation := tracking.Reconcile(state, result.Findings, changedFiles, pr.HeadSHA, time.Now())
	for _, f := range reconciliation.New {
		tf, err := tracking.NewTrackedFindingFromFinding(f, time.Now(), pr.HeadSHA)
		if err != nil {
			continue
		}
		nextState.Findings[tf.Fingerprint] = tf
	}
	nextState.ReviewedCommits = append(nextState.ReviewedCommits, pr.HeadSHA)

	handle, err := forge.StartCheck(ctx, pr)
	if err != nil {
		logger.LogWarning(ctx, "start_check_failed", map[string]any{"error": err.Error()})
	}

	pubResult, err := reporter.Publish(ctx, forge, handle, pr, result.Findings, result.PartialFindings, diff.Files, cfg, result.Passes, logger)
	if err != nil {
		return err
	}

	if err := trackStore.Save(ctx, nextState); err != nil {
		logger.LogWarning(ctx, "tracking_save_failed", map[string]any{"error": err.Error()})
	}

	if opts.sarifPath != "" {
		if err := writeSarif(opts.sarifPath, result.Findings); err != nil {
			logger.LogWarning(ctx, "sarif_write_failed", map[string]any{"error": err.Error()})
		}
	}

	logger.LogInfo(ctx, "run_complete", map[string]any{
		"conclusion":      string(pubResult.Conclusion),
		"posted_comments": pubResult.PostedComments,
		"resolved":        pubResult.ResolvedComments,
		"findings":        len(result.Findings),
	})

	if pubResult.Conclusion == reporter.ConclusionFailure {
		return apperrors.Agent(false, "review gate failed: findings at or above the configured severity threshold")
	}
	return nil
}

func loadConfig(explicitPath string) (config.Config, error) {
	var paths []string
	if explicitPath != "" {
		paths = []string{filepath.Dir(explicitPath)}
	}
	return config.Load(config.LoaderOptions{ConfigPaths: paths})
}

func resolveBaseRef(kind forgeKind, pr domain.ForgePRContext) string {
	if kind == forgeADO {
		if ref := os.Getenv("SYSTEM_PULLREQUEST_TARGETBRANCH"); ref != "" {
			return ref
		}
	}
	if pr.BaseSHA != "" {
		return pr.BaseSHA
	}
	return "HEAD~1"
}

func resolveCredentials() orchestrator.Credentials {
	return orchestrator.Credentials{
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIAPIKey:   os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureOpenAIEndpoint: os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIDeploy:   os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		Model:               os.Getenv("MODEL"),
	}
}

func buildLLMClient(provider orchestrator.Provider, model string) (llm.Client, error) {
	switch provider {
	case orchestrator.ProviderAnthropic:
		return llm.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), model), nil
	case orchestrator.ProviderOpenAI:
		return llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), model), nil
	case orchestrator.ProviderAzureOpenAI:
		return llm.NewAzureOpenAIClient(os.Getenv("AZURE_OPENAI_API_KEY"), os.Getenv("AZURE_OPENAI_ENDPOINT"), os.Getenv("AZURE_OPENAI_DEPLOYMENT"), "2024-06-01"), nil
	default:
		return nil, apperrors.Config("no LLM provider resolved")
	}
}

// buildAgentEnv passes the process environment through as a flat map;
// orchestrator.BuildAgentEnv scopes secrets per-agent from this same map
// using each AgentSpec.NeedsSecrets, so no further filtering is needed
// here.
func buildAgentEnv() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}

// hashConfig derives a stable identifier for the active configuration so
// the cache and tracking layers can detect when a PR was last reviewed
// under a different ruleset.
func hashConfig(cfg config.Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

func writeSarif(path string, findings []domain.Finding) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sarif output %q: %w", path, err)
	}
	defer f.Close()
	return sarifout.Write(f, findings)
}
