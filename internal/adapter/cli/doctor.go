package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odd-ai/reviewers/internal/gitengine"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// newDoctorCommand builds the "doctor" subcommand: a preflight-only check
// that config loads, a provider resolves from the environment, and the
// target git repository is readable, without contacting any forge or
// spending any LLM budget.
func newDoctorCommand() *cobra.Command {
	var repoDir string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration, credentials, and repository access without running a review",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return cmdDoctor(cmd.Context(), configPath, repoDir)
		},
	}
	cmd.Flags().StringVar(&repoDir, "repo", ".", "path to the git repository under review")
	return cmd
}

func cmdDoctor(ctx context.Context, configPath, repoDir string) error {
	checks := []struct {
		name string
		run  func() error
	}{
		{"load config", func() error {
			_, err := loadConfig(configPath)
			return err
		}},
		{"resolve LLM provider", func() error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			provider, _, err := orchestrator.ResolveProvider(cfg, resolveCredentials())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "  provider: %s\n", provider)
			return nil
		}},
		{"open git repository", func() error {
			engine := gitengine.NewEngine(repoDir)
			_, err := engine.CurrentBranch(ctx)
			return err
		}},
	}

	var failed bool
	for _, c := range checks {
		if err := c.run(); err != nil {
			fmt.Fprintf(os.Stdout, "FAIL  %s: %v\n", c.name, err)
			failed = true
			continue
		}
		fmt.Fprintf(os.Stdout, "OK    %s\n", c.name)
	}
	if failed {
		return fmt.Errorf("doctor found one or more problems")
	}
	return nil
}
