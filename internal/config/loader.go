package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/odd-ai/reviewers/internal/apperrors"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from reviewer.yaml (if found) and
// REVIEWER_-prefixed environment variables, with ${VAR}/$VAR expansion
// applied afterward to the passes' agent names (see expandEnvVars).
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "reviewer"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
		for _, p := range opts.ConfigPaths {
			v.AddConfigPath(p)
		}
		v.AddConfigPath(".")
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "REVIEWER"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, apperrors.WrapConfig(err, "reading configuration file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, apperrors.WrapConfig(err, "unmarshalling configuration")
	}

	if err := ValidateLegacyEnv(os.Environ()); err != nil {
		return Config{}, err
	}

	cfg = expandEnvVars(cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schemaVersion", CurrentSchemaVersion)
	v.SetDefault("trusted_only", true)
	v.SetDefault("limits.max_files", 200)
	v.SetDefault("limits.max_diff_lines", 5000)
	v.SetDefault("limits.max_tokens_per_pr", 200000)
	v.SetDefault("limits.max_usd_per_pr", 5.0)
	v.SetDefault("limits.monthly_budget_usd", 250.0)
	v.SetDefault("reporting.github.mode", "checks_and_comments")
	v.SetDefault("reporting.github.max_inline_comments", 25)
	v.SetDefault("reporting.github.summary", true)
	v.SetDefault("reporting.ado.mode", "threads_and_status")
	v.SetDefault("reporting.ado.max_inline_comments", 25)
	v.SetDefault("reporting.ado.summary", true)
	v.SetDefault("reporting.ado.thread_status", 1)
	v.SetDefault("gating.enabled", true)
	v.SetDefault("gating.fail_on_severity", "error")
}

// expandEnvVars applies ${VAR}/$VAR substitution to every agent name in
// cfg.Passes. No other field is expanded: provider/model hints are
// resolved elsewhere (internal/orchestrator/preflight.go reads the raw
// environment directly), and the remaining string fields are used as
// written.
func expandEnvVars(cfg Config) Config {
	for i := range cfg.Passes {
		for j := range cfg.Passes[i].Agents {
			cfg.Passes[i].Agents[j] = expandEnvString(cfg.Passes[i].Agents[j])
		}
	}
	return cfg
}

var bracedVarRe = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
var bareVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnvString(s string) string {
	if s == "" {
		return s
	}
	s = bracedVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
	return bareVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1:]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
