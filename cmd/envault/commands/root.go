package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/envault/envault/pkg/audit"
	"github.com/envault/envault/pkg/cache"
	"github.com/envault/envault/pkg/eval"
	"github.com/envault/envault/pkg/overlay"
	"github.com/envault/envault/pkg/parser"
	"github.com/envault/envault/pkg/policy"
	"github.com/envault/envault/pkg/telemetry"
)

var (
	// Global flags
	filePath   string
	profile    string
	scopes     []string
	overlays   []string
	pure       bool
	force      bool
	strict     bool
	policyPath string
	cachePath  string
	auditLog   string
	maskMode    string
	logLevel    string
	jsonOutput  bool
	metricsAddr string
)

// metricsInstance is built once per process so watch-mode re-evaluations
// share one registry.
var metricsInstance *telemetry.Metrics

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "envault",
		Short: "Envault - secret-injection launcher",
		Long: `Envault reads declarative configuration files describing environment
variables — literal values, references to external secret providers, and
chained transformations — and produces a fully resolved environment for a
child process, a rendered file, or a diagnostic report.

Secrets are fetched just-in-time from providers (env, file, exec, dotenv)
instead of being stored in plaintext files, with profiles, scopes, and
overlays selecting per-environment variants.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&filePath, "file", "f", "", "base configuration file (default .secret)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "active profile")
	rootCmd.PersistentFlags().StringSliceVarP(&scopes, "scope", "s", nil, "activate a scope (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&overlays, "overlay", nil, "layer a named overlay (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&pure, "pure", false, "do not merge the parent process environment")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "allow overriding protected keys")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "treat warnings as failures")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "policy file (.yaml rules or .rego)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "secret cache: 'none', 'memory' (default), or a sqlite path")
	rootCmd.PersistentFlags().StringVar(&auditLog, "audit-log", "", "append audit events to this JSONL file")
	rootCmd.PersistentFlags().StringVar(&maskMode, "mask", "secrets", "mask mode for rendered output: none, secrets, all")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-listen", "", "expose Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newExplainCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger() (zerolog.Logger, error) {
	format := "console"
	if jsonOutput {
		format = "json"
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: format,
		Output: "stderr",
	})
}

// evalOptions translates the persistent flags to evaluator options.
func evalOptions() eval.Options {
	return eval.Options{
		Profile:  profile,
		Scopes:   scopes,
		Overlays: overlays,
		Pure:     pure,
		Force:    force,
		Strict:   strict,
	}
}

// parseFiles resolves and parses the overlay file set for the current
// flags.
func parseFiles(logger zerolog.Logger) ([]parser.ParsedFile, []string, error) {
	opts := overlay.Options{
		File:     filePath,
		Profile:  profile,
		Overlays: overlays,
	}
	resolver := overlay.NewResolver(logger)
	paths, err := resolver.ResolveFiles(opts)
	if err != nil {
		return nil, nil, err
	}
	files, err := overlay.NewResolver(logger).ParseAll(opts)
	if err != nil {
		return nil, nil, err
	}
	return files, paths, nil
}

// buildCache interprets the --cache flag.
func buildCache(ctx context.Context) (cache.Cache, func(), error) {
	switch cachePath {
	case "none":
		return cache.Nop{}, func() {}, nil
	case "", "memory":
		return cache.NewMemory(), func() {}, nil
	default:
		s, err := cache.NewSQLite(cache.SQLiteConfig{Path: cachePath})
		if err != nil {
			return nil, nil, err
		}
		if err := s.Init(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// buildAudit interprets the --audit-log flag.
func buildAudit() (audit.Sink, func(), error) {
	if auditLog == "" {
		return audit.Nop{}, func() {}, nil
	}
	f, err := audit.NewFile(auditLog)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// buildMetrics interprets the --metrics-listen flag.
func buildMetrics() (*telemetry.Metrics, error) {
	if metricsAddr == "" {
		return nil, nil
	}
	if metricsInstance != nil {
		return metricsInstance, nil
	}
	m, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:       true,
		ListenAddress: metricsAddr,
		Path:          "/metrics",
		Namespace:     "envault",
	})
	if err != nil {
		return nil, err
	}
	metricsInstance = m
	return m, nil
}

// buildPolicy interprets the --policy flag.
func buildPolicy(ctx context.Context, logger zerolog.Logger) (policy.Engine, error) {
	if policyPath == "" {
		return policy.AllowAll{}, nil
	}
	return policy.NewLoader(logger).Load(ctx, policyPath)
}

// evaluate wires the collaborators together and runs one evaluation.
func evaluate(ctx context.Context, logger zerolog.Logger) (*eval.Result, []string, func(), error) {
	files, paths, err := parseFiles(logger)
	if err != nil {
		return nil, nil, nil, err
	}

	c, closeCache, err := buildCache(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, closeAudit, err := buildAudit()
	if err != nil {
		closeCache()
		return nil, nil, nil, err
	}
	cleanup := func() {
		closeAudit()
		closeCache()
	}

	engine, err := buildPolicy(ctx, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	cfg := eval.Config{
		Cache:   c,
		Audit:   sink,
		Policy:  engine,
		Logger:  logger,
		Options: evalOptions(),
	}
	if m, err := buildMetrics(); err != nil {
		cleanup()
		return nil, nil, nil, err
	} else if m != nil {
		cfg.Metrics = m
	}
	e := eval.New(cfg)
	res, err := e.Evaluate(ctx, files)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return res, paths, cleanup, nil
}
