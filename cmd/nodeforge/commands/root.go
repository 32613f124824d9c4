// Package commands implements the nodeforge CLI surface.
package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nodeforge/nodeforge/pkg/ledger"
	"github.com/nodeforge/nodeforge/pkg/prompt"
	"github.com/nodeforge/nodeforge/pkg/telemetry"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

var (
	// Global flags
	workspacePath string
	configPath    string
	verbose       bool
	jsonOutput    bool
	assumeYes     bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodeforge",
		Short: "nodeforge - resumable bare-metal provisioning",
		Long: `nodeforge bootstraps bare-metal nodes: network configuration, SSH
credential generation, disk image download and cluster deployment.

Provisioning actions run as checkpointed procedures against a
persistent workspace: a crash or interruption midway never restarts a
completed step, and artifacts produced by one step stay cached for
later steps and later invocations.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultWorkspace := ""
	if home, err := os.UserHomeDir(); err == nil {
		defaultWorkspace = filepath.Join(home, ".nodeforge")
	}

	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace", "w", defaultWorkspace, "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nodeforge.yaml", "cluster config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer prompts affirmatively (non-interactive)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// env bundles the per-invocation collaborators every command needs.
type env struct {
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	ws      *workspace.Workspace
	ledger  *ledger.Ledger
}

// setup constructs telemetry and opens the workspace. Callers must
// call env.close.
func setup(ctx context.Context, version string) (*env, error) {
	cfg := telemetry.DefaultConfig("nodeforge", version)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	if workspacePath == "" {
		return nil, fmt.Errorf("workspace path is required (set --workspace)")
	}

	ws, err := workspace.Open(workspacePath, workspace.Options{
		Logger:   log,
		Metrics:  metrics,
		Prompter: prompt.NewTerminal(assumeYes),
	})
	if err != nil {
		return nil, err
	}

	led, err := ledger.Open(ctx, filepath.Join(workspacePath, "history.db"))
	if err != nil {
		ws.Close()
		return nil, err
	}

	return &env{log: log, metrics: metrics, tracer: tracer, ws: ws, ledger: led}, nil
}

func (e *env) close(ctx context.Context) {
	if err := e.ledger.Close(); err != nil {
		e.log.Warn().Err(err).Msg("close ledger")
	}
	if err := e.ws.Close(); err != nil {
		e.log.Warn().Err(err).Msg("close workspace")
	}
	if err := e.tracer.Shutdown(ctx); err != nil {
		e.log.Warn().Err(err).Msg("shut down tracer")
	}
}
