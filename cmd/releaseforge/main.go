// Command releaseforge runs the release planning API and its companion tools.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/ReleaseForge/internal/config"
	"github.com/Strob0t/ReleaseForge/internal/logger"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
	"github.com/Strob0t/ReleaseForge/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "releaseforge",
		Short:         "Release planning API with section-scoped, conflict-aware saves",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultConfigFile, "path to the YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newSaveCmd(g),
	)
	return root
}

// loadConfig resolves the configuration for cmd. Only flags the user set on
// the command line override lower layers.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	flags := config.CLIFlags{
		ConfigPath: &g.configPath,
		LogLevel:   changed(cmd, "log-level"),
		Port:       changed(cmd, "port"),
		DSN:        changed(cmd, "dsn"),
		NatsURL:    changed(cmd, "nats-url"),
		Store:      changed(cmd, "store"),
		BaseURL:    changed(cmd, "api"),
	}
	cfg, path, err := config.LoadWithCLI(flags)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}

// changed returns the value of a string flag when it was set explicitly.
func changed(cmd *cobra.Command, name string) *string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	v := f.Value.String()
	return &v
}

// setupLogger installs the configured logger as the process default.
func setupLogger(cfg *config.Config) logger.Closer {
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return closer
}

func saveOptions(cfg *config.Config) service.SaveOptions {
	return service.SaveOptions{
		Policy: resilience.Policy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			ConflictBase:  cfg.Retry.ConflictBase,
			ConflictCap:   cfg.Retry.ConflictCap,
			RateLimitBase: cfg.Retry.RateLimitBase,
			RateLimitCap:  cfg.Retry.RateLimitCap,
			DefaultBase:   cfg.Retry.DefaultBase,
			DefaultCap:    cfg.Retry.DefaultCap,
		},
		MaxParallel:    cfg.Orchestrator.MaxParallel,
		PreflightCheck: cfg.Orchestrator.PreflightCheck,
	}
}
