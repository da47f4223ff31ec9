package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deploy-queue/deployqueue/internal/config"
	"github.com/deploy-queue/deployqueue/internal/queue"
	"github.com/deploy-queue/deployqueue/internal/store"
)

var (
	skipMigrations bool
	configFile     string

	appLogger      *slog.Logger
	appStore       *store.Store
	appCoordinator *queue.Coordinator
)

var rootCmd = &cobra.Command{
	Use:                "deploy-queue",
	Short:              "Serialize deployments across a fleet of target cells",
	SilenceUsage:       true,
	PersistentPreRunE:  initApp,
	PersistentPostRunE: closeApp,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&skipMigrations, "skip-migrations", false,
		"do not apply schema migrations on startup")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"optional YAML file overlaying config defaults (env vars still win)")
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

// initApp opens the store connection, applies migrations (unless
// --skip-migrations or the invoked command is itself under `migrate`), and
// wires the coordinator, before any subcommand's RunE runs.
func initApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return err
	}

	appLogger = newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	appLogger.Info("connecting to store", "database_url", cfg.MaskDatabaseURL())

	s, err := store.Open(cmd.Context(), cfg, appLogger)
	if err != nil {
		return err
	}
	appStore = s

	if !skipMigrations && !strings.HasPrefix(cmd.CommandPath(), rootCmd.Name()+" migrate") {
		if err := s.Migrate(); err != nil {
			return err
		}
	}

	appCoordinator = queue.New(s, appLogger)

	return nil
}

func closeApp(*cobra.Command, []string) error {
	if appStore == nil {
		return nil
	}

	return appStore.Close()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
