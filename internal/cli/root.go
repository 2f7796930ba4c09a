package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeeper/internal/config"
	"github.com/lazypower/memkeeper/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "memkeeper",
	Short:         "Private photo journal backend",
	Long:          "memkeeper stores titled memories with notes and photos for each user and serves the web app that browses them. Single Go binary, SQLite or Postgres.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $MEMKEEPER_CONFIG or ~/.memkeeper/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(keepAliveCmd)
}

// loadConfig reads the config selected by --config and the environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
