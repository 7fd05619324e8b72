package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"riddlebot/pkg/config"
	"riddlebot/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "riddlebot",
	Short: "Chat bot that runs riddle skills and answers everything else in persona",
	Long: "riddlebot routes each chat message to a matching skill or, when no trigger " +
		"matches, to a generated reply in the configured persona.",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntime loads config and installs the structured logger as slog default.
func loadRuntime(component string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, slog.Default().With("component", component), nil
}
