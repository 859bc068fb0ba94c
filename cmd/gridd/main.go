// Command gridd runs simulated maps, publishes their state through the
// spatial snapshot cache and drives bot readers against it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"botgrid/internal/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "gridd",
		Short:         "Shared spatial snapshot cache for simulation bots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Load the configured maps, run the bots and serve the API",
		RunE:  runServe,
	}

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Run bots against one ticking map and report cache throughput",
		RunE:  runBench,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults and env vars apply without one)")

	benchCmd.Flags().DurationVar(&benchOpts.duration, "duration", benchOpts.duration, "how long the bots run")
	benchCmd.Flags().IntVar(&benchOpts.creatures, "creatures", benchOpts.creatures, "creature population (0 keeps the configured value)")
	benchCmd.Flags().IntVar(&benchOpts.bots, "bots", benchOpts.bots, "bot count (0 keeps the configured value)")
	benchCmd.Flags().Float64Var(&benchOpts.qps, "qps", benchOpts.qps, "queries per second per bot (0 keeps the configured value)")

	rootCmd.AddCommand(serveCmd, benchCmd)
}

// loadConfig reads .env, then the config file, and installs the logger.
func loadConfig() (config.AppConfig, *slog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Debug("💡 No .env file found, using environment variables only")
	} else {
		logger.Info("✅ Loaded environment from .env")
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
