package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "sitemonitor",
	Short: "Per-site monitoring dashboard",
	Long: `sitemonitor serves a dashboard per site (country + endpoint) that combines
host health checks with views fetched from external monitoring backends.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with SITEMONITOR_* secrets")

	rootCmd.AddCommand(serveCmd, seedCmd, probeCmd, compactCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and secrets and applies the logging
// settings. A missing file is only tolerated when --config was not given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config

	_, statErr := os.Stat(configFile)
	switch {
	case errors.Is(statErr, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secrets

	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

func openStore(cfg *config.Config) (database.ExtendedStore, error) {
	store, err := database.NewStore(cfg.Database.Type, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}
