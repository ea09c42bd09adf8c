package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/logging"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/store"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "contentgate",
	Short: "Content policy gate and auto-repair engine",
	Long: `contentgate compiles generated page sections under a section policy,
runs the hard gates and brief compliance gates, repairs what fails and decides
whether a page may be published.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "override the SQLite database path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// #region setup

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadOptional(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

func openStore(cfg config.Config) (*store.Store, error) {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}

// loadRegistry returns the policy registry named by the config, or the
// embedded one.
func loadRegistry(cfg config.Config) (*policy.Registry, error) {
	if cfg.PolicyFile == "" {
		return policy.Default(), nil
	}
	data, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	reg, err := policy.Load(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", cfg.PolicyFile, err)
	}
	return reg, nil
}

func requireItemRole(item, role string) error {
	if item == "" || role == "" {
		return errors.New("--item and --role are required")
	}
	return nil
}

// #endregion setup
