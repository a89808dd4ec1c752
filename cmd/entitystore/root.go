package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/entitystore/internal/config"
	"github.com/nainya/entitystore/internal/logger"
)

var (
	configPaths []string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "entitystore",
	Short: "Entity persistence over hash stores and ranked secondary indexes",
	Long: `entitystore maps entity classes described in a YAML schema onto
hash records and score-ranked secondary indexes, and optionally keeps a
full-text search index of every persisted entity.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "Config file, may be repeated; later files win")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the config files named on the command line
func loadConfig() *config.Config {
	cfg, err := config.Load(configPaths...)
	if err != nil {
		fatal("Error loading config", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.Caller,
	})
}
