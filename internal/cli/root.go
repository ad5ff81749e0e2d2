// Package cli wires the sutrasearch commands: serve, setup, and import.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sutrasearch/internal/config"
	"sutrasearch/internal/index"
)

var (
	cfgPath  string
	dataDir  string
	listen   string
	logLevel string

	cfg    config.AppConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sutrasearch",
	Short:         "Full-text search service for the Chinese Buddhist canon",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if envDir := os.Getenv("SUTRASEARCH_DATA_DIR"); envDir != "" {
			cfg.Paths.DataDir = envDir
		}
		if dataDir != "" {
			cfg.Paths.DataDir = dataDir
		}
		if listen != "" {
			cfg.Server.Listen = listen
		}

		level := slog.LevelInfo
		if logLevel == "debug" {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a TOML or YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the index storage directory")
	rootCmd.PersistentFlags().StringVar(&listen, "listen", "", "override the listen address (e.g. :8080)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (info or debug)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openEngine opens the index engine rooted at the configured data directory.
func openEngine() (*index.Engine, error) {
	engine := index.NewEngine(cfg.Paths.DataDir, logger)
	if err := engine.Open(); err != nil {
		return nil, err
	}
	return engine, nil
}

func defaultSchema() index.Schema {
	k1, b := cfg.ToBM25()
	return index.DefaultSchema(cfg.Index.Name, cfg.Index.NgramMin, cfg.Index.NgramMax,
		index.BM25Parameters{K1: k1, B: b})
}
