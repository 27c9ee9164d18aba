package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "normgraph",
	Short: "NormGraph - compliance knowledge graph and retrieval",
	Long: `NormGraph ingests compliance documents (BSI IT-Grundschutz,
ISO 27001, NIST CSF), extracts controls into a knowledge graph, and
answers natural-language questions over the ingested material.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// configPath resolves the config file: --config flag, NORMGRAPH_CONFIG,
// then $NORMGRAPH_HOME/config.yaml (or ~/.normgraph/config.yaml).
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if env := os.Getenv("NORMGRAPH_CONFIG"); env != "" {
		return env
	}
	home := os.Getenv("NORMGRAPH_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		home = filepath.Join(userHome, ".normgraph")
	}
	return filepath.Join(home, "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}
