// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-analyst CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/internal/secrets"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Process-wide state filled in by PersistentPreRunE. Commands apply their
// flags to cfg before building services; each pipeline run copies the
// config it needs.
var (
	cfg    types.Config
	keys   *secrets.Set
	logger *zap.Logger
)

// rootCmd is the base command for the paper-analyst CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-analyst",
	Short: "Multi-agent analysis of research papers",
	Long: `paper-analyst reads a research paper and produces a structured report.
A team of specialist agents (methodology, results, citations, future work)
each query a per-paper knowledge base, and a final synthesis step merges their
findings into one report.

It can also explore a research topic to find papers worth reading, download
papers by arXiv ID, DOI, or URL, and extract BibTeX citations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir)
		if err != nil {
			return err
		}
		keys = secrets.NewSet(s)
		if names := keys.Names(); len(names) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", names)
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		logger, err = logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
		if err != nil {
			return err
		}

		c, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if verbose {
			c.Agent.Verbose = true
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-analyst.yaml or ~/.config/paper-analyst/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory of API key files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging, including agent prompts and replies")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON lines")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-analyst")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-analyst"))
		}
	}

	viper.SetEnvPrefix("PAPER_ANALYST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
