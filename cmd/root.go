// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for medquery.
// It implements subcommands that answer clinical questions against a
// relational store, inspect the store, serve the HTTP boundary, and manage
// the database connection and the text-generation API key, using the Cobra
// CLI framework and pterm for terminal output.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"medquery/cli/internal/config"
	"medquery/cli/internal/logging"
)

var (
	showVersion bool
	configPath  string
	logLevel    string
	logFormat   string

	// cfg and log are set by PersistentPreRunE before any subcommand runs.
	cfg config.Config
	log *pterm.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "medquery",
	Short: "Ask clinical questions against your database in plain language",
	Long: `medquery turns a free-text clinical question into a read-only SQL query against
the connected database, repairs the query when the engine rejects it, and answers
the question with the retrieved rows as context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win over it.
		_ = godotenv.Load()

		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		log = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		return cfg.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("medquery %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		if hint := logging.Hint(err); hint != "" {
			fmt.Fprintln(os.Stderr, "   "+hint)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: XDG config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: colorful or json")
}
