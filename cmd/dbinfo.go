// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"medquery/cli/internal/dsn"
	"medquery/cli/internal/logging"
)

// dbinfoCmd shows the resolved connection string with credentials masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the current database connection string",
	Long: `The dbinfo command displays the database connection string (DSN) medquery will use,
with the password masked, and where it came from: DATABASE_URL / MEDQUERY_DSN or
the OS keychain.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		var loader dsn.Loader
		if km := keychainLoader(); km != nil {
			loader = km
		}
		raw, source, err := dsn.Resolve(cfg.DB.DSN, loader)
		if errors.Is(err, dsn.ErrNoDSN) {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: medquery connect")
			return nil
		}
		if err != nil {
			return err
		}

		driver := cfg.DB.Driver
		if driver == "" {
			driver = string(dsn.Detect(raw))
		}
		pterm.Println("Using DSN from " + string(source))
		pterm.Println()
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(logging.Mask(raw) + "\n\ndriver: " + driver)
		pterm.Println()
		pterm.Println("To update this connection, run: medquery connect")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
