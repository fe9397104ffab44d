// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medquery/cli/internal/keychain"
)

var logoutAll bool

// logoutCmd removes stored secrets from the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key (and optionally the database connection)",
	Long: `The logout command removes the text-generation API key from the OS keychain.
With --all it also removes the stored database connection and the saved
conversation used by 'medquery ask --continue'.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if !logoutAll {
			_ = km.ClearAPIKey()
			fmt.Println("✅ API key removed")
			return nil
		}

		_ = km.ClearAll()
		if p, err := transcriptPath(); err == nil {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		fmt.Println("✅ API key, database connection and saved conversation removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Also remove the database connection and saved conversation")
}
