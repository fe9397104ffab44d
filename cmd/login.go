// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medquery/cli/internal/config"
	"medquery/cli/internal/httperrors"
	"medquery/cli/internal/keychain"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/terminal"
)

var (
	loginProvider string
	loginVerify   bool
)

// loginCmd stores the text-generation API key in the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store the text-generation API key in the OS keychain",
	Long: `The login command reads the API key for the configured text-generation provider
without echoing it and stores it in the OS keychain. OPENAI_API_KEY, GEMINI_API_KEY
and MEDQUERY_LLM_API_KEY still take precedence when set.

With --provider the provider choice is saved to the config file as well.
With --verify a one-word completion is requested before the key is saved.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		provider := cfg.LLM.Provider
		if loginProvider != "" {
			provider = loginProvider
		}

		key, err := terminal.ReadSecret(fmt.Sprintf("Enter %s API key: ", provider))
		if err != nil {
			return err
		}
		if key == "" {
			return errors.New("API key is required")
		}

		if loginVerify {
			stopSpinner := startInlineSpinner(cmd.OutOrStdout(), "verifying key")
			err := verifyKey(cmd.Context(), provider, key)
			stopSpinner()
			if err != nil {
				host := httperrors.ExtractHostFromURL(cfg.LLM.BaseURL)
				return httperrors.FormatNetworkError(err, "Key verification", host)
			}
		}

		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			fmt.Println("   Set OPENAI_API_KEY or GEMINI_API_KEY instead.")
			return err
		}
		if err := km.SaveAPIKey(key); err != nil {
			fmt.Println("❌ Failed to save the API key securely.")
			return err
		}

		if loginProvider != "" && loginProvider != cfg.LLM.Provider {
			persisted, err := loadPersistedConfig()
			if err != nil {
				return err
			}
			persisted.LLM.Provider = loginProvider
			if err := persisted.Validate(); err != nil {
				return err
			}
			if err := config.Save(persisted); err != nil {
				return err
			}
		}

		fmt.Printf("✅ API key for %s saved.\n", provider)
		return nil
	},
}

// loadPersistedConfig reads the config file without the values that only
// come from the environment, so saving it does not leak secrets.
func loadPersistedConfig() (config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return c, err
	}
	c.DB.DSN = ""
	c.LLM.APIKey = ""
	return c, nil
}

func verifyKey(ctx context.Context, provider, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, err := llm.New(ctx, llm.Config{Provider: provider, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model, APIKey: key})
	if err != nil {
		return err
	}
	_, err = client.Complete(ctx, []llm.Message{llm.User("Reply with the single word: ok")}, 0)
	return err
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginProvider, "provider", "", "Provider to store the key for: openai or gemini")
	loginCmd.Flags().BoolVar(&loginVerify, "verify", false, "Request one completion before saving the key")
}
