// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"fmt"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// New creates the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
