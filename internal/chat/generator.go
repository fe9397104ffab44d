// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package chat

import (
	"context"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/logging"
)

// DefaultAnswerTemperature is the sampling temperature of the answer call.
const DefaultAnswerTemperature = 0.7

// Generator produces the final answer with a single call.
type Generator struct {
	client      llm.Client
	temperature float64
	log         *pterm.Logger
}

func NewGenerator(client llm.Client, temperature float64, log *pterm.Logger) *Generator {
	return &Generator{client: client, temperature: temperature, log: logging.OrDiscard(log)}
}

// Generate returns the answer text. Failures are AnswerFailed and are not retried.
func (g *Generator) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	out, err := g.client.Complete(ctx, messages, g.temperature)
	if err != nil {
		return "", apperrors.Wrap(apperrors.AnswerFailed, "answer generation failed", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", apperrors.Wrap(apperrors.AnswerFailed, "answer generation failed", llm.ErrEmptyCompletion)
	}
	return out, nil
}
