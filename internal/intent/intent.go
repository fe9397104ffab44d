// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package intent decides whether a question is about one specific subject or
// is a general question.
package intent

import (
	"context"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/prompts"
)

// Label is the closed set of classification outcomes.
type Label string

const (
	SubjectScoped Label = "subject_scoped"
	General       Label = "general"
)

// legacyLabel is accepted for prompt files written for the older wording.
const legacyLabel = "patient_related"

// ParseLabel maps raw model output to a Label. Anything that is not exactly a
// subject-scoped label (after trimming, lower-casing and dropping surrounding
// quotes or a final period) is General.
func ParseLabel(s string) Label {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "'\"`.")
	switch s {
	case string(SubjectScoped), legacyLabel:
		return SubjectScoped
	default:
		return General
	}
}

// Classifier labels questions with one generation call each.
type Classifier struct {
	client      llm.Client
	prompts     *prompts.Set
	temperature float64
	log         *pterm.Logger
}

// New creates a Classifier. A nil prompt set uses the embedded defaults.
func New(client llm.Client, set *prompts.Set, temperature float64, log *pterm.Logger) *Classifier {
	if set == nil {
		set = prompts.Default()
	}
	return &Classifier{client: client, prompts: set, temperature: temperature, log: logging.OrDiscard(log)}
}

// Classify labels question. A failed call returns General together with a
// ClassificationFailed error; callers decide whether to continue.
func (c *Classifier) Classify(ctx context.Context, question, subjectID string) (Label, error) {
	prompt, err := c.prompts.Render(prompts.Classification, prompts.ClassificationData{
		Question:  question,
		SubjectID: strings.TrimSpace(subjectID),
	})
	if err != nil {
		return General, apperrors.Wrap(apperrors.ClassificationFailed, "cannot render classification prompt", err)
	}
	out, err := c.client.Complete(ctx, []llm.Message{llm.User(prompt)}, c.temperature)
	if err != nil {
		return General, apperrors.Wrap(apperrors.ClassificationFailed, "classification call failed", err)
	}
	label := ParseLabel(out)
	c.log.Debug("classified question", c.log.Args("label", string(label), "raw", out))
	return label, nil
}
