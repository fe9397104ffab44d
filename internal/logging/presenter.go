// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	apperrors "medquery/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// Hint returns a short next step for the error's kind, or "" when there is none.
func Hint(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.StoreUnavailable:
		return "Run 'medquery connect' or set DATABASE_URL."
	case apperrors.SchemaUnavailable:
		return "The database has no tables to query."
	case apperrors.ConfigInvalid:
		return "Check the config file and MEDQUERY_* variables."
	case apperrors.ClassificationFailed, apperrors.AnswerFailed:
		return "Run 'medquery login' to store an API key, or check the provider settings."
	default:
		return ""
	}
}
