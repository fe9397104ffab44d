// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. The kinds mirror the stages of the question pipeline so
// the HTTP boundary and the CLI can decide what to surface and what to absorb.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// SchemaUnavailable marks a store with no base tables or an unreadable catalog.
	SchemaUnavailable Kind = "schema_unavailable"
	// SynthesisFailed indicates the generation call failed or did not return a SELECT.
	// It is absorbed by the fallback query and never reaches the caller.
	SynthesisFailed Kind = "synthesis_failed"
	// UnsupportedFunction is an execution error naming a function the engine lacks.
	UnsupportedFunction Kind = "unsupported_function"
	// UnknownColumn is an execution error naming a column that does not exist.
	UnknownColumn Kind = "unknown_column"
	// ExecutionFailed is any other execution error. It is terminal.
	ExecutionFailed Kind = "execution_failed"
	// QueryStripped means removing offending lines left nothing to execute.
	QueryStripped Kind = "query_stripped"
	// RepairBudgetExhausted means every repair attempt was used up.
	RepairBudgetExhausted Kind = "repair_budget_exhausted"
	// ScopeLost means a rewritten query could no longer be restricted to the
	// requested subject. Nothing is executed.
	ScopeLost Kind = "scope_lost"
	// ClassificationFailed indicates the intent classification call failed.
	ClassificationFailed Kind = "classification_failed"
	// AnswerFailed indicates the answer generation call failed.
	AnswerFailed Kind = "answer_failed"
	// InvalidRequest indicates malformed caller input.
	InvalidRequest Kind = "invalid_request"
	// StoreUnavailable indicates the data store could not be opened or reached.
	StoreUnavailable Kind = "store_unavailable"
	// ConfigInvalid indicates a configuration value that cannot be used.
	ConfigInvalid Kind = "config_invalid"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
