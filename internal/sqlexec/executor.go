// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/logging"
)

// DefaultMaxAttempts bounds the repair loop.
const DefaultMaxAttempts = 3

// Failure texts carried as the retrieved payload when execution gives up.
const (
	msgStripped  = "could not produce a valid query after removing problematic parts"
	msgExhausted = "persistent failure after %d attempts: the query could not be repaired"
	msgExecution = "error executing SQL query: %s"
	msgScopeLost = "could not restrict the query to the requested subject"
)

// Outcome is the result of one Execute call: either a Result or a failure.
type Outcome struct {
	// Query is the last query text that was executed
	Query string
	// Result holds the rows on success and is nil on failure
	Result *Result
	// Attempts counts executions against the store
	Attempts int
	// Kind is empty on success
	Kind apperrors.Kind
	// Failure is a human-readable reason, safe to show to a user
	Failure string
}

// OK reports whether execution succeeded.
func (o Outcome) OK() bool { return o.Kind == "" && o.Result != nil }

// Err returns the failure as a typed error, or nil on success.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return apperrors.New(o.Kind, o.Failure)
}

// AttemptFunc observes each attempt before it runs.
type AttemptFunc func(attempt int, query string)

// Executor runs candidate queries and repairs them on known failures.
// It holds no per-request state and is safe for concurrent use.
type Executor struct {
	store       Querier
	dialect     Dialect
	maxAttempts int
	log         *pterm.Logger
}

// NewExecutor creates an Executor. maxAttempts below 1 uses DefaultMaxAttempts.
func NewExecutor(store Querier, dialect Dialect, maxAttempts int, log *pterm.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Executor{store: store, dialect: dialect, maxAttempts: maxAttempts, log: logging.OrDiscard(log)}
}

// MaxAttempts returns the repair budget.
func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// Execute runs query with the bounded repair loop.
func (e *Executor) Execute(ctx context.Context, query string) Outcome {
	return e.ExecuteWith(ctx, query, nil)
}

// ExecuteWith is Execute with an attempt observer.
func (e *Executor) ExecuteWith(ctx context.Context, query string, onAttempt AttemptFunc) Outcome {
	return e.ExecuteScoped(ctx, query, nil, onAttempt)
}

// ExecuteScoped runs query with the bounded repair loop.
//
// Each failed attempt is classified by the dialect's matcher. A known
// non-portable aggregate is replaced by the native one; an unknown column is
// removed by dropping every line that mentions it. Rewrites count against the
// budget. Any other error ends the loop immediately. The loop runs to
// completion once started; ctx is only handed to the store.
//
// A non-nil scope is re-applied before every attempt, so a rewrite can never
// widen the result to other subjects. When it cannot be re-applied the query
// is not executed and the outcome is ScopeLost.
func (e *Executor) ExecuteScoped(ctx context.Context, query string, scope *Scope, onAttempt AttemptFunc) Outcome {
	q := strings.TrimSpace(query)
	attempt := 0
	for {
		n := attempt + 1
		if scope != nil {
			q = scope.Apply(q)
			if !scope.Holds(q) {
				e.log.Error("subject filter lost", e.log.Args("attempt", n, "query", q))
				return Outcome{Query: q, Attempts: attempt, Kind: apperrors.ScopeLost, Failure: msgScopeLost}
			}
		}
		e.log.Info("executing query", e.log.Args("attempt", n, "query", q))
		if onAttempt != nil {
			onAttempt(n, q)
		}

		res, err := e.store.Query(ctx, q)
		if err == nil {
			e.log.Debug("query succeeded", e.log.Args("attempt", n, "rows", len(res.Rows)))
			return Outcome{Query: q, Result: res, Attempts: n}
		}

		msg := logging.Mask(err.Error())
		kind, ident := e.dialect.Matcher.Classify(err)
		e.log.Warn("query failed", e.log.Args("attempt", n, "kind", kind.String(), "error", msg))

		switch {
		case kind == ErrUnsupportedFunction && e.dialect.IsNonPortable(ident):
			q = e.dialect.ReplaceAggregate(q, ident)
			e.log.Info("replaced aggregate", e.log.Args("from", ident, "to", e.dialect.NativeAggregate))
		case kind == ErrUnknownColumn && ident != "":
			q = StripLines(q, ident)
			e.log.Info("removed lines referencing column", e.log.Args("column", ident))
			if q == "" {
				return Outcome{Query: q, Attempts: n, Kind: apperrors.QueryStripped, Failure: msgStripped}
			}
		default:
			return Outcome{Query: q, Attempts: n, Kind: apperrors.ExecutionFailed, Failure: fmt.Sprintf(msgExecution, msg)}
		}

		attempt++
		if attempt >= e.maxAttempts {
			return Outcome{
				Query:    q,
				Attempts: n,
				Kind:     apperrors.RepairBudgetExhausted,
				Failure:  fmt.Sprintf(msgExhausted, e.maxAttempts),
			}
		}
	}
}
