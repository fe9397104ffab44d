// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package retrieval runs the retrieval chain for one question: introspect the
// store, synthesize a candidate query, execute it with repair, and render the
// outcome as a text payload for the answer prompt.
package retrieval

import (
	"context"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/sqlexec"
)

// Payload texts used when no rows can be shown.
const (
	NoDataPayload     = "No data available in the database."
	NoResultsPayload  = "No relevant information was found in the database."
	synthesisFallback = "Could not generate a query for this question."
)

// SchemaSource introspects the store.
type SchemaSource interface {
	Introspect(ctx context.Context) (*sqlexec.Schema, error)
}

// QuerySource proposes a candidate query and the subject restriction every
// execution of it must keep.
type QuerySource interface {
	Synthesize(ctx context.Context, question string, schema *sqlexec.Schema, subjectID string) (string, error)
	Scope(schema *sqlexec.Schema, subjectID string) (sqlexec.Scope, bool)
}

// Runner executes a candidate query with repair.
type Runner interface {
	ExecuteScoped(ctx context.Context, query string, scope *sqlexec.Scope, onAttempt sqlexec.AttemptFunc) sqlexec.Outcome
}

// Retrieval is the result of one chain run.
type Retrieval struct {
	// Query is the last query that was executed, empty when none was.
	Query string
	// Result holds the rows on success.
	Result *sqlexec.Result
	// Attempts counts executions against the store.
	Attempts int
	// Err is nil on success and carries the failure kind otherwise.
	Err error
	// Payload is the text embedded in the answer prompt.
	Payload string
}

// OK reports whether rows (possibly zero) were retrieved.
func (r Retrieval) OK() bool { return r.Err == nil && r.Result != nil }

// Retriever runs the chain. It is safe for concurrent use.
type Retriever struct {
	schemas SchemaSource
	queries QuerySource
	runner  Runner
	log     *pterm.Logger
}

// New creates a Retriever.
func New(schemas SchemaSource, queries QuerySource, runner Runner, log *pterm.Logger) *Retriever {
	return &Retriever{schemas: schemas, queries: queries, runner: runner, log: logging.OrDiscard(log)}
}

// Retrieve runs the chain for question. Failures never abort the caller; they
// are reported in Err and rendered into Payload.
func (r *Retriever) Retrieve(ctx context.Context, question, subjectID string, onAttempt sqlexec.AttemptFunc) Retrieval {
	schema, err := r.schemas.Introspect(ctx)
	if err != nil {
		r.log.Warn("schema unavailable", r.log.Args("error", logging.Mask(err.Error())))
		return Retrieval{Err: err, Payload: NoDataPayload}
	}

	q, err := r.queries.Synthesize(ctx, question, schema, subjectID)
	if err != nil {
		payload := synthesisFallback
		if apperrors.Is(err, apperrors.SchemaUnavailable) {
			payload = NoDataPayload
		}
		return Retrieval{Err: err, Payload: payload}
	}

	var scope *sqlexec.Scope
	if sc, ok := r.queries.Scope(schema, subjectID); ok {
		scope = &sc
	}
	out := r.runner.ExecuteScoped(ctx, q, scope, onAttempt)
	ret := Retrieval{Query: out.Query, Result: out.Result, Attempts: out.Attempts}
	if !out.OK() {
		ret.Err = out.Err()
		ret.Payload = out.Failure
		return ret
	}
	ret.Payload = Render(out.Result)
	r.log.Info("retrieved rows", r.log.Args("rows", len(out.Result.Rows), "attempts", out.Attempts))
	return ret
}

// Render formats a result as a markdown table, or NoResultsPayload when it
// has no rows.
func Render(res *sqlexec.Result) string {
	if res.Empty() {
		return NoResultsPayload
	}
	var b strings.Builder
	writeRow(&b, res.Columns)
	seps := make([]string, len(res.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	writeRow(&b, seps)
	cells := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = escapeCell(sqlexec.FormatValue(row[i]))
			}
		}
		writeRow(&b, cells)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func escapeCell(s string) string { return cellReplacer.Replace(s) }
