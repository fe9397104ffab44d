// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package synth turns a free-text question into one read-only SELECT against
// an introspected schema. The text-generation call proposes the query; a
// deterministic pass then enforces the subject filter and numeric ordering.
// When the call fails or proposes something other than a SELECT, a template
// fallback query built from the schema is returned instead.
package synth

import (
	"context"
	"regexp"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/prompts"
	"medquery/cli/internal/sqlexec"
)

// DefaultTemperature is the sampling temperature of the synthesis call.
const DefaultTemperature = 0.3

// Options configure a Synthesizer.
type Options struct {
	// SubjectTable is the table preferred by the fallback query.
	SubjectTable string
	// SubjectColumn identifies a subject in every table that has it.
	SubjectColumn string
	// Temperature of the synthesis call.
	Temperature float64
}

// Synthesizer proposes candidate queries. It is safe for concurrent use.
type Synthesizer struct {
	client  llm.Client
	prompts *prompts.Set
	dialect sqlexec.Dialect
	opts    Options
	log     *pterm.Logger
}

// New creates a Synthesizer. A nil prompt set uses the embedded defaults.
func New(client llm.Client, set *prompts.Set, dialect sqlexec.Dialect, opts Options, log *pterm.Logger) *Synthesizer {
	if set == nil {
		set = prompts.Default()
	}
	if opts.SubjectColumn == "" {
		opts.SubjectColumn = "subject_id"
	}
	return &Synthesizer{client: client, prompts: set, dialect: dialect, opts: opts, log: logging.OrDiscard(log)}
}

// Synthesize returns a candidate SELECT for question. subjectID may be empty
// for general questions. The only error returned is SchemaUnavailable for an
// empty schema, plus a SynthesisFailed when even the fallback template cannot
// be rendered.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, schema *sqlexec.Schema, subjectID string) (string, error) {
	if schema.Empty() {
		return "", apperrors.New(apperrors.SchemaUnavailable, "no tables available to query")
	}
	subjectID = strings.TrimSpace(subjectID)

	q, err := s.generate(ctx, question, schema, subjectID)
	if err != nil {
		s.log.Warn("synthesis failed, using fallback query", s.log.Args("error", logging.Mask(err.Error())))
		q, err = s.fallback(schema, subjectID)
		if err != nil {
			return "", apperrors.Wrap(apperrors.SynthesisFailed, "cannot render fallback query", err)
		}
	}
	return s.finish(q, schema, subjectID), nil
}

func (s *Synthesizer) generate(ctx context.Context, question string, schema *sqlexec.Schema, subjectID string) (string, error) {
	prompt, err := s.prompts.Render(prompts.Synthesis, prompts.SynthesisData{
		Schema:        schema.Render(),
		Question:      question,
		Dialect:       s.dialect.Name,
		Aggregate:     s.dialect.NativeAggregate,
		Avoid:         strings.Join(s.dialect.NonPortableAggregates, ", "),
		IntegerType:   s.dialect.IntegerType,
		SubjectColumn: s.opts.SubjectColumn,
		SubjectID:     subjectID,
	})
	if err != nil {
		return "", err
	}

	out, err := s.client.Complete(ctx, []llm.Message{llm.User(prompt)}, s.opts.Temperature)
	if err != nil {
		return "", apperrors.Wrap(apperrors.SynthesisFailed, "generation call failed", err)
	}
	q := Clean(out)
	if !IsSelect(q) {
		return "", apperrors.New(apperrors.SynthesisFailed, "generated text is not a SELECT statement")
	}
	s.log.Debug("synthesized query", s.log.Args("query", q))
	return q, nil
}

// Scope returns the subject restriction for subjectID. It reports false for
// a general question and for a schema where no table has the subject column,
// which cannot be filtered by subject.
func (s *Synthesizer) Scope(schema *sqlexec.Schema, subjectID string) (sqlexec.Scope, bool) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return sqlexec.Scope{}, false
	}
	if _, ok := schema.TableWithColumn(s.opts.SubjectTable, s.opts.SubjectColumn); !ok {
		return sqlexec.Scope{}, false
	}
	return s.dialect.Scope(s.opts.SubjectColumn, subjectID), true
}

// finish applies the deterministic rewrites.
func (s *Synthesizer) finish(q string, schema *sqlexec.Schema, subjectID string) string {
	if scope, ok := s.Scope(schema, subjectID); ok {
		q = scope.Apply(q)
	}
	return sqlexec.CastSubjectOrdering(q, s.opts.SubjectColumn, s.dialect.IntegerType)
}

// fallback renders a broad query over the subject table.
func (s *Synthesizer) fallback(schema *sqlexec.Schema, subjectID string) (string, error) {
	tbl, hasSubject := schema.TableWithColumn(s.opts.SubjectTable, s.opts.SubjectColumn)
	if !hasSubject {
		tbl = schema.Tables[schema.TableNames()[0]]
	}
	data := prompts.FallbackData{
		Table:            tbl.Name,
		Columns:          CanonicalColumns(tbl.Columns, s.opts.SubjectColumn),
		HasSubjectColumn: hasSubject,
		SubjectColumn:    s.opts.SubjectColumn,
		SubjectLiteral:   s.dialect.Scope(s.opts.SubjectColumn, subjectID).Literal(),
		IntegerType:      s.dialect.IntegerType,
	}
	name := prompts.FallbackGeneral
	if subjectID != "" && hasSubject {
		name = prompts.FallbackSubject
	}
	return s.prompts.Render(name, data)
}

var (
	reFence   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	reSelect  = regexp.MustCompile(`(?i)^select\b`)
	reNameCol = regexp.MustCompile(`(?i)name`)
	reDateCol = regexp.MustCompile(`(?i)(date|_on$|_at$|time|day)`)
)

// Clean trims the text, strips one surrounding markdown code fence and one
// trailing semicolon.
func Clean(text string) string {
	q := strings.TrimSpace(text)
	if m := reFence.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimSpace(q)
	q = strings.TrimSuffix(q, ";")
	return strings.TrimSpace(q)
}

// IsSelect reports whether q begins with SELECT, ignoring case.
func IsSelect(q string) bool {
	return reSelect.MatchString(strings.TrimSpace(q))
}

// CanonicalColumns orders columns as subject id, name-like columns, date-like
// columns, then the rest in catalog order.
func CanonicalColumns(cols []string, subjectCol string) []string {
	var id, names, dates, rest []string
	for _, c := range cols {
		switch {
		case strings.EqualFold(c, subjectCol):
			id = append(id, c)
		case reNameCol.MatchString(c):
			names = append(names, c)
		case reDateCol.MatchString(c):
			dates = append(dates, c)
		default:
			rest = append(rest, c)
		}
	}
	out := make([]string, 0, len(cols))
	out = append(out, id...)
	out = append(out, names...)
	out = append(out, dates...)
	return append(out, rest...)
}
