// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medquery/cli/internal/errors"
)

func TestExecute_SuccessFirstAttemptNeverRewrites(t *testing.T) {
	store := &fakeStore{handler: func(string) (*Result, error) { return okResult(), nil }}
	e := NewExecutor(store, SQLite, 3, nil)

	q := "SELECT subject_id\nFROM patients\nORDER BY CAST(subject_id AS INTEGER)"
	out := e.Execute(context.Background(), q)

	require.True(t, out.OK())
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, q, out.Query)
	assert.Equal(t, []string{q}, store.queries)
	assert.NoError(t, out.Err())
}

func TestExecute_PersistentUnknownColumnIsBounded(t *testing.T) {
	tests := []struct {
		name   string
		errors []string
	}{
		{name: "same column every time", errors: []string{"no such column: ghost"}},
		{name: "a different column each time", errors: []string{
			"no such column: p.weight", "no such column: p.height", "no such column: p.bmi", "no such column: p.pulse",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			store := &fakeStore{handler: func(string) (*Result, error) {
				msg := tt.errors[calls%len(tt.errors)]
				calls++
				return nil, errors.New("SQL logic error: " + msg + " (1)")
			}}
			e := NewExecutor(store, SQLite, 3, nil)

			out := e.Execute(context.Background(), "SELECT p.subject_id,\np.weight,\np.height,\np.bmi,\np.pulse\nFROM patients p")

			assert.False(t, out.OK())
			assert.Equal(t, apperrors.RepairBudgetExhausted, out.Kind)
			assert.Equal(t, "persistent failure after 3 attempts: the query could not be repaired", out.Failure)
			assert.Equal(t, 3, out.Attempts)
			assert.Len(t, store.queries, 3)
		})
	}
}

func TestExecute_StrippingEverythingFailsDistinctly(t *testing.T) {
	store := &fakeStore{handler: failWith("no such column: bogus")}
	e := NewExecutor(store, SQLite, 3, nil)

	out := e.Execute(context.Background(), "SELECT bogus FROM patients")

	assert.Equal(t, apperrors.QueryStripped, out.Kind)
	assert.Equal(t, "could not produce a valid query after removing problematic parts", out.Failure)
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, store.queries, 1, "an empty statement must never reach the store")
	assert.True(t, apperrors.Is(out.Err(), apperrors.QueryStripped))
}

func TestExecute_NonPortableAggregateIsSubstituted(t *testing.T) {
	store := &fakeStore{handler: func(q string) (*Result, error) {
		if strings.Contains(strings.ToUpper(q), "STRING_AGG") {
			return nil, errors.New("SQL logic error: no such function: STRING_AGG (1)")
		}
		return &Result{Columns: []string{"subject_id", "treatments"}, Rows: [][]any{{"42", "lisinopril,metformin"}}}, nil
	}}
	var seen []int
	e := NewExecutor(store, SQLite, 3, nil)

	out := e.ExecuteWith(context.Background(),
		"SELECT subject_id, string_agg(treatment, ',') AS treatments\nFROM diagnoses\nGROUP BY subject_id",
		func(attempt int, _ string) { seen = append(seen, attempt) })

	require.True(t, out.OK())
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Contains(t, out.Query, "GROUP_CONCAT(treatment, ',')")
	assert.NotContains(t, strings.ToUpper(out.Query), "STRING_AGG")
}

func TestExecute_TerminalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  string
	}{
		{name: "syntax error", err: `near "FORM": syntax error`},
		{name: "unknown non aggregate function", err: "no such function: MEDIAN"},
		{name: "missing table", err: "no such table: visits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{handler: failWith(tt.err)}
			out := NewExecutor(store, SQLite, 3, nil).Execute(context.Background(), "SELECT 1 FROM patients")

			assert.Equal(t, apperrors.ExecutionFailed, out.Kind)
			assert.Equal(t, 1, out.Attempts)
			assert.Contains(t, out.Failure, tt.err)
		})
	}
}

func TestExecute_UnknownColumnThenSuccess(t *testing.T) {
	store := &fakeStore{handler: func(q string) (*Result, error) {
		if strings.Contains(q, "blood_type") {
			return nil, errors.New("no such column: blood_type")
		}
		return okResult(), nil
	}}
	out := NewExecutor(store, SQLite, 3, nil).Execute(context.Background(),
		"SELECT subject_id,\n  blood_type\nFROM patients")

	require.True(t, out.OK())
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "SELECT subject_id,\nFROM patients", store.queries[1])
}

var reOneArgStringAgg = regexp.MustCompile(`(?i)string_agg\([^,()]*\)`)

func TestExecute_PostgresDialect(t *testing.T) {
	store := &fakeStore{handler: func(q string) (*Result, error) {
		switch {
		case strings.Contains(q, "GROUP_CONCAT"):
			return nil, errors.New("ERROR: function group_concat(text) does not exist (SQLSTATE 42883)")
		case reOneArgStringAgg.MatchString(q):
			return nil, errors.New("ERROR: function string_agg(text) does not exist (SQLSTATE 42883)")
		}
		return okResult(), nil
	}}
	out := NewExecutor(store, Postgres, 3, nil).Execute(context.Background(),
		"SELECT subject_id, GROUP_CONCAT(diagnosis) FROM diagnoses GROUP BY subject_id")

	require.True(t, out.OK(), out.Failure)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "SELECT subject_id, STRING_AGG(CAST(diagnosis AS TEXT), ',') FROM diagnoses GROUP BY subject_id", out.Query)
}

func TestExecuteScoped_FilterIsReappliedAfterRepair(t *testing.T) {
	handler := func(q string) (*Result, error) {
		if strings.Contains(q, "severity") {
			return nil, errors.New("no such column: severity")
		}
		return okResult(), nil
	}
	q := "SELECT subject_id,\n  diagnosis\nFROM diagnoses\nWHERE subject_id = 42 AND severity = 'high'"

	unscoped := &fakeStore{handler: handler}
	NewExecutor(unscoped, SQLite, 3, nil).Execute(context.Background(), q)
	require.Len(t, unscoped.queries, 2)
	assert.NotContains(t, unscoped.queries[1], "WHERE", "stripping alone drops the filter")

	scoped := &fakeStore{handler: handler}
	scope := SQLite.Scope("subject_id", "42")
	out := NewExecutor(scoped, SQLite, 3, nil).ExecuteScoped(context.Background(), q, &scope, nil)

	require.True(t, out.OK(), out.Failure)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "SELECT subject_id,\n  diagnosis\nFROM diagnoses\nWHERE subject_id = 42", scoped.queries[1])
}

func TestExecuteScoped_FiltersUnscopedInput(t *testing.T) {
	store := &fakeStore{handler: func(string) (*Result, error) { return okResult(), nil }}
	scope := Postgres.Scope("subject_id", "42")

	out := NewExecutor(store, Postgres, 3, nil).ExecuteScoped(context.Background(),
		"SELECT subject_id FROM diagnoses\nUNION ALL\nSELECT subject_id FROM patients", &scope, nil)

	require.True(t, out.OK())
	assert.Equal(t,
		"SELECT * FROM (\nSELECT subject_id FROM diagnoses\nUNION ALL\nSELECT subject_id FROM patients\n) AS scoped\nWHERE scoped.subject_id = '42'",
		store.queries[0])
}

func TestExecuteScoped_FailsClosed(t *testing.T) {
	store := &fakeStore{handler: func(string) (*Result, error) { return okResult(), nil }}
	scope := SQLite.Scope("subject_id", "42")

	// the inserted WHERE ends up inside the unterminated comment
	out := NewExecutor(store, SQLite, 3, nil).ExecuteScoped(context.Background(),
		"SELECT * FROM patients /* everyone", &scope, nil)

	assert.False(t, out.OK())
	assert.Equal(t, apperrors.ScopeLost, out.Kind)
	assert.Equal(t, "could not restrict the query to the requested subject", out.Failure)
	assert.Empty(t, store.queries, "nothing may run without the subject filter")
}

func TestNewExecutor_DefaultBudget(t *testing.T) {
	assert.Equal(t, DefaultMaxAttempts, NewExecutor(&fakeStore{}, SQLite, 0, nil).MaxAttempts())
}
