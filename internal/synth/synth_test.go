// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/llm/llmtest"
	"medquery/cli/internal/sqlexec"
)

func clinicSchema() *sqlexec.Schema {
	return &sqlexec.Schema{Tables: map[string]sqlexec.Table{
		"diagnoses": {Name: "diagnoses", Columns: []string{"id", "subject_id", "diagnosis", "diagnosed_on"}},
		"patients":  {Name: "patients", Columns: []string{"notes", "admitted_on", "family_name", "subject_id", "given_name"}},
	}}
}

func newSynth(fake *llmtest.Fake) *Synthesizer {
	return New(fake, nil, sqlexec.SQLite, Options{SubjectTable: "patients", SubjectColumn: "subject_id", Temperature: 0.3}, nil)
}

func TestSynthesize_EmptySchemaSkipsCall(t *testing.T) {
	fake := llmtest.New("SELECT 1")

	for _, s := range []*sqlexec.Schema{nil, {}} {
		q, err := newSynth(fake).Synthesize(context.Background(), "anything", s, "")
		assert.Empty(t, q)
		assert.True(t, apperrors.Is(err, apperrors.SchemaUnavailable))
	}
	assert.Empty(t, fake.Calls())
}

func TestSynthesize_CleansAndPostProcesses(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		subjectID string
		want      string
	}{
		{
			name:  "fenced with semicolon",
			reply: "```sql\nSELECT subject_id, given_name FROM patients;\n```",
			want:  "SELECT subject_id, given_name FROM patients",
		},
		{
			name:  "bare subject ordering is cast",
			reply: "select subject_id, given_name from patients order by subject_id",
			want:  "select subject_id, given_name from patients order by CAST(subject_id AS INTEGER)",
		},
		{
			name:      "missing subject filter is added to joined query",
			reply:     "SELECT d.diagnosis FROM diagnoses d JOIN patients p ON p.subject_id = d.subject_id ORDER BY d.subject_id;",
			subjectID: "42",
			want:      "SELECT d.diagnosis FROM diagnoses d JOIN patients p ON p.subject_id = d.subject_id\nWHERE d.subject_id = 42\nORDER BY CAST(d.subject_id AS INTEGER)",
		},
		{
			name:      "existing subject filter is kept",
			reply:     "SELECT * FROM patients WHERE subject_id = 42",
			subjectID: "42",
			want:      "SELECT * FROM patients WHERE subject_id = 42",
		},
		{
			name:      "text id is quoted",
			reply:     "SELECT * FROM patients",
			subjectID: "A'7",
			want:      "SELECT * FROM patients\nWHERE subject_id = 'A''7'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New(tt.reply)
			got, err := newSynth(fake).Synthesize(context.Background(), "question", clinicSchema(), tt.subjectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSynthesizer_Scope(t *testing.T) {
	s := newSynth(llmtest.New())

	_, ok := s.Scope(clinicSchema(), " ")
	assert.False(t, ok, "general questions are not scoped")

	wards := &sqlexec.Schema{Tables: map[string]sqlexec.Table{"wards": {Name: "wards", Columns: []string{"code"}}}}
	_, ok = s.Scope(wards, "42")
	assert.False(t, ok, "no table has the subject column")

	scope, ok := s.Scope(clinicSchema(), " 42 ")
	require.True(t, ok)
	assert.Equal(t, sqlexec.Scope{Column: "subject_id", ID: "42"}, scope)
}

func TestSynthesize_PostgresComparesIDsAsLiterals(t *testing.T) {
	opts := Options{SubjectTable: "patients", SubjectColumn: "subject_id"}

	got, err := New(llmtest.New("SELECT * FROM patients"), nil, sqlexec.Postgres, opts, nil).
		Synthesize(context.Background(), "q", clinicSchema(), "42")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM patients\nWHERE subject_id = '42'", got)

	fallback := &llmtest.Fake{Script: []llmtest.Reply{{Err: errors.New("down")}}}
	got, err = New(fallback, nil, sqlexec.Postgres, opts, nil).
		Synthesize(context.Background(), "q", clinicSchema(), "42")
	require.NoError(t, err)
	assert.Contains(t, got, "WHERE subject_id = '42'")
}

func TestSynthesize_PromptCarriesSchemaAndPolicy(t *testing.T) {
	fake := llmtest.New("SELECT 1")
	_, err := newSynth(fake).Synthesize(context.Background(), "Which diagnoses were made?", clinicSchema(), "42")
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.3, calls[0].Temperature)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, calls[0].Messages[0].Role)

	prompt := fake.LastUserMessage(0)
	assert.Contains(t, prompt, "Table: diagnoses, Columns: id, subject_id, diagnosis, diagnosed_on")
	assert.Contains(t, prompt, "User question: Which diagnoses were made?")
	assert.Contains(t, prompt, "GROUP_CONCAT")
	assert.Contains(t, prompt, "Never use STRING_AGG, LISTAGG, ARRAY_AGG")
	assert.Contains(t, prompt, "subject_id = 42")
}

func TestSynthesize_Fallback(t *testing.T) {
	tests := []struct {
		name      string
		reply     llmtest.Reply
		subjectID string
		want      string
	}{
		{
			name:  "call error general",
			reply: llmtest.Reply{Err: errors.New("upstream 503")},
			want:  "SELECT subject_id, family_name, given_name, admitted_on, notes\nFROM patients\nORDER BY CAST(subject_id AS INTEGER)\nLIMIT 100",
		},
		{
			name:      "prose reply for subject",
			reply:     llmtest.Reply{Text: "Sure! Here is the query you asked for."},
			subjectID: "42",
			want:      "SELECT subject_id, family_name, given_name, admitted_on, notes\nFROM patients\nWHERE subject_id = 42",
		},
		{
			name:  "non-select statement",
			reply: llmtest.Reply{Text: "DELETE FROM patients"},
			want:  "SELECT subject_id, family_name, given_name, admitted_on, notes\nFROM patients\nORDER BY CAST(subject_id AS INTEGER)\nLIMIT 100",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &llmtest.Fake{Script: []llmtest.Reply{tt.reply}}
			got, err := newSynth(fake).Synthesize(context.Background(), "show everything", clinicSchema(), tt.subjectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsSelect(got))
		})
	}
}

func TestSynthesize_FallbackWithoutSubjectColumn(t *testing.T) {
	schema := &sqlexec.Schema{Tables: map[string]sqlexec.Table{
		"wards": {Name: "wards", Columns: []string{"code", "ward_name"}},
	}}
	fake := &llmtest.Fake{Script: []llmtest.Reply{{Err: errors.New("down")}}}

	got, err := newSynth(fake).Synthesize(context.Background(), "list wards", schema, "42")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ward_name, code\nFROM wards\nLIMIT 100", got)
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"  SELECT 1;  ":                  "SELECT 1",
		"```\nSELECT 1\n```":             "SELECT 1",
		"```SQL\nSELECT a\nFROM b;\n```": "SELECT a\nFROM b",
		"SELECT ';' AS sep":              "SELECT ';' AS sep",
	}
	for in, want := range tests {
		assert.Equal(t, want, Clean(in), "input %q", in)
	}
}

func TestCanonicalColumns(t *testing.T) {
	got := CanonicalColumns([]string{"heart_rate", "recorded_at", "family_name", "SUBJECT_ID", "given_name", "temperature"}, "subject_id")
	assert.Equal(t, []string{"SUBJECT_ID", "family_name", "given_name", "recorded_at", "heart_rate", "temperature"}, got)
}
