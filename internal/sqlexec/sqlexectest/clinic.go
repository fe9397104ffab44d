// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexectest seeds small SQLite databases for tests.
package sqlexectest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// ClinicSchema creates a patients table and a diagnoses table that
// references it.
const ClinicSchema = `
CREATE TABLE patients (
	subject_id TEXT PRIMARY KEY,
	given_name TEXT,
	family_name TEXT,
	admitted_on DATE
);
CREATE TABLE diagnoses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id TEXT REFERENCES patients(subject_id),
	diagnosis TEXT,
	treatment TEXT
);
`

// Patients seeded by ClinicFile, in insertion order.
var Patients = [][]any{
	{"1", "Ana", "Pérez", "2024-01-10"},
	{"2", "Luis", "Gómez", "2024-02-11"},
	{"10", "Marta", "Ruiz", "2024-03-12"},
	{"100", "Jorge", "Díaz", "2024-04-13"},
	{"42", "Elena", "Soto", "2024-05-14"},
}

// Diagnoses seeded by ClinicFile. Subject 7 has no patient row.
var Diagnoses = [][]any{
	{"42", "hypertension", "lisinopril"},
	{"42", "type 2 diabetes", "metformin"},
	{"7", "asthma", "salbutamol"},
	{"10", "migraine", "sumatriptan"},
}

// ClinicFile writes the clinic fixture to a temporary SQLite file and returns
// its path. subject_id is TEXT so that, uncast, it sorts lexicographically.
func ClinicFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ClinicSchema)
	require.NoError(t, err)
	for _, p := range Patients {
		_, err = db.Exec(`INSERT INTO patients VALUES (?, ?, ?, ?)`, p...)
		require.NoError(t, err)
	}
	for _, d := range Diagnoses {
		_, err = db.Exec(`INSERT INTO diagnoses (subject_id, diagnosis, treatment) VALUES (?, ?, ?)`, d...)
		require.NoError(t, err)
	}
	return path
}

// EmptyFile returns the path of a SQLite file with no tables.
func EmptyFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE scratch (x INTEGER); DROP TABLE scratch;`)
	require.NoError(t, err)
	return path
}
