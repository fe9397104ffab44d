// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"medquery/cli/internal/sqlexec/sqlexectest"
)

// fakeStore answers queries through handler and records what it saw.
type fakeStore struct {
	mu      sync.Mutex
	handler func(q string) (*Result, error)
	queries []string

	tables  []string
	columns map[string][]string
	fks     map[string][]ForeignKey
	listErr error
}

func (f *fakeStore) Query(_ context.Context, q string) (*Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.handler(q)
}

func (f *fakeStore) ListTables(context.Context) ([]string, error) { return f.tables, f.listErr }
func (f *fakeStore) ListColumns(_ context.Context, t string) ([]string, error) {
	return f.columns[t], nil
}
func (f *fakeStore) ListForeignKeys(_ context.Context, t string) ([]ForeignKey, error) {
	return f.fks[t], nil
}

func okResult() *Result {
	return &Result{Columns: []string{"subject_id"}, Rows: [][]any{{int64(1)}}}
}

func failWith(msg string) func(string) (*Result, error) {
	return func(string) (*Result, error) { return nil, errors.New(msg) }
}

// newClinicDB seeds a SQLite file and returns a query-only store over it.
func newClinicDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), "file:"+sqlexectest.ClinicFile(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}
