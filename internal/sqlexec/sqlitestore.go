// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	apperrors "medquery/cli/internal/errors"
)

const (
	sqliteTablesSQL      = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	sqliteColumnsSQL     = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	sqliteForeignKeysSQL = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`
)

// SQLiteStore is a Store over a SQLite file opened through modernc.org/sqlite.
type SQLiteStore struct {
	// DB is the database/sql handle; it pools connections to the file.
	DB *sql.DB
}

// OpenSQLite opens the database in query-only mode and verifies it can be read.
func OpenSQLite(ctx context.Context, connString string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withQueryOnly(connString))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "cannot open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "cannot reach sqlite database", err)
	}
	return &SQLiteStore{DB: db}, nil
}

// withQueryOnly adds the query_only and busy_timeout pragmas unless the DSN sets them.
func withQueryOnly(connString string) string {
	var extra []string
	if !strings.Contains(connString, "query_only") {
		extra = append(extra, "_pragma=query_only(1)")
	}
	if !strings.Contains(connString, "busy_timeout") {
		extra = append(extra, "_pragma=busy_timeout(5000)")
	}
	if len(extra) == 0 {
		return connString
	}
	sep := "?"
	if strings.Contains(connString, "?") {
		sep = "&"
	}
	return connString + sep + strings.Join(extra, "&")
}

// ListTables returns user tables, excluding sqlite_ internals.
func (s *SQLiteStore) ListTables(ctx context.Context) ([]string, error) {
	return s.strings(ctx, sqliteTablesSQL)
}

// ListColumns returns the columns of table in declaration order.
func (s *SQLiteStore) ListColumns(ctx context.Context, table string) ([]string, error) {
	return s.strings(ctx, sqliteColumnsSQL, table)
}

// ListForeignKeys returns the outgoing foreign keys of table.
func (s *SQLiteStore) ListForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := s.DB.QueryContext(ctx, sqliteForeignKeysSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var to sql.NullString // NULL when the reference targets the primary key implicitly
		if err := rows.Scan(&fk.From, &fk.ToTable, &to); err != nil {
			return nil, err
		}
		fk.ToColumn = to.String
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (s *SQLiteStore) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Query runs sql and returns columns in SELECT order with rows as tuples.
func (s *SQLiteStore) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, normalizeRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Ping checks the file can still be read.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// Close closes the handle.
func (s *SQLiteStore) Close() { _ = s.DB.Close() }
