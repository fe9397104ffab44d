// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "medquery/cli/internal/errors"
)

const (
	pgTablesSQL = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`

	pgColumnsSQL = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

	pgForeignKeysSQL = `SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema = current_schema()
  AND tc.table_name = $1
ORDER BY kcu.ordinal_position`
)

// PGStore is a Store over a pgx connection pool.
type PGStore struct {
	// Pool is the PostgreSQL connection pool
	Pool *pgxpool.Pool
}

// OpenPostgres creates the pool and verifies connectivity.
func OpenPostgres(ctx context.Context, connString string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "invalid postgres connection string", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "cannot create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "cannot reach postgres", err)
	}
	return &PGStore{Pool: pool}, nil
}

// ListTables returns base tables of the current schema.
func (s *PGStore) ListTables(ctx context.Context) ([]string, error) {
	return s.strings(ctx, pgTablesSQL)
}

// ListColumns returns the columns of table in ordinal order.
func (s *PGStore) ListColumns(ctx context.Context, table string) ([]string, error) {
	return s.strings(ctx, pgColumnsSQL, table)
}

// ListForeignKeys returns the outgoing foreign keys of table.
func (s *PGStore) ListForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, pgForeignKeysSQL, table)
	if err != nil {
		return nil, err
	}
	fks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ForeignKey, error) {
		var fk ForeignKey
		err := row.Scan(&fk.From, &fk.ToTable, &fk.ToColumn)
		return fk, err
	})
	if err != nil {
		return nil, err
	}
	return fks, nil
}

func (s *PGStore) strings(ctx context.Context, sql string, args ...any) ([]string, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Query runs sql inside a read-only transaction that is always rolled back.
// Columns come back in SELECT order and rows as ordered tuples.
func (s *PGStore) Query(ctx context.Context, sql string) (*Result, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, nothing to keep

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res := &Result{Columns: make([]string, len(fds)), Rows: [][]any{}}
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, normalizeRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Ping checks connectivity.
func (s *PGStore) Ping(ctx context.Context) error { return s.Pool.Ping(ctx) }

// Close closes the pool.
func (s *PGStore) Close() { s.Pool.Close() }
