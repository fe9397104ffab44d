// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec provides read-only SQL execution over PostgreSQL (pgx pool) or
// SQLite (database/sql), schema introspection, deterministic query rewriting
// and the bounded self-repairing executor.
//
// Key features include:
//   - Catalog introspection of base tables, ordered columns and foreign keys
//   - Ordered result sets (columns in SELECT order, rows as tuples)
//   - Value normalization for rendering and JSON (UUIDs, driver values, bytes, dates)
//   - Per-engine dialects with configurable error matchers
//   - A repair loop that substitutes non-portable aggregates and strips unknown columns
package sqlexec

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"medquery/cli/internal/dsn"
	apperrors "medquery/cli/internal/errors"
)

// Result is an ordered result set. Every row has len(Columns) values.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"data"`
}

// Empty reports whether the query returned no rows.
func (r *Result) Empty() bool { return r == nil || len(r.Rows) == 0 }

// ForeignKey is an outgoing reference from a column of one table.
type ForeignKey struct {
	From     string `json:"from"`
	ToTable  string `json:"to_table"`
	ToColumn string `json:"to_column"`
}

// Catalog reads the store's metadata.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
	ListForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

// Querier runs one ad hoc read-only statement.
type Querier interface {
	Query(ctx context.Context, sql string) (*Result, error)
}

// Store is a relational data store. Each call acquires and releases its own
// connection, so a Store is safe for concurrent use.
type Store interface {
	Catalog
	Querier
	Ping(ctx context.Context) error
	Close()
}

// OpenStore opens the adapter for driver ("postgres" or "sqlite"). An empty
// driver is detected from the DSN.
func OpenStore(ctx context.Context, driverName, connString string) (Store, error) {
	if driverName == "" {
		driverName = string(dsn.Detect(connString))
	}
	normalized, err := dsn.Parse(connString)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreUnavailable, "invalid database connection string", err)
	}
	switch dsn.Driver(driverName) {
	case dsn.DriverPostgres:
		return OpenPostgres(ctx, normalized)
	case dsn.DriverSQLite:
		return OpenSQLite(ctx, normalized)
	default:
		return nil, apperrors.New(apperrors.StoreUnavailable, fmt.Sprintf("unsupported database driver %q", driverName))
	}
}

// normalizeRow converts driver values in place.
func normalizeRow(row []any) []any {
	for i, v := range row {
		row[i] = normalizeValue(v)
	}
	return row
}

// normalizeValue converts a driver value into something that renders well in
// prompts and marshals cleanly to JSON.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		if len(val) == 16 {
			return uuid.UUID(val).String()
		}
		return fmt.Sprintf("\\x%x", val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	case string, bool, int64, int32, int16, int8, int, float64, float32:
		return val
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := dv.(driver.Valuer); again {
			return fmt.Sprint(dv)
		}
		return normalizeValue(dv)
	default:
		return val
	}
}

// FormatValue renders a normalized value for text output.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		s := fmt.Sprintf("%.4f", val)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		return s
	default:
		return fmt.Sprint(val)
	}
}
