// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package subjects lists the subjects (patients) a question can be scoped to.
package subjects

import (
	"context"
	"fmt"
	"strings"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/sqlexec"
)

// Subject is one row of the directory.
type Subject struct {
	ID         string `json:"id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Columns names the table and columns the directory reads.
type Columns struct {
	Table      string
	ID         string
	GivenName  string
	FamilyName string
}

// Directory reads subjects from the store.
type Directory struct {
	store   sqlexec.Querier
	cols    Columns
	intType string
}

// NewDirectory creates a Directory. intType is the dialect's integer cast target.
func NewDirectory(store sqlexec.Querier, cols Columns, intType string) *Directory {
	if intType == "" {
		intType = "INTEGER"
	}
	return &Directory{store: store, cols: cols, intType: intType}
}

// Query returns the SQL List runs. Name columns left empty select NULL.
func (d *Directory) Query() string {
	name := func(col string) string {
		if col == "" {
			return "NULL"
		}
		return quoteIdent(col)
	}
	id := quoteIdent(d.cols.ID)
	return fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY CAST(%s AS %s)",
		id, name(d.cols.GivenName), name(d.cols.FamilyName), quoteIdent(d.cols.Table), id, d.intType)
}

// List returns every subject ordered by numeric id.
func (d *Directory) List(ctx context.Context) ([]Subject, error) {
	res, err := d.store.Query(ctx, d.Query())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ExecutionFailed, "cannot list subjects", err)
	}
	out := make([]Subject, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 3 {
			continue
		}
		out = append(out, Subject{ID: text(row[0]), GivenName: text(row[1]), FamilyName: text(row[2])})
	}
	return out, nil
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return sqlexec.FormatValue(v)
}

// quoteIdent double-quotes an identifier, keeping a schema qualifier apart.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
