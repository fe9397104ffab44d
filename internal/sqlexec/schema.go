// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/logging"
)

// Table describes one base table.
type Table struct {
	// Name is the unqualified table name
	Name string `json:"name"`
	// Columns lists column names in catalog-declared order
	Columns []string `json:"columns"`
	// ForeignKeys lists outgoing references
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// HasColumn reports whether the table has col, ignoring case.
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}

// Schema is the structural reflection of a store. It is built fresh per
// request and never empty: Introspect returns an error instead.
type Schema struct {
	Tables map[string]Table `json:"tables"`
}

// TableNames returns the table names sorted.
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether there is nothing to query.
func (s *Schema) Empty() bool { return s == nil || len(s.Tables) == 0 }

// TableWithColumn returns the preferred table if it has col, otherwise the
// first table in name order that does.
func (s *Schema) TableWithColumn(preferred, col string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	if t, ok := s.Tables[preferred]; ok && t.HasColumn(col) {
		return t, true
	}
	for _, n := range s.TableNames() {
		if t := s.Tables[n]; t.HasColumn(col) {
			return t, true
		}
	}
	return Table{}, false
}

// Render produces the textual rendering embedded in prompts, one line per table.
func (s *Schema) Render() string {
	var b strings.Builder
	for i, n := range s.TableNames() {
		t := s.Tables[n]
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Table: ")
		b.WriteString(t.Name)
		b.WriteString(", Columns: ")
		b.WriteString(strings.Join(t.Columns, ", "))
		b.WriteString(", Relations: ")
		if len(t.ForeignKeys) == 0 {
			b.WriteString("none")
			continue
		}
		for j, fk := range t.ForeignKeys {
			if j > 0 {
				b.WriteString("; ")
			}
			b.WriteString(fk.From + " -> " + fk.ToTable)
			if fk.ToColumn != "" {
				b.WriteString("." + fk.ToColumn)
			}
		}
	}
	return b.String()
}

// Introspector reads the catalog into a Schema.
type Introspector struct {
	catalog Catalog
	log     *pterm.Logger
}

// NewIntrospector creates an Introspector. A nil logger discards output.
func NewIntrospector(catalog Catalog, log *pterm.Logger) *Introspector {
	return &Introspector{catalog: catalog, log: logging.OrDiscard(log)}
}

// Introspect enumerates base tables, their columns in catalog order and their
// outgoing foreign keys. No tables, or any catalog read failure, yields a
// SchemaUnavailable error.
func (i *Introspector) Introspect(ctx context.Context) (*Schema, error) {
	tables, err := i.catalog.ListTables(ctx)
	if err != nil {
		i.log.Warn("cannot list tables", i.log.Args("error", logging.Mask(err.Error())))
		return nil, apperrors.Wrap(apperrors.SchemaUnavailable, "cannot read catalog", err)
	}
	if len(tables) == 0 {
		return nil, apperrors.New(apperrors.SchemaUnavailable, "no tables available in the database")
	}

	s := &Schema{Tables: make(map[string]Table, len(tables))}
	for _, name := range tables {
		cols, err := i.catalog.ListColumns(ctx, name)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.SchemaUnavailable, "cannot read columns of "+name, err)
		}
		fks, err := i.catalog.ListForeignKeys(ctx, name)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.SchemaUnavailable, "cannot read foreign keys of "+name, err)
		}
		s.Tables[name] = Table{Name: name, Columns: cols, ForeignKeys: fks}
	}
	i.log.Debug("schema introspected", i.log.Args("tables", len(s.Tables)))
	return s, nil
}
