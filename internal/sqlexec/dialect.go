// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "medquery/cli/internal/errors"
)

// ErrorKind classifies an execution error for the repair loop.
type ErrorKind int

const (
	// ErrOther is any error the repair loop cannot fix.
	ErrOther ErrorKind = iota
	// ErrUnknownColumn names a column that does not exist.
	ErrUnknownColumn
	// ErrUnsupportedFunction names a function the engine does not provide.
	ErrUnsupportedFunction
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnknownColumn:
		return "unknown_column"
	case ErrUnsupportedFunction:
		return "unsupported_function"
	default:
		return "other"
	}
}

// ErrorMatcher extracts the error kind and offending identifier from the
// engine's error text. Each pattern must have one capture group.
type ErrorMatcher struct {
	UnknownColumn       *regexp.Regexp
	UnsupportedFunction *regexp.Regexp
}

// Classify returns the kind of err and the captured identifier. An error
// that matches a pattern with an empty capture still reports the kind, with
// an empty identifier.
func (m ErrorMatcher) Classify(err error) (ErrorKind, string) {
	if err == nil {
		return ErrOther, ""
	}
	msg := err.Error()
	if m.UnsupportedFunction != nil {
		if sm := m.UnsupportedFunction.FindStringSubmatch(msg); sm != nil {
			return ErrUnsupportedFunction, capture(sm)
		}
	}
	if m.UnknownColumn != nil {
		if sm := m.UnknownColumn.FindStringSubmatch(msg); sm != nil {
			return ErrUnknownColumn, capture(sm)
		}
	}
	return ErrOther, ""
}

func capture(sm []string) string {
	if len(sm) < 2 {
		return ""
	}
	return strings.TrimSpace(sm[1])
}

// Dialect describes what the synthesizer and the repair loop need to know
// about one engine.
type Dialect struct {
	// Name is the engine name used in prompts.
	Name string
	// NativeAggregate is the engine's string concatenation aggregate.
	NativeAggregate string
	// AggregateSeparator is added to one-argument calls when the native
	// aggregate requires a separator argument.
	AggregateSeparator string
	// AggregateTextType casts the argument of such calls when the native
	// aggregate only accepts text.
	AggregateTextType string
	// NonPortableAggregates are aggregates other engines use for the same job.
	NonPortableAggregates []string
	// IntegerType is the cast target for numeric ordering.
	IntegerType string
	// QuoteSubjectIDs compares subject ids as string literals, which the
	// engine coerces to the column type.
	QuoteSubjectIDs bool
	// Matcher classifies execution errors.
	Matcher ErrorMatcher
}

// Scope returns the subject restriction for col and id in this dialect.
func (d Dialect) Scope(col, id string) Scope {
	return Scope{Column: col, ID: id, QuoteID: d.QuoteSubjectIDs}
}

// SQLite is the dialect of modernc.org/sqlite and the sqlite3 CLI.
var SQLite = Dialect{
	Name:                  "SQLite",
	NativeAggregate:       "GROUP_CONCAT",
	NonPortableAggregates: []string{"STRING_AGG", "LISTAGG", "ARRAY_AGG"},
	IntegerType:           "INTEGER",
	Matcher: ErrorMatcher{
		UnknownColumn:       regexp.MustCompile(`no such column: ([\w.]+)`),
		UnsupportedFunction: regexp.MustCompile(`no such function: (\w+)`),
	},
}

// Postgres is the dialect of PostgreSQL as reported through pgx.
var Postgres = Dialect{
	Name:                  "PostgreSQL",
	NativeAggregate:       "STRING_AGG",
	AggregateSeparator:    "','",
	AggregateTextType:     "TEXT",
	NonPortableAggregates: []string{"GROUP_CONCAT", "LISTAGG"},
	IntegerType:           "INTEGER",
	QuoteSubjectIDs:       true,
	Matcher: ErrorMatcher{
		UnknownColumn:       regexp.MustCompile(`column "?([\w.]+)"? does not exist`),
		UnsupportedFunction: regexp.MustCompile(`function (\w+)\(.*\) does not exist`),
	},
}

// DialectFor returns the built-in dialect for a driver name.
func DialectFor(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("no dialect for driver %q", driverName))
	}
}

// WithPatterns overrides the matcher patterns. Empty strings keep the built-ins.
func (d Dialect) WithPatterns(unknownColumn, unsupportedFunction string) (Dialect, error) {
	for _, p := range []struct {
		src string
		dst **regexp.Regexp
	}{
		{unknownColumn, &d.Matcher.UnknownColumn},
		{unsupportedFunction, &d.Matcher.UnsupportedFunction},
	} {
		if p.src == "" {
			continue
		}
		re, err := regexp.Compile(p.src)
		if err != nil {
			return d, apperrors.Wrap(apperrors.ConfigInvalid, "invalid error pattern", err)
		}
		if re.NumSubexp() < 1 {
			return d, apperrors.New(apperrors.ConfigInvalid, "error pattern needs a capture group: "+p.src)
		}
		*p.dst = re
	}
	return d, nil
}

// IsNonPortable reports whether fn is a known aggregate this engine replaces.
func (d Dialect) IsNonPortable(fn string) bool {
	for _, a := range d.NonPortableAggregates {
		if strings.EqualFold(a, fn) {
			return true
		}
	}
	return false
}
