// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn detects, validates and normalizes database connection strings,
// and resolves the DSN the CLI should use from the environment or the keychain.
package dsn

import (
	"errors"
	"strings"
)

// Detect detects the driver from a DSN string.
func Detect(dsn string) Driver {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	if looksLikeSQLite(lower) {
		return DriverSQLite
	}
	return DriverUnknown
}

// ParseInfo parses a DSN string and returns detailed DSN info.
func ParseInfo(dsn string) (*Info, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch Detect(dsn) {
	case DriverPostgres:
		return parsePostgres(dsn)
	case DriverSQLite:
		return parseSQLite(dsn)
	default:
		return nil, NewParseError(dsn, "unknown database type", "use postgres://, sqlite:// or a path to a .db file")
	}
}

// Parse parses a DSN string and returns the normalized connection string
// for the detected driver.
func Parse(dsn string) (string, error) {
	info, err := ParseInfo(dsn)
	if err != nil {
		return "", err
	}
	return Normalize(info), nil
}

// Normalize renders info back into a connection string the store adapters accept.
func Normalize(info *Info) string {
	if info == nil {
		return ""
	}
	if info.Driver == DriverSQLite {
		return normalizeSQLite(info)
	}
	return normalizePostgres(info)
}

// Validate validates a DSN string without normalizing it.
func Validate(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch Detect(dsn) {
	case DriverPostgres:
		return validatePostgres(strings.TrimSpace(dsn))
	case DriverSQLite:
		_, err := parseSQLite(strings.TrimSpace(dsn))
		return err
	default:
		return NewParseError(dsn, "unknown database type", "use postgres://, sqlite:// or a path to a .db file")
	}
}

// Source tells where a resolved DSN came from.
type Source string

const (
	SourceEnv      Source = "environment"
	SourceKeychain Source = "keychain"
)

// ErrNoDSN is returned by Resolve when neither the environment nor the keychain has a DSN.
var ErrNoDSN = errors.New("no database configured")

// Loader reads a stored DSN. keychain.Manager implements it.
type Loader interface {
	LoadDBDSN() (string, error)
}

// Resolve picks the DSN to use: the environment value when set, otherwise the
// keychain. A nil loader skips the keychain.
func Resolve(envDSN string, kc Loader) (string, Source, error) {
	if v := strings.TrimSpace(envDSN); v != "" {
		return v, SourceEnv, nil
	}
	if kc != nil {
		if v, err := kc.LoadDBDSN(); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), SourceKeychain, nil
		}
	}
	return "", "", ErrNoDSN
}
