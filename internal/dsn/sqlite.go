// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net/url"
	"path/filepath"
	"strings"
)

var sqliteExts = []string{".db", ".sqlite", ".sqlite3"}

func looksLikeSQLite(dsn string) bool {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "sqlite://") || strings.HasPrefix(lower, "sqlite:") || strings.HasPrefix(lower, "file:") {
		return true
	}
	path, _, _ := strings.Cut(lower, "?")
	for _, ext := range sqliteExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// parseSQLite accepts sqlite://path, sqlite:path, file:path and bare paths.
func parseSQLite(dsn string) (*Info, error) {
	rest := dsn
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		rest = dsn[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		rest = dsn[len("sqlite:"):]
	case strings.HasPrefix(lower, "file:"):
		rest = dsn[len("file:"):]
	}
	path, query, _ := strings.Cut(rest, "?")
	if strings.TrimSpace(path) == "" {
		return nil, NewParseError(dsn, "missing database file", "use sqlite:///path/to/file.db or a path ending in .db")
	}
	info := &Info{Driver: DriverSQLite, Path: filepath.Clean(path), Params: map[string]string{}, Original: dsn}
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, NewParseError(dsn, "malformed query parameters", "")
		}
		for k, v := range values {
			if len(v) > 0 {
				info.Params[k] = v[0]
			}
		}
	}
	return info, nil
}

// normalizeSQLite returns the file: URI form the driver accepts. Parameters
// such as _pragma are kept verbatim.
func normalizeSQLite(info *Info) string {
	s := "file:" + info.Path
	if _, q, ok := strings.Cut(info.Original, "?"); ok && q != "" {
		s += "?" + q
	}
	return s
}
