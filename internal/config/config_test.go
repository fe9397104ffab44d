// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medquery/cli/internal/errors"
)

// clearEnv blanks every variable applyEnvOverrides reads so the host shell
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "MEDQUERY_DSN", "MEDQUERY_DB_DRIVER",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "MEDQUERY_LLM_API_KEY",
		"MEDQUERY_LLM_PROVIDER", "MEDQUERY_LLM_BASE_URL", "MEDQUERY_LLM_MODEL",
		"MEDQUERY_LOG_LEVEL", "MEDQUERY_LOG_FORMAT", "MEDQUERY_MAX_REPAIR_ATTEMPTS",
		"MEDQUERY_ADDR", "MEDQUERY_PROMPTS_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 3, c.Pipeline.MaxRepairAttempts)
	assert.Equal(t, 120*time.Second, c.Server.RequestTimeout)
	assert.NoError(t, c.Validate())
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	clearEnv(t)
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{
  "llm": {"provider": "gemini", "model": "gemini-2.0-flash"},
  "pipeline": {"max_repair_attempts": 5},
  "subjects": {"table": "people", "id_column": "mrn"}
}`), 0o600))

	c, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", c.LLM.Model)
	assert.Equal(t, 0.7, c.LLM.AnswerTemperature, "untouched keys keep defaults")
	assert.Equal(t, 5, c.Pipeline.MaxRepairAttempts)
	assert.Equal(t, "people", c.Subjects.Table)
	assert.Equal(t, "mrn", c.Subjects.IDColumn)
	assert.Equal(t, ":5000", c.Server.Addr)
}

func TestLoadFile_BadJSON(t *testing.T) {
	clearEnv(t)
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"llm":`), 0o600))

	_, err := LoadFile(p)
	assert.True(t, apperrors.Is(err, apperrors.ConfigInvalid))
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDQUERY_DSN", "postgres://u:p@db:5432/clinic")
	t.Setenv("DATABASE_URL", "ignored.db")
	t.Setenv("GEMINI_API_KEY", "AIza-test")
	t.Setenv("MEDQUERY_LLM_MODEL", "gemini-1.5-pro")
	t.Setenv("MEDQUERY_MAX_REPAIR_ATTEMPTS", "4")
	t.Setenv("MEDQUERY_ADDR", "127.0.0.1:8080")

	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/clinic", c.DB.DSN, "MEDQUERY_DSN wins over DATABASE_URL")
	assert.Equal(t, "gemini", c.LLM.Provider)
	assert.Equal(t, "AIza-test", c.LLM.APIKey)
	assert.Equal(t, "gemini-1.5-pro", c.LLM.Model)
	assert.Equal(t, 4, c.Pipeline.MaxRepairAttempts)
	assert.Equal(t, "127.0.0.1:8080", c.Server.Addr)
}

func TestApplyEnvOverrides_BadAttemptsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDQUERY_MAX_REPAIR_ATTEMPTS", "many")

	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Pipeline.MaxRepairAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero attempts", mutate: func(c *Config) { c.Pipeline.MaxRepairAttempts = 0 }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "llama" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }, wantErr: true},
		{name: "sqlite driver", mutate: func(c *Config) { c.DB.Driver = "sqlite" }},
		{name: "pattern without group", mutate: func(c *Config) { c.Dialect.UnknownColumnPattern = "no column" }, wantErr: true},
		{name: "pattern does not compile", mutate: func(c *Config) { c.Dialect.UnsupportedFunctionPattern = "(" }, wantErr: true},
		{name: "pattern with group", mutate: func(c *Config) { c.Dialect.UnknownColumnPattern = `bad column (\w+)` }},
		{name: "missing subject table", mutate: func(c *Config) { c.Subjects.Table = " " }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ConfigInvalid), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
