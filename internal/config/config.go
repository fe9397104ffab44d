// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the database DSN and the text-generation
// API key are resolved from the environment or the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel    string         `json:"log_level"`
	LogFormat   string         `json:"log_format"`
	DB          DBConfig       `json:"db"`
	LLM         LLMConfig      `json:"llm"`
	Pipeline    PipelineConfig `json:"pipeline"`
	Dialect     DialectConfig  `json:"dialect"`
	Subjects    SubjectsConfig `json:"subjects"`
	Server      ServerConfig   `json:"server"`
	PromptsFile string         `json:"prompts_file,omitempty"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	// Driver is "postgres" or "sqlite". Empty means detect from the DSN.
	Driver string `json:"driver"`
	// DSN is only populated from the environment at runtime, never persisted.
	DSN string `json:"-"`
}

// LLMConfig selects the text-generation provider and its sampling temperatures.
type LLMConfig struct {
	Provider                  string  `json:"provider"`
	BaseURL                   string  `json:"base_url,omitempty"`
	Model                     string  `json:"model"`
	SynthesisTemperature      float64 `json:"synthesis_temperature"`
	ClassificationTemperature float64 `json:"classification_temperature"`
	AnswerTemperature         float64 `json:"answer_temperature"`
	// APIKey is only populated from the environment at runtime, never persisted.
	APIKey string `json:"-"`
}

// PipelineConfig bounds the repair loop.
type PipelineConfig struct {
	MaxRepairAttempts int `json:"max_repair_attempts"`
}

// DialectConfig overrides the built-in error matchers of the selected engine.
type DialectConfig struct {
	UnknownColumnPattern       string `json:"unknown_column_pattern,omitempty"`
	UnsupportedFunctionPattern string `json:"unsupported_function_pattern,omitempty"`
}

// SubjectsConfig names the table and columns that describe subjects (patients).
type SubjectsConfig struct {
	Table            string `json:"table"`
	IDColumn         string `json:"id_column"`
	GivenNameColumn  string `json:"given_name_column"`
	FamilyNameColumn string `json:"family_name_column"`
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Addr           string        `json:"addr"`
	GRPCAddr       string        `json:"grpc_addr"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "colorful",
		DB:        DBConfig{}, // No default DSN - fail-fast if not provided via env/keychain
		LLM: LLMConfig{
			Provider:                  "openai",
			Model:                     "gpt-4o-mini",
			SynthesisTemperature:      0.3,
			ClassificationTemperature: 0.3,
			AnswerTemperature:         0.7,
		},
		Pipeline: PipelineConfig{MaxRepairAttempts: 3},
		Subjects: SubjectsConfig{
			Table:            "patients",
			IDColumn:         "subject_id",
			GivenNameColumn:  "given_name",
			FamilyNameColumn: "family_name",
		},
		Server: ServerConfig{
			Addr:           ":5000",
			GRPCAddr:       ":5001",
			AllowedOrigins: []string{"*"},
			RequestTimeout: 120 * time.Second,
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	return xdg.ConfigFile("config.json")
}

// Load reads configuration; missing file returns defaults.
// Environment overrides are applied in both cases.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(p string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &c); err != nil {
			return c, apperrors.Wrap(apperrors.ConfigInvalid, "cannot parse "+p, err)
		}
	}
	c.applyEnvOverrides()
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// applyEnvOverrides layers MEDQUERY_* and well-known provider variables on top
// of the file values. Later keys in each list win.
func (c *Config) applyEnvOverrides() {
	if v := firstEnv("DATABASE_URL", "MEDQUERY_DSN"); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv("MEDQUERY_DB_DRIVER"); v != "" {
		c.DB.Driver = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "gemini"
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "openai"
	}
	if v := os.Getenv("MEDQUERY_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("MEDQUERY_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("MEDQUERY_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MEDQUERY_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv("MEDQUERY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MEDQUERY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MEDQUERY_MAX_REPAIR_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxRepairAttempts = n
		}
	}
	if v := os.Getenv("MEDQUERY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MEDQUERY_PROMPTS_FILE"); v != "" {
		c.PromptsFile = v
	}
}

// firstEnv returns the value of the last non-empty variable among keys.
func firstEnv(keys ...string) string {
	out := ""
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			out = v
		}
	}
	return out
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Pipeline.MaxRepairAttempts < 1 {
		return apperrors.New(apperrors.ConfigInvalid, "pipeline.max_repair_attempts must be at least 1")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return apperrors.New(apperrors.ConfigInvalid, "llm.provider must be openai or gemini, got "+strconv.Quote(c.LLM.Provider))
	}
	switch c.DB.Driver {
	case "", "postgres", "sqlite":
	default:
		return apperrors.New(apperrors.ConfigInvalid, "db.driver must be postgres or sqlite, got "+strconv.Quote(c.DB.Driver))
	}
	for name, pattern := range map[string]string{
		"dialect.unknown_column_pattern":       c.Dialect.UnknownColumnPattern,
		"dialect.unsupported_function_pattern": c.Dialect.UnsupportedFunctionPattern,
	} {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return apperrors.Wrap(apperrors.ConfigInvalid, name+" does not compile", err)
		}
		if re.NumSubexp() < 1 {
			return apperrors.New(apperrors.ConfigInvalid, name+" needs a capture group for the identifier")
		}
	}
	if strings.TrimSpace(c.Subjects.Table) == "" || strings.TrimSpace(c.Subjects.IDColumn) == "" {
		return apperrors.New(apperrors.ConfigInvalid, "subjects.table and subjects.id_column are required")
	}
	return nil
}
