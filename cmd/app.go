// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"strings"
	"time"

	"medquery/cli/internal/chat"
	"medquery/cli/internal/dsn"
	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/intent"
	"medquery/cli/internal/keychain"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/prompts"
	"medquery/cli/internal/retrieval"
	"medquery/cli/internal/sqlexec"
	"medquery/cli/internal/subjects"
	"medquery/cli/internal/synth"
)

// app holds the collaborators built from cfg for one command run.
type app struct {
	store   sqlexec.Store
	dialect sqlexec.Dialect
	prompts *prompts.Set
	client  llm.Client
	source  dsn.Source
}

// keychainLoader returns the keychain, or nil when secure storage is unavailable.
func keychainLoader() *keychain.Manager {
	km, err := keychain.GetManager()
	if err != nil {
		log.Debug("keychain unavailable", log.Args("error", err.Error()))
		return nil
	}
	return km
}

// openApp resolves the DSN, opens the store and loads prompts. When withLLM
// is set it also builds the text-generation client.
func openApp(ctx context.Context, withLLM bool) (*app, error) {
	km := keychainLoader()
	var loader dsn.Loader
	if km != nil {
		loader = km
	}
	raw, source, err := dsn.Resolve(cfg.DB.DSN, loader)
	if err != nil {
		if errors.Is(err, dsn.ErrNoDSN) {
			return nil, apperrors.Wrap(apperrors.StoreUnavailable, "no database connection configured", err)
		}
		return nil, err
	}

	driver := cfg.DB.Driver
	if driver == "" {
		driver = string(dsn.Detect(raw))
	}
	dialect, err := sqlexec.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	dialect, err = dialect.WithPatterns(cfg.Dialect.UnknownColumnPattern, cfg.Dialect.UnsupportedFunctionPattern)
	if err != nil {
		return nil, err
	}

	set, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := sqlexec.OpenStore(openCtx, driver, raw)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, dialect: dialect, prompts: set, source: source}

	if withLLM {
		key := cfg.LLM.APIKey
		if key == "" && km != nil {
			if v, err := km.LoadAPIKey(); err == nil {
				key = strings.TrimSpace(v)
			}
		}
		if key == "" {
			store.Close()
			return nil, apperrors.New(apperrors.ConfigInvalid, "no API key for provider "+cfg.LLM.Provider)
		}
		client, err := llm.New(ctx, llm.Config{
			Provider: cfg.LLM.Provider,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
			APIKey:   key,
		})
		if err != nil {
			store.Close()
			return nil, apperrors.Wrap(apperrors.ConfigInvalid, "cannot create text-generation client", err)
		}
		a.client = client
	}
	log.Debug("app ready", log.Args("driver", driver, "dsn_source", string(source), "provider", cfg.LLM.Provider))
	return a, nil
}

func (a *app) Close() { a.store.Close() }

func (a *app) introspector() *sqlexec.Introspector {
	return sqlexec.NewIntrospector(a.store, log)
}

func (a *app) retriever() *retrieval.Retriever {
	s := synth.New(a.client, a.prompts, a.dialect, synth.Options{
		SubjectTable:  cfg.Subjects.Table,
		SubjectColumn: cfg.Subjects.IDColumn,
		Temperature:   cfg.LLM.SynthesisTemperature,
	}, log)
	exec := sqlexec.NewExecutor(a.store, a.dialect, cfg.Pipeline.MaxRepairAttempts, log)
	return retrieval.New(a.introspector(), s, exec, log)
}

func (a *app) pipeline() *chat.Pipeline {
	return chat.NewPipeline(
		intent.New(a.client, a.prompts, cfg.LLM.ClassificationTemperature, log),
		chat.NewAssembler(a.retriever(), a.prompts, log),
		chat.NewGenerator(a.client, cfg.LLM.AnswerTemperature, log),
		log,
	)
}

func (a *app) directory() *subjects.Directory {
	return subjects.NewDirectory(a.store, subjects.Columns{
		Table:      cfg.Subjects.Table,
		ID:         cfg.Subjects.IDColumn,
		GivenName:  cfg.Subjects.GivenNameColumn,
		FamilyName: cfg.Subjects.FamilyNameColumn,
	}, a.dialect.IntegerType)
}
