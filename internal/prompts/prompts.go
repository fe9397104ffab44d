// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package prompts loads the versioned prompt templates used by the question
// pipeline. The defaults are embedded; an override file may replace any subset.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	apperrors "medquery/cli/internal/errors"
)

// Template names.
const (
	Synthesis         = "synthesis"
	FallbackGeneral   = "fallback_general"
	FallbackSubject   = "fallback_subject"
	Classification    = "classification"
	RetrievalQuestion = "retrieval_question"
	SubjectSystem     = "subject_system"
	GeneralSystem     = "general_system"
	SubjectContext    = "subject_context"
	UserMessage       = "user_message"
)

// CurrentVersion is the schema version of the prompt file format.
const CurrentVersion = 1

//go:embed default.yaml
var defaultYAML []byte

type file struct {
	Version   int               `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
}

// Set is a parsed collection of prompt templates. It is safe for concurrent use.
type Set struct {
	version int
	sources map[string]string
	tmpl    map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Default returns the embedded templates.
func Default() *Set {
	s, err := parse(defaultYAML, nil)
	if err != nil {
		panic("prompts: embedded defaults: " + err.Error())
	}
	return s
}

// Load returns the defaults overlaid with the templates in path. An empty
// path returns the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "cannot read prompts file "+path, err)
	}
	return Parse(data)
}

// Parse overlays the YAML document data on the defaults.
func Parse(data []byte) (*Set, error) {
	return parse(data, Default())
}

func parse(data []byte, base *Set) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "cannot parse prompts", err)
	}
	if f.Version < 1 || f.Version > CurrentVersion {
		return nil, apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("unsupported prompts version %d", f.Version))
	}

	s := &Set{version: f.Version, sources: map[string]string{}, tmpl: map[string]*template.Template{}}
	if base != nil {
		for name, src := range base.sources {
			s.sources[name] = src
			s.tmpl[name] = base.tmpl[name]
		}
	}
	for name, src := range f.Templates {
		t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ConfigInvalid, "template "+name, err)
		}
		s.sources[name] = src
		s.tmpl[name] = t
	}
	return s, nil
}

// Version returns the format version of the loaded document.
func (s *Set) Version() int { return s.version }

// Names lists the available templates in sorted order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.tmpl))
	for n := range s.tmpl {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render executes the named template and trims surrounding whitespace.
func (s *Set) Render(name string, data any) (string, error) {
	t, ok := s.tmpl[name]
	if !ok {
		return "", apperrors.New(apperrors.ConfigInvalid, "unknown prompt template "+name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SynthesisData feeds the synthesis template.
type SynthesisData struct {
	Schema        string
	Question      string
	Dialect       string
	Aggregate     string
	Avoid         string
	IntegerType   string
	SubjectColumn string
	SubjectID     string
}

// FallbackData feeds both fallback query templates.
type FallbackData struct {
	Table            string
	Columns          []string
	HasSubjectColumn bool
	SubjectColumn    string
	SubjectLiteral   string
	IntegerType      string
}

// ClassificationData feeds the classification template.
type ClassificationData struct {
	Question  string
	SubjectID string
}

// SubjectData feeds retrieval_question and subject_system.
type SubjectData struct {
	SubjectID string
}

// ContextData feeds subject_context.
type ContextData struct {
	SubjectID string
	Payload   string
}

// MessageData feeds user_message.
type MessageData struct {
	Context  string
	Question string
}
