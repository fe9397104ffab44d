// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm is the text-generation collaborator of the question pipeline:
// a stateless call taking role-tagged messages and a sampling temperature and
// returning one completion.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role tags a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown message role %q", s)
	}
}

// Message is one entry of the conversation sent to the provider.
type Message struct {
	Role    Role
	Content string
}

// System, User and Assistant build messages.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client produces one completion per call. Implementations do not retry.
type Client interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("provider returned no completion")
