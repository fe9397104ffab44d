// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"medquery/cli/internal/llm"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Call records one Complete invocation.
type Call struct {
	Messages    []llm.Message
	Temperature float64
}

// ErrExhausted is returned when the script runs out and no Handler is set.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Fake answers from Script in order, then from Handler when set.
type Fake struct {
	mu      sync.Mutex
	Script  []Reply
	Handler func(Call) (string, error)
	calls   []Call
}

// New returns a Fake that replies with texts in order.
func New(texts ...string) *Fake {
	f := &Fake{}
	for _, t := range texts {
		f.Script = append(f.Script, Reply{Text: t})
	}
	return f
}

// Complete implements llm.Client.
func (f *Fake) Complete(_ context.Context, messages []llm.Message, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Messages: append([]llm.Message(nil), messages...), Temperature: temperature}
	f.calls = append(f.calls, call)

	if len(f.Script) > 0 {
		r := f.Script[0]
		f.Script = f.Script[1:]
		return r.Text, r.Err
	}
	if f.Handler != nil {
		return f.Handler(call)
	}
	return "", ErrExhausted
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastUserMessage returns the content of the last user message of call i.
func (f *Fake) LastUserMessage(i int) string {
	calls := f.Calls()
	if i < 0 || i >= len(calls) {
		return ""
	}
	msgs := calls[i].Messages
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == llm.RoleUser {
			return msgs[j].Content
		}
	}
	return ""
}
