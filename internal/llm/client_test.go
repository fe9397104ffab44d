// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, in := range []string{"user", " Assistant ", "SYSTEM"} {
		_, err := ParseRole(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseRole("tool")
	assert.Error(t, err)
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "general"}}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL, "gpt-4o-mini")
	out, err := c.Complete(context.Background(), []Message{
		User("earlier question"),
		Assistant("earlier answer"),
		System("be brief"),
		User("What is hypertension?"),
	}, 0.3)
	require.NoError(t, err)
	assert.Equal(t, "general", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-9)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "assistant", "system", "user"}, roles)
}

func TestOpenAIClient_NoRetryOnServerError(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("sk-test", srv.URL, "m").Complete(context.Background(), []Message{User("q")}, 0.7)
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("sk-test", srv.URL, "m").Complete(context.Background(), []Message{User("q")}, 0.3)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGeminiClient_Complete(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"subject_scoped"}]}}]}`)
	}))
	defer srv.Close()

	c, err := NewGemini(context.Background(), "test-key", srv.URL, "gemini-2.0-flash")
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{
		System("classify"),
		User("what is their diagnosis?"),
	}, 0.3)
	require.NoError(t, err)
	assert.Equal(t, "subject_scoped", out)
	assert.Contains(t, path, "gemini-2.0-flash:generateContent")
	assert.Contains(t, got, "systemInstruction")
	contents, ok := got["contents"].([]any)
	require.True(t, ok)
	assert.Len(t, contents, 1)
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: "openai", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = New(context.Background(), Config{Provider: "openai"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "claude-direct", APIKey: "k"})
	assert.Error(t, err)
}
