// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "without cause",
			err:  New(SchemaUnavailable, "no tables in database"),
			want: "schema_unavailable: no tables in database",
		},
		{
			name: "with cause",
			err:  Wrap(AnswerFailed, "answer generation failed", fmt.Errorf("timeout")),
			want: "answer_failed: answer generation failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsAndKindOf(t *testing.T) {
	root := stderrors.New("connection refused")
	inner := Wrap(StoreUnavailable, "cannot reach store", root)
	outer := Wrap(SchemaUnavailable, "catalog read failed", inner)
	wrapped := fmt.Errorf("retrieve: %w", outer)

	assert.True(t, Is(wrapped, SchemaUnavailable))
	assert.True(t, Is(wrapped, StoreUnavailable))
	assert.False(t, Is(wrapped, AnswerFailed))
	assert.Equal(t, SchemaUnavailable, KindOf(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))

	assert.False(t, Is(nil, SchemaUnavailable))
	assert.Equal(t, Kind(""), KindOf(root))
}
