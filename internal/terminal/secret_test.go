// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"strings"
	"testing"
)

func TestReadLine_TrimsInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  sqlite:///tmp/a.db \n", want: "sqlite:///tmp/a.db"},
		{in: "no newline", want: "no newline"},
		{in: "", want: ""},
		{in: "first\nsecond\n", want: "first"},
	}
	for _, tt := range tests {
		got, err := readLine(strings.NewReader(tt.in))
		if err != nil {
			t.Fatalf("readLine(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("readLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
