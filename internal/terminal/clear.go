// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal holds small terminal helpers: hidden input and erasing
// lines that should not stay on screen.
package terminal

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const defaultWidth = 80

// linesUsed is how many rows textLength characters occupy at width columns,
// plus the row the cursor moved to when Enter was pressed.
func linesUsed(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	rows := (textLength + width - 1) / width
	if rows < 1 {
		rows = 1
	}
	return rows + 1
}

// clearSequence erases n rows upwards, leaving the cursor at the start of the
// topmost one.
func clearSequence(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("\r\x1b[2K")
		if i < n-1 {
			b.WriteString("\x1b[1A")
		}
	}
	return b.String()
}

// ClearPreviousLines erases a prompt and the line typed after it. Nothing is
// written when stdout is not a terminal, so piped output stays clean.
func ClearPreviousLines(w io.Writer, textLength int) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = defaultWidth
	}
	_, _ = io.WriteString(w, clearSequence(linesUsed(textLength, width)))
}
