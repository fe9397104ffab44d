// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the medquery CLI application.
// It answers clinical questions by generating and repairing SQL against a
// connected database.
package main

import (
	"medquery/cli/cmd"
)

// main initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
