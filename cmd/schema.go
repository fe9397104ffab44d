// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	schemaJSON bool
	schemaText bool
)

// schemaCmd prints the introspected schema.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the tables, columns and relations of the connected database",
	Long: `The schema command introspects the connected database the same way each question
does: base tables only, columns in declared order, and outgoing foreign keys.
Use --text to print the exact rendering embedded in prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.introspector().Introspect(cmd.Context())
		if err != nil {
			return err
		}

		switch {
		case schemaJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		case schemaText:
			fmt.Println(s.Render())
			return nil
		}

		var items pterm.LeveledList
		for _, name := range s.TableNames() {
			t := s.Tables[name]
			items = append(items, pterm.LeveledListItem{Level: 0, Text: pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(name)})
			for _, c := range t.Columns {
				items = append(items, pterm.LeveledListItem{Level: 1, Text: c})
			}
			for _, fk := range t.ForeignKeys {
				items = append(items, pterm.LeveledListItem{
					Level: 1,
					Text:  pterm.NewStyle(pterm.FgLightBlue).Sprintf("%s → %s.%s", fk.From, fk.ToTable, fk.ToColumn),
				})
			}
		}
		return pterm.DefaultTree.WithRoot(pterm.NewTreeFromLeveledList(items)).Render()
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Print the schema as JSON")
	schemaCmd.Flags().BoolVar(&schemaText, "text", false, "Print the prompt rendering of the schema")
	schemaCmd.MarkFlagsMutuallyExclusive("json", "text")
}
