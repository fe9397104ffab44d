// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:     "subjects",
	Aliases: []string{"patients"},
	Short:   "List the subjects (patients) questions can be scoped to",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.directory().List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			pterm.Info.Println("No subjects found in " + cfg.Subjects.Table)
			return nil
		}
		data := pterm.TableData{{"ID", "Given name", "Family name"}}
		for _, s := range list {
			data = append(data, []string{s.ID, s.GivenName, s.FamilyName})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(subjectsCmd)
}
