// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	apperrors "medquery/cli/internal/errors"
)

var querySubject string

// queryCmd runs only the retrieval chain and prints the rows.
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Generate, repair and run a SQL query for a question",
	Long: `The query command turns a question into a read-only SELECT, executes it with
automatic repair of unknown columns and unsupported aggregates, and prints the
final query and its rows. No answer is generated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return apperrors.New(apperrors.InvalidRequest, "question is required")
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		prog := startProgress("Generating query")
		ret := a.retriever().Retrieve(cmd.Context(), question, querySubject, func(n int, _ string) {
			if n > 1 {
				prog.Set(fmt.Sprintf("Repairing query (attempt %d)", n-1))
			} else {
				prog.Set("Running query")
			}
		})
		prog.Stop()

		if ret.Query != "" {
			printBox("Query", pterm.FgLightBlue, ret.Query)
		}
		if !ret.OK() {
			pterm.Warning.Println(ret.Payload)
			return ret.Err
		}
		if ret.Result.Empty() {
			pterm.Info.Println(ret.Payload)
			return nil
		}
		if err := renderResult(ret.Result); err != nil {
			return err
		}
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("%d rows · %d attempt(s)", len(ret.Result.Rows), ret.Attempts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&querySubject, "subject", "s", "", "Restrict rows to this subject (patient) id")
}
