// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"medquery/cli/internal/chat"
	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/xdg"
)

var (
	askSubject     string
	askHistoryFile string
	askContinue    bool
	askShowContext bool
)

// askCmd runs the full pipeline for one question.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a clinical question using the connected database",
	Long: `The ask command classifies the question, retrieves the subject's data when the
question is about a specific subject, and prints the generated answer.

Prior turns can be supplied with --history (a JSON array of {"role","content"}) or
kept across invocations with --continue, which stores the conversation in the XDG
state directory.`,
	Example: `  medquery ask "What is hypertension?"
  medquery ask --subject 42 "What is their current diagnosis?"
  medquery ask --subject 42 --continue "And the treatment?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return apperrors.New(apperrors.InvalidRequest, "question is required")
		}

		history, err := loadHistory()
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		prog := startProgress("Classifying question")
		resp, err := a.pipeline().Ask(cmd.Context(), chat.Request{
			Question:  question,
			SubjectID: askSubject,
			History:   history,
			Observe: func(e chat.Event) {
				switch e.Stage {
				case chat.StageRetrieving:
					prog.Set("Retrieving data for subject " + e.Detail)
				case chat.StageRepairing:
					prog.Set(fmt.Sprintf("Repairing query (attempt %d)", e.Attempt))
				case chat.StageAnswering:
					prog.Set("Generating answer")
				}
			},
		})
		prog.Stop()
		if err != nil {
			pterm.Println("❌ Could not answer the question")
			pterm.Println(logging.PresentError("   error", err))
			return err
		}

		if askShowContext && resp.ContextBlock != "" {
			if resp.Query != "" {
				printBox("Query", pterm.FgLightBlue, resp.Query)
			}
			printBox("Context", pterm.FgLightBlue, resp.ContextBlock)
		}
		printBox("Answer", pterm.FgGreen, resp.Answer)
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("label: %s · request: %s", resp.Label, resp.RequestID))

		if askContinue {
			history = append(history,
				chat.Turn{Role: chat.RoleUser, Content: question},
				chat.Turn{Role: chat.RoleAssistant, Content: resp.Answer},
			)
			if err := saveTranscript(history); err != nil {
				pterm.Warning.Printf("Could not save the conversation: %v\n", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askSubject, "subject", "s", "", "Subject (patient) id the question is about")
	askCmd.Flags().StringVar(&askHistoryFile, "history", "", "JSON file with prior conversation turns")
	askCmd.Flags().BoolVarP(&askContinue, "continue", "c", false, "Continue the saved conversation and append this exchange")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "Print the executed query and retrieved context")
	askCmd.MarkFlagsMutuallyExclusive("history", "continue")
}

func transcriptPath() (string, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// loadHistory reads turns from --history or, with --continue, the saved transcript.
func loadHistory() ([]chat.Turn, error) {
	path := askHistoryFile
	if askContinue {
		p, err := transcriptPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if askContinue && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.InvalidRequest, "cannot read history "+path, err)
	}
	var turns []chat.Turn
	if err := json.Unmarshal(b, &turns); err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidRequest, "history must be a JSON array of {role, content}", err)
	}
	return turns, nil
}

func saveTranscript(turns []chat.Turn) error {
	p, err := transcriptPath()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
