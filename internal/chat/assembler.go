// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/intent"
	"medquery/cli/internal/llm"
	"medquery/cli/internal/logging"
	"medquery/cli/internal/prompts"
	"medquery/cli/internal/retrieval"
	"medquery/cli/internal/sqlexec"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one prior message supplied by the caller.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Retriever runs the retrieval chain for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question, subjectID string, onAttempt sqlexec.AttemptFunc) retrieval.Retrieval
}

// Assembly is the message list handed to the Generator.
type Assembly struct {
	Messages []llm.Message
	// ContextBlock is the rendered retrieved data, empty for general questions.
	ContextBlock string
	// Retrieval is set when the retrieval chain ran.
	Retrieval *retrieval.Retrieval
}

// Assembler builds the final message list for one request.
type Assembler struct {
	retriever Retriever
	prompts   *prompts.Set
	log       *pterm.Logger
}

// NewAssembler creates an Assembler. A nil prompt set uses the embedded defaults.
func NewAssembler(retriever Retriever, set *prompts.Set, log *pterm.Logger) *Assembler {
	if set == nil {
		set = prompts.Default()
	}
	return &Assembler{retriever: retriever, prompts: set, log: logging.OrDiscard(log)}
}

// Assemble builds the messages for question.
func (a *Assembler) Assemble(ctx context.Context, question, subjectID string, label intent.Label, prior []Turn) (Assembly, error) {
	return a.AssembleWith(ctx, question, subjectID, label, prior, nil)
}

// AssembleWith is Assemble with an observer for repair attempts.
//
// A subject-scoped question with a subject id runs retrieval and uses the
// subject instruction; anything else uses the general instruction with no
// context. The order is prior turns, the instruction, then the user message.
func (a *Assembler) AssembleWith(ctx context.Context, question, subjectID string, label intent.Label, prior []Turn, onAttempt sqlexec.AttemptFunc) (Assembly, error) {
	msgs := make([]llm.Message, 0, len(prior)+2)
	for i, t := range prior {
		role, err := llm.ParseRole(string(t.Role))
		if err != nil {
			return Assembly{}, apperrors.Wrap(apperrors.InvalidRequest, fmt.Sprintf("history entry %d", i), err)
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}

	var out Assembly
	subjectID = strings.TrimSpace(subjectID)
	var system string
	var err error
	if label == intent.SubjectScoped && subjectID != "" {
		system, err = a.prompts.Render(prompts.SubjectSystem, prompts.SubjectData{SubjectID: subjectID})
		if err != nil {
			return Assembly{}, err
		}
		rq, err := a.prompts.Render(prompts.RetrievalQuestion, prompts.SubjectData{SubjectID: subjectID})
		if err != nil {
			return Assembly{}, err
		}
		ret := a.retriever.Retrieve(ctx, rq, subjectID, onAttempt)
		if ret.Err != nil {
			a.log.Warn("retrieval degraded", a.log.Args("subject_id", subjectID, "error", logging.Mask(ret.Err.Error())))
		}
		out.Retrieval = &ret
		out.ContextBlock, err = a.prompts.Render(prompts.SubjectContext, prompts.ContextData{SubjectID: subjectID, Payload: ret.Payload})
		if err != nil {
			return Assembly{}, err
		}
	} else {
		system, err = a.prompts.Render(prompts.GeneralSystem, nil)
		if err != nil {
			return Assembly{}, err
		}
	}

	user, err := a.prompts.Render(prompts.UserMessage, prompts.MessageData{Context: out.ContextBlock, Question: question})
	if err != nil {
		return Assembly{}, err
	}
	out.Messages = append(msgs, llm.System(system), llm.User(user))
	return out, nil
}
