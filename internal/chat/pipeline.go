// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package chat answers one clinical question: classify it, assemble context
// (running retrieval for subject-scoped questions), and generate the answer.
//
// A request moves through these stages:
//
//	received -> classifying -> [retrieving -> repairing(0..n)] -> answering -> done
//
// Classification and answer failures end in failed. Retrieval never fails a
// request; its failure text becomes the context payload.
package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/intent"
	"medquery/cli/internal/logging"
)

// Stage is a pipeline state.
type Stage string

const (
	StageReceived    Stage = "received"
	StageClassifying Stage = "classifying"
	StageRetrieving  Stage = "retrieving"
	StageRepairing   Stage = "repairing"
	StageAnswering   Stage = "answering"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Event reports one transition.
type Event struct {
	RequestID string
	Stage     Stage
	// Attempt is the repair number for StageRepairing, starting at 1.
	Attempt int
	Detail  string
}

// Observer receives transitions in order. It runs on the request goroutine.
type Observer func(Event)

// Request is one question.
type Request struct {
	Question  string
	SubjectID string
	History   []Turn
	// Observe is optional.
	Observe Observer
}

// Response is the answer to one Request.
type Response struct {
	Answer       string
	Label        intent.Label
	ContextBlock string
	RequestID    string
	// Query is the last executed query when retrieval ran.
	Query string
	// Attempts counts executions during retrieval.
	Attempts int
}

// Classifier labels questions.
type Classifier interface {
	Classify(ctx context.Context, question, subjectID string) (intent.Label, error)
}

// Pipeline wires the components. It holds no per-request state.
type Pipeline struct {
	classifier Classifier
	assembler  *Assembler
	generator  *Generator
	log        *pterm.Logger
}

func NewPipeline(classifier Classifier, assembler *Assembler, generator *Generator, log *pterm.Logger) *Pipeline {
	return &Pipeline{classifier: classifier, assembler: assembler, generator: generator, log: logging.OrDiscard(log)}
}

// Ask runs one request to completion.
func (p *Pipeline) Ask(ctx context.Context, req Request) (Response, error) {
	resp := Response{RequestID: uuid.NewString()}
	emit := func(st Stage, attempt int, detail string) {
		p.log.Debug("stage", p.log.Args("request_id", resp.RequestID, "stage", string(st), "attempt", attempt))
		if req.Observe != nil {
			req.Observe(Event{RequestID: resp.RequestID, Stage: st, Attempt: attempt, Detail: detail})
		}
	}
	fail := func(err error) (Response, error) {
		p.log.Error("request failed", p.log.Args("request_id", resp.RequestID, "error", logging.Mask(err.Error())))
		emit(StageFailed, 0, logging.Mask(err.Error()))
		return resp, err
	}

	question := strings.TrimSpace(req.Question)
	subjectID := strings.TrimSpace(req.SubjectID)
	emit(StageReceived, 0, question)
	if question == "" {
		return fail(apperrors.New(apperrors.InvalidRequest, "empty message"))
	}
	p.log.Info("request received", p.log.Args("request_id", resp.RequestID, "subject_id", subjectID, "history", len(req.History)))

	emit(StageClassifying, 0, "")
	label, err := p.classifier.Classify(ctx, question, subjectID)
	if err != nil {
		return fail(err)
	}
	resp.Label = label
	p.log.Info("question classified", p.log.Args("request_id", resp.RequestID, "label", string(label)))

	if label == intent.SubjectScoped && subjectID != "" {
		emit(StageRetrieving, 0, subjectID)
	}
	asm, err := p.assembler.AssembleWith(ctx, question, subjectID, label, req.History, func(n int, q string) {
		if n > 1 {
			emit(StageRepairing, n-1, q)
		}
	})
	if err != nil {
		return fail(err)
	}
	resp.ContextBlock = asm.ContextBlock
	if asm.Retrieval != nil {
		resp.Query = asm.Retrieval.Query
		resp.Attempts = asm.Retrieval.Attempts
	}

	emit(StageAnswering, 0, "")
	answer, err := p.generator.Generate(ctx, asm.Messages)
	if err != nil {
		return fail(err)
	}
	resp.Answer = answer
	emit(StageDone, 0, "")
	p.log.Info("request answered", p.log.Args("request_id", resp.RequestID, "label", string(label)))
	return resp, nil
}
