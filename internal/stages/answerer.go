package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/target/marketpulse/internal/adapters/llm"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

// JobStatusAnswering is reported by tracked answering jobs. It has no entry in
// the progress table.
const JobStatusAnswering model.JobStatus = "answering"

// Answerer answers questions against the owner's latest analysis.
type Answerer struct {
	model     core.ModelClient
	workspace *Workspace
	logger    *slog.Logger
}

var _ core.Answerer = (*Answerer)(nil)

// NewAnswerer constructs an Answerer.
func NewAnswerer(client core.ModelClient, ws *Workspace, logger *slog.Logger) (*Answerer, error) {
	if client == nil || ws == nil {
		return nil, errors.New("model client and workspace are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{model: client, workspace: ws, logger: logger.With("component", "answerer")}, nil
}

// Answer checks the question and the analysis precondition, then returns the
// lazy fragment sequence. Nothing is sent to the model until the sequence is ranged.
func (a *Answerer) Answer(ctx context.Context, owner, question string) (iter.Seq2[string, error], error) {
	in := model.QuestionInput{Question: question}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	analysis, found, err := a.workspace.Latest(ctx, owner, SlotAnalysis)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(string(analysis.Data)) == "" {
		return nil, model.Precondition(msgNoAnalysis)
	}

	stream := llm.StripThinking(a.model.Stream(ctx, answerPrompt(string(analysis.Data), strings.TrimSpace(question))))
	return func(yield func(string, error) bool) {
		for frag, err := range stream {
			if err != nil {
				if ctx.Err() == nil {
					err = model.Upstream("Error answering with the model", err)
				}
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}, nil
}

// AnswerWorker is the tracked variant of answering. It drains the same
// fragment sequence into a text artifact.
type AnswerWorker struct {
	answerer core.Answerer
}

var _ core.StageWorker = (*AnswerWorker)(nil)

// NewAnswerWorker wraps an Answerer.
func NewAnswerWorker(answerer core.Answerer) *AnswerWorker {
	return &AnswerWorker{answerer: answerer}
}

func (w *AnswerWorker) Kind() model.JobKind { return model.JobKindAnswering }

func (w *AnswerWorker) Validate(input json.RawMessage) error {
	in, err := model.DecodeInput[model.QuestionInput](input)
	if err != nil {
		return err
	}
	return in.Validate()
}

func (w *AnswerWorker) Run(ctx context.Context, req model.StageRequest, progress core.ProgressReporter) (*model.Artifact, error) {
	in, err := model.DecodeInput[model.QuestionInput](req.Input)
	if err != nil {
		return nil, err
	}
	progress.Advance(ctx, JobStatusAnswering)

	seq, err := w.answerer.Answer(ctx, req.Owner, in.Question)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return nil, err
		}
		b.WriteString(frag)
	}
	return &model.Artifact{
		ContentType: "text/plain; charset=utf-8",
		FileName:    fmt.Sprintf("answer_%s.txt", req.JobID),
		Data:        []byte(b.String()),
	}, nil
}
