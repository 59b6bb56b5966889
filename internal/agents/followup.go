package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

const (
	revisionExcerpt = 2000
	answerExcerpt   = 1200
)

var (
	ErrNothingToRevise = errors.New("thesis and critique output are required for a revision")
	ErrAlreadyRevised  = errors.New("thesis already revised")
	ErrEmptyQuestion   = errors.New("question is required")
	ErrNoFindings      = errors.New("run has no stage output to answer from")
)

// Revise rewrites the thesis against the critique and stores the result on
// state.Revision. Stage outputs are left untouched.
func (a *Agents) Revise(ctx context.Context, state *models.AnalysisState) error {
	thesis := state.Output(consts.StageThesis)
	critique := state.Output(consts.StageCritique)
	if thesis == "" || critique == "" {
		return ErrNothingToRevise
	}
	if state.Revision != nil {
		return ErrAlreadyRevised
	}

	msgs, err := a.messages(ctx, consts.RevisionKey, map[string]any{
		"company":  state.Company,
		"thesis":   dataflows.Truncate(thesis, revisionExcerpt),
		"critique": dataflows.Truncate(critique, revisionExcerpt),
	})
	if err != nil {
		return err
	}

	text := a.client.Complete(ctx, msgs, llm.WithTopic(llm.TopicThesis))
	state.Revision = &models.StageOutput{Content: text, Timestamp: a.now()}
	state.ToolsUsed = append(state.ToolsUsed, consts.Tool_ThesisRevision)
	a.log.Infof("[Revision] thesis revised for %s", state.Company)
	a.writeReport(state, consts.RevisionKey, text)
	return nil
}

// Answer replies to a follow-up question from the recorded outputs of a run.
func (a *Agents) Answer(ctx context.Context, state *models.AnalysisState, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if state == nil || (state.Completed() == 0 && state.RevisedThesis() == "") {
		return "", ErrNoFindings
	}

	vars := map[string]any{
		"company":        state.Company,
		"question":       question,
		"confidence":     fmt.Sprintf("%.1f", state.Confidence),
		"recommendation": orNone(dataflows.Truncate(state.Recommendation, answerExcerpt)),
		"revision":       orNone(dataflows.Truncate(state.RevisedThesis(), answerExcerpt)),
	}
	for _, stage := range consts.Stages {
		vars[string(stage)] = orNone(dataflows.Truncate(state.Output(stage), answerExcerpt))
	}

	msgs, err := a.messages(ctx, "answer", vars)
	if err != nil {
		return "", err
	}
	return a.client.Complete(ctx, msgs, llm.WithTopic(llm.TopicGeneral)), nil
}
