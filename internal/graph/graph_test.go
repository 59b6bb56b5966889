package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/agents"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

// echoClient answers with the stage topic so outputs are deterministic.
type echoClient struct {
	mu    sync.Mutex
	calls int
}

func (e *echoClient) Complete(_ context.Context, msgs []*schema.Message, opts ...llm.Option) string {
	o := llm.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	prompt := msgs[len(msgs)-1].Content
	if strings.Contains(prompt, "actionable investment recommendation") {
		return "Hold"
	}
	return "output for " + string(o.Topic) + ": " + firstLine(prompt)
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func failStage(context.Context, *models.AnalysisState) error {
	return errors.New("boom")
}

func runners(t *testing.T, opts ...Option) map[string]Runner {
	t.Helper()
	a := agents.New(&echoClient{})
	gr := NewGraphRunner(context.Background(), a, opts...)
	require.NoError(t, gr.compileErr)
	return map[string]Runner{
		"pipeline": NewPipeline(a, opts...),
		"graph":    gr,
	}
}

func TestNextStage(t *testing.T) {
	cases := map[consts.Stage]consts.Stage{
		"":                    consts.StageResearch,
		"bogus":               consts.StageResearch,
		consts.StageResearch:  consts.StageSentiment,
		consts.StageSentiment: consts.StageValuation,
		consts.StageValuation: consts.StageThesis,
		consts.StageThesis:    consts.StageCritique,
		consts.StageCritique:  consts.StageEnd,
		consts.StageEnd:       consts.StageEnd,
	}
	for in, want := range cases {
		assert.Equal(t, want, NextStage(in), "after %q", in)
	}
}

func TestRunCompletesAllStages(t *testing.T) {
	for name, r := range runners(t) {
		t.Run(name, func(t *testing.T) {
			report := r.Run(context.Background(), "Acme Corp")
			require.Equal(t, consts.State_Success, report.Status, report.Error)
			state := report.State
			require.NotNil(t, state)

			assert.Equal(t, 5, report.StepsCompleted)
			assert.Equal(t, 5, report.TotalSteps)
			assert.InDelta(t, 100, state.Confidence, 1e-9)
			assert.Equal(t, "Hold", state.Recommendation)
			assert.Empty(t, state.Errors)
			assert.Equal(t, "critique_completed", state.CurrentStep)
			assert.False(t, state.FinishedAt.IsZero())
			assert.NotEmpty(t, state.RunID)
			assert.Contains(t, state.Output(consts.StageSentiment), "output for sentiment")
		})
	}
}

func TestSentimentFailureDoesNotStopRun(t *testing.T) {
	for name, r := range runners(t, WithStage(consts.StageSentiment, failStage)) {
		t.Run(name, func(t *testing.T) {
			report := r.Run(context.Background(), "Acme")
			require.Equal(t, consts.State_Success, report.Status)
			state := report.State

			assert.NotEmpty(t, state.Output(consts.StageResearch))
			assert.Empty(t, state.Output(consts.StageSentiment))
			assert.NotEmpty(t, state.Output(consts.StageValuation))
			assert.NotEmpty(t, state.Output(consts.StageThesis))
			assert.NotEmpty(t, state.Output(consts.StageCritique))
			require.Len(t, state.Errors, 1)
			assert.Equal(t, "Sentiment error: boom", state.Errors[0])
			assert.Equal(t, 4, report.StepsCompleted)
			assert.InDelta(t, 80, state.Confidence, 1e-9)
		})
	}
}

func TestPanickingStageIsRecorded(t *testing.T) {
	panics := func(context.Context, *models.AnalysisState) error { panic("nil map") }
	for name, r := range runners(t, WithStage(consts.StageValuation, panics)) {
		t.Run(name, func(t *testing.T) {
			report := r.Run(context.Background(), "Acme")
			require.Equal(t, consts.State_Success, report.Status)
			require.Len(t, report.State.Errors, 1)
			assert.Contains(t, report.State.Errors[0], "Valuation error: panic: nil map")
			assert.NotEmpty(t, report.State.Output(consts.StageCritique))
		})
	}
}

func TestPipelineAndGraphAgree(t *testing.T) {
	rs := runners(t)
	p := rs["pipeline"].Run(context.Background(), "Acme")
	g := rs["graph"].Run(context.Background(), "Acme")

	for _, stage := range consts.Stages {
		assert.Equal(t, p.State.Output(stage), g.State.Output(stage), stage)
	}
	assert.Equal(t, p.State.ToolsUsed, g.State.ToolsUsed)
	assert.Equal(t, p.State.Confidence, g.State.Confidence)
	assert.Equal(t, p.State.Recommendation, g.State.Recommendation)
}

func TestRevisionDoesNotMoveConfidence(t *testing.T) {
	a := agents.New(&echoClient{})
	for name, r := range runners(t, WithReviser(a.Revise), WithStage(consts.StageSentiment, failStage)) {
		t.Run(name, func(t *testing.T) {
			report := r.Run(context.Background(), "Acme")
			require.Equal(t, consts.State_Success, report.Status)
			state := report.State

			assert.Contains(t, state.RevisedThesis(), "output for thesis")
			assert.Equal(t, 4, report.StepsCompleted)
			assert.Equal(t, 5, report.TotalSteps)
			assert.InDelta(t, 80, state.Confidence, 1e-9)
			assert.Contains(t, state.ToolsUsed, consts.Tool_ThesisRevision)
			assert.Equal(t, "Hold", state.Recommendation)
		})
	}
}

func TestRevisionFailureIsRecorded(t *testing.T) {
	a := agents.New(&echoClient{})
	r := NewPipeline(a, WithReviser(a.Revise), WithStage(consts.StageCritique, failStage))
	report := r.Run(context.Background(), "Acme")
	require.Equal(t, consts.State_Success, report.Status)
	assert.Nil(t, report.State.Revision)
	assert.Contains(t, report.State.Errors, "Revision error: "+agents.ErrNothingToRevise.Error())
	assert.InDelta(t, 80, report.State.Confidence, 1e-9)
}

func TestConfidenceDenominatorIsConfigurable(t *testing.T) {
	r := NewPipeline(agents.New(&echoClient{}), WithConfidenceStages(10))
	report := r.Run(context.Background(), "Acme")
	assert.InDelta(t, 50, report.State.Confidence, 1e-9)
}

func TestObserverSeesEveryStage(t *testing.T) {
	var mu sync.Mutex
	events := map[consts.Stage][]string{}
	observe := func(stage consts.Stage, status string) {
		mu.Lock()
		events[stage] = append(events[stage], status)
		mu.Unlock()
	}
	for name, r := range runners(t, WithObserver(observe), WithStage(consts.StageThesis, failStage)) {
		t.Run(name, func(t *testing.T) {
			events = map[consts.Stage][]string{}
			r.Run(context.Background(), "Acme")
			assert.Equal(t, []string{"running", consts.State_Success}, events[consts.StageResearch])
			assert.Equal(t, []string{"running", consts.State_Error}, events[consts.StageThesis])
			assert.Len(t, events, 5)
		})
	}
}

func TestSetupFailuresReportError(t *testing.T) {
	for name, r := range runners(t) {
		t.Run(name, func(t *testing.T) {
			report := r.Run(context.Background(), "   ")
			assert.Equal(t, consts.State_Error, report.Status)
			assert.Equal(t, ErrNoCompany.Error(), report.Error)
		})
	}

	report := NewPipeline(nil).Run(context.Background(), "Acme")
	assert.Equal(t, consts.State_Error, report.Status)
	assert.Equal(t, ErrNoAgents.Error(), report.Error)
}

func TestNewPicksRunner(t *testing.T) {
	a := agents.New(&echoClient{})
	_, isGraph := New(context.Background(), true, a).(*GraphRunner)
	assert.True(t, isGraph)
	_, isPipeline := New(context.Background(), false, a).(*Pipeline)
	assert.True(t, isPipeline)
}
