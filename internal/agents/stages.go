// Package agents holds the five prompted analysis stages. Each stage formats
// its prompt, asks the completion client and records the answer on the
// shared AnalysisState.
package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/utils"
)

const (
	contextExcerpt  = 500
	thesisExcerpt   = 1000
	summaryExcerpt  = 300
	newsPageExcerpt = 800
	maxNewsPages    = 3
)

// StageFunc runs one stage against the state. Returned errors are recorded
// by the orchestrator and never stop the run.
type StageFunc func(ctx context.Context, state *models.AnalysisState) error

// Completer is the subset of llm.Client the stages need.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message, opts ...llm.Option) string
}

type Agents struct {
	client     Completer
	searcher   dataflows.Searcher
	crawler    *dataflows.Crawler
	maxSources int
	reportDir  string
	now        func() time.Time
	log        *logger.Logger
}

type Option func(*Agents)

// WithNews lets the research stage collect recent coverage before prompting.
func WithNews(searcher dataflows.Searcher, crawler *dataflows.Crawler, maxResults int) Option {
	return func(a *Agents) {
		a.searcher = searcher
		a.crawler = crawler
		if maxResults > 0 {
			a.maxSources = maxResults
		}
	}
}

// WithReportDir writes each stage output as markdown under dir.
func WithReportDir(dir string) Option {
	return func(a *Agents) {
		a.reportDir = dir
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agents) {
		if now != nil {
			a.now = now
		}
	}
}

func New(client Completer, opts ...Option) *Agents {
	a := &Agents{
		client:     client,
		maxSources: 5,
		now:        time.Now,
		log:        logger.Get().Named("agents"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stage returns the function for a stage, or nil for an unknown stage.
func (a *Agents) Stage(stage consts.Stage) StageFunc {
	switch stage {
	case consts.StageResearch:
		return a.Research
	case consts.StageSentiment:
		return a.Sentiment
	case consts.StageValuation:
		return a.Valuation
	case consts.StageThesis:
		return a.Thesis
	case consts.StageCritique:
		return a.Critique
	}
	return nil
}

// Stages returns every stage function keyed by stage.
func (a *Agents) Stages() map[consts.Stage]StageFunc {
	out := make(map[consts.Stage]StageFunc, len(consts.Stages))
	for _, s := range consts.Stages {
		out[s] = a.Stage(s)
	}
	return out
}

func (a *Agents) Research(ctx context.Context, state *models.AnalysisState) error {
	news := a.collectNews(ctx, state)
	return a.run(ctx, state, consts.StageResearch, consts.Tool_CompanyResearch, llm.TopicGeneral, map[string]any{
		"company": state.Company,
		"news":    news,
	})
}

func (a *Agents) Sentiment(ctx context.Context, state *models.AnalysisState) error {
	return a.run(ctx, state, consts.StageSentiment, consts.Tool_SentimentAnalysis, llm.TopicSentiment, map[string]any{
		"company":  state.Company,
		"research": orNone(dataflows.Truncate(state.Output(consts.StageResearch), contextExcerpt)),
	})
}

func (a *Agents) Valuation(ctx context.Context, state *models.AnalysisState) error {
	return a.run(ctx, state, consts.StageValuation, consts.Tool_Valuation, llm.TopicValuation, map[string]any{
		"company": state.Company,
	})
}

func (a *Agents) Thesis(ctx context.Context, state *models.AnalysisState) error {
	return a.run(ctx, state, consts.StageThesis, consts.Tool_ThesisWriter, llm.TopicThesis, map[string]any{
		"company":   state.Company,
		"research":  dataflows.Truncate(state.Output(consts.StageResearch), contextExcerpt),
		"sentiment": dataflows.Truncate(state.Output(consts.StageSentiment), contextExcerpt),
		"valuation": dataflows.Truncate(state.Output(consts.StageValuation), contextExcerpt),
	})
}

func (a *Agents) Critique(ctx context.Context, state *models.AnalysisState) error {
	return a.run(ctx, state, consts.StageCritique, consts.Tool_Critique, llm.TopicGeneral, map[string]any{
		"company": state.Company,
		"thesis":  dataflows.Truncate(state.Output(consts.StageThesis), thesisExcerpt),
	})
}

func (a *Agents) run(ctx context.Context, state *models.AnalysisState, stage consts.Stage, tool string, topic llm.Topic, vars map[string]any) error {
	msgs, err := a.messages(ctx, string(stage), vars)
	if err != nil {
		return err
	}

	started := a.now()
	text := a.client.Complete(ctx, msgs, llm.WithTopic(topic))
	if err := state.Record(stage, text, tool); err != nil {
		return err
	}
	a.log.Infof("[%s] completed for %s in %s", stage.Title(), state.Company, a.now().Sub(started).Round(time.Millisecond))
	a.writeReport(state, string(stage), text)
	return nil
}

// messages renders the shared system prompt and the named user prompt.
func (a *Agents) messages(ctx context.Context, name string, vars map[string]any) ([]*schema.Message, error) {
	systemTpl, err := utils.LoadPrompt("system")
	if err != nil {
		return nil, err
	}
	userTpl, err := utils.LoadPrompt(name)
	if err != nil {
		return nil, err
	}

	promptTemp := prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemTpl),
		schema.UserMessage(userTpl),
	)
	values := map[string]any{"current_date": a.now().Format("2006-01-02")}
	for k, v := range vars {
		values[k] = v
	}
	msgs, err := promptTemp.Format(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("format %s prompt: %w", name, err)
	}
	return msgs, nil
}

func (a *Agents) writeReport(state *models.AnalysisState, name, content string) {
	if a.reportDir == "" {
		return
	}
	dir := filepath.Join(a.reportDir, utils.SafePathSegment(state.Company), state.StartedAt.Format("2006-01-02"))
	if err := utils.WriteMarkdown(dir, name+".md", content); err != nil {
		a.log.Warnf("[Report] %v", err)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
