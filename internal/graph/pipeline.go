package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/agents"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/metrics"
	"github.com/dyike/ThesisGo/internal/models"
)

var (
	ErrNoCompany = errors.New("company name is required")
	ErrNoAgents  = errors.New("no agents configured")
)

// Runner executes one analysis run for a company.
type Runner interface {
	Run(ctx context.Context, company string) *models.RunReport
}

// Observer is told when a stage starts and how it ended. Status is one of
// "running", consts.State_Success or consts.State_Error.
type Observer func(stage consts.Stage, status string)

type Option func(*base)

func WithObserver(fn Observer) Option {
	return func(b *base) {
		b.observer = fn
	}
}

// WithConfidenceStages sets the denominator of the confidence score.
func WithConfidenceStages(n int) Option {
	return func(b *base) {
		if n > 0 {
			b.confidenceStages = n
		}
	}
}

// WithStage replaces the function run for one stage.
func WithStage(stage consts.Stage, fn agents.StageFunc) Option {
	return func(b *base) {
		b.stages[stage] = fn
	}
}

func WithRecommender(fn func(ctx context.Context, state *models.AnalysisState) string) Option {
	return func(b *base) {
		b.recommend = fn
	}
}

// WithReviser runs fn after the critique and before the recommendation. The
// confidence score is fixed before it runs.
func WithReviser(fn agents.StageFunc) Option {
	return func(b *base) {
		b.revise = fn
	}
}

// base carries what the linear pipeline and the graph runner share.
type base struct {
	stages           map[consts.Stage]agents.StageFunc
	recommend        func(ctx context.Context, state *models.AnalysisState) string
	revise           agents.StageFunc
	confidenceStages int
	observer         Observer
	log              *logger.Logger
}

func newBase(a *agents.Agents, name string, opts []Option) *base {
	b := &base{
		stages:           map[consts.Stage]agents.StageFunc{},
		confidenceStages: len(consts.Stages),
		log:              logger.Get().Named(name),
	}
	if a != nil {
		b.stages = a.Stages()
		b.recommend = a.Recommend
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *base) ready() error {
	if len(b.stages) == 0 {
		return ErrNoAgents
	}
	return nil
}

func (b *base) newState(company string) *models.AnalysisState {
	return models.NewAnalysisState(uuid.NewString(), strings.TrimSpace(company))
}

// execute runs one stage. Errors and panics are recorded on the state and
// never abort the run.
func (b *base) execute(ctx context.Context, state *models.AnalysisState, stage consts.Stage) {
	b.notify(stage, "running")
	err := b.call(ctx, state, stage)
	if err != nil {
		state.Fail(stage, err)
		metrics.StageFailures.WithLabelValues(string(stage)).Inc()
		b.log.Warnf("[%s] failed for %s: %v", stage.Title(), state.Company, err)
		b.notify(stage, consts.State_Error)
		return
	}
	b.notify(stage, consts.State_Success)
}

func (b *base) call(ctx context.Context, state *models.AnalysisState, stage consts.Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Debugf("[%s] panic: %v\n%s", stage.Title(), r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn := b.stages[stage]
	if fn == nil {
		return fmt.Errorf("no handler for stage %s", stage)
	}
	return fn(ctx, state)
}

// finalize scores the run and asks for the closing recommendation.
func (b *base) finalize(ctx context.Context, state *models.AnalysisState) {
	state.Confidence = float64(state.Completed()) / float64(b.confidenceStages) * 100
	if b.revise != nil {
		if err := b.revise(ctx, state); err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("Revision error: %v", err))
			b.log.Warnf("[Revision] skipped for %s: %v", state.Company, err)
		}
	}
	if b.recommend != nil {
		state.Recommendation = b.recommend(ctx, state)
	}
	state.FinishedAt = time.Now()
	b.log.Infof("[Orchestrator] %s finished: %d/%d stages, confidence %.1f%%, %d errors",
		state.Company, state.Completed(), len(consts.Stages), state.Confidence, len(state.Errors))
}

func (b *base) notify(stage consts.Stage, status string) {
	if b.observer != nil {
		b.observer(stage, status)
	}
}

func successReport(state *models.AnalysisState) *models.RunReport {
	return &models.RunReport{
		Status:         consts.State_Success,
		State:          state,
		StepsCompleted: state.Completed(),
		TotalSteps:     len(consts.Stages),
	}
}

func errorReport(state *models.AnalysisState, err error) *models.RunReport {
	r := &models.RunReport{
		Status:     consts.State_Error,
		Error:      err.Error(),
		State:      state,
		TotalSteps: len(consts.Stages),
	}
	if state != nil {
		r.StepsCompleted = state.Completed()
	}
	return r
}

// Pipeline runs the stages one after another in a plain loop.
type Pipeline struct {
	*base
}

func NewPipeline(a *agents.Agents, opts ...Option) *Pipeline {
	return &Pipeline{base: newBase(a, "pipeline", opts)}
}

func (p *Pipeline) Run(ctx context.Context, company string) *models.RunReport {
	if strings.TrimSpace(company) == "" {
		return errorReport(nil, ErrNoCompany)
	}
	if err := p.ready(); err != nil {
		return errorReport(nil, err)
	}

	state := p.newState(company)
	for stage := NextStage(""); stage != consts.StageEnd; stage = NextStage(stage) {
		p.execute(ctx, state, stage)
	}
	p.finalize(ctx, state)
	return successReport(state)
}
