package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/agents"
	"github.com/dyike/ThesisGo/internal/models"
)

type seedKey struct{}

// GraphRunner runs the stages as an eino graph. Every stage node hands off
// through a branch that asks NextStage for the following node, and the
// finalize node returns the accumulated local state.
type GraphRunner struct {
	*base
	runnable   compose.Runnable[string, *models.AnalysisState]
	compileErr error
	callback   *LoggerCallback
}

func NewGraphRunner(ctx context.Context, a *agents.Agents, opts ...Option) *GraphRunner {
	r := &GraphRunner{base: newBase(a, "graph", opts)}
	r.callback = NewLoggerCallback(r.log)
	r.runnable, r.compileErr = r.compile(ctx)
	if r.compileErr != nil {
		r.log.Errorf("[Graph] compile failed: %v", r.compileErr)
	}
	return r
}

func (r *GraphRunner) compile(ctx context.Context) (compose.Runnable[string, *models.AnalysisState], error) {
	g := compose.NewGraph[string, *models.AnalysisState](
		compose.WithGenLocalState(func(ctx context.Context) *models.AnalysisState {
			if s, ok := ctx.Value(seedKey{}).(*models.AnalysisState); ok {
				return s
			}
			return models.NewAnalysisState("", "")
		}),
	)

	outMap := map[string]bool{consts.NodeFinalize: true}
	for _, stage := range consts.Stages {
		outMap[consts.NodeFor(stage)] = true
	}

	for _, stage := range consts.Stages {
		node := consts.NodeFor(stage)
		if err := g.AddLambdaNode(node, compose.InvokableLambda(r.stageNode(stage)), compose.WithNodeName(node)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", node, err)
		}
	}
	if err := g.AddLambdaNode(consts.NodeFinalize, compose.InvokableLambda(r.finalizeNode), compose.WithNodeName(consts.NodeFinalize)); err != nil {
		return nil, fmt.Errorf("add node %s: %w", consts.NodeFinalize, err)
	}

	for _, stage := range consts.Stages {
		if err := g.AddBranch(consts.NodeFor(stage), compose.NewGraphBranch(stageHandOff, outMap)); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", stage, err)
		}
	}
	if err := g.AddEdge(compose.START, consts.NodeFor(NextStage(""))); err != nil {
		return nil, err
	}
	if err := g.AddEdge(consts.NodeFinalize, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx,
		compose.WithGraphName("ThesisGo-Analysis"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
}

// stageHandOff routes a finished stage to the node of the next one.
func stageHandOff(_ context.Context, completed string) (string, error) {
	return consts.NodeFor(NextStage(consts.Stage(completed))), nil
}

func (r *GraphRunner) stageNode(stage consts.Stage) func(ctx context.Context, _ string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		err := compose.ProcessState[*models.AnalysisState](ctx, func(ctx context.Context, state *models.AnalysisState) error {
			r.execute(ctx, state, stage)
			return nil
		})
		return string(stage), err
	}
}

func (r *GraphRunner) finalizeNode(ctx context.Context, _ string) (out *models.AnalysisState, err error) {
	err = compose.ProcessState[*models.AnalysisState](ctx, func(ctx context.Context, state *models.AnalysisState) error {
		r.finalize(ctx, state)
		out = state
		return nil
	})
	return out, err
}

func (r *GraphRunner) Run(ctx context.Context, company string) *models.RunReport {
	if strings.TrimSpace(company) == "" {
		return errorReport(nil, ErrNoCompany)
	}
	if err := r.ready(); err != nil {
		return errorReport(nil, err)
	}
	if r.compileErr != nil {
		return errorReport(nil, fmt.Errorf("graph compile failed: %w", r.compileErr))
	}

	state := r.newState(company)
	out, err := r.runnable.Invoke(context.WithValue(ctx, seedKey{}, state), state.Company,
		compose.WithCallbacks(r.callback))
	if err != nil {
		return errorReport(state, fmt.Errorf("graph run failed: %w", err))
	}
	return successReport(out)
}

// New picks the graph runner or the linear pipeline.
func New(ctx context.Context, useGraph bool, a *agents.Agents, opts ...Option) Runner {
	if useGraph {
		return NewGraphRunner(ctx, a, opts...)
	}
	return NewPipeline(a, opts...)
}
