package agents

import (
	"context"
	"fmt"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

// Recommend asks for a final Buy/Hold/Sell call built from short excerpts of
// every stage. It never returns an empty string.
func (a *Agents) Recommend(ctx context.Context, state *models.AnalysisState) string {
	vars := map[string]any{
		"company":    state.Company,
		"confidence": fmt.Sprintf("%.1f", state.Confidence),
	}
	for _, stage := range consts.Stages {
		vars[string(stage)] = dataflows.Truncate(state.Output(stage), summaryExcerpt)
	}

	msgs, err := a.messages(ctx, "recommendation", vars)
	if err != nil {
		return fmt.Sprintf("Recommendation generation failed: %v", err)
	}
	text := a.client.Complete(ctx, msgs, llm.WithTopic(llm.TopicGeneral))
	a.writeReport(state, "recommendation", text)
	return text
}
