package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

func TestExtractRecommendation(t *testing.T) {
	assert.Equal(t, "BUY", ExtractRecommendation("We rate this a Buy."))
	assert.Equal(t, "SELL", ExtractRecommendation("sell into strength"))
	assert.Equal(t, "HOLD", ExtractRecommendation("**Hold** for now"))
	assert.Equal(t, "PENDING", ExtractRecommendation(""))
}

func TestRenderReport(t *testing.T) {
	state := models.NewAnalysisState("run-1", "Acme Corp")
	require.NoError(t, state.Record(consts.StageResearch, "Acme makes anvils.", consts.Tool_CompanyResearch))
	state.Fail(consts.StageSentiment, errors.New("boom"))
	state.Recommendation = "Hold with moderate confidence"
	state.Confidence = 20
	state.FinishedAt = state.StartedAt.Add(90 * time.Second)

	var buf bytes.Buffer
	RenderReport(&buf, &models.RunReport{Status: consts.State_Success, State: state, StepsCompleted: 1, TotalSteps: 5})
	out := buf.String()

	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "HOLD")
	assert.Contains(t, out, "Confidence: 20.0% (1/5 stages)")
	assert.Contains(t, out, "Acme makes anvils.")
	assert.Contains(t, out, "(No output)")
	assert.Contains(t, out, "Sentiment error: boom")
	assert.Contains(t, out, consts.Tool_CompanyResearch)
}

func TestRenderReportError(t *testing.T) {
	var buf bytes.Buffer
	RenderReport(&buf, &models.RunReport{Status: consts.State_Error, Error: "company name is required"})
	assert.Contains(t, buf.String(), "company name is required")
}

func TestRenderScan(t *testing.T) {
	res := &models.ScanResult{
		Timestamp:     time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		LookbackDays:  5,
		DiscoveryMode: "static",
		TopStocks: []*models.SymbolQuote{
			{Symbol: "AAA", Name: "Alpha", Price: 110, PriceChangePct: 10, Score: 12},
			{Symbol: "BBB", Name: "Beta", Price: 90, PriceChangePct: -10, Score: -8},
		},
		Insights: models.MarketInsights{
			Sentiment:       models.SentimentBullish,
			RiskLevel:       "low",
			TrendingSectors: []string{"Technology"},
			KeyObservations: []string{"Largest movers: AAA, BBB"},
		},
		Stats:     models.DiscoveryStats{StocksAnalyzed: 2, Dropped: 1},
		SourceMix: map[models.Provenance]int{consts.SourceQuoteAPI: 2},
	}

	var buf bytes.Buffer
	RenderScan(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "+10.00%")
	assert.Contains(t, out, "-10.00%")
	assert.Contains(t, out, "Sentiment: bullish")
	assert.Contains(t, out, "Trending sectors: Technology")
	assert.Contains(t, out, "quote_api=2")
	assert.Less(t, strings.Index(out, "AAA"), strings.Index(out, "BBB"))
}

func TestRenderProviders(t *testing.T) {
	var buf bytes.Buffer
	RenderProviders(&buf, nil, 0)
	assert.Contains(t, buf.String(), "No providers configured")

	buf.Reset()
	RenderProviders(&buf, []llm.ProviderStats{
		{Provider: "gemini/gemini-1.5-flash", Successes: 3, Failures: 1, LastError: "rate limit"},
	}, 0)
	out := buf.String()
	assert.Contains(t, out, "* gemini/gemini-1.5-flash")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "rate limit")
}

func TestStageProgress(t *testing.T) {
	var buf bytes.Buffer
	observe := StageProgress(&buf)
	observe(consts.StageThesis, "running")
	observe(consts.StageThesis, consts.State_Error)
	assert.Contains(t, buf.String(), "Thesis...")
	assert.Contains(t, buf.String(), "[fail]")
}

func TestWriteWrapped(t *testing.T) {
	var buf bytes.Buffer
	writeWrapped(&buf, strings.Repeat("word ", 40), "  ")
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len(line), maxWidth)
	}
}
