package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GOOGLE_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY",
		"TAVILY_API_KEY", "LONGPORT_APP_KEY", "LONGPORT_APP_SECRET", "LONGPORT_ACCESS_TOKEN"} {
		t.Setenv(key, "")
	}
}

func TestBuildEngineWithoutCredentials(t *testing.T) {
	clearCredentials(t)
	cfg := config.DefaultConfigWithRoot(t.TempDir())

	e, err := BuildEngine(*cfg)
	require.NoError(t, err)
	assert.Empty(t, e.Providers())
	assert.Len(t, e.history, 1)
	assert.Equal(t, config.SearchDuckDuckGo, e.searcher.Name())

	client := e.NewClient()
	text := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("valuation please")})
	assert.Equal(t, llm.FallbackText(llm.TopicValuation), text)

	store, err := e.OpenStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(cfg.DataDir, "thesisgo.db"))
}

func TestBuildEngineRejectsInvalidConfig(t *testing.T) {
	clearCredentials(t)
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.TopN = 0

	_, err := BuildEngine(*cfg)
	assert.ErrorContains(t, err, "top_n")
}

func TestRuntimeRequiresManager(t *testing.T) {
	_, err := NewRuntime(nil)
	assert.Error(t, err)
}

func TestRuntimeRebuildsOnConfigChange(t *testing.T) {
	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	var mu sync.Mutex
	var topics []string
	fail := false
	builder := func(cfg config.Config) (*Engine, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return &Engine{Config: cfg, Version: engineSeq.Add(1)}, nil
	}
	rt, err := NewRuntime(mgr,
		WithBuilder(builder),
		WithNotifier(func(topic, _ string) {
			mu.Lock()
			topics = append(topics, topic)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	defer rt.Close()

	first := rt.Engine()
	require.NotNil(t, first)

	require.NoError(t, rt.Set("top_n", "4"))
	second := rt.Engine()
	assert.Equal(t, 4, second.Config.TopN)
	assert.Greater(t, second.Version, first.Version)

	fail = true
	require.NoError(t, rt.Set("top_n", "6"))
	assert.Same(t, second, rt.Engine())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"engine.reloaded", "engine.reloaded", "engine.reload_failed"}, topics)
}

type cannedBackend struct {
	reply string
}

func (b cannedBackend) Generate(context.Context, string, []*schema.Message, llm.Options) (string, error) {
	return b.reply, nil
}

// fallingHistory answers every symbol with two bars that lose 10%.
type fallingHistory struct {
	mu    sync.Mutex
	calls int
}

func (h *fallingHistory) Name() string { return "fake-history" }

func (h *fallingHistory) History(_ context.Context, symbol string, _, end time.Time) ([]*models.PriceBar, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return []*models.PriceBar{
		{Symbol: symbol, Date: end.AddDate(0, 0, -1), Close: decimal.NewFromInt(100), Volume: 1000},
		{Symbol: symbol, Date: end, Close: decimal.NewFromInt(90), Volume: 1000},
	}, nil
}

func (h *fallingHistory) Profile(_ context.Context, symbol string) (*models.Profile, error) {
	return &models.Profile{Symbol: symbol, Name: symbol}, nil
}

type failingSearcher struct{}

func (failingSearcher) Name() string { return "fake-search" }

func (failingSearcher) Search(context.Context, string, int) ([]*models.SearchResult, error) {
	return nil, errors.New("search offline")
}

func scanEngine(t *testing.T, reply string, history dataflows.HistoryProvider) *Engine {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.GoogleAPIKey = "test-key"
	cfg.ProviderOrder = []string{config.FamilyGemini}
	cfg.RetryDelaysSec = []int{0}
	return &Engine{
		Config:   *cfg,
		backends: map[string]llm.Backend{config.FamilyGemini: cannedBackend{reply: reply}},
		history:  []dataflows.HistoryProvider{history},
		searcher: failingSearcher{},
		log:      logger.Get(),
	}
}

func TestScanPrefersCompletionClientOverQuoteAPI(t *testing.T) {
	history := &fallingHistory{}
	e := scanEngine(t, "name: Apple Inc.\nsector: Technology\nprices: [100, 110]\nvolumes: [1000, 1200]", history)

	result, stats := e.Scan(context.Background(), ScanOptions{LookbackDays: 5, DiscoveryMode: config.DiscoveryStatic})
	require.NotNil(t, result)
	require.NotEmpty(t, result.TopStocks)

	top := result.TopStocks[0]
	assert.Equal(t, models.Provenance(consts.SourceLLM), top.Source)
	assert.InDelta(t, 10.0, top.PriceChangePct, 0.001)
	assert.Positive(t, result.SourceMix[consts.SourceLLM])
	assert.Zero(t, result.SourceMix[consts.SourceQuoteAPI])
	assert.Zero(t, history.calls)
	require.NotEmpty(t, stats)
	assert.Positive(t, stats[0].Successes)
}

func TestScanFallsBackToQuoteAPI(t *testing.T) {
	history := &fallingHistory{}
	e := scanEngine(t, "UNKNOWN", history)

	result, _ := e.Scan(context.Background(), ScanOptions{LookbackDays: 5, DiscoveryMode: config.DiscoveryStatic})
	require.NotEmpty(t, result.TopStocks)
	assert.Equal(t, models.Provenance(consts.SourceQuoteAPI), result.TopStocks[0].Source)
	assert.InDelta(t, -10.0, result.TopStocks[0].PriceChangePct, 0.001)
	assert.Zero(t, result.SourceMix[consts.SourceLLM])
	assert.Positive(t, history.calls)
}

func TestFetchChainOrder(t *testing.T) {
	e := scanEngine(t, "", &fallingHistory{})
	var got []models.Provenance
	for _, src := range e.fetchChain(llm.NewSerial(e.NewClient())) {
		got = append(got, src.Provenance())
	}
	assert.Equal(t, []models.Provenance{consts.SourceLLM, consts.SourceWebSearch, consts.SourceQuoteAPI}, got)
}

func TestAnalyzeWithRevisionKeepsFiveStageConfidence(t *testing.T) {
	e := scanEngine(t, "Buy with moderate conviction.", &fallingHistory{})
	require.NoError(t, e.Config.EnsureDirectories())

	report, _ := e.Analyze(context.Background(), "Acme", AnalyzeOptions{Revise: true})
	require.Equal(t, consts.State_Success, report.Status, report.Error)
	assert.Equal(t, "Buy with moderate conviction.", report.State.RevisedThesis())
	assert.Equal(t, 5, report.StepsCompleted)
	assert.InDelta(t, 100, report.State.Confidence, 1e-9)

	plain, _ := e.Analyze(context.Background(), "Acme", AnalyzeOptions{})
	assert.Nil(t, plain.State.Revision)
}

func TestAskAnswersFromStoredRun(t *testing.T) {
	e := scanEngine(t, "Revenue concentration is the main risk.", &fallingHistory{})
	require.NoError(t, e.Config.EnsureDirectories())

	state := models.NewAnalysisState("run-42", "Acme")
	require.NoError(t, state.Record(consts.StageThesis, "thesis text", consts.Tool_ThesisWriter))
	store, err := e.OpenStore()
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(context.Background(), &models.RunReport{
		Status: consts.State_Success, State: state, StepsCompleted: 1, TotalSteps: 5,
	}, time.Second))
	require.NoError(t, store.Close())

	answer, stats, err := e.Ask(context.Background(), "run-42", "What is the main risk?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue concentration is the main risk.", answer)
	require.NotEmpty(t, stats)
	assert.Equal(t, 1, stats[0].Successes)

	_, _, err = e.Ask(context.Background(), "missing", "anything?")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}
