package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/agents"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/graph"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/market"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
)

// Engine holds everything built from one configuration snapshot. Completion
// clients are not shared: every analysis and scan gets a fresh one.
type Engine struct {
	Config  config.Config
	BuiltAt time.Time
	Version uint64

	backends map[string]llm.Backend
	history  []dataflows.HistoryProvider
	searcher dataflows.Searcher
	crawler  *dataflows.Crawler
	log      *logger.Logger
}

var engineSeq atomic.Uint64

func BuildEngine(cfg config.Config) (*Engine, error) {
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	log := logger.Get().Named("engine")
	e := &Engine{
		Config:   cfg,
		BuiltAt:  time.Now(),
		Version:  engineSeq.Add(1),
		backends: llm.BackendsFromConfig(context.Background(), &cfg),
		searcher: dataflows.NewSearcher(&cfg),
		crawler:  dataflows.NewCrawler(&cfg),
		log:      log,
	}

	e.history = append(e.history, dataflows.NewYahooFinanceClient(&cfg))
	if cfg.HasLongport() {
		lp, err := dataflows.NewLongportClient(&cfg)
		if err != nil {
			log.Warnf("[Engine] longport unavailable, continuing with yahoo only: %v", err)
		} else {
			e.history = append(e.history, lp)
		}
	}
	log.Debugf("[Engine] v%d built: %d backend(s), search=%s, history=%d source(s)",
		e.Version, len(e.backends), e.searcher.Name(), len(e.history))
	return e, nil
}

// NewClient returns a fresh completion client with its own rotation index.
func (e *Engine) NewClient() *llm.Client {
	return llm.NewClientFromConfig(&e.Config, e.backends)
}

// Settings returns the configuration snapshot the engine was built from.
func (e *Engine) Settings() config.Config {
	return e.Config
}

// Providers lists the registry a new client would walk.
func (e *Engine) Providers() []llm.ProviderID {
	return llm.BuildRegistry(e.Config.Credentials(), e.Config.ProviderOrder, e.Config.FamilyModels)
}

type AnalyzeOptions struct {
	UseGraph    bool
	SaveReports bool
	// Revise rewrites the thesis against the critique before the
	// recommendation is asked for.
	Revise   bool
	Observer graph.Observer
}

// Analyze runs the five-stage pipeline for one company. The returned stats
// belong to the client used for this run only.
func (e *Engine) Analyze(ctx context.Context, company string, opts AnalyzeOptions) (*models.RunReport, []llm.ProviderStats) {
	client := e.NewClient()

	agentOpts := []agents.Option{
		agents.WithNews(e.searcher, e.crawler, e.Config.MaxSearchItems),
	}
	if opts.SaveReports {
		agentOpts = append(agentOpts, agents.WithReportDir(e.Config.ResultsDir))
	}
	a := agents.New(client, agentOpts...)

	runOpts := []graph.Option{graph.WithConfidenceStages(e.Config.ConfidenceStageCount)}
	if opts.Observer != nil {
		runOpts = append(runOpts, graph.WithObserver(opts.Observer))
	}
	if opts.Revise {
		runOpts = append(runOpts, graph.WithReviser(a.Revise))
	}
	runner := graph.New(ctx, opts.UseGraph, a, runOpts...)

	e.log.Infof("[Engine] analyzing %q (graph=%t, revise=%t)", company, opts.UseGraph, opts.Revise)
	report := runner.Run(ctx, company)
	return report, client.Stats()
}

type ScanOptions struct {
	LookbackDays  int
	TopN          int
	DiscoveryMode string
}

// Scan builds the fetch chain and runs the scanner over the configured
// universe.
func (e *Engine) Scan(ctx context.Context, opts ScanOptions) (*models.ScanResult, []llm.ProviderStats) {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = e.Config.LookbackDays
	}
	if opts.TopN <= 0 {
		opts.TopN = e.Config.TopN
	}
	if opts.DiscoveryMode == "" {
		opts.DiscoveryMode = e.Config.DiscoveryMode
	}

	client := llm.NewSerial(e.NewClient())
	scanOpts := []market.ScannerOption{
		market.WithWorkers(e.Config.MaxWorkers),
		market.WithTopN(opts.TopN),
	}
	if opts.DiscoveryMode == config.DiscoveryLLM {
		scanOpts = append(scanOpts, market.WithDiscoverer(market.NewLLMDiscoverer(client, 0)))
	}

	scanner := market.NewScanner(market.NewFetcher(e.fetchChain(client)...), scanOpts...)
	return scanner.Scan(ctx, opts.LookbackDays), client.Stats()
}

// fetchChain orders the sources the fetcher tries: the completion client,
// then web search, then each quote API.
func (e *Engine) fetchChain(client market.Completer) []market.Source {
	sources := make([]market.Source, 0, len(e.history)+2)
	sources = append(sources,
		market.NewLLMSource(client, nil),
		market.NewSearchSource(e.searcher, nil),
	)
	for _, h := range e.history {
		sources = append(sources, market.NewHistorySource(h))
	}
	return sources
}

// Ask answers a follow-up question about a stored run from its recorded
// stage outputs.
func (e *Engine) Ask(ctx context.Context, runID, question string) (string, []llm.ProviderStats, error) {
	store, err := e.OpenStore()
	if err != nil {
		return "", nil, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	report, err := store.GetRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}

	client := e.NewClient()
	answer, err := agents.New(client).Answer(ctx, report.State, question)
	if err != nil {
		return "", nil, err
	}
	e.log.Infof("[Engine] answered follow-up on run %s", runID)
	return answer, client.Stats(), nil
}

// OpenStore opens the run history database. Callers close it.
func (e *Engine) OpenStore() (*sqlite.Store, error) {
	return sqlite.Open(e.Config.DBPath)
}
