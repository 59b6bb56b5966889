package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/metrics"
	"github.com/dyike/ThesisGo/internal/models"
)

// Series is the raw window a source returns for one symbol.
type Series struct {
	Name    string
	Sector  string
	Closes  []float64
	Volumes []float64
}

// Source is one step of the fetch chain.
type Source interface {
	Provenance() models.Provenance
	Series(ctx context.Context, m Member, lookbackDays int) (*Series, error)
}

// Fetcher tries its sources in order and keeps the first one that yields at
// least two observations.
type Fetcher struct {
	sources []Source
	log     *logger.Logger
}

func NewFetcher(sources ...Source) *Fetcher {
	return &Fetcher{sources: sources, log: logger.Get().Named("fetcher")}
}

// Fetch returns the validated quote for symbol, or false when every source
// came back empty or invalid.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, lookbackDays int) (*models.SymbolQuote, bool) {
	return f.FetchMember(ctx, Member{Symbol: symbol, Kind: KindStock}, lookbackDays)
}

func (f *Fetcher) FetchMember(ctx context.Context, m Member, lookbackDays int) (*models.SymbolQuote, bool) {
	for _, src := range f.sources {
		if ctx.Err() != nil {
			break
		}
		series, err := src.Series(ctx, m, lookbackDays)
		if err != nil {
			f.log.Debugf("[Fetcher] %s via %s: %v", m.Symbol, src.Provenance(), err)
			continue
		}
		if series == nil || len(series.Closes) < 2 {
			f.log.Debugf("[Fetcher] %s via %s: %v", m.Symbol, src.Provenance(), ErrTooFewObservations)
			continue
		}
		q := BuildQuote(m, series, src.Provenance())
		metrics.QuotesFetched.WithLabelValues(string(q.Source)).Inc()
		return q, true
	}
	metrics.SymbolsDropped.Inc()
	f.log.Debugf("[Fetcher] %s dropped: no source produced two observations", m.Symbol)
	return nil, false
}

// BuildQuote computes the quote metrics from a validated series. Only stocks
// carry a volume trend; sectors and indices score with a neutral trend.
func BuildQuote(m Member, s *Series, source models.Provenance) *models.SymbolQuote {
	change, pct := PriceChange(s.Closes)
	vol := Volatility(s.Closes)
	vt := 0.0
	if m.Kind == KindStock || m.Kind == "" {
		vt = VolumeTrend(s.Volumes)
	}

	name := m.Name
	if name == "" {
		name = s.Name
	}
	if name == "" {
		name = m.Symbol
	}
	sector := m.Sector
	if sector == "" {
		sector = s.Sector
	}

	return &models.SymbolQuote{
		Symbol:         m.Symbol,
		Name:           name,
		Sector:         sector,
		Price:          round2(s.Closes[len(s.Closes)-1]),
		PriceChange:    round2(change),
		PriceChangePct: round2(pct),
		Volatility:     round2(vol),
		VolumeTrend:    round2(vt),
		Observations:   len(s.Closes),
		Source:         source,
		Score:          PerformanceScore(pct, vol, vt),
	}
}

// HistorySource reads the quote API directly. The window reaches back five
// extra calendar days so weekends still leave enough sessions.
type HistorySource struct {
	provider dataflows.HistoryProvider
	now      func() time.Time
}

func NewHistorySource(p dataflows.HistoryProvider) *HistorySource {
	return &HistorySource{provider: p, now: time.Now}
}

func (h *HistorySource) Provenance() models.Provenance { return consts.SourceQuoteAPI }

func (h *HistorySource) Series(ctx context.Context, m Member, lookbackDays int) (*Series, error) {
	end := h.now()
	start := end.AddDate(0, 0, -(lookbackDays + 5))
	bars, err := h.provider.History(ctx, m.Symbol, start, end)
	if err != nil {
		return nil, err
	}
	s := &Series{}
	hasVolume := false
	for _, b := range bars {
		if b == nil {
			continue
		}
		c, _ := b.Close.Float64()
		if c <= 0 {
			continue
		}
		s.Closes = append(s.Closes, c)
		s.Volumes = append(s.Volumes, float64(b.Volume))
		if b.Volume > 0 {
			hasVolume = true
		}
	}
	if !hasVolume {
		s.Volumes = nil
	}
	if (m.Name == "" || m.Sector == "") && len(s.Closes) >= 2 {
		if p, err := h.provider.Profile(ctx, m.Symbol); err == nil && p != nil {
			s.Name = p.Name
			s.Sector = p.Sector
		}
		if s.Sector == "" {
			s.Sector = KnownSector(m.Symbol)
		}
	}
	return s, nil
}

const fetchPromptTemplate = `Report the daily closing prices and trading volumes of %s for the last %d trading sessions, oldest first.
Answer only with this block, using plain numbers without thousands separators:
name: <company name>
sector: <sector>
prices: [p1, p2, ...]
volumes: [v1, v2, ...]`

// LLMSource asks the completion client for the series and parses the answer.
type LLMSource struct {
	client    Completer
	extractor Extractor
}

func NewLLMSource(client Completer, extractor Extractor) *LLMSource {
	if extractor == nil {
		extractor = RegexExtractor{}
	}
	return &LLMSource{client: client, extractor: extractor}
}

func (l *LLMSource) Provenance() models.Provenance { return consts.SourceLLM }

func (l *LLMSource) Series(ctx context.Context, m Member, lookbackDays int) (*Series, error) {
	msgs := []*schema.Message{
		schema.SystemMessage("You are a precise market data assistant. Never invent numbers; answer UNKNOWN if unsure."),
		schema.UserMessage(fmt.Sprintf(fetchPromptTemplate, m.Symbol, lookbackDays)),
	}
	text := l.client.Complete(ctx, msgs, llm.WithTopic(llm.TopicGeneral), llm.WithTemperature(0.1))
	return extractSeries(l.extractor, m.Symbol, text)
}

// SearchSource runs a web search and parses the combined result snippets.
type SearchSource struct {
	searcher  dataflows.Searcher
	extractor Extractor
}

func NewSearchSource(searcher dataflows.Searcher, extractor Extractor) *SearchSource {
	if extractor == nil {
		extractor = RegexExtractor{}
	}
	return &SearchSource{searcher: searcher, extractor: extractor}
}

func (s *SearchSource) Provenance() models.Provenance { return consts.SourceWebSearch }

func (s *SearchSource) Series(ctx context.Context, m Member, lookbackDays int) (*Series, error) {
	query := fmt.Sprintf("%s stock closing prices last %d days", m.Symbol, lookbackDays)
	results, err := s.searcher.Search(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Title)
		b.WriteString("\n")
		b.WriteString(r.Snippet)
		b.WriteString("\n")
		if r.Content != "" {
			b.WriteString(r.Content)
			b.WriteString("\n")
		}
	}
	return extractSeries(s.extractor, m.Symbol, b.String())
}

func extractSeries(ex Extractor, symbol, text string) (*Series, error) {
	e, err := ex.Extract(symbol, text)
	if err != nil {
		return nil, err
	}
	return &Series{Name: e.Name, Sector: e.Sector, Closes: e.Closes, Volumes: e.Volumes}, nil
}
