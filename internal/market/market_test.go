package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

// mapSource serves fixed series; unknown symbols return an error.
type mapSource struct {
	prov   models.Provenance
	series map[string]*Series
	calls  atomic.Int32
}

func (m *mapSource) Provenance() models.Provenance { return m.prov }

func (m *mapSource) Series(_ context.Context, mem Member, _ int) (*Series, error) {
	m.calls.Add(1)
	s, ok := m.series[mem.Symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return s, nil
}

type fixedCompleter string

func (f fixedCompleter) Complete(context.Context, []*schema.Message, ...llm.Option) string {
	return string(f)
}

func fixedClock() time.Time { return time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC) }

func TestPerformanceScore(t *testing.T) {
	// 0.6*min(10*2,100) + 0.2*(100-2*2) + 0.2*(10+50)
	assert.InDelta(t, 12+19.2+12, PerformanceScore(10, 2, 10), 1e-9)
	assert.InDelta(t, -(12 + 19.2 + 12), PerformanceScore(-10, 2, 10), 1e-9)
	assert.Less(t, PerformanceScore(0, 0, 0), 0.0, "flat move scores negative")
	assert.InDelta(t, 60+0+20, PerformanceScore(80, 60, 500), 1e-9)
}

func TestMetricsOnMonotonicSeries(t *testing.T) {
	closes := []float64{100, 101, 103, 106, 110}
	_, pct := PriceChange(closes)
	assert.InDelta(t, 10, pct, 1e-9)
	assert.Greater(t, Volatility(closes), 0.0)
	assert.Greater(t, PerformanceScore(pct, Volatility(closes), 0), 0.0)
}

func TestVolatilityIsSampleStd(t *testing.T) {
	// returns 10%, -10%: mean 0, sample variance 0.02 → std ≈ 0.1414
	assert.InDelta(t, 14.1421356, Volatility([]float64{100, 110, 99}), 1e-6)
	assert.Zero(t, Volatility([]float64{100, 110}))
}

func TestVolumeTrend(t *testing.T) {
	assert.InDelta(t, 20, VolumeTrend([]float64{50, 150, 150, 150}), 1e-9)
	assert.Zero(t, VolumeTrend(nil))
	assert.Zero(t, VolumeTrend([]float64{0, 0}))
}

func TestRegexExtractor(t *testing.T) {
	text := "Here you go:\nname: Apple Inc.\nsector: Technology\nprices: [189.5, $190.25, 192]\nvolumes: [100, 200, 300]\n"
	ex, err := RegexExtractor{}.Extract("AAPL", text)
	require.NoError(t, err)
	assert.Equal(t, []float64{189.5, 190.25, 192}, ex.Closes)
	assert.Equal(t, []float64{100, 200, 300}, ex.Volumes)
	assert.Equal(t, "Apple Inc.", ex.Name)
	assert.Equal(t, "Technology", ex.Sector)

	_, err = RegexExtractor{}.Extract("AAPL", "price: 190, change +1.2%")
	assert.ErrorIs(t, err, ErrTooFewObservations)

	_, err = RegexExtractor{}.Extract("AAPL", "prices: [190]")
	assert.ErrorIs(t, err, ErrTooFewObservations)
}

func TestFetcherFallsThroughToValidSource(t *testing.T) {
	llmSrc := NewLLMSource(fixedCompleter("I cannot help with live prices."), nil)
	api := &mapSource{prov: consts.SourceQuoteAPI, series: map[string]*Series{
		"AAA": {Closes: []float64{100, 110}},
	}}
	f := NewFetcher(llmSrc, api)

	q, ok := f.Fetch(context.Background(), "AAA", 5)
	require.True(t, ok)
	assert.Equal(t, models.Provenance(consts.SourceQuoteAPI), q.Source)
	assert.InDelta(t, 10, q.PriceChangePct, 1e-9)
	assert.Zero(t, q.VolumeTrend, "missing volume means a neutral trend")
	assert.Equal(t, 2, q.Observations)
}

func TestFetcherPrefersEarlierSource(t *testing.T) {
	llmSrc := NewLLMSource(fixedCompleter("prices: [50, 55]\nvolumes: [10, 20]"), nil)
	api := &mapSource{prov: consts.SourceQuoteAPI, series: map[string]*Series{"AAA": {Closes: []float64{1, 2}}}}

	q, ok := NewFetcher(llmSrc, api).Fetch(context.Background(), "AAA", 5)
	require.True(t, ok)
	assert.Equal(t, models.Provenance(consts.SourceLLM), q.Source)
	assert.Zero(t, api.calls.Load())
}

func TestFetcherDropsShortSeries(t *testing.T) {
	api := &mapSource{prov: consts.SourceQuoteAPI, series: map[string]*Series{
		"BBB": {Closes: []float64{42}},
		"CCC": {},
	}}
	f := NewFetcher(api)
	for _, sym := range []string{"BBB", "CCC", "ZZZ"} {
		_, ok := f.Fetch(context.Background(), sym, 5)
		assert.False(t, ok, sym)
	}
}

type fakeHistory struct {
	bars    []*models.PriceBar
	profile *models.Profile
}

func (f fakeHistory) Name() string { return "fake" }
func (f fakeHistory) History(context.Context, string, time.Time, time.Time) ([]*models.PriceBar, error) {
	return f.bars, nil
}
func (f fakeHistory) Profile(context.Context, string) (*models.Profile, error) {
	return f.profile, nil
}

func TestHistorySourceConvertsBars(t *testing.T) {
	bar := func(c float64, v int64) *models.PriceBar {
		return &models.PriceBar{Close: decimal.NewFromFloat(c), Volume: v}
	}
	src := NewHistorySource(fakeHistory{
		bars:    []*models.PriceBar{bar(10, 100), bar(11, 120), nil, bar(12, 140)},
		profile: &models.Profile{Name: "Acme", Sector: "Industrials"},
	})

	s, err := src.Series(context.Background(), Member{Symbol: "ACME"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11, 12}, s.Closes)
	assert.Equal(t, []float64{100, 120, 140}, s.Volumes)
	assert.Equal(t, "Acme", s.Name)
}

func TestHistorySourceFillsMissingSector(t *testing.T) {
	bars := []*models.PriceBar{
		{Close: decimal.NewFromInt(100), Volume: 10},
		{Close: decimal.NewFromInt(105), Volume: 12},
	}
	src := NewHistorySource(fakeHistory{bars: bars, profile: &models.Profile{Name: "NVIDIA Corporation"}})

	s, err := src.Series(context.Background(), Member{Symbol: "nvda"}, 5)
	require.NoError(t, err)
	assert.Equal(t, "Technology", s.Sector)

	q := BuildQuote(Member{Symbol: "NVDA", Kind: KindStock}, s, consts.SourceQuoteAPI)
	assert.Equal(t, "Technology", q.Sector)
	assert.Equal(t, "NVIDIA Corporation", q.Name)

	unknown, err := src.Series(context.Background(), Member{Symbol: "ZZZZ"}, 5)
	require.NoError(t, err)
	assert.Empty(t, unknown.Sector)
	assert.Empty(t, KnownSector("ZZZZ"))
}

func TestScanKeepsOnlyValidatedSymbols(t *testing.T) {
	api := &mapSource{prov: consts.SourceQuoteAPI, series: map[string]*Series{
		"AAA": {Closes: []float64{100, 110}},
		"BBB": {},
	}}
	s := NewScanner(NewFetcher(api), WithClock(fixedClock))
	u := Universe{Stocks: []Member{
		{Symbol: "AAA", Name: "Triple A", Kind: KindStock},
		{Symbol: "BBB", Name: "Triple B", Kind: KindStock},
	}}

	res := s.ScanUniverse(context.Background(), u, 5)
	require.Len(t, res.TopStocks, 1)
	assert.Equal(t, "AAA", res.TopStocks[0].Symbol)
	assert.InDelta(t, 10, res.TopStocks[0].PriceChangePct, 1e-9)
	assert.Equal(t, 1, res.Stats.Dropped)
	assert.Equal(t, 1, res.SourceMix[consts.SourceQuoteAPI])
}

func scanFixture() (*mapSource, Universe) {
	series := map[string]*Series{
		"UP1": {Closes: []float64{100, 105}, Volumes: []float64{10, 10}},
		"UP2": {Closes: []float64{100, 105}, Volumes: []float64{10, 10}},
		"DN1": {Closes: []float64{100, 90}},
		"BIG": {Closes: []float64{100, 120, 130}},
		"S1":  {Closes: []float64{50, 51}},
		"S2":  {Closes: []float64{50, 49}},
		"S3":  {Closes: []float64{50, 52}},
		"S4":  {Closes: []float64{50, 50.5}},
		"IDX": {Closes: []float64{4000, 4010}},
	}
	u := Universe{
		Stocks: []Member{
			{Symbol: "UP1", Kind: KindStock}, {Symbol: "DN1", Kind: KindStock},
			{Symbol: "UP2", Kind: KindStock}, {Symbol: "BIG", Kind: KindStock},
		},
		Sectors: []Member{
			{Symbol: "S1", Name: "One", Kind: KindSector}, {Symbol: "S2", Name: "Two", Kind: KindSector},
			{Symbol: "S3", Name: "Three", Kind: KindSector}, {Symbol: "S4", Name: "Four", Kind: KindSector},
		},
		Indices: []Member{{Symbol: "IDX", Name: "Index", Kind: KindIndex}},
	}
	return &mapSource{prov: consts.SourceQuoteAPI, series: series}, u
}

func TestScanRanksStablyAndDeterministically(t *testing.T) {
	src, u := scanFixture()
	s := NewScanner(NewFetcher(src), WithClock(fixedClock), WithWorkers(4))

	first := s.ScanUniverse(context.Background(), u, 5)
	second := s.ScanUniverse(context.Background(), u, 5)

	symbols := func(qs []*models.SymbolQuote) []string {
		out := make([]string, 0, len(qs))
		for _, q := range qs {
			out = append(out, q.Symbol)
		}
		return out
	}
	assert.Equal(t, []string{"BIG", "UP1", "UP2", "DN1"}, symbols(first.TopStocks))
	assert.Equal(t, symbols(first.TopStocks), symbols(second.TopStocks))
	assert.Equal(t, symbols(first.TopSectors), symbols(second.TopSectors))
	assert.Equal(t, first.Summary, second.Summary)

	for i := 1; i < len(first.TopStocks); i++ {
		assert.GreaterOrEqual(t, first.TopStocks[i-1].Score, first.TopStocks[i].Score)
	}
	assert.Len(t, first.TopSectors, 4)
	assert.Len(t, first.Indices, 1)
	assert.Zero(t, first.TopSectors[0].VolumeTrend)
}

func TestScanTruncatesStocksToTopN(t *testing.T) {
	src, u := scanFixture()
	res := NewScanner(NewFetcher(src), WithTopN(2), WithClock(fixedClock)).ScanUniverse(context.Background(), u, 5)
	assert.Len(t, res.TopStocks, 2)
	assert.Len(t, res.TopSectors, 4, "sectors are never truncated")
	assert.Equal(t, 4, res.Stats.StocksAnalyzed)
}

func TestInsights(t *testing.T) {
	src, u := scanFixture()
	res := NewScanner(NewFetcher(src), WithClock(fixedClock)).ScanUniverse(context.Background(), u, 5)

	// 3 of 4 sectors positive: 0.75 > 0.7
	assert.Equal(t, models.SentimentBullish, res.Insights.Sentiment)
	assert.Equal(t, []string{"Three", "One", "Four"}, res.Insights.TrendingSectors)
	require.Len(t, res.Insights.KeyObservations, 2)
	assert.Equal(t, "Largest movers: BIG, DN1, UP1", res.Insights.KeyObservations[1])

	bearish := ComputeInsights(nil, []*models.SymbolQuote{
		{Name: "a", PriceChangePct: -1}, {Name: "b", PriceChangePct: -2}, {Name: "c", PriceChangePct: -3}, {Name: "d", PriceChangePct: 1},
	})
	assert.Equal(t, models.SentimentBearish, bearish.Sentiment)

	neutral := ComputeInsights(nil, nil)
	assert.Equal(t, models.SentimentNeutral, neutral.Sentiment)
	assert.Empty(t, neutral.TrendingSectors)
}

func TestSummaryListsTopFiveAndThree(t *testing.T) {
	src, u := scanFixture()
	res := NewScanner(NewFetcher(src), WithClock(fixedClock)).ScanUniverse(context.Background(), u, 5)
	assert.Contains(t, res.Summary, "March 14, 2025")
	assert.Contains(t, res.Summary, "1. BIG")
	assert.Contains(t, res.Summary, "1. Three ▲ +4.00%")
	assert.NotContains(t, res.Summary, "4. Four")
}

func TestScanFallsBackToStaticUniverse(t *testing.T) {
	d := NewLLMDiscoverer(fixedCompleter("no idea"), 5)
	s := NewScanner(NewFetcher(&mapSource{prov: consts.SourceQuoteAPI}), WithDiscoverer(d))
	res := s.Scan(context.Background(), 5)
	assert.Empty(t, res.TopStocks)
	assert.Equal(t, StaticUniverse().Size(), res.Stats.Dropped)
}

func TestParseUniverse(t *testing.T) {
	text := "Sure!\n```json\n{\"stocks\":[{\"symbol\":\"aapl\",\"name\":\"Apple\"},{\"symbol\":\"AAPL\"},{\"symbol\":\"not a ticker\"}]," +
		"\"indices\":[{\"symbol\":\"^GSPC\"}]}\n```"
	u, err := ParseUniverse(text)
	require.NoError(t, err)
	require.Len(t, u.Stocks, 1)
	assert.Equal(t, "AAPL", u.Stocks[0].Symbol)
	assert.Equal(t, KindStock, u.Stocks[0].Kind)
	assert.Equal(t, "^GSPC", u.Indices[0].Name)

	_, err = ParseUniverse(`{"stocks":[]}`)
	assert.Error(t, err)
}

func TestLLMDiscovererFillsMissingGroups(t *testing.T) {
	d := NewLLMDiscoverer(fixedCompleter(`{"stocks":[{"symbol":"PLTR","name":"Palantir"}]}`), 10)
	u, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, u.Stocks, 1)
	assert.Len(t, u.Sectors, 10)
	assert.Len(t, u.Indices, 5)
}
