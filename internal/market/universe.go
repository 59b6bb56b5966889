package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/llm"
)

// Kind separates the three groups a scan ranks independently.
type Kind string

const (
	KindStock  Kind = "stock"
	KindSector Kind = "sector"
	KindIndex  Kind = "index"
)

type Member struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
	Kind   Kind   `json:"-"`
}

// Universe is the ordered symbol set of one scan.
type Universe struct {
	Stocks  []Member `json:"stocks"`
	Sectors []Member `json:"sectors"`
	Indices []Member `json:"indices"`
}

// Members flattens the universe in stock, sector, index order.
func (u Universe) Members() []Member {
	out := make([]Member, 0, len(u.Stocks)+len(u.Sectors)+len(u.Indices))
	out = append(out, u.Stocks...)
	out = append(out, u.Sectors...)
	return append(out, u.Indices...)
}

func (u Universe) Size() int {
	return len(u.Stocks) + len(u.Sectors) + len(u.Indices)
}

var staticStocks = []Member{
	{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Sector: "Technology"},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Sector: "Communication Services"},
	{Symbol: "AMZN", Name: "Amazon.com, Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "TSLA", Name: "Tesla, Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Sector: "Technology"},
	{Symbol: "META", Name: "Meta Platforms, Inc.", Sector: "Communication Services"},
	{Symbol: "NFLX", Name: "Netflix, Inc.", Sector: "Communication Services"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Sector: "Financial Services"},
	{Symbol: "JNJ", Name: "Johnson & Johnson", Sector: "Healthcare"},
	{Symbol: "PG", Name: "Procter & Gamble Co.", Sector: "Consumer Defensive"},
	{Symbol: "V", Name: "Visa Inc.", Sector: "Financial Services"},
	{Symbol: "UNH", Name: "UnitedHealth Group Inc.", Sector: "Healthcare"},
	{Symbol: "HD", Name: "The Home Depot, Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "MA", Name: "Mastercard Inc.", Sector: "Financial Services"},
	{Symbol: "DIS", Name: "The Walt Disney Company", Sector: "Communication Services"},
	{Symbol: "ADBE", Name: "Adobe Inc.", Sector: "Technology"},
	{Symbol: "CRM", Name: "Salesforce, Inc.", Sector: "Technology"},
	{Symbol: "KO", Name: "The Coca-Cola Company", Sector: "Consumer Defensive"},
	{Symbol: "PEP", Name: "PepsiCo, Inc.", Sector: "Consumer Defensive"},
	{Symbol: "AVGO", Name: "Broadcom Inc.", Sector: "Technology"},
	{Symbol: "COST", Name: "Costco Wholesale Corporation", Sector: "Consumer Defensive"},
	{Symbol: "MRK", Name: "Merck & Co., Inc.", Sector: "Healthcare"},
	{Symbol: "WMT", Name: "Walmart Inc.", Sector: "Consumer Defensive"},
	{Symbol: "BAC", Name: "Bank of America Corporation", Sector: "Financial Services"},
	{Symbol: "LLY", Name: "Eli Lilly and Company", Sector: "Healthcare"},
	{Symbol: "AMD", Name: "Advanced Micro Devices, Inc.", Sector: "Technology"},
	{Symbol: "INTC", Name: "Intel Corporation", Sector: "Technology"},
	{Symbol: "ORCL", Name: "Oracle Corporation", Sector: "Technology"},
	{Symbol: "CSCO", Name: "Cisco Systems, Inc.", Sector: "Technology"},
}

var staticSectors = []Member{
	{Symbol: "XLK", Name: "Technology"},
	{Symbol: "XLF", Name: "Financials"},
	{Symbol: "XLE", Name: "Energy"},
	{Symbol: "XLV", Name: "Healthcare"},
	{Symbol: "XLI", Name: "Industrials"},
	{Symbol: "XLP", Name: "Consumer Staples"},
	{Symbol: "XLY", Name: "Consumer Discretionary"},
	{Symbol: "XLU", Name: "Utilities"},
	{Symbol: "XLRE", Name: "Real Estate"},
	{Symbol: "XLB", Name: "Materials"},
}

var staticIndices = []Member{
	{Symbol: "^GSPC", Name: "S&P 500"},
	{Symbol: "^DJI", Name: "Dow Jones"},
	{Symbol: "^IXIC", Name: "NASDAQ"},
	{Symbol: "^RUT", Name: "Russell 2000"},
	{Symbol: "^VIX", Name: "Volatility Index"},
}

// StaticUniverse returns a fresh copy of the curated symbol lists.
func StaticUniverse() Universe {
	return Universe{
		Stocks:  withKind(staticStocks, KindStock),
		Sectors: withKind(staticSectors, KindSector),
		Indices: withKind(staticIndices, KindIndex),
	}
}

// KnownSector returns the curated sector for symbol, or "" when it is not in
// the static stock list.
func KnownSector(symbol string) string {
	for _, m := range staticStocks {
		if strings.EqualFold(m.Symbol, symbol) {
			return m.Sector
		}
	}
	return ""
}

func withKind(members []Member, kind Kind) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		m.Kind = kind
		out[i] = m
	}
	return out
}

// Discoverer produces the universe for one scan.
type Discoverer interface {
	Discover(ctx context.Context) (Universe, error)
}

type StaticDiscoverer struct{}

func (StaticDiscoverer) Discover(context.Context) (Universe, error) {
	return StaticUniverse(), nil
}

// Completer is the subset of the completion client used by this package.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message, opts ...llm.Option) string
}

// LLMDiscoverer asks the completion client for currently trending symbols.
// Groups the answer leaves empty are filled from the static lists.
type LLMDiscoverer struct {
	client    Completer
	maxStocks int
}

func NewLLMDiscoverer(client Completer, maxStocks int) *LLMDiscoverer {
	if maxStocks <= 0 {
		maxStocks = 30
	}
	return &LLMDiscoverer{client: client, maxStocks: maxStocks}
}

const discoverySystemPrompt = `You are a market data assistant. Answer with a single JSON object and nothing else.`

const discoveryUserPrompt = `List up to %d US-listed stocks that are trending by price movement or trading volume right now,
plus the sector ETFs and major market indices worth tracking alongside them.
Respond with JSON of the form:
{"stocks":[{"symbol":"AAPL","name":"Apple Inc.","sector":"Technology"}],
 "sectors":[{"symbol":"XLK","name":"Technology"}],
 "indices":[{"symbol":"^GSPC","name":"S&P 500"}]}`

func (d *LLMDiscoverer) Discover(ctx context.Context) (Universe, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(discoverySystemPrompt),
		schema.UserMessage(fmt.Sprintf(discoveryUserPrompt, d.maxStocks)),
	}
	text := d.client.Complete(ctx, msgs, llm.WithTopic(llm.TopicGeneral))
	u, err := ParseUniverse(text)
	if err != nil {
		return Universe{}, err
	}
	if len(u.Stocks) > d.maxStocks {
		u.Stocks = u.Stocks[:d.maxStocks]
	}

	static := StaticUniverse()
	if len(u.Sectors) == 0 {
		u.Sectors = static.Sectors
	}
	if len(u.Indices) == 0 {
		u.Indices = static.Indices
	}
	return u, nil
}

// ParseUniverse reads the JSON object embedded in text. Invalid or duplicate
// symbols are dropped. A universe without stocks is an error.
func ParseUniverse(text string) (Universe, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Universe{}, errors.New("no JSON object in discovery answer")
	}
	var raw Universe
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Universe{}, fmt.Errorf("decode discovery answer: %w", err)
	}

	seen := map[string]bool{}
	clean := func(in []Member, kind Kind) []Member {
		var out []Member
		for _, m := range in {
			m.Symbol = dataflows.NormalizeSymbol(m.Symbol)
			if seen[m.Symbol] || dataflows.ValidateSymbol(m.Symbol) != nil {
				continue
			}
			seen[m.Symbol] = true
			if m.Name == "" {
				m.Name = m.Symbol
			}
			m.Kind = kind
			out = append(out, m)
		}
		return out
	}
	u := Universe{
		Stocks:  clean(raw.Stocks, KindStock),
		Sectors: clean(raw.Sectors, KindSector),
		Indices: clean(raw.Indices, KindIndex),
	}
	if len(u.Stocks) == 0 {
		return Universe{}, errors.New("discovery answer has no valid stocks")
	}
	return u, nil
}
