package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance records which source produced a quote.
type Provenance string

// PriceBar is one daily OHLCV observation.
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Profile is static descriptive data for a symbol.
type Profile struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// SymbolQuote is the validated per-symbol record produced by the fetcher.
// It is never mutated after construction.
type SymbolQuote struct {
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Sector         string     `json:"sector,omitempty"`
	Price          float64    `json:"price"`
	PriceChange    float64    `json:"price_change"`
	PriceChangePct float64    `json:"price_change_pct"`
	Volatility     float64    `json:"volatility"`
	VolumeTrend    float64    `json:"volume_trend"`
	Observations   int        `json:"observations"`
	Source         Provenance `json:"source"`
	Score          float64    `json:"score"`
}

type MarketSentiment string

const (
	SentimentBullish MarketSentiment = "bullish"
	SentimentBearish MarketSentiment = "bearish"
	SentimentNeutral MarketSentiment = "neutral"
)

type MarketInsights struct {
	Sentiment        MarketSentiment `json:"market_sentiment"`
	TrendingSectors  []string        `json:"trending_sectors"`
	KeyObservations  []string        `json:"key_observations"`
	RiskLevel        string          `json:"risk_level"`
	PositiveFraction float64         `json:"positive_fraction"`
}

type DiscoveryStats struct {
	StocksAnalyzed  int `json:"stocks_analyzed"`
	SectorsAnalyzed int `json:"sectors_analyzed"`
	IndicesAnalyzed int `json:"indices_analyzed"`
	Dropped         int `json:"dropped"`
}

// ScanResult is the output of one market scan.
type ScanResult struct {
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	LookbackDays  int                `json:"lookback_days"`
	DiscoveryMode string             `json:"discovery_mode"`
	TopStocks     []*SymbolQuote     `json:"top_stocks"`
	TopSectors    []*SymbolQuote     `json:"top_sectors"`
	Indices       []*SymbolQuote     `json:"indices"`
	Insights      MarketInsights     `json:"insights"`
	Summary       string             `json:"summary"`
	Stats         DiscoveryStats     `json:"discovery_stats"`
	SourceMix     map[Provenance]int `json:"source_mix"`
}

// SearchResult is one hit from a web search backend.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// CrawledPage is the extracted text of a fetched URL.
type CrawledPage struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Relevant  bool      `json:"relevant"`
	FetchedAt time.Time `json:"fetched_at"`
	Err       string    `json:"error,omitempty"`
}
