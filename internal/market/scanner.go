// Package market discovers a symbol universe, fetches each symbol through a
// fallback chain of sources and ranks the results.
package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/models"
)

type Scanner struct {
	fetcher    *Fetcher
	discoverer Discoverer
	mode       string
	workers    int
	topN       int
	now        func() time.Time
	log        *logger.Logger
}

type ScannerOption func(*Scanner)

// WithDiscoverer enables dynamic discovery; a nil discoverer keeps the static lists.
func WithDiscoverer(d Discoverer) ScannerOption {
	return func(s *Scanner) {
		if d != nil {
			s.discoverer = d
			s.mode = config.DiscoveryLLM
		}
	}
}

func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithTopN(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.topN = n
		}
	}
}

func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScanner(fetcher *Fetcher, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		fetcher:    fetcher,
		discoverer: StaticDiscoverer{},
		mode:       config.DiscoveryStatic,
		workers:    3,
		topN:       10,
		now:        time.Now,
		log:        logger.Get().Named("scanner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan fetches the universe and returns ranked stocks and sectors with
// derived insights. Symbols without data are dropped silently.
func (s *Scanner) Scan(ctx context.Context, lookbackDays int) *models.ScanResult {
	universe := s.universe(ctx)
	return s.ScanUniverse(ctx, universe, lookbackDays)
}

// ScanUniverse scans a caller-supplied universe.
func (s *Scanner) ScanUniverse(ctx context.Context, universe Universe, lookbackDays int) *models.ScanResult {
	started := s.now()
	members := universe.Members()

	type fetched struct {
		member Member
		quote  *models.SymbolQuote
	}
	results := dataflows.ForEach(ctx, s.workers, members, func(ctx context.Context, m Member) fetched {
		q, ok := s.fetcher.FetchMember(ctx, m, lookbackDays)
		if !ok {
			return fetched{member: m}
		}
		return fetched{member: m, quote: q}
	})

	var stocks, sectors, indices []*models.SymbolQuote
	mix := map[models.Provenance]int{}
	dropped := 0
	for _, r := range results {
		if r.quote == nil {
			dropped++
			continue
		}
		mix[r.quote.Source]++
		switch r.member.Kind {
		case KindSector:
			sectors = append(sectors, r.quote)
		case KindIndex:
			indices = append(indices, r.quote)
		default:
			stocks = append(stocks, r.quote)
		}
	}

	rankedStocks := Rank(stocks)
	rankedSectors := Rank(sectors)
	topStocks := rankedStocks
	if len(topStocks) > s.topN {
		topStocks = topStocks[:s.topN]
	}

	result := &models.ScanResult{
		ID:            uuid.NewString(),
		Timestamp:     started,
		LookbackDays:  lookbackDays,
		DiscoveryMode: s.mode,
		TopStocks:     topStocks,
		TopSectors:    rankedSectors,
		Indices:       indices,
		Insights:      ComputeInsights(stocks, sectors),
		Summary:       Summarize(started, topStocks, rankedSectors),
		Stats: models.DiscoveryStats{
			StocksAnalyzed:  len(stocks),
			SectorsAnalyzed: len(sectors),
			IndicesAnalyzed: len(indices),
			Dropped:         dropped,
		},
		SourceMix: mix,
	}
	s.log.Infof("[Scanner] %d/%d symbols usable (%d dropped) in %s",
		len(members)-dropped, len(members), dropped, s.now().Sub(started).Round(time.Millisecond))
	return result
}

// universe runs discovery and falls back to the static lists on any failure.
func (s *Scanner) universe(ctx context.Context) Universe {
	u, err := s.discoverer.Discover(ctx)
	if err != nil || len(u.Stocks) == 0 {
		if err != nil {
			s.log.Warnf("[Scanner] discovery failed, using static universe: %v", err)
		}
		return StaticUniverse()
	}
	return u
}

// Rank returns a copy sorted by score, highest first. Equal scores keep their
// input order.
func Rank(quotes []*models.SymbolQuote) []*models.SymbolQuote {
	out := append([]*models.SymbolQuote(nil), quotes...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Summarize renders the top five stocks and top three sectors as text.
func Summarize(at time.Time, stocks, sectors []*models.SymbolQuote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market Scan Summary - %s\n", at.Format("January 2, 2006"))

	if len(stocks) > 0 {
		b.WriteString("\nTop Performing Stocks:\n")
		for i, q := range stocks[:min(5, len(stocks))] {
			fmt.Fprintf(&b, "%d. %s (%s) %s %+.2f%%\n", i+1, q.Symbol, q.Name, arrow(q.PriceChangePct), q.PriceChangePct)
		}
	}
	if len(sectors) > 0 {
		b.WriteString("\nTop Performing Sectors:\n")
		for i, q := range sectors[:min(3, len(sectors))] {
			fmt.Fprintf(&b, "%d. %s %s %+.2f%%\n", i+1, q.Name, arrow(q.PriceChangePct), q.PriceChangePct)
		}
	}
	if len(stocks) == 0 && len(sectors) == 0 {
		b.WriteString("\nNo market data was available for this window.\n")
	}
	return b.String()
}

func arrow(pct float64) string {
	if pct > 0 {
		return "▲"
	}
	return "▼"
}
