package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/models"
)

// YahooFinanceClient reads daily history and quote metadata from Yahoo Finance.
type YahooFinanceClient struct {
	cache *CacheManager
	retry *RetryConfig
}

func NewYahooFinanceClient(cfg *config.Config) *YahooFinanceClient {
	cacheDir := filepath.Join(cfg.DataCacheDir, "yahoo_finance")
	return &YahooFinanceClient{
		// intraday scans need fresh bars, so history is cached briefly
		cache: NewCacheManager(cacheDir, 15*time.Minute, cfg.CacheEnabled),
		retry: DefaultRetryConfig(),
	}
}

func (yf *YahooFinanceClient) Name() string { return "yahoo" }

func (yf *YahooFinanceClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceBar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	cacheKey := map[string]interface{}{
		"symbol": symbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}
	var cached []*models.PriceBar
	if yf.cache.Get("yahoo", "history", cacheKey, &cached) {
		return cached, nil
	}

	var result []*models.PriceBar
	err := WithRetry(ctx, yf.retry, func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)

		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, &models.PriceBar{
				Symbol: symbol,
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("history for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = yf.cache.Set("yahoo", "history", cacheKey, result)
	return result, nil
}

func (yf *YahooFinanceClient) Profile(ctx context.Context, symbol string) (*models.Profile, error) {
	symbol = NormalizeSymbol(symbol)

	var cached models.Profile
	if yf.cache.Get("yahoo", "profile", symbol, &cached) {
		return &cached, nil
	}

	var profile *models.Profile
	err := WithRetry(ctx, yf.retry, func() error {
		q, err := equity.Get(symbol)
		if err != nil {
			return fmt.Errorf("quote for %s: %w", symbol, err)
		}
		if q == nil {
			return fmt.Errorf("no quote for %s", symbol)
		}
		profile = profileFromEquity(symbol, q)
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = yf.cache.Set("yahoo", "profile", symbol, profile)
	return profile, nil
}

// profileFromEquity prefers the long name. Yahoo's quote endpoint has no
// sector, so Sector stays empty and the scanner falls back to its own map.
func profileFromEquity(symbol string, q *finance.Equity) *models.Profile {
	name := q.LongName
	if name == "" {
		name = q.ShortName
	}
	return &models.Profile{
		Symbol:   symbol,
		Name:     name,
		Exchange: q.FullExchangeName,
	}
}
