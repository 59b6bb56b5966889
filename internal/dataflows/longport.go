package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/models"
)

// LongportClient reads daily candlesticks from the Longport quote API.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg *config.Config) (*LongportClient, error) {
	if !cfg.HasLongport() {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}
	return &LongportClient{quoteCtx: quoteContext}, nil
}

func (lpc *LongportClient) Name() string { return "longport" }

// History converts the window into a day count and returns the most recent
// candlesticks that fall inside it.
func (lpc *LongportClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceBar, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 2 {
		days = 2
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, toLongportSymbol(symbol), quote.PeriodDay, int32(days), quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("candlesticks for %s: %w", symbol, err)
	}

	bars := make([]*models.PriceBar, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil || stick.Close == nil {
			continue
		}
		ts := time.Unix(stick.Timestamp, 0).UTC()
		if ts.Before(start.Truncate(24*time.Hour)) || ts.After(end) {
			continue
		}
		bar := &models.PriceBar{
			Symbol: symbol,
			Date:   ts,
			Close:  *stick.Close,
			Volume: stick.Volume,
		}
		if stick.Open != nil {
			bar.Open = *stick.Open
		}
		if stick.High != nil {
			bar.High = *stick.High
		}
		if stick.Low != nil {
			bar.Low = *stick.Low
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (lpc *LongportClient) Profile(ctx context.Context, symbol string) (*models.Profile, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	infos, err := lpc.quoteCtx.StaticInfo(ctx, []string{toLongportSymbol(symbol)})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("no static info for %s", symbol)
	}
	return &models.Profile{
		Symbol:   symbol,
		Name:     infos[0].NameEn,
		Exchange: infos[0].Exchange,
	}, nil
}

// toLongportSymbol adds the US market suffix to bare tickers.
func toLongportSymbol(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	for _, r := range symbol {
		if r == '.' {
			return symbol
		}
	}
	return symbol + ".US"
}
