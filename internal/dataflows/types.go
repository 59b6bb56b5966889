package dataflows

import (
	"context"
	"time"

	"github.com/dyike/ThesisGo/internal/models"
)

// HistoryProvider serves daily bars and static profile data for a symbol.
type HistoryProvider interface {
	Name() string
	History(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceBar, error)
	Profile(ctx context.Context, symbol string) (*models.Profile, error)
}

// Searcher runs a web search query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]*models.SearchResult, error)
}
