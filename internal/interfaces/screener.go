package interfaces

import (
	"context"

	"momentum-screener/internal/types"
)

// TickerSource supplies the universe of symbols to screen.
type TickerSource interface {
	// List fails with types.ErrSourceUnavailable when the listing cannot be retrieved.
	List(ctx context.Context) ([]string, error)
	Name() string
}

// MarketDataClient fetches the per-ticker data the filters run on.
type MarketDataClient interface {
	// Fetch fails with types.ErrDataUnavailable, types.ErrTimeout or types.ErrRateLimited.
	Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error)
	Name() string
}

// NewsClient returns recent headlines for a symbol or company name.
// An empty result is not an error.
type NewsClient interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Screener runs one screening pass over a list of tickers.
type Screener interface {
	Run(ctx context.Context, tickers []string) (*types.ScreenResult, error)
}
