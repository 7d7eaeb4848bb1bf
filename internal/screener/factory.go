package screener

import (
	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/screener/screenerobs"
	"momentum-screener/internal/types"
)

// New builds a traced, logged scheduler.
func New(cfg types.ScreeningConfig, market interfaces.MarketDataClient, news interfaces.NewsClient, opts ...Option) (interfaces.Screener, error) {
	s, err := NewScheduler(cfg, market, news, opts...)
	if err != nil {
		return nil, err
	}
	return screenerobs.Wrap(s), nil
}
