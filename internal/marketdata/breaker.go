package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	cb "github.com/sony/gobreaker"

	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/types"
)

// BreakerSettings configures the provider circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures int
	OpenFor             time.Duration
}

// breakerClient fails fast once the provider has failed too many times in a row.
type breakerClient struct {
	inner interfaces.MarketDataClient
	cb    *cb.CircuitBreaker
}

// WithBreaker wraps a provider in a circuit breaker. Missing-symbol errors do not count
// against the provider; only throttling, timeouts and unclassified failures do.
func WithBreaker(inner interfaces.MarketDataClient, s BreakerSettings) interfaces.MarketDataClient {
	if s.ConsecutiveFailures <= 0 {
		s.ConsecutiveFailures = 5
	}
	st := cb.Settings{Name: inner.Name()}
	st.Timeout = s.OpenFor
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= uint32(s.ConsecutiveFailures)
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, types.ErrDataUnavailable) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		logger.Warn(context.Background(), "Market data breaker state changed", "provider", name, "from", from.String(), "to", to.String())
	}
	return &breakerClient{inner: inner, cb: cb.NewCircuitBreaker(st)}
}

func (b *breakerClient) Name() string { return b.inner.Name() }

func (b *breakerClient) Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Fetch(ctx, symbol)
	})
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w: %w", b.inner.Name(), symbol, types.ErrRateLimited, err)
	}
	if err != nil {
		return nil, err
	}
	return v.(*types.StockSnapshot), nil
}

// State reports the breaker state, for logs and tests.
func (b *breakerClient) State() string {
	return b.cb.State().String()
}
