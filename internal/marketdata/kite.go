package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"momentum-screener/internal/logger"
	"momentum-screener/internal/ta"
	"momentum-screener/internal/types"
)

// kiteAPI is the slice of the Kite Connect client the screener uses.
type kiteAPI interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, oi bool) ([]kiteconnect.HistoricalData, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
}

type instrument struct {
	token int
	name  string
}

// instrumentMapper resolves trading symbols to instrument tokens
type instrumentMapper struct {
	mu     sync.RWMutex
	loaded bool
	bySym  map[string]instrument
}

func (im *instrumentMapper) get(symbol string) (instrument, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	inst, ok := im.bySym[symbol]
	return inst, ok
}

// Kite reads quotes and daily history from Zerodha Kite Connect.
// Kite does not publish float, so snapshots leave FloatShares empty.
type Kite struct {
	api      kiteAPI
	exchange string
	avgDays  int
	timeout  time.Duration
	mapper   *instrumentMapper
	now      func() time.Time
}

// NewKite creates a Kite provider authenticated with apiKey/accessToken.
func NewKite(apiKey, accessToken, exchange string, timeout time.Duration, avgDays int) (*Kite, error) {
	if apiKey == "" || accessToken == "" {
		return nil, fmt.Errorf("%w: KITE_API_KEY and KITE_ACCESS_TOKEN are required for the KITE provider", types.ErrConfigInvalid)
	}
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	kc.SetHTTPClient(&http.Client{Timeout: timeout})
	return newKite(kc, exchange, timeout, avgDays), nil
}

func newKite(api kiteAPI, exchange string, timeout time.Duration, avgDays int) *Kite {
	return &Kite{
		api:      api,
		exchange: strings.ToUpper(exchange),
		avgDays:  avgDays,
		timeout:  timeout,
		mapper:   &instrumentMapper{bySym: make(map[string]instrument)},
		now:      time.Now,
	}
}

func (k *Kite) Name() string { return "kite" }

func (k *Kite) Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	inst, err := k.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	key := k.exchange + ":" + symbol
	quotes, err := callKite(ctx, k.timeout, func() (kiteconnect.Quote, error) {
		return k.api.GetQuote(key)
	})
	if err != nil {
		return nil, fmt.Errorf("kite quote %s: %w", key, err)
	}
	q, ok := quotes[key]
	if !ok || q.LastPrice <= 0 {
		return nil, fmt.Errorf("kite quote %s: %w", key, types.ErrDataUnavailable)
	}

	now := k.now()
	// Twice the window in calendar days covers weekends and holidays
	from := now.AddDate(0, 0, -2*k.avgDays-5)
	history, err := callKite(ctx, k.timeout, func() ([]kiteconnect.HistoricalData, error) {
		return k.api.GetHistoricalData(inst.token, "day", from, now, false, false)
	})
	if err != nil {
		return nil, fmt.Errorf("kite history %s: %w", key, err)
	}

	candles := make([]types.Candle, 0, len(history))
	for _, h := range history {
		candles = append(candles, types.Candle{
			Ts:    h.Date.Unix(),
			Open:  h.Open,
			High:  h.High,
			Low:   h.Low,
			Close: h.Close,
			Vol:   float64(h.Volume),
		})
	}

	snap := &types.StockSnapshot{
		Symbol:        symbol,
		CompanyName:   inst.name,
		CurrentPrice:  q.LastPrice,
		CurrentVolume: int64(q.Volume),
		Source:        k.Name(),
		FetchedAt:     now,
	}
	if prev := q.OHLC.Close; prev > 0 {
		snap.PreviousClose = &prev
	} else if prev, ok := ta.PreviousClose(candles); ok {
		snap.PreviousClose = &prev
	}
	if avg, ok := ta.AverageVolume(candles, k.avgDays); ok {
		snap.AverageVolume = &avg
	}
	return snap, nil
}

// Instruments returns equity trading symbols listed on the exchange.
func (k *Kite) Instruments(ctx context.Context) ([]string, error) {
	if err := k.loadInstruments(ctx); err != nil {
		return nil, err
	}
	k.mapper.mu.RLock()
	defer k.mapper.mu.RUnlock()
	out := make([]string, 0, len(k.mapper.bySym))
	for sym := range k.mapper.bySym {
		out = append(out, sym)
	}
	return out, nil
}

func (k *Kite) resolve(ctx context.Context, symbol string) (instrument, error) {
	if err := k.loadInstruments(ctx); err != nil {
		return instrument{}, err
	}
	inst, ok := k.mapper.get(symbol)
	if !ok {
		return instrument{}, fmt.Errorf("kite: %s not listed on %s: %w", symbol, k.exchange, types.ErrDataUnavailable)
	}
	return inst, nil
}

func (k *Kite) loadInstruments(ctx context.Context) error {
	k.mapper.mu.RLock()
	loaded := k.mapper.loaded
	k.mapper.mu.RUnlock()
	if loaded {
		return nil
	}

	k.mapper.mu.Lock()
	defer k.mapper.mu.Unlock()
	if k.mapper.loaded {
		return nil
	}

	list, err := callKite(ctx, k.timeout, func() (kiteconnect.Instruments, error) {
		return k.api.GetInstrumentsByExchange(k.exchange)
	})
	if err != nil {
		return fmt.Errorf("kite instruments %s: %w", k.exchange, err)
	}
	for _, inst := range list {
		if inst.InstrumentType != "EQ" || inst.Segment == "INDICES" {
			continue
		}
		k.mapper.bySym[strings.ToUpper(inst.Tradingsymbol)] = instrument{token: inst.InstrumentToken, name: inst.Name}
	}
	k.mapper.loaded = true
	logger.Info(ctx, "Loaded Kite instruments", "exchange", k.exchange, "count", len(k.mapper.bySym))
	return nil
}

// callKite runs a blocking Kite call under ctx and timeout and classifies its error.
// The Kite client has no context support, so an abandoned call finishes in the background
// bounded by the HTTP client timeout.
func callKite[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", types.ErrTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return zero, classifyKiteError(r.err)
		}
		return r.v, nil
	}
}

func classifyKiteError(err error) error {
	var kerr kiteconnect.Error
	if !errors.As(err, &kerr) {
		return err
	}
	switch {
	case kerr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", types.ErrRateLimited, err)
	case kerr.Code == http.StatusNotFound, kerr.ErrorType == kiteconnect.DataError, kerr.ErrorType == kiteconnect.InputError:
		return fmt.Errorf("%w: %w", types.ErrDataUnavailable, err)
	case kerr.Code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", types.ErrTimeout, err)
	default:
		return err
	}
}
