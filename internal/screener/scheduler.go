// Package screener runs the concurrent screening pipeline: fetch market data for every
// ticker through a bounded worker pool, evaluate the technical filters, and check news
// only for tickers that already pass.
package screener

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum-screener/internal/filter"
	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/metrics"
	"momentum-screener/internal/ratelimit"
	"momentum-screener/internal/trace"
	"momentum-screener/internal/types"
)

// Gate names for the two external clients
const (
	ClientMarket = "market"
	ClientNews   = "news"
)

type Scheduler struct {
	cfg     types.ScreeningConfig
	market  interfaces.MarketDataClient
	news    interfaces.NewsClient
	gates   *ratelimit.MultiGate
	metrics *metrics.Recorder
}

var _ interfaces.Screener = (*Scheduler)(nil)

type Option func(*Scheduler)

// WithMetrics records per-call and per-outcome metrics on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler wires the clients to cfg. news may be nil only when cfg.RequireNews is false.
func NewScheduler(cfg types.ScreeningConfig, market interfaces.MarketDataClient, news interfaces.NewsClient, opts ...Option) (*Scheduler, error) {
	if market == nil {
		return nil, fmt.Errorf("%w: market data client is required", types.ErrConfigInvalid)
	}
	if cfg.RequireNews && news == nil {
		return nil, fmt.Errorf("%w: news client is required when news screening is enabled", types.ErrConfigInvalid)
	}
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("%w: max workers must be >= 1, got %d", types.ErrConfigInvalid, cfg.MaxWorkers)
	}
	gates, err := ratelimit.NewMultiGate(cfg.RateLimitMode, cfg.RateLimitDelay)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:    cfg,
		market: market,
		news:   news,
		gates:  gates,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run screens every ticker and returns one outcome per distinct ticker, in input order.
// Per-ticker failures become error outcomes; Run itself only fails on an empty input.
func (s *Scheduler) Run(ctx context.Context, tickers []string) (*types.ScreenResult, error) {
	start := time.Now()
	symbols := dedupe(tickers)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no tickers to screen", types.ErrSourceUnavailable)
	}

	logger.Info(ctx, "Screening started",
		"tickers", len(symbols),
		"workers", s.cfg.MaxWorkers,
		"rate_limit_delay", s.cfg.RateLimitDelay.String(),
		"rate_limit_mode", s.gates.Mode(),
		"provider", s.market.Name(),
	)

	// Each worker owns exactly one slot
	outcomes := make([]types.ScreeningOutcome, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxWorkers)
	for i, sym := range symbols {
		g.Go(func() error {
			outcomes[i] = s.screenSafe(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	res := &types.ScreenResult{
		Outcomes:  outcomes,
		Processed: len(outcomes),
		StartedAt: start,
	}
	for _, o := range outcomes {
		switch o.Status() {
		case types.StatusError:
			res.Errored++
		case types.StatusPassed:
			res.Passed++
		}
		s.metrics.Outcome(o.Status())
	}
	res.Elapsed = time.Since(start)
	s.metrics.RunDuration(res.Elapsed)
	return res, nil
}

// screenSafe converts a panic anywhere in one ticker's pipeline into an error outcome.
func (s *Scheduler) screenSafe(ctx context.Context, symbol string) (out types.ScreeningOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while screening %s: %v", symbol, r)
			logger.Error(ctx, "Recovered worker panic", "symbol", symbol, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out = errorOutcome(types.ScreeningOutcome{Symbol: symbol}, err)
		}
		logger.Outcome(ctx, out)
	}()
	return s.screen(ctx, symbol)
}

func (s *Scheduler) screen(ctx context.Context, symbol string) types.ScreeningOutcome {
	ctx, span := trace.StartSymbolSpan(ctx, "screener.Screen", symbol)
	defer span.End()

	out := types.ScreeningOutcome{Symbol: symbol}

	snap, err := s.fetch(ctx, symbol)
	if err != nil {
		return errorOutcome(out, err)
	}
	out.Snapshot = snap
	out.Criteria = filter.Evaluate(snap, s.cfg)

	if !filter.TechnicalPass(out.Criteria) {
		return out
	}
	if !s.cfg.RequireNews {
		out.Passed = filter.AllPassed(out.Criteria)
		return out
	}

	query := symbol
	if s.cfg.NewsQueryByName && snap.CompanyName != "" {
		query = snap.CompanyName
	}
	headlines, err := s.search(ctx, query)
	if err != nil {
		// Technical criteria stay on the outcome so the report can show how close it came
		return errorOutcome(out, fmt.Errorf("news search: %w", err))
	}

	crit, matched := filter.EvaluateNews(headlines, s.cfg.NewsKeywords)
	out.Criteria = append(out.Criteria, crit)
	out.Headlines = matched
	out.Passed = filter.AllPassed(out.Criteria)
	return out
}

func (s *Scheduler) fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	waited, err := s.gates.Wait(ctx, ClientMarket)
	s.metrics.GateWait(ClientMarket, waited)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	snap, err := s.market.Fetch(callCtx, symbol)
	s.metrics.FetchDuration(time.Since(start))
	if err == nil && snap == nil {
		err = fmt.Errorf("%s returned no data for %s: %w", s.market.Name(), symbol, types.ErrDataUnavailable)
	}
	err = timeoutIfExpired(callCtx, ctx, err)
	s.metrics.ExternalCall(ClientMarket, err)
	if err != nil {
		return nil, err
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	return snap, nil
}

func (s *Scheduler) search(ctx context.Context, query string) ([]string, error) {
	waited, err := s.gates.Wait(ctx, ClientNews)
	s.metrics.GateWait(ClientNews, waited)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	headlines, err := s.news.Search(callCtx, query)
	err = timeoutIfExpired(callCtx, ctx, err)
	s.metrics.ExternalCall(ClientNews, err)
	return headlines, err
}

func (s *Scheduler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// timeoutIfExpired tags an error as a timeout when the per-call deadline fired
// but the parent run context is still live.
func timeoutIfExpired(callCtx, parent context.Context, err error) error {
	if err == nil || errors.Is(err, types.ErrTimeout) {
		return err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %w", types.ErrTimeout, err)
	}
	return err
}

func errorOutcome(out types.ScreeningOutcome, err error) types.ScreeningOutcome {
	out.Passed = false
	out.Err = err
	out.Error = err.Error()
	out.ErrorKind = types.KindOf(err)
	return out
}

// dedupe trims and upper-cases tickers and drops repeats, keeping first occurrence.
func dedupe(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
