package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/metrics"
	"momentum-screener/internal/types"
)

type fakeMarket struct {
	snaps   map[string]*types.StockSnapshot
	errs    map[string]error
	delay   time.Duration
	panicOn string
	block   bool

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu        sync.Mutex
	callTimes []time.Time
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.callTimes = append(f.callTimes, time.Now())
	f.mu.Unlock()

	if symbol == f.panicOn {
		panic("corrupt payload")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	s, ok := f.snaps[symbol]
	if !ok {
		return nil, fmt.Errorf("no chart for %s: %w", symbol, types.ErrDataUnavailable)
	}
	cp := *s
	return &cp, nil
}

type fakeNews struct {
	headlines map[string][]string
	err       error

	mu      sync.Mutex
	queries []string
}

func (f *fakeNews) Search(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.headlines[query], nil
}

func (f *fakeNews) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// mover passes every technical criterion under testConfig.
func mover(symbol string) *types.StockSnapshot {
	return &types.StockSnapshot{
		Symbol:        symbol,
		CompanyName:   symbol + " Corp",
		CurrentPrice:  5.50,
		PreviousClose: f64(5.00),
		CurrentVolume: 3_000_000,
		AverageVolume: f64(500_000),
		FloatShares:   i64(8_000_000),
	}
}

// laggard fails the price increase criterion.
func laggard(symbol string) *types.StockSnapshot {
	s := mover(symbol)
	s.CurrentPrice = 5.10
	return s
}

func testConfig(workers int) types.ScreeningConfig {
	return types.ScreeningConfig{
		MinPriceIncrease:    0.10,
		MinVolumeMultiplier: 5,
		MinStockPrice:       2,
		MaxStockPrice:       20,
		MaxFloatMillions:    10,
		NewsKeywords:        []string{"fda approval", "earnings", "merger"},
		MaxWorkers:          workers,
		RateLimitMode:       types.RateLimitGlobal,
		RequestTimeout:      time.Second,
		RequireNews:         true,
	}
}

func newTestScheduler(t *testing.T, cfg types.ScreeningConfig, m *fakeMarket, n interfaces.NewsClient, opts ...Option) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, m, n, opts...)
	require.NoError(t, err)
	return s
}

func TestRunHundredTickersHalfErroring(t *testing.T) {
	m := &fakeMarket{
		snaps: map[string]*types.StockSnapshot{},
		errs:  map[string]error{},
		delay: time.Millisecond,
	}
	n := &fakeNews{headlines: map[string][]string{}}

	tickers := make([]string, 100)
	for i := range tickers {
		sym := fmt.Sprintf("T%03d", i)
		tickers[i] = sym
		if i%2 == 0 {
			m.snaps[sym] = laggard(sym)
		} else {
			m.errs[sym] = fmt.Errorf("chart %s: %w", sym, types.ErrRateLimited)
		}
	}

	res, err := newTestScheduler(t, testConfig(8), m, n).Run(context.Background(), tickers)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 100)
	assert.Equal(t, 100, res.Processed)
	assert.Equal(t, 50, res.Errored)
	assert.Equal(t, 0, res.Passed)

	seen := map[string]bool{}
	for i, o := range res.Outcomes {
		assert.Equal(t, tickers[i], o.Symbol, "outcomes keep input order")
		assert.False(t, seen[o.Symbol], "duplicate outcome for %s", o.Symbol)
		seen[o.Symbol] = true
		if i%2 == 1 {
			assert.Equal(t, types.KindRateLimited, o.ErrorKind)
		} else {
			assert.Equal(t, types.StatusFailed, o.Status())
		}
	}
	assert.Equal(t, int64(100), m.calls.Load())
	assert.Equal(t, 0, n.calls())
}

func TestNewsCalledOnlyForTechnicalPasses(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{}}
	var tickers []string
	for i := 0; i < 10; i++ {
		sym := fmt.Sprintf("S%d", i)
		tickers = append(tickers, sym)
		if i < 4 {
			m.snaps[sym] = mover(sym)
		} else {
			m.snaps[sym] = laggard(sym)
		}
	}
	n := &fakeNews{headlines: map[string][]string{
		"S0": {"S0 beats earnings estimates"},
		"S1": {"S1 opens new office"},
	}}

	res, err := newTestScheduler(t, testConfig(3), m, n).Run(context.Background(), tickers)
	require.NoError(t, err)

	assert.Equal(t, 4, n.calls())
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 0, res.Errored)

	s0 := res.Outcomes[0]
	assert.True(t, s0.Passed)
	assert.Equal(t, []string{"S0 beats earnings estimates"}, s0.Headlines)
	crit, ok := s0.Criterion(types.CriterionNews)
	require.True(t, ok)
	assert.True(t, crit.Passed)

	s1 := res.Outcomes[1]
	assert.Equal(t, types.StatusFailed, s1.Status())
	crit, ok = s1.Criterion(types.CriterionNews)
	require.True(t, ok)
	assert.False(t, crit.Passed)

	_, ok = res.Outcomes[5].Criterion(types.CriterionNews)
	assert.False(t, ok, "news is never evaluated for technical failures")
}

func TestABCEndToEnd(t *testing.T) {
	abc := &types.StockSnapshot{
		Symbol:        "ABC",
		CompanyName:   "ABC Corp",
		CurrentPrice:  12,
		PreviousClose: f64(10),
		CurrentVolume: 6_000_000,
		AverageVolume: f64(1_000_000),
		FloatShares:   i64(30_000_000),
	}
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"ABC": abc}}
	n := &fakeNews{headlines: map[string][]string{
		"ABC": {"Analysts weigh in on biotech sector", "ABC Corp receives FDA Approval for lead drug"},
	}}
	cfg := testConfig(2)
	cfg.MinStockPrice = 1
	cfg.MaxFloatMillions = 50

	res, err := newTestScheduler(t, cfg, m, n).Run(context.Background(), []string{"abc"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)

	o := res.Outcomes[0]
	assert.Equal(t, "ABC", o.Symbol)
	assert.Equal(t, types.StatusPassed, o.Status())
	require.Len(t, o.Criteria, 5)
	for _, c := range o.Criteria {
		assert.True(t, c.Passed, c.Name)
	}
	assert.Equal(t, []string{"ABC Corp receives FDA Approval for lead drug"}, o.Headlines)
	assert.Equal(t, []string{"ABC"}, n.queries)
	assert.Equal(t, 1, res.Passed)
}

func TestRequireNewsDisabled(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"ABC": mover("ABC")}}
	cfg := testConfig(1)
	cfg.RequireNews = false

	res, err := newTestScheduler(t, cfg, m, nil).Run(context.Background(), []string{"ABC"})
	require.NoError(t, err)
	assert.True(t, res.Outcomes[0].Passed)
	assert.Len(t, res.Outcomes[0].Criteria, 4)
}

func TestNewsQueryByName(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"ABC": mover("ABC")}}
	n := &fakeNews{headlines: map[string][]string{"ABC Corp": {"ABC Corp merger agreed"}}}
	cfg := testConfig(1)
	cfg.NewsQueryByName = true

	res, err := newTestScheduler(t, cfg, m, n).Run(context.Background(), []string{"ABC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC Corp"}, n.queries)
	assert.True(t, res.Outcomes[0].Passed)
}

func TestNewsErrorKeepsTechnicalCriteria(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"ABC": mover("ABC")}}
	n := &fakeNews{err: fmt.Errorf("google news: %w", types.ErrRateLimited)}

	res, err := newTestScheduler(t, testConfig(1), m, n).Run(context.Background(), []string{"ABC"})
	require.NoError(t, err)

	o := res.Outcomes[0]
	assert.Equal(t, types.StatusError, o.Status())
	assert.Equal(t, types.KindRateLimited, o.ErrorKind)
	assert.Contains(t, o.Error, "news search")
	assert.Len(t, o.Criteria, 4)
	assert.NotNil(t, o.Snapshot)
	assert.Equal(t, 1, res.Errored)
}

func TestIdempotentAcrossWorkerCounts(t *testing.T) {
	build := func() (*fakeMarket, *fakeNews, []string) {
		m := &fakeMarket{
			snaps: map[string]*types.StockSnapshot{},
			errs:  map[string]error{},
		}
		n := &fakeNews{headlines: map[string][]string{}}
		var tickers []string
		for i := 0; i < 40; i++ {
			sym := fmt.Sprintf("K%02d", i)
			tickers = append(tickers, sym)
			switch i % 4 {
			case 0:
				m.snaps[sym] = mover(sym)
				n.headlines[sym] = []string{sym + " announces merger"}
			case 1:
				m.snaps[sym] = mover(sym)
			case 2:
				m.snaps[sym] = laggard(sym)
			case 3:
				m.errs[sym] = fmt.Errorf("%s: %w", sym, types.ErrDataUnavailable)
			}
		}
		return m, n, tickers
	}

	summarize := func(res *types.ScreenResult) []string {
		out := make([]string, 0, len(res.Outcomes))
		for _, o := range res.Outcomes {
			out = append(out, o.Symbol+"="+o.Status())
		}
		sort.Strings(out)
		return out
	}

	var baseline []string
	for _, workers := range []int{1, 4, 16} {
		m, n, tickers := build()
		res, err := newTestScheduler(t, testConfig(workers), m, n).Run(context.Background(), tickers)
		require.NoError(t, err)
		got := summarize(res)
		if baseline == nil {
			baseline = got
			continue
		}
		assert.Equal(t, baseline, got, "workers=%d", workers)
	}
	assert.Contains(t, baseline, "K00=PASSED")
	assert.Contains(t, baseline, "K01=FAILED")
	assert.Contains(t, baseline, "K03=ERROR")
}

func TestWorkerPanicBecomesInternalError(t *testing.T) {
	m := &fakeMarket{
		snaps:   map[string]*types.StockSnapshot{"OK": laggard("OK")},
		panicOn: "BOOM",
	}

	res, err := newTestScheduler(t, testConfig(2), m, &fakeNews{}).Run(context.Background(), []string{"BOOM", "OK"})
	require.NoError(t, err)

	assert.Equal(t, types.KindInternal, res.Outcomes[0].ErrorKind)
	assert.Contains(t, res.Outcomes[0].Error, "panic")
	assert.Equal(t, types.StatusFailed, res.Outcomes[1].Status())
	assert.Equal(t, 1, res.Errored)
}

func TestPerCallTimeout(t *testing.T) {
	m := &fakeMarket{block: true}
	cfg := testConfig(2)
	cfg.RequestTimeout = 20 * time.Millisecond

	start := time.Now()
	res, err := newTestScheduler(t, cfg, m, &fakeNews{}).Run(context.Background(), []string{"SLOW", "SLOWER"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	for _, o := range res.Outcomes {
		assert.Equal(t, types.KindTimeout, o.ErrorKind, o.Symbol)
	}
}

func TestNilSnapshotIsDataUnavailable(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{}}
	res, err := newTestScheduler(t, testConfig(1), m, &fakeNews{}).Run(context.Background(), []string{"GONE"})
	require.NoError(t, err)
	assert.Equal(t, types.KindDataUnavailable, res.Outcomes[0].ErrorKind)
}

func TestWorkerBoundRespected(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{}, delay: 5 * time.Millisecond}
	var tickers []string
	for i := 0; i < 30; i++ {
		sym := fmt.Sprintf("W%02d", i)
		tickers = append(tickers, sym)
		m.snaps[sym] = laggard(sym)
	}

	_, err := newTestScheduler(t, testConfig(4), m, &fakeNews{}).Run(context.Background(), tickers)
	require.NoError(t, err)
	assert.LessOrEqual(t, m.maxInFlight.Load(), int64(4))
}

func TestGateSpacesCallsAcrossWorkers(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{}}
	tickers := []string{"A", "B", "C", "D", "E"}
	for _, sym := range tickers {
		m.snaps[sym] = laggard(sym)
	}
	cfg := testConfig(5)
	cfg.RateLimitDelay = 30 * time.Millisecond

	start := time.Now()
	_, err := newTestScheduler(t, cfg, m, &fakeNews{}).Run(context.Background(), tickers)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond)

	times := append([]time.Time(nil), m.callTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 20*time.Millisecond, "gap %d", i)
	}
}

func TestDuplicateTickersCollapsed(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"ABC": laggard("ABC"), "XYZ": laggard("XYZ")}}
	res, err := newTestScheduler(t, testConfig(4), m, &fakeNews{}).Run(context.Background(), []string{"ABC", "xyz", " abc ", "XYZ"})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Equal(t, int64(2), m.calls.Load())
}

func TestCanceledRunMarksRemainingTickers(t *testing.T) {
	m := &fakeMarket{snaps: map[string]*types.StockSnapshot{"A": mover("A")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestScheduler(t, testConfig(2), m, &fakeNews{}).Run(ctx, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Errored)
	for _, o := range res.Outcomes {
		assert.Equal(t, types.KindCanceled, o.ErrorKind, o.Symbol)
	}
	assert.Equal(t, int64(0), m.calls.Load())
}

func TestEmptyTickerList(t *testing.T) {
	_, err := newTestScheduler(t, testConfig(1), &fakeMarket{}, &fakeNews{}).Run(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
}

func TestNewSchedulerValidation(t *testing.T) {
	m := &fakeMarket{}

	_, err := NewScheduler(testConfig(1), nil, &fakeNews{})
	assert.ErrorIs(t, err, types.ErrConfigInvalid)

	_, err = NewScheduler(testConfig(1), m, nil)
	assert.ErrorIs(t, err, types.ErrConfigInvalid)

	_, err = NewScheduler(testConfig(0), m, &fakeNews{})
	assert.ErrorIs(t, err, types.ErrConfigInvalid)

	cfg := testConfig(1)
	cfg.RateLimitMode = "BURST"
	_, err = NewScheduler(cfg, m, &fakeNews{})
	assert.ErrorIs(t, err, types.ErrConfigInvalid)
}

func TestMetricsRecorded(t *testing.T) {
	m := &fakeMarket{
		snaps: map[string]*types.StockSnapshot{"A": mover("A"), "B": laggard("B")},
		errs:  map[string]error{"C": errors.New("malformed chart")},
	}
	n := &fakeNews{headlines: map[string][]string{"A": {"A reports record earnings"}}}
	rec := metrics.New()

	_, err := newTestScheduler(t, testConfig(2), m, n, WithMetrics(rec)).Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	mfs, err := rec.Registry().Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	calls := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, l := range metric.GetLabel() {
				labels = append(labels, l.GetValue())
			}
			key := strings.Join(labels, "/")
			switch mf.GetName() {
			case "screener_outcomes_total":
				outcomes[key] = metric.GetCounter().GetValue()
			case "screener_external_calls_total":
				calls[key] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, map[string]float64{"PASSED": 1, "FAILED": 1, "ERROR": 1}, outcomes)
	assert.Equal(t, 2.0, calls["market/ok"])
	assert.Equal(t, 1.0, calls["market/internal"])
	assert.Equal(t, 1.0, calls["news/ok"])
}
