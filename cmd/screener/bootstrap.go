package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/marketdata"
	"momentum-screener/internal/metrics"
	"momentum-screener/internal/news"
	"momentum-screener/internal/report"
	"momentum-screener/internal/screener"
	"momentum-screener/internal/store"
	"momentum-screener/internal/trace"
	"momentum-screener/internal/types"
	"momentum-screener/internal/universe"
)

// app holds the wired components for one invocation.
type app struct {
	market   interfaces.MarketDataClient
	fixture  *marketdata.Static
	kite     *marketdata.Kite
	news     interfaces.NewsClient
	source   interfaces.TickerSource
	screener interfaces.Screener
	metrics  *metrics.Recorder
}

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush traces: %v\n", err)
	}
	_ = logger.Close()
}

// loadConfig reads the config file, applies flag overrides and validates the result.
// A missing default config.yaml means built-in defaults.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*store.Config, error) {
	var (
		cfg *store.Config
		err error
	)
	_, statErr := os.Stat(configPath)
	if errors.Is(statErr, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		logger.Info(ctx, "No config file found, using defaults", "path", configPath)
		cfg, err = store.Parse(nil)
	} else {
		cfg, err = store.LoadConfig(configPath)
	}
	if err != nil {
		if !errors.Is(err, types.ErrConfigInvalid) {
			err = fmt.Errorf("%w: %w", types.ErrConfigInvalid, err)
		}
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}

	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		logger.ErrorWithErr(ctx, "Invalid configuration after flag overrides", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldReports gzips reports past the retention window
func compressOldReports(ctx context.Context, cfg *store.Config) {
	n, err := report.CompressOlder(cfg.Report.Dir, cfg.Report.RetentionDays)
	if err != nil {
		logger.Warn(ctx, "Failed to compress old reports", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old reports", "count", n, "dir", cfg.Report.Dir)
	}
}

func initializeApp(ctx context.Context, cfg *store.Config) (*app, error) {
	a := &app{metrics: metrics.New()}

	if err := a.initializeMarketData(ctx, cfg); err != nil {
		return nil, err
	}
	a.initializeNews(ctx, cfg)

	var lister universe.InstrumentLister
	if cfg.Universe.Source == store.UniverseKite {
		if a.kite == nil {
			k, err := newKiteClient(cfg)
			if err != nil {
				return nil, err
			}
			a.kite = k
		}
		lister = a.kite
	}
	src, err := universe.New(cfg, lister)
	if err != nil {
		return nil, err
	}
	a.source = src

	scr, err := screener.New(cfg.ScreeningConfig(), a.market, a.news, screener.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.screener = scr
	return a, nil
}

// initializeMarketData builds the configured provider, wrapped in a breaker when enabled
func (a *app) initializeMarketData(ctx context.Context, cfg *store.Config) error {
	md := cfg.MarketData
	timeout := cfg.Performance.RequestTimeout()

	var market interfaces.MarketDataClient
	switch md.Provider {
	case store.ProviderYahoo:
		market = marketdata.NewYahoo(md.BaseURL, timeout, cfg.Screening.VolumeDays())
		logger.Info(ctx, "Using Yahoo Finance market data")
	case store.ProviderKite:
		k, err := newKiteClient(cfg)
		if err != nil {
			return err
		}
		a.kite = k
		market = k
		logger.Info(ctx, "Using Zerodha Kite market data", "exchange", md.Exchange)
	case store.ProviderStatic:
		fx, err := marketdata.LoadStatic(md.StaticFile)
		if err != nil {
			return fmt.Errorf("%w: load fixture: %w", types.ErrConfigInvalid, err)
		}
		a.fixture = fx
		market = fx
		logger.Warn(ctx, "Using STATIC fixture market data", "file", md.StaticFile, "symbols", len(fx.Symbols()))
	default:
		return fmt.Errorf("%w: unknown market data provider %q", types.ErrConfigInvalid, md.Provider)
	}

	if md.Breaker.Enabled {
		market = marketdata.WithBreaker(market, marketdata.BreakerSettings{
			ConsecutiveFailures: md.Breaker.ConsecutiveFailures,
			OpenFor:             time.Duration(md.Breaker.OpenSeconds) * time.Second,
		})
	}
	a.market = market
	return nil
}

// initializeNews picks fixture headlines for STATIC runs and the Google News scraper otherwise
func (a *app) initializeNews(ctx context.Context, cfg *store.Config) {
	if !cfg.NewsEnabled() {
		logger.Warn(ctx, "News check disabled - technical criteria alone decide")
		return
	}
	if a.fixture != nil {
		a.news = a.fixture
		return
	}
	n := cfg.News
	a.news = news.NewService(&news.ServiceConfig{
		MaxHeadlines:   n.MaxHeadlines,
		CacheDuration:  time.Duration(n.CacheMinutes) * time.Minute,
		ScraperTimeout: time.Duration(n.TimeoutSeconds) * time.Second,
		DaysBack:       n.SearchDaysBack,
		BaseURL:        n.BaseURL,
		Selector:       n.Selector,
	})
}

func newKiteClient(cfg *store.Config) (*marketdata.Kite, error) {
	return marketdata.NewKite(
		cfg.KiteAPIKey,
		cfg.KiteAccessToken,
		cfg.MarketData.Exchange,
		cfg.Performance.RequestTimeout(),
		cfg.Screening.VolumeDays(),
	)
}

// resolveTickers returns --tickers when given, the fixture symbols for --static replays,
// and the configured universe otherwise.
func resolveTickers(ctx context.Context, cfg *store.Config, a *app) ([]string, error) {
	if len(tickers) > 0 {
		return universe.Normalize(tickers, cfg.Universe.Limit), nil
	}
	if a.fixture != nil && staticFile != "" {
		return universe.Normalize(a.fixture.Symbols(), cfg.Universe.Limit), nil
	}
	symbols, err := a.source.List(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load ticker universe", err, "source", a.source.Name())
		return nil, err
	}
	return symbols, nil
}
