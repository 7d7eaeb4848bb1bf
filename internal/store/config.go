package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"momentum-screener/internal/types"
)

// Market data providers
const (
	ProviderYahoo  = "YAHOO"
	ProviderKite   = "KITE"
	ProviderStatic = "STATIC"
)

// Universe sources
const (
	UniverseStatic = "STATIC"
	UniverseFile   = "FILE"
	UniverseNasdaq = "NASDAQ"
	UniverseHTML   = "HTML"
	UniverseKite   = "KITE"
)

// DefaultKeywords mirrors the keyword list the screener has always shipped with.
var DefaultKeywords = []string{"earnings", "breakthrough", "acquisition", "partnership", "fda", "approval", "contract", "innovation", "growth", "expansion"}

// DefaultUniverse is used when universe.source is STATIC and no symbols are configured.
var DefaultUniverse = []string{
	"AMC", "GME", "SNDL", "NOK", "BB",
	"PLTR", "SOFI", "RIVN",
	"GOOGL", "MSFT", "AAPL",
	"SPCE", "SENS", "SAVA",
	"MVIS", "NIO", "TLRY", "WISH", "ZYNE",
}

// Screening holds the technical thresholds. Pointers distinguish an
// explicit zero from an absent key; only absent keys get defaults.
type Screening struct {
	MinPriceIncreasePercent *float64 `yaml:"min_price_increase_percent"`
	MinVolumeMultiplier     *float64 `yaml:"min_volume_multiplier"`
	MinStockPrice           *float64 `yaml:"min_stock_price"`
	MaxStockPrice           *float64 `yaml:"max_stock_price"`
	MaxFloatMillions        *float64 `yaml:"max_float_millions"`
	AverageVolumeDays       *int     `yaml:"average_volume_days"`
}

// VolumeDays is the averaging window for the volume baseline.
func (s Screening) VolumeDays() int {
	return deref(s.AverageVolumeDays)
}

// Performance controls concurrency and external call pacing.
type Performance struct {
	MaxWorkers            *int     `yaml:"max_workers"`
	RateLimitDelaySeconds *float64 `yaml:"rate_limit_delay_seconds"`
	RateLimitMode         string   `yaml:"rate_limit_mode"`
	RequestTimeoutSeconds *int     `yaml:"request_timeout_seconds"`
}

func (p Performance) Workers() int {
	return deref(p.MaxWorkers)
}

// RequestTimeout bounds a single external call.
func (p Performance) RequestTimeout() time.Duration {
	return time.Duration(deref(p.RequestTimeoutSeconds)) * time.Second
}

// RateLimitDelay is the minimum spacing between external calls.
func (p Performance) RateLimitDelay() time.Duration {
	if p.RateLimitDelaySeconds == nil {
		return 0
	}
	return time.Duration(*p.RateLimitDelaySeconds * float64(time.Second))
}

type Config struct {
	Screening Screening `yaml:"screening"`
	News struct {
		Enabled        *bool    `yaml:"enabled"`
		Keywords       []string `yaml:"keywords"`
		SearchDaysBack int      `yaml:"search_days_back"`
		MaxHeadlines   int      `yaml:"max_headlines"`
		QueryBy        string   `yaml:"query_by"`
		CacheMinutes   int      `yaml:"cache_minutes"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		BaseURL        string   `yaml:"base_url"`
		Selector       string   `yaml:"selector"`
	} `yaml:"news"`
	Performance Performance `yaml:"performance"`
	MarketData struct {
		Provider   string `yaml:"provider"`
		Exchange   string `yaml:"exchange"`
		StaticFile string `yaml:"static_file"`
		BaseURL    string `yaml:"base_url"`
		Breaker    struct {
			Enabled             bool `yaml:"enabled"`
			ConsecutiveFailures int  `yaml:"consecutive_failures"`
			OpenSeconds         int  `yaml:"open_seconds"`
		} `yaml:"breaker"`
	} `yaml:"market_data"`
	Universe struct {
		Source   string   `yaml:"source"`
		Static   []string `yaml:"static"`
		File     string   `yaml:"file"`
		URL      string   `yaml:"url"`
		Selector string   `yaml:"selector"`
		Limit    int      `yaml:"limit"`
	} `yaml:"universe"`
	Report struct {
		Dir           string   `yaml:"dir"`
		Formats       []string `yaml:"formats"`
		RetentionDays int      `yaml:"retention_days"`
	} `yaml:"report"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	// Credentials come from the environment only.
	KiteAPIKey      string `yaml:"-"`
	KiteAccessToken string `yaml:"-"`
}

func (c *Config) Validate() error {
	var errs []error
	s := c.Screening
	minPrice, maxPrice := deref(s.MinStockPrice), deref(s.MaxStockPrice)
	if minPrice > maxPrice {
		errs = append(errs, fmt.Errorf("screening.min_stock_price (%.2f) must not exceed max_stock_price (%.2f)", minPrice, maxPrice))
	}
	if minPrice < 0 {
		errs = append(errs, fmt.Errorf("screening.min_stock_price must be >= 0, got %.2f", minPrice))
	}
	if v := deref(s.MinVolumeMultiplier); v < 1 {
		errs = append(errs, fmt.Errorf("screening.min_volume_multiplier must be >= 1, got %.2f", v))
	}
	if v := deref(s.MaxFloatMillions); v <= 0 {
		errs = append(errs, fmt.Errorf("screening.max_float_millions must be > 0, got %.2f", v))
	}
	if v := s.VolumeDays(); v < 1 {
		errs = append(errs, fmt.Errorf("screening.average_volume_days must be >= 1, got %d", v))
	}

	p := c.Performance
	if v := p.Workers(); v < 1 {
		errs = append(errs, fmt.Errorf("performance.max_workers must be >= 1, got %d", v))
	}
	if v := deref(p.RequestTimeoutSeconds); v < 1 {
		errs = append(errs, fmt.Errorf("performance.request_timeout_seconds must be >= 1, got %d", v))
	}
	if p.RateLimitDelay() < 0 {
		errs = append(errs, fmt.Errorf("performance.rate_limit_delay_seconds must be >= 0, got %v", p.RateLimitDelay()))
	}
	if p.RateLimitMode != types.RateLimitGlobal && p.RateLimitMode != types.RateLimitPerClient {
		errs = append(errs, fmt.Errorf("performance.rate_limit_mode must be 'GLOBAL' or 'PER_CLIENT', got '%s'", p.RateLimitMode))
	}

	if c.NewsEnabled() && len(c.News.Keywords) == 0 {
		errs = append(errs, errors.New("news.keywords cannot be empty when news is enabled"))
	}
	if c.News.QueryBy != "SYMBOL" && c.News.QueryBy != "NAME" {
		errs = append(errs, fmt.Errorf("news.query_by must be 'SYMBOL' or 'NAME', got '%s'", c.News.QueryBy))
	}

	switch c.MarketData.Provider {
	case ProviderYahoo, ProviderKite:
	case ProviderStatic:
		if c.MarketData.StaticFile == "" {
			errs = append(errs, errors.New("market_data.static_file is required for the STATIC provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("market_data.provider must be 'YAHOO', 'KITE' or 'STATIC', got '%s'", c.MarketData.Provider))
	}

	switch c.Universe.Source {
	case UniverseStatic, UniverseNasdaq, UniverseKite:
	case UniverseFile:
		if c.Universe.File == "" {
			errs = append(errs, errors.New("universe.file is required for the FILE source"))
		}
	case UniverseHTML:
		if c.Universe.URL == "" || c.Universe.Selector == "" {
			errs = append(errs, errors.New("universe.url and universe.selector are required for the HTML source"))
		}
	default:
		errs = append(errs, fmt.Errorf("universe.source must be one of STATIC, FILE, NASDAQ, HTML, KITE, got '%s'", c.Universe.Source))
	}

	for _, f := range c.Report.Formats {
		switch f {
		case "text", "json", "csv":
		default:
			errs = append(errs, fmt.Errorf("report.formats: unknown format '%s'", f))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// NewsEnabled defaults to true when the key is absent.
func (c *Config) NewsEnabled() bool {
	return c.News.Enabled == nil || *c.News.Enabled
}

// ScreeningConfig builds the immutable run configuration.
func (c *Config) ScreeningConfig() types.ScreeningConfig {
	keywords := make([]string, len(c.News.Keywords))
	copy(keywords, c.News.Keywords)
	return types.ScreeningConfig{
		MinPriceIncrease:    deref(c.Screening.MinPriceIncreasePercent),
		MinVolumeMultiplier: deref(c.Screening.MinVolumeMultiplier),
		MinStockPrice:       deref(c.Screening.MinStockPrice),
		MaxStockPrice:       deref(c.Screening.MaxStockPrice),
		MaxFloatMillions:    deref(c.Screening.MaxFloatMillions),
		NewsKeywords:        keywords,
		MaxWorkers:          c.Performance.Workers(),
		RateLimitDelay:      c.Performance.RateLimitDelay(),
		RateLimitMode:       c.Performance.RateLimitMode,
		RequestTimeout:      c.Performance.RequestTimeout(),
		RequireNews:         c.NewsEnabled(),
		NewsQueryByName:     c.News.QueryBy == "NAME",
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and environment overrides, and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfigInvalid, err)
	}
	c.applyDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	s := &c.Screening
	setDefault(&s.MinPriceIncreasePercent, 0.10)
	setDefault(&s.MinVolumeMultiplier, 5)
	setDefault(&s.MinStockPrice, 2.00)
	setDefault(&s.MaxStockPrice, 20.00)
	setDefault(&s.MaxFloatMillions, 20)
	setDefault(&s.AverageVolumeDays, 30)

	n := &c.News
	if n.Keywords == nil {
		n.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if n.SearchDaysBack == 0 {
		n.SearchDaysBack = 1
	}
	if n.MaxHeadlines == 0 {
		n.MaxHeadlines = 20
	}
	n.QueryBy = strings.ToUpper(n.QueryBy)
	if n.QueryBy == "" {
		n.QueryBy = "SYMBOL"
	}
	if n.CacheMinutes == 0 {
		n.CacheMinutes = 60
	}
	if n.TimeoutSeconds == 0 {
		n.TimeoutSeconds = 10
	}

	p := &c.Performance
	setDefault(&p.MaxWorkers, 10)
	setDefault(&p.RateLimitDelaySeconds, 2.0)
	p.RateLimitMode = strings.ToUpper(p.RateLimitMode)
	if p.RateLimitMode == "" {
		p.RateLimitMode = types.RateLimitGlobal
	}
	setDefault(&p.RequestTimeoutSeconds, 15)

	m := &c.MarketData
	m.Provider = strings.ToUpper(m.Provider)
	if m.Provider == "" {
		m.Provider = ProviderYahoo
	}
	if m.Exchange == "" {
		m.Exchange = "NSE"
	}
	if m.Breaker.ConsecutiveFailures == 0 {
		m.Breaker.ConsecutiveFailures = 5
	}
	if m.Breaker.OpenSeconds == 0 {
		m.Breaker.OpenSeconds = 30
	}

	u := &c.Universe
	u.Source = strings.ToUpper(u.Source)
	if u.Source == "" {
		u.Source = UniverseStatic
	}
	if u.Source == UniverseStatic && len(u.Static) == 0 {
		u.Static = append([]string(nil), DefaultUniverse...)
	}

	r := &c.Report
	if r.Dir == "" {
		r.Dir = "reports"
	}
	if len(r.Formats) == 0 {
		r.Formats = []string{"text", "json"}
	}
}

// applyEnv lets deployment environments tune a run without editing config.yaml.
func (c *Config) applyEnv() error {
	if v := os.Getenv("SCREENER_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SCREENER_MAX_WORKERS: %w", types.ErrConfigInvalid, err)
		}
		c.Performance.MaxWorkers = &n
	}
	if v := os.Getenv("SCREENER_RATE_LIMIT_DELAY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SCREENER_RATE_LIMIT_DELAY: %w", types.ErrConfigInvalid, err)
		}
		c.Performance.RateLimitDelaySeconds = &f
	}
	if v := os.Getenv("SCREENER_MIN_PRICE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SCREENER_MIN_PRICE: %w", types.ErrConfigInvalid, err)
		}
		c.Screening.MinStockPrice = &f
	}
	if v := os.Getenv("SCREENER_MAX_PRICE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SCREENER_MAX_PRICE: %w", types.ErrConfigInvalid, err)
		}
		c.Screening.MaxStockPrice = &f
	}
	c.KiteAPIKey = os.Getenv("KITE_API_KEY")
	c.KiteAccessToken = os.Getenv("KITE_ACCESS_TOKEN")
	return nil
}

// setDefault fills *p only when the key was absent from the file.
func setDefault[T any](p **T, v T) {
	if *p == nil {
		*p = &v
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
