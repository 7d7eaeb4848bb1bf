package types

import "time"

// Candle is one daily bar returned by a market-data provider.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Rate limit modes.
const (
	RateLimitGlobal    = "GLOBAL"
	RateLimitPerClient = "PER_CLIENT"
)

// ScreeningConfig is the immutable set of thresholds and run parameters for one screening run.
// It is built once from store.Config and never mutated afterwards.
type ScreeningConfig struct {
	MinPriceIncrease    float64 // fraction, 0.10 = +10%
	MinVolumeMultiplier float64
	MinStockPrice       float64
	MaxStockPrice       float64
	MaxFloatMillions    float64
	NewsKeywords        []string

	MaxWorkers     int
	RateLimitDelay time.Duration
	RateLimitMode  string
	RequestTimeout time.Duration

	RequireNews     bool
	NewsQueryByName bool
}

// MaxFloatShares returns the float ceiling in shares.
func (c ScreeningConfig) MaxFloatShares() float64 {
	return c.MaxFloatMillions * 1_000_000
}

// StockSnapshot is the per-ticker market data pulled for a single evaluation.
// Optional fields are nil when the provider could not supply them.
type StockSnapshot struct {
	Symbol        string    `json:"symbol" yaml:"symbol"`
	CompanyName   string    `json:"company_name" yaml:"company_name"`
	CurrentPrice  float64   `json:"current_price" yaml:"current_price"`
	PreviousClose *float64  `json:"previous_close,omitempty" yaml:"previous_close"`
	CurrentVolume int64     `json:"current_volume" yaml:"current_volume"`
	AverageVolume *float64  `json:"average_volume,omitempty" yaml:"average_volume"`
	FloatShares   *int64    `json:"float_shares,omitempty" yaml:"float_shares"`
	Source        string    `json:"source" yaml:"-"`
	FetchedAt     time.Time `json:"fetched_at" yaml:"-"`
}

// PriceChange returns the fractional change from the previous close, and false when it cannot be computed.
func (s *StockSnapshot) PriceChange() (float64, bool) {
	if s == nil || s.PreviousClose == nil || *s.PreviousClose <= 0 {
		return 0, false
	}
	return (s.CurrentPrice - *s.PreviousClose) / *s.PreviousClose, true
}

// DisplayName returns the company name, or the symbol when the name is unknown.
func (s *StockSnapshot) DisplayName() string {
	if s.CompanyName != "" {
		return s.CompanyName
	}
	return s.Symbol
}

// Criterion names
const (
	CriterionPriceIncrease = "price_increase"
	CriterionVolumeSurge   = "volume_surge"
	CriterionPriceRange    = "price_range"
	CriterionFloat         = "float"
	CriterionNews          = "news"
)

// CriterionResult is the verdict of one filter for one snapshot.
type CriterionResult struct {
	Name          string `json:"name"`
	Passed        bool   `json:"passed"`
	Indeterminate bool   `json:"indeterminate,omitempty"` // input data was missing
	Detail        string `json:"detail"`
}

// Outcome statuses
const (
	StatusPassed = "PASSED"
	StatusFailed = "FAILED"
	StatusError  = "ERROR"
)

// ScreeningOutcome is the result of screening one ticker.
type ScreeningOutcome struct {
	Symbol    string            `json:"symbol"`
	Snapshot  *StockSnapshot    `json:"snapshot,omitempty"`
	Criteria  []CriterionResult `json:"criteria,omitempty"`
	Passed    bool              `json:"passed"`
	Headlines []string          `json:"headlines,omitempty"`
	ErrorKind ErrorKind         `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	Err       error             `json:"-"`
}

// Status distinguishes a ticker that did not pass from one that could not be evaluated.
func (o ScreeningOutcome) Status() string {
	switch {
	case o.Err != nil || o.Error != "":
		return StatusError
	case o.Passed:
		return StatusPassed
	default:
		return StatusFailed
	}
}

// Criterion returns the named criterion result, if it was evaluated.
func (o ScreeningOutcome) Criterion(name string) (CriterionResult, bool) {
	for _, c := range o.Criteria {
		if c.Name == name {
			return c, true
		}
	}
	return CriterionResult{}, false
}

// ScreenResult is the raw output of a scheduler run.
type ScreenResult struct {
	Outcomes  []ScreeningOutcome
	Processed int
	Errored   int
	Passed    int
	StartedAt time.Time
	Elapsed   time.Duration
}

// RunSummary is the aggregated, serializable summary of one invocation.
type RunSummary struct {
	RunID        string             `json:"run_id"`
	StartedAt    time.Time          `json:"started_at"`
	Elapsed      time.Duration      `json:"elapsed_ns"`
	TotalChecked int                `json:"total_checked"`
	Processed    int                `json:"processed"`
	Errored      int                `json:"errored"`
	Failed       int                `json:"failed"`
	Passing      []ScreeningOutcome `json:"passing"`
	Errors       []ScreeningOutcome `json:"errors,omitempty"`
}
