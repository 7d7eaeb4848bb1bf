package marketdata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"momentum-screener/internal/types"
)

// FixtureEntry is one frozen ticker in a static fixture file.
type FixtureEntry struct {
	types.StockSnapshot `yaml:",inline"`
	Headlines           []string `yaml:"headlines"`
	// Error simulates a provider failure: DATA_UNAVAILABLE, TIMEOUT or RATE_LIMITED.
	Error string `yaml:"error"`
}

type fixtureFile struct {
	Snapshots []FixtureEntry `yaml:"snapshots"`
}

// Static serves frozen snapshots and headlines, for dry runs and reproducible replays.
// It satisfies both the market data and the news client contracts.
type Static struct {
	entries map[string]FixtureEntry
	byName  map[string]string
	fetched time.Time
}

// LoadStatic reads a YAML fixture file.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return NewStatic(f.Snapshots), nil
}

// NewStatic builds a static provider from in-memory entries.
func NewStatic(entries []FixtureEntry) *Static {
	s := &Static{
		entries: make(map[string]FixtureEntry, len(entries)),
		byName:  make(map[string]string),
		fetched: time.Now(),
	}
	for _, e := range entries {
		sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
		e.Symbol = sym
		s.entries[sym] = e
		if e.CompanyName != "" {
			s.byName[strings.ToLower(e.CompanyName)] = sym
		}
	}
	return s
}

func (s *Static) Name() string { return "static" }

// Symbols lists the fixture's tickers in sorted order.
func (s *Static) Symbols() []string {
	out := make([]string, 0, len(s.entries))
	for sym := range s.entries {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Static) Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entries[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("static %s: %w", symbol, types.ErrDataUnavailable)
	}
	if err := simulatedError(e.Error); err != nil {
		return nil, fmt.Errorf("static %s: %w", symbol, err)
	}
	snap := e.StockSnapshot
	snap.Source = s.Name()
	snap.FetchedAt = s.fetched
	return &snap, nil
}

// Search returns fixture headlines for a symbol or a company name.
func (s *Static) Search(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entries[strings.ToUpper(query)]
	if !ok {
		if sym, found := s.byName[strings.ToLower(query)]; found {
			e, ok = s.entries[sym]
		}
	}
	if !ok {
		return nil, nil
	}
	return append([]string(nil), e.Headlines...), nil
}

func simulatedError(kind string) error {
	switch types.ErrorKind(strings.ToUpper(kind)) {
	case types.KindNone:
		return nil
	case types.KindTimeout:
		return types.ErrTimeout
	case types.KindRateLimited:
		return types.ErrRateLimited
	default:
		return types.ErrDataUnavailable
	}
}
