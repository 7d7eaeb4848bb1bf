// Package universe provides the ticker symbols a screening run evaluates.
package universe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"momentum-screener/internal/api"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/types"
)

const DefaultNasdaqURL = "https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt"

// Normalize upper-cases and trims symbols, drops blanks and anything with whitespace,
// removes duplicates keeping first occurrence, and truncates to limit when limit > 0.
func Normalize(symbols []string, limit int) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || strings.ContainsAny(s, " \t") {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func unavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, source, err)
}

// Static serves a fixed list.
type Static struct {
	symbols []string
	limit   int
}

func NewStatic(symbols []string, limit int) *Static {
	return &Static{symbols: symbols, limit: limit}
}

func (s *Static) Name() string { return "static" }

func (s *Static) List(ctx context.Context) ([]string, error) {
	out := Normalize(s.symbols, s.limit)
	if len(out) == 0 {
		return nil, unavailable(s.Name(), errors.New("no symbols configured"))
	}
	return out, nil
}

// File reads one symbol per line. Blank lines and lines starting with # are ignored,
// and commas also separate symbols.
type File struct {
	path  string
	limit int
}

func NewFile(path string, limit int) *File {
	return &File{path: path, limit: limit}
}

func (f *File) Name() string { return "file" }

func (f *File) List(ctx context.Context) ([]string, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, unavailable(f.Name(), err)
	}
	defer fh.Close()

	var symbols []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.Split(line, ",")...)
	}
	if err := sc.Err(); err != nil {
		return nil, unavailable(f.Name(), err)
	}

	out := Normalize(symbols, f.limit)
	if len(out) == 0 {
		return nil, unavailable(f.Name(), fmt.Errorf("%s has no symbols", f.path))
	}
	return out, nil
}

// Nasdaq downloads the nasdaqtrader symbol directory.
type Nasdaq struct {
	url    string
	client *api.Client
	retry  *api.RetryConfig
	limit  int
}

func NewNasdaq(url string, timeout time.Duration, limit int) *Nasdaq {
	if url == "" {
		url = DefaultNasdaqURL
	}
	return &Nasdaq{
		url:    url,
		client: api.NewClient(api.WithTimeout(timeout), api.WithHeaders(api.BrowserHeaders()), api.WithLogging(true)),
		retry:  api.DefaultRetryConfig(),
		limit:  limit,
	}
}

func (n *Nasdaq) Name() string { return "nasdaq" }

func (n *Nasdaq) List(ctx context.Context) ([]string, error) {
	resp, err := n.client.GETWithRetry(ctx, n.url, n.retry)
	if err != nil {
		return nil, unavailable(n.Name(), err)
	}
	symbols, err := ParseNasdaqListing(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, unavailable(n.Name(), err)
	}
	out := Normalize(symbols, n.limit)
	if len(out) == 0 {
		return nil, unavailable(n.Name(), errors.New("listing is empty"))
	}
	return out, nil
}

// ParseNasdaqListing reads the pipe-delimited directory, skipping test issues, ETFs
// and the trailing file-creation footer.
func ParseNasdaqListing(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	symIdx, ok := col["Symbol"]
	if !ok {
		return nil, errors.New("listing has no Symbol column")
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read listing: %w", err)
		}
		if symIdx >= len(rec) || strings.HasPrefix(rec[0], "File Creation Time") {
			continue
		}
		if field(rec, "Test Issue") == "Y" || field(rec, "ETF") == "Y" {
			continue
		}
		out = append(out, rec[symIdx])
	}
	return out, nil
}

// HTML scrapes symbols from any page, such as a top-gainers table, with a CSS selector.
type HTML struct {
	url      string
	selector string
	client   *api.Client
	limit    int
}

func NewHTML(url, selector string, timeout time.Duration, limit int) *HTML {
	return &HTML{
		url:      url,
		selector: selector,
		client:   api.NewClient(api.WithTimeout(timeout), api.WithHeaders(api.BrowserHeaders())),
		limit:    limit,
	}
}

func (h *HTML) Name() string { return "html" }

func (h *HTML) List(ctx context.Context) ([]string, error) {
	resp, err := h.client.GET(ctx, h.url)
	if err != nil {
		return nil, unavailable(h.Name(), err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, unavailable(h.Name(), err)
	}

	var symbols []string
	doc.Find(h.selector).Each(func(_ int, s *goquery.Selection) {
		symbols = append(symbols, s.Text())
	})

	out := Normalize(symbols, h.limit)
	if len(out) == 0 {
		return nil, unavailable(h.Name(), fmt.Errorf("selector %q matched nothing on %s", h.selector, h.url))
	}
	logger.Debug(ctx, "Scraped ticker universe", "url", h.url, "symbols", len(out))
	return out, nil
}

// InstrumentLister lists tradable equity symbols on a broker exchange.
type InstrumentLister interface {
	Instruments(ctx context.Context) ([]string, error)
}

// Kite lists every equity instrument on the configured Kite exchange, sorted.
type Kite struct {
	lister InstrumentLister
	limit  int
}

func NewKite(l InstrumentLister, limit int) *Kite {
	return &Kite{lister: l, limit: limit}
}

func (k *Kite) Name() string { return "kite" }

func (k *Kite) List(ctx context.Context) ([]string, error) {
	symbols, err := k.lister.Instruments(ctx)
	if err != nil {
		return nil, unavailable(k.Name(), err)
	}
	sort.Strings(symbols)
	out := Normalize(symbols, k.limit)
	if len(out) == 0 {
		return nil, unavailable(k.Name(), errors.New("no equity instruments"))
	}
	return out, nil
}
