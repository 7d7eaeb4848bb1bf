package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"momentum-screener/internal/api"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/ta"
	"momentum-screener/internal/types"
)

const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo pulls daily bars from the chart endpoint and name/float from quoteSummary.
type Yahoo struct {
	client  *api.Client
	avgDays int
	now     func() time.Time
}

// NewYahoo builds a Yahoo client. baseURL may be empty for the public endpoint.
func NewYahoo(baseURL string, timeout time.Duration, avgDays int) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &Yahoo{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(baseURL, "/")),
			api.WithTimeout(timeout),
			api.WithHeaders(api.YahooFinanceHeaders()),
			api.WithLogging(true),
		),
		avgDays: avgDays,
		now:     time.Now,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type rawInt struct {
	Raw int64 `json:"raw"`
}

type yahooQuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				ShortName string `json:"shortName"`
				LongName  string `json:"longName"`
			} `json:"price"`
			DefaultKeyStatistics struct {
				FloatShares       *rawInt `json:"floatShares"`
				SharesOutstanding *rawInt `json:"sharesOutstanding"`
			} `json:"defaultKeyStatistics"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// Fetch builds a snapshot for symbol. The chart call is required; a failed quoteSummary
// only leaves name and float empty unless the provider is throttling or timing out.
func (y *Yahoo) Fetch(ctx context.Context, symbol string) (*types.StockSnapshot, error) {
	candles, meta, err := y.chart(ctx, symbol)
	if err != nil {
		return nil, err
	}

	last := candles[len(candles)-1]
	snap := &types.StockSnapshot{
		Symbol:        symbol,
		CompanyName:   firstNonEmpty(meta.LongName, meta.ShortName),
		CurrentPrice:  meta.RegularMarketPrice,
		CurrentVolume: int64(last.Vol),
		Source:        y.Name(),
		FetchedAt:     y.now(),
	}
	if snap.CurrentPrice <= 0 {
		snap.CurrentPrice = last.Close
	}
	if pc, ok := ta.PreviousClose(candles); ok {
		snap.PreviousClose = &pc
	}
	if avg, ok := ta.AverageVolume(candles, y.avgDays); ok {
		snap.AverageVolume = &avg
	}

	name, float, err := y.profile(ctx, symbol)
	switch {
	case err == nil:
		if name != "" {
			snap.CompanyName = name
		}
		snap.FloatShares = float
	case errors.Is(err, types.ErrRateLimited), errors.Is(err, types.ErrTimeout), ctx.Err() != nil:
		return nil, err
	default:
		logger.Debug(ctx, "Yahoo quoteSummary unavailable, float left empty", "symbol", symbol, "error", err)
	}

	return snap, nil
}

type chartMeta struct {
	RegularMarketPrice float64
	LongName           string
	ShortName          string
}

func (y *Yahoo) chart(ctx context.Context, symbol string) ([]types.Candle, chartMeta, error) {
	path := fmt.Sprintf("/v8/finance/chart/%s?interval=1d&range=3mo", url.PathEscape(symbol))
	resp, err := y.client.GET(ctx, path)
	if err != nil {
		return nil, chartMeta{}, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}

	var body yahooChartResponse
	if err := resp.ParseJSON(&body); err != nil {
		return nil, chartMeta{}, fmt.Errorf("yahoo chart %s: %w: %w", symbol, types.ErrDataUnavailable, err)
	}
	if body.Chart.Error != nil {
		return nil, chartMeta{}, fmt.Errorf("yahoo chart %s: %w: %s", symbol, types.ErrDataUnavailable, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, chartMeta{}, fmt.Errorf("yahoo chart %s: %w: empty result", symbol, types.ErrDataUnavailable)
	}

	res := body.Chart.Result[0]
	q := res.Indicators.Quote[0]
	candles := make([]types.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		// Yahoo sends nulls for halted sessions
		if i >= len(q.Close) || q.Close[i] == 0 {
			continue
		}
		c := types.Candle{Ts: ts, Close: q.Close[i]}
		if i < len(q.Open) {
			c.Open = q.Open[i]
		}
		if i < len(q.High) {
			c.High = q.High[i]
		}
		if i < len(q.Low) {
			c.Low = q.Low[i]
		}
		if i < len(q.Volume) {
			c.Vol = float64(q.Volume[i])
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, chartMeta{}, fmt.Errorf("yahoo chart %s: %w: no bars", symbol, types.ErrDataUnavailable)
	}

	return candles, chartMeta{
		RegularMarketPrice: res.Meta.RegularMarketPrice,
		LongName:           res.Meta.LongName,
		ShortName:          res.Meta.ShortName,
	}, nil
}

// profile returns the company name and float. Float falls back to shares outstanding.
func (y *Yahoo) profile(ctx context.Context, symbol string) (string, *int64, error) {
	path := fmt.Sprintf("/v10/finance/quoteSummary/%s?modules=price,defaultKeyStatistics", url.PathEscape(symbol))
	resp, err := y.client.GET(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("yahoo quoteSummary %s: %w", symbol, err)
	}

	var body yahooQuoteSummaryResponse
	if err := resp.ParseJSON(&body); err != nil {
		return "", nil, err
	}
	if len(body.QuoteSummary.Result) == 0 {
		return "", nil, fmt.Errorf("yahoo quoteSummary %s: %w", symbol, types.ErrDataUnavailable)
	}

	r := body.QuoteSummary.Result[0]
	name := firstNonEmpty(r.Price.LongName, r.Price.ShortName)

	var float *int64
	stats := r.DefaultKeyStatistics
	switch {
	case stats.FloatShares != nil && stats.FloatShares.Raw > 0:
		v := stats.FloatShares.Raw
		float = &v
	case stats.SharesOutstanding != nil && stats.SharesOutstanding.Raw > 0:
		v := stats.SharesOutstanding.Raw
		float = &v
	}
	return name, float, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
