// Package report aggregates screening outcomes into a run summary and renders it
// for the console and for timestamped report files.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momentum-screener/internal/types"
)

// Build aggregates outcomes into a RunSummary. Passing and errored outcomes are sorted by
// symbol so identical inputs always produce identical reports. An empty runID gets a fresh UUID.
func Build(runID string, outcomes []types.ScreeningOutcome, startedAt time.Time, elapsed time.Duration) types.RunSummary {
	if runID == "" {
		runID = uuid.NewString()
	}
	s := types.RunSummary{
		RunID:        runID,
		StartedAt:    startedAt,
		Elapsed:      elapsed,
		TotalChecked: len(outcomes),
		Processed:    len(outcomes),
		Passing:      []types.ScreeningOutcome{},
	}
	for _, o := range outcomes {
		switch o.Status() {
		case types.StatusPassed:
			s.Passing = append(s.Passing, o)
		case types.StatusError:
			s.Errors = append(s.Errors, o)
		default:
			s.Failed++
		}
	}
	s.Errored = len(s.Errors)
	sort.SliceStable(s.Passing, func(i, j int) bool { return s.Passing[i].Symbol < s.Passing[j].Symbol })
	sort.SliceStable(s.Errors, func(i, j int) bool { return s.Errors[i].Symbol < s.Errors[j].Symbol })
	return s
}

// FromResult is Build over a scheduler result.
func FromResult(runID string, res *types.ScreenResult) types.RunSummary {
	return Build(runID, res.Outcomes, res.StartedAt, res.Elapsed)
}

// PrintConsole renders the summary with per-criterion detail for every qualified stock.
func PrintConsole(w io.Writer, s types.RunSummary) error {
	return render(w, s, true)
}

func render(w io.Writer, s types.RunSummary, criteria bool) error {
	var b strings.Builder

	fmt.Fprintln(&b, "--- Screening Complete ---")
	fmt.Fprintf(&b, "Run ID:          %s\n", s.RunID)
	fmt.Fprintf(&b, "Started:         %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Elapsed:         %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "Tickers checked: %d\n", s.TotalChecked)
	fmt.Fprintf(&b, "Qualified:       %d\n", len(s.Passing))
	fmt.Fprintf(&b, "Did not pass:    %d\n", s.Failed)
	fmt.Fprintf(&b, "Errors:          %d\n", s.Errored)
	fmt.Fprintln(&b)

	if len(s.Passing) == 0 {
		fmt.Fprintln(&b, "No stocks met all the specified criteria.")
	} else {
		fmt.Fprintln(&b, "Qualified Stocks:")
		for _, o := range s.Passing {
			writeStock(&b, o, criteria)
			fmt.Fprintln(&b, strings.Repeat("-", 30))
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Could not be evaluated (errors, not rejections):")
		for _, o := range s.Errors {
			fmt.Fprintf(&b, "  %-8s %-16s %s\n", o.Symbol, o.ErrorKind, o.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeStock(b *strings.Builder, o types.ScreeningOutcome, criteria bool) {
	snap := o.Snapshot
	if snap == nil {
		snap = &types.StockSnapshot{Symbol: o.Symbol}
	}
	fmt.Fprintf(b, "  Ticker: %s (%s)\n", o.Symbol, snap.DisplayName())
	fmt.Fprintf(b, "    Current Price:  %s\n", Money(snap.CurrentPrice))
	fmt.Fprintf(b, "    Volume:         %d\n", snap.CurrentVolume)
	if pct, ok := snap.PriceChange(); ok {
		fmt.Fprintf(b, "    Increase:       %s\n", Percent(pct))
	}
	if snap.FloatShares != nil {
		fmt.Fprintf(b, "    Float (M):      %s\n", Millions(*snap.FloatShares))
	}
	if criteria {
		for _, c := range o.Criteria {
			fmt.Fprintf(b, "    [%s] %-15s %s\n", mark(c), c.Name, c.Detail)
		}
	}
	if len(o.Headlines) > 0 {
		fmt.Fprintln(b, "    Relevant News Headlines:")
		for _, h := range o.Headlines {
			fmt.Fprintf(b, "      - %s\n", h)
		}
	}
}

func mark(c types.CriterionResult) string {
	switch {
	case c.Passed:
		return "PASS"
	case c.Indeterminate:
		return "N/A "
	default:
		return "FAIL"
	}
}

var hundred = decimal.NewFromInt(100)

// Money formats a price as dollars with two decimals.
func Money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// Percent formats a fraction as a signed percentage, 0.2 => "+20.00%".
func Percent(frac float64) string {
	d := decimal.NewFromFloat(frac).Mul(hundred)
	s := d.StringFixed(2)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

// Millions formats a share count in millions.
func Millions(shares int64) string {
	return decimal.NewFromInt(shares).Shift(-6).StringFixed(2) + "M"
}
