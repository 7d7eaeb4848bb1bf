package report

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-screener/internal/types"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func passing(symbol string, price, prev float64) types.ScreeningOutcome {
	return types.ScreeningOutcome{
		Symbol: symbol,
		Snapshot: &types.StockSnapshot{
			Symbol:        symbol,
			CompanyName:   symbol + " Corp",
			CurrentPrice:  price,
			PreviousClose: f64(prev),
			CurrentVolume: 6_000_000,
			AverageVolume: f64(1_000_000),
			FloatShares:   i64(30_000_000),
		},
		Criteria: []types.CriterionResult{
			{Name: types.CriterionPriceIncrease, Passed: true, Detail: "+20.00% (need >= 10.00%)"},
			{Name: types.CriterionNews, Passed: true, Detail: "1 of 2 headlines matched a keyword"},
		},
		Passed:    true,
		Headlines: []string{symbol + " wins FDA approval"},
	}
}

func rejected(symbol string) types.ScreeningOutcome {
	return types.ScreeningOutcome{
		Symbol:   symbol,
		Snapshot: &types.StockSnapshot{Symbol: symbol, CurrentPrice: 4},
		Criteria: []types.CriterionResult{{Name: types.CriterionPriceIncrease, Detail: "+1.00% (need >= 10.00%)"}},
	}
}

func errored(symbol string, kind types.ErrorKind) types.ScreeningOutcome {
	err := fmt.Errorf("fetch %s: %w", symbol, types.ErrRateLimited)
	return types.ScreeningOutcome{Symbol: symbol, Err: err, Error: err.Error(), ErrorKind: kind}
}

func sampleOutcomes() []types.ScreeningOutcome {
	return []types.ScreeningOutcome{
		passing("XYZ", 3.30, 3.00),
		rejected("LOW"),
		errored("ERR", types.KindRateLimited),
		passing("ABC", 12, 10),
		rejected("MID"),
	}
}

var started = time.Date(2024, 9, 18, 9, 30, 5, 0, time.UTC)

func TestBuild(t *testing.T) {
	s := Build("run-1", sampleOutcomes(), started, 2*time.Second)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 5, s.TotalChecked)
	assert.Equal(t, 5, s.Processed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Errored)
	require.Len(t, s.Passing, 2)
	assert.Equal(t, "ABC", s.Passing[0].Symbol)
	assert.Equal(t, "XYZ", s.Passing[1].Symbol)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "ERR", s.Errors[0].Symbol)
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build("r", sampleOutcomes(), started, time.Second)

	reversed := sampleOutcomes()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b := Build("r", reversed, started, time.Second)

	assert.Equal(t, a, b)
}

func TestBuildGeneratesRunID(t *testing.T) {
	s := Build("", nil, started, 0)
	_, err := uuid.Parse(s.RunID)
	assert.NoError(t, err)
	assert.NotNil(t, s.Passing)
	assert.Equal(t, 0, s.TotalChecked)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$12.00", Money(12))
	assert.Equal(t, "$5.50", Money(5.5))
	assert.Equal(t, "+20.00%", Percent(0.2))
	assert.Equal(t, "-3.50%", Percent(-0.035))
	assert.Equal(t, "0.00%", Percent(0))
	assert.Equal(t, "30.00M", Millions(30_000_000))
	assert.Equal(t, "8.25M", Millions(8_250_000))
}

func TestPrintConsoleSeparatesErrorsFromRejections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintConsole(&buf, Build("run-1", sampleOutcomes(), started, time.Second)))
	out := buf.String()

	assert.Contains(t, out, "Tickers checked: 5")
	assert.Contains(t, out, "Did not pass:    2")
	assert.Contains(t, out, "Errors:          1")
	assert.Contains(t, out, "Ticker: ABC (ABC Corp)")
	assert.Contains(t, out, "Current Price:  $12.00")
	assert.Contains(t, out, "Increase:       +20.00%")
	assert.Contains(t, out, "Float (M):      30.00M")
	assert.Contains(t, out, "[PASS] price_increase")
	assert.Contains(t, out, "- ABC wins FDA approval")
	assert.Contains(t, out, "Could not be evaluated (errors, not rejections):")
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, "RATE_LIMITED")
	assert.NotContains(t, out, "LOW")
}

func TestPrintConsoleNoMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintConsole(&buf, Build("r", []types.ScreeningOutcome{rejected("LOW")}, started, 0)))
	assert.Contains(t, buf.String(), "No stocks met all the specified criteria.")
	assert.NotContains(t, buf.String(), "Could not be evaluated")
}

func TestWriterAllFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	s := Build("run-1", sampleOutcomes(), started, time.Second)

	paths, err := NewWriter(dir, []string{FormatText, FormatJSON, FormatCSV}).Write(s)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "screening_20240918_093005.txt"),
		filepath.Join(dir, "screening_20240918_093005.json"),
		filepath.Join(dir, "screening_20240918_093005.csv"),
	}, paths)

	txt, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(txt), "Ticker: XYZ (XYZ Corp)")
	assert.NotContains(t, string(txt), "[PASS]", "criteria detail is console only")

	raw, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	var decoded types.RunSummary
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 5, decoded.TotalChecked)
	require.Len(t, decoded.Passing, 2)
	assert.Equal(t, 12.0, decoded.Passing[0].Snapshot.CurrentPrice)

	f, err := os.Open(paths[2])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"ABC", "ABC Corp", "PASSED", "12.00", "10.00", "6000000", "1000000", "+20.00", "30.00", "", "", "ABC wins FDA approval"}, rows[1])
	assert.Equal(t, "ERR", rows[3][0])
	assert.Equal(t, "ERROR", rows[3][2])
	assert.Equal(t, "RATE_LIMITED", rows[3][9])
}

func TestWriterUnknownFormat(t *testing.T) {
	_, err := NewWriter(t.TempDir(), []string{"xml"}).Write(Build("r", nil, started, 0))
	assert.Error(t, err)
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "screening_20240101_090000.txt")
	fresh := filepath.Join(dir, "screening_20240918_090000.json")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("report body"), 0o644))
	}
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	n, err := CompressOlder(dir, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, unrelated)

	gz, err := os.Open(old + ".gz")
	require.NoError(t, err)
	defer gz.Close()
	zr, err := gzip.NewReader(gz)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "report body", string(body))
}

func TestCompressOlderDisabled(t *testing.T) {
	n, err := CompressOlder(filepath.Join(t.TempDir(), "missing"), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = CompressOlder(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
