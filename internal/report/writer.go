package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"momentum-screener/internal/types"
)

// Report formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

const filePrefix = "screening_"

var extensions = map[string]string{
	FormatText: ".txt",
	FormatJSON: ".json",
	FormatCSV:  ".csv",
}

type Writer struct {
	dir     string
	formats []string
}

// NewWriter writes each of formats into dir. No formats means text only.
func NewWriter(dir string, formats []string) *Writer {
	if len(formats) == 0 {
		formats = []string{FormatText}
	}
	return &Writer{dir: dir, formats: formats}
}

// BaseName returns screening_YYYYMMDD_HHMMSS for the run start time.
func BaseName(startedAt time.Time) string {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return filePrefix + startedAt.Format("20060102_150405")
}

// Write renders s in every configured format and returns the paths written.
func (w *Writer) Write(s types.RunSummary) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	base := filepath.Join(w.dir, BaseName(s.StartedAt))
	paths := make([]string, 0, len(w.formats))
	for _, format := range w.formats {
		ext, ok := extensions[format]
		if !ok {
			return paths, fmt.Errorf("unknown report format %q", format)
		}
		p := base + ext
		if err := writeFile(p, format, s); err != nil {
			return paths, fmt.Errorf("write %s report: %w", format, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeFile(path, format string, s types.RunSummary) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(s)
	case FormatCSV:
		err = writeCSV(out, s)
	default:
		err = render(out, s, false)
	}
	if err != nil {
		return err
	}
	return out.Close()
}

var csvHeader = []string{
	"symbol", "name", "status", "price", "previous_close", "volume", "average_volume",
	"increase_pct", "float_millions", "error_kind", "error", "headlines",
}

// writeCSV emits one row per passing stock followed by one row per errored ticker.
func writeCSV(f *os.File, s types.RunSummary) error {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	rows := make([]types.ScreeningOutcome, 0, len(s.Passing)+len(s.Errors))
	rows = append(rows, s.Passing...)
	rows = append(rows, s.Errors...)
	for _, o := range rows {
		if err := w.Write(csvRow(o)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func csvRow(o types.ScreeningOutcome) []string {
	rec := make([]string, len(csvHeader))
	rec[0] = o.Symbol
	rec[2] = o.Status()
	if snap := o.Snapshot; snap != nil {
		rec[1] = snap.DisplayName()
		rec[3] = strings.TrimPrefix(Money(snap.CurrentPrice), "$")
		if snap.PreviousClose != nil {
			rec[4] = strings.TrimPrefix(Money(*snap.PreviousClose), "$")
		}
		rec[5] = strconv.FormatInt(snap.CurrentVolume, 10)
		if snap.AverageVolume != nil {
			rec[6] = strconv.FormatFloat(*snap.AverageVolume, 'f', 0, 64)
		}
		if pct, ok := snap.PriceChange(); ok {
			rec[7] = strings.TrimSuffix(Percent(pct), "%")
		}
		if snap.FloatShares != nil {
			rec[8] = strings.TrimSuffix(Millions(*snap.FloatShares), "M")
		}
	}
	rec[9] = string(o.ErrorKind)
	rec[10] = o.Error
	rec[11] = strings.Join(o.Headlines, " | ")
	return rec
}
