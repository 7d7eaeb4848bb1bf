// Package metrics records per-run screening counters in a private Prometheus registry
// and writes them as a node_exporter textfile when the run ends.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"momentum-screener/internal/types"
)

// Recorder is safe for concurrent use. A nil *Recorder discards everything.
type Recorder struct {
	reg *prometheus.Registry

	outcomes      *prometheus.CounterVec
	externalCalls *prometheus.CounterVec
	gateWait      *prometheus.HistogramVec
	fetchDuration prometheus.Histogram
	runDuration   prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_outcomes_total",
				Help: "Screened tickers by outcome status (PASSED, FAILED, ERROR)",
			},
			[]string{"status"},
		),
		externalCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_external_calls_total",
				Help: "Calls to external clients by client and result",
			},
			[]string{"client", "result"},
		),
		gateWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screener_gate_wait_seconds",
				Help:    "Time spent waiting on the rate-limit gate before an external call",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"client"},
		),
		fetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "screener_fetch_duration_seconds",
				Help:    "Market data fetch latency, excluding gate wait",
				Buckets: prometheus.DefBuckets,
			},
		),
		runDuration: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "screener_run_duration_seconds",
				Help: "Wall time of the last screening run",
			},
		),
	}
}

func (r *Recorder) Outcome(status string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(status).Inc()
}

// ExternalCall counts one call; result is "ok" or the lower-cased error kind.
func (r *Recorder) ExternalCall(client string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(types.KindOf(err)))
	}
	r.externalCalls.WithLabelValues(client, result).Inc()
}

func (r *Recorder) GateWait(client string, d time.Duration) {
	if r == nil {
		return
	}
	r.gateWait.WithLabelValues(client).Observe(d.Seconds())
}

func (r *Recorder) FetchDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.fetchDuration.Observe(d.Seconds())
}

func (r *Recorder) RunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
