package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-screener/internal/types"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Outcome(types.StatusPassed)
	r.Outcome(types.StatusError)
	r.Outcome(types.StatusError)
	r.ExternalCall("market", nil)
	r.ExternalCall("market", fmt.Errorf("x: %w", types.ErrRateLimited))
	r.GateWait("market", 10*time.Millisecond)
	r.FetchDuration(time.Second)
	r.RunDuration(3 * time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues(types.StatusPassed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues(types.StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.externalCalls.WithLabelValues("market", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.externalCalls.WithLabelValues("market", "rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.runDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(r.gateWait))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Outcome(types.StatusPassed)
	r.ExternalCall("news", nil)
	r.GateWait("news", time.Second)
	r.FetchDuration(time.Second)
	r.RunDuration(time.Second)
	assert.NoError(t, r.WriteTextfile("ignored.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Outcome(types.StatusFailed)

	path := filepath.Join(t.TempDir(), "screener.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `screener_outcomes_total{status="FAILED"} 1`)
}
