package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("yahoo chart: %w", ErrRateLimited), KindRateLimited},
		{fmt.Errorf("fetch AMC: %w", ErrDataUnavailable), KindDataUnavailable},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{ErrTimeout, KindTimeout},
		{context.Canceled, KindCanceled},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, KindOf(c.err), "err=%v", c.err)
	}
}

func TestPriceChange(t *testing.T) {
	prev := 10.0
	s := &StockSnapshot{Symbol: "ABC", CurrentPrice: 12, PreviousClose: &prev}
	pct, ok := s.PriceChange()
	assert.True(t, ok)
	assert.InDelta(t, 0.20, pct, 1e-9)

	s.PreviousClose = nil
	_, ok = s.PriceChange()
	assert.False(t, ok)

	zero := 0.0
	s.PreviousClose = &zero
	_, ok = s.PriceChange()
	assert.False(t, ok)
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, StatusPassed, ScreeningOutcome{Passed: true}.Status())
	assert.Equal(t, StatusFailed, ScreeningOutcome{}.Status())
	assert.Equal(t, StatusError, ScreeningOutcome{Err: ErrTimeout}.Status())
	assert.Equal(t, StatusError, ScreeningOutcome{Error: "timeout"}.Status())
}
