package screenerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/trace"
	"momentum-screener/internal/types"
)

type observableScreener struct {
	screener interfaces.Screener
}

var _ interfaces.Screener = (*observableScreener)(nil)

func Wrap(s interfaces.Screener) interfaces.Screener {
	return &observableScreener{
		screener: s,
	}
}

func (so *observableScreener) Run(ctx context.Context, tickers []string) (*types.ScreenResult, error) {
	ctx, span := trace.StartSpan(ctx, "screener.Run")
	defer span.End()

	start := time.Now()

	logger.Info(ctx, "Starting screening run",
		"tickers", len(tickers),
	)

	result, err := so.screener.Run(ctx, tickers)
	if err != nil {
		logger.ErrorWithErr(ctx, "Screening run failed", err,
			"tickers", len(tickers),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("screener.processed", result.Processed),
		attribute.Int("screener.passed", result.Passed),
		attribute.Int("screener.errored", result.Errored),
	)
	logger.Info(ctx, "Screening run completed",
		"processed", result.Processed,
		"passed", result.Passed,
		"errored", result.Errored,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
