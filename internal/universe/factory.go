package universe

import (
	"context"
	"fmt"

	"momentum-screener/internal/interfaces"
	"momentum-screener/internal/logger"
	"momentum-screener/internal/store"
	"momentum-screener/internal/types"
)

// New builds the ticker source named by cfg.Universe.Source. lister is only needed for KITE.
func New(cfg *store.Config, lister InstrumentLister) (interfaces.TickerSource, error) {
	u := cfg.Universe
	timeout := cfg.Performance.RequestTimeout()

	var src interfaces.TickerSource
	switch u.Source {
	case store.UniverseStatic:
		src = NewStatic(u.Static, u.Limit)
	case store.UniverseFile:
		src = NewFile(u.File, u.Limit)
	case store.UniverseNasdaq:
		src = NewNasdaq(u.URL, timeout, u.Limit)
	case store.UniverseHTML:
		src = NewHTML(u.URL, u.Selector, timeout, u.Limit)
	case store.UniverseKite:
		if lister == nil {
			return nil, fmt.Errorf("%w: universe.source KITE requires market_data.provider KITE", types.ErrConfigInvalid)
		}
		src = NewKite(lister, u.Limit)
	default:
		return nil, fmt.Errorf("%w: unknown universe source %q", types.ErrConfigInvalid, u.Source)
	}
	return observed{src}, nil
}

// observed traces and logs every listing.
type observed struct {
	inner interfaces.TickerSource
}

func (o observed) Name() string { return o.inner.Name() }

func (o observed) List(ctx context.Context) ([]string, error) {
	op := logger.StartOperation(ctx, "universe.List", "source", o.inner.Name())
	symbols, err := o.inner.List(op.GetContext())
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	op.End("symbols", len(symbols))
	logger.Info(ctx, "Ticker universe loaded", "source", o.inner.Name(), "symbols", len(symbols))
	return symbols, nil
}
