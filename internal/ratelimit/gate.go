package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"momentum-screener/internal/types"
)

// Gate enforces a minimum spacing between permitted calls.
// A burst of one means a caller never gets a second token until delay has elapsed since the last grant.
type Gate struct {
	name    string
	delay   time.Duration
	limiter *rate.Limiter
}

// NewGate creates a gate. A delay of zero or less never blocks.
func NewGate(name string, delay time.Duration) *Gate {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Gate{
		name:    name,
		delay:   delay,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the caller may make its call and returns how long it waited.
func (g *Gate) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rate gate %s: %w", g.name, err)
	}
	return time.Since(start), nil
}

func (g *Gate) Name() string         { return g.name }
func (g *Gate) Delay() time.Duration { return g.delay }

// MultiGate hands out gates per external client.
// In GLOBAL mode every client shares one clock; in PER_CLIENT mode each client gets its own.
type MultiGate struct {
	mode  string
	delay time.Duration
	gates map[string]*Gate
	mu    sync.RWMutex
}

// NewMultiGate creates a gate set for mode (GLOBAL or PER_CLIENT).
func NewMultiGate(mode string, delay time.Duration) (*MultiGate, error) {
	mode = strings.ToUpper(mode)
	if mode == "" {
		mode = types.RateLimitGlobal
	}
	if mode != types.RateLimitGlobal && mode != types.RateLimitPerClient {
		return nil, fmt.Errorf("%w: unknown rate limit mode %q", types.ErrConfigInvalid, mode)
	}
	return &MultiGate{
		mode:  mode,
		delay: delay,
		gates: make(map[string]*Gate),
	}, nil
}

// Gate returns the gate for client, creating it on first use.
func (m *MultiGate) Gate(client string) *Gate {
	key := client
	if m.mode == types.RateLimitGlobal {
		key = "global"
	}

	m.mu.RLock()
	g, ok := m.gates[key]
	m.mu.RUnlock()
	if ok {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gates[key]; ok {
		return g
	}
	g = NewGate(key, m.delay)
	m.gates[key] = g
	return g
}

// Wait waits on the gate for client.
func (m *MultiGate) Wait(ctx context.Context, client string) (time.Duration, error) {
	return m.Gate(client).Wait(ctx)
}

func (m *MultiGate) Mode() string { return m.mode }
