package news

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"momentum-screener/internal/logger"
	"momentum-screener/internal/trace"
)

// searcher is the raw headline lookup the service caches.
type searcher interface {
	Scrape(ctx context.Context, query string, maxHeadlines int) ([]string, error)
}

// Service provides cached headline search
type Service struct {
	scraper searcher
	cache   *headlineCache
	group   singleflight.Group
	cfg     *ServiceConfig
}

// ServiceConfig configures the news service
type ServiceConfig struct {
	MaxHeadlines   int           // Maximum headlines kept per query
	CacheDuration  time.Duration // How long to cache headlines
	ScraperTimeout time.Duration // Timeout for one search
	DaysBack       int           // Restrict results to the last N days
	BaseURL        string
	Selector       string
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxHeadlines:   20,
		CacheDuration:  1 * time.Hour,
		ScraperTimeout: 10 * time.Second,
		DaysBack:       1,
	}
}

// headlineCache stores headlines per query temporarily
type headlineCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	headlines []string
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// get retrieves cached headlines if still fresh
func (c *headlineCache) get(key string) ([]string, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || c.now().Sub(entry.timestamp) > c.ttl {
		return nil, false
	}
	return entry.headlines, true
}

func (c *headlineCache) set(key string, headlines []string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{
		headlines: headlines,
		timestamp: c.now(),
	}
	c.cleanupLocked()
}

// cleanupLocked removes expired entries; callers hold the write lock
func (c *headlineCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, key)
		}
	}
}

func (c *headlineCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// NewService creates a news service backed by the Google News scraper
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return newService(NewScraper(cfg.BaseURL, cfg.Selector, cfg.DaysBack, cfg.ScraperTimeout), cfg)
}

func newService(s searcher, cfg *ServiceConfig) *Service {
	return &Service{
		scraper: s,
		cache:   newHeadlineCache(cfg.CacheDuration),
		cfg:     cfg,
	}
}

// Search returns recent headlines for query. Concurrent searches for the same query
// share one scrape, and results are cached for CacheDuration. Failures are not cached.
func (s *Service) Search(ctx context.Context, query string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := s.cache.get(key); ok {
		logger.Debug(ctx, "Using cached headlines", "query", query, "headlines", len(cached))
		return copyHeadlines(cached), nil
	}

	ctx, span := trace.StartSpan(ctx, "news.Search")
	defer span.End()

	// The shared scrape is detached from any one caller so a canceled caller
	// cannot fail the others; each caller still stops waiting at its own deadline.
	ch := s.group.DoChan(key, func() (any, error) {
		scrapeCtx := context.WithoutCancel(ctx)
		if s.cfg.ScraperTimeout > 0 {
			var cancel context.CancelFunc
			scrapeCtx, cancel = context.WithTimeout(scrapeCtx, s.cfg.ScraperTimeout)
			defer cancel()
		}
		headlines, err := s.scraper.Scrape(scrapeCtx, query, s.cfg.MaxHeadlines)
		if err != nil {
			return nil, err
		}
		s.cache.set(key, headlines)
		return headlines, nil
	})

	select {
	case <-ctx.Done():
		logger.Warn(ctx, "Stopped waiting for news search", "query", query, "error", ctx.Err())
		return nil, fmt.Errorf("news search %q: %w", query, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			logger.ErrorWithErr(ctx, "News search failed", res.Err, "query", query)
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug(ctx, "Shared in-flight news search", "query", query)
		}
		return copyHeadlines(res.Val.([]string)), nil
	}
}

func copyHeadlines(h []string) []string {
	return append([]string(nil), h...)
}
