package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"momentum-screener/internal/logger"
	"momentum-screener/internal/types"
)

const (
	DefaultBaseURL  = "https://news.google.com"
	DefaultSelector = "h3, h4"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Scraper pulls headline text from a Google News search results page.
type Scraper struct {
	baseURL  string
	selector string
	daysBack int
	timeout  time.Duration
}

// NewScraper creates a scraper. Empty baseURL or selector fall back to Google News defaults.
func NewScraper(baseURL, selector string, daysBack int, timeout time.Duration) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if selector == "" {
		selector = DefaultSelector
	}
	return &Scraper{
		baseURL:  strings.TrimRight(baseURL, "/"),
		selector: selector,
		daysBack: daysBack,
		timeout:  timeout,
	}
}

// SearchURL builds the results page URL for query, restricted to the last daysBack days.
func (s *Scraper) SearchURL(query string) string {
	q := query
	if s.daysBack > 0 {
		q = fmt.Sprintf("%s when:%dd", query, s.daysBack)
	}
	return fmt.Sprintf("%s/search?q=%s&hl=en-US&gl=US&ceid=US:en", s.baseURL, url.QueryEscape(q))
}

// Scrape returns up to maxHeadlines distinct headlines for query, in page order.
func (s *Scraper) Scrape(ctx context.Context, query string, maxHeadlines int) ([]string, error) {
	searchURL := s.SearchURL(query)

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(s.baseURL)),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)

	var headlines []string
	seen := make(map[string]struct{})
	c.OnHTML(s.selector, func(e *colly.HTMLElement) {
		if maxHeadlines > 0 && len(headlines) >= maxHeadlines {
			return
		}
		title := strings.Join(strings.Fields(e.Text), " ")
		if title == "" {
			return
		}
		if _, dup := seen[title]; dup {
			return
		}
		seen[title] = struct{}{}
		headlines = append(headlines, title)
	})

	var status int
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(searchURL)
	c.Wait()
	if err != nil {
		return nil, classifyScrapeError(ctx, status, fmt.Errorf("news search %q: %w", query, err))
	}

	logger.Debug(ctx, "News search completed", "query", query, "headlines", len(headlines))
	return headlines, nil
}

func classifyScrapeError(ctx context.Context, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", types.ErrRateLimited, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", types.ErrDataUnavailable, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return err
	case types.KindOf(err) == types.KindTimeout:
		return fmt.Errorf("%w: %w", types.ErrTimeout, err)
	default:
		return err
	}
}

// getDomain extracts domain from URL
func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
