// Package wiki reads encyclopedic text from a MediaWiki site: page
// summaries, full plain-text extracts and free-text search snippets.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/herbid/herbid/pkg/resilience"
)

// ErrNotFound is returned when a page does not exist or has no text.
var ErrNotFound = errors.New("wiki: page not found")

// DefaultURL is English Wikipedia.
const DefaultURL = "https://en.wikipedia.org"

// Options configures a Client.
type Options struct {
	URL            string
	UserAgent      string
	SummaryTimeout time.Duration
	PageTimeout    time.Duration
	// Rate is requests per second across all calls; Burst defaults to Rate.
	Rate  float64
	Burst int
	// Cache is optional; nil disables response caching.
	Cache Cache
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		URL:            DefaultURL,
		UserAgent:      "herbid/1.0 (plant identification)",
		SummaryTimeout: 5 * time.Second,
		PageTimeout:    8 * time.Second,
		Rate:           10,
	}
}

// Client is safe for concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// New creates a Client. Zero option fields take their defaults.
func New(opts Options, logger *slog.Logger) *Client {
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = def.SummaryTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = def.PageTimeout
	}
	if opts.Rate <= 0 {
		opts.Rate = def.Rate
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.Rate)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		breaker: resilience.NewBreaker(resilience.BreakerOpts{
			Name:          "wiki",
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			// Missing pages are answers, not outages.
			IsFailure: func(err error) bool { return !errors.Is(err, ErrNotFound) },
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// get fetches rawURL under timeout, consulting the cache first. A 404
// maps to ErrNotFound. Repeated outages open the breaker and later calls
// fail fast with resilience.ErrCircuitOpen.
func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if c.opts.Cache != nil {
		if body, ok := c.opts.Cache.Get(rawURL); ok {
			return body, nil
		}
	}

	var body []byte
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.fetch(ctx, rawURL, timeout)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c.opts.Cache != nil {
		if err := c.opts.Cache.Put(rawURL, body); err != nil {
			c.logger.Warn("wiki cache write failed", "err", err)
		}
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wiki: rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wiki: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("wiki: read: %w", err)
	}
	return body, nil
}

func titlePath(title string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

type summaryResp struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// Summary returns the lead-section summary of a page. Disambiguation pages
// count as not found.
func (c *Client) Summary(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrNotFound
	}
	body, err := c.get(ctx, c.opts.URL+"/api/rest_v1/page/summary/"+titlePath(title)+"?redirect=true", c.opts.SummaryTimeout)
	if err != nil {
		return "", err
	}
	var s summaryResp
	if err := json.Unmarshal(body, &s); err != nil {
		return "", fmt.Errorf("wiki: decode summary: %w", err)
	}
	if s.Type == "disambiguation" || strings.TrimSpace(s.Extract) == "" {
		return "", ErrNotFound
	}
	return s.Extract, nil
}

type queryResp struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func (c *Client) apiURL(params url.Values) string {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	return c.opts.URL + "/w/api.php?" + params.Encode()
}

// PageText returns the full plain-text extract of a page.
func (c *Client) PageText(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrNotFound
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("explaintext", "1")
	params.Set("redirects", "1")
	params.Set("titles", strings.TrimSpace(title))

	body, err := c.get(ctx, c.apiURL(params), c.opts.PageTimeout)
	if err != nil {
		return "", err
	}
	var q queryResp
	if err := json.Unmarshal(body, &q); err != nil {
		return "", fmt.Errorf("wiki: decode page: %w", err)
	}
	for _, p := range q.Query.Pages {
		if !p.Missing && strings.TrimSpace(p.Extract) != "" {
			return p.Extract, nil
		}
	}
	return "", ErrNotFound
}

// SearchHit is one free-text search result with its plain-text snippet.
type SearchHit struct {
	Title   string
	Snippet string
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Search runs a full-text search and returns up to limit hits.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(limit))

	body, err := c.get(ctx, c.apiURL(params), c.opts.SummaryTimeout)
	if err != nil {
		return nil, err
	}
	var q queryResp
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("wiki: decode search: %w", err)
	}
	hits := make([]SearchHit, 0, len(q.Query.Search))
	for _, s := range q.Query.Search {
		hits = append(hits, SearchHit{
			Title:   s.Title,
			Snippet: strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s.Snippet, ""))),
		})
	}
	return hits, nil
}
