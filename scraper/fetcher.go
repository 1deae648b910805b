package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/config"
	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/gocolly/colly/v2"
)

// RetryPolicy is a fixed-delay retry budget for a single URL.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Fetcher performs GET requests through a synchronous colly collector.
// Each request carries its own colly.Context, so one Fetcher is shared by
// every worker.
type Fetcher struct {
	collector *colly.Collector
	policy    RetryPolicy
	metrics   *Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewFetcher builds a fetcher from cfg. Concurrent requests are capped at
// cfg.Parallelism by a colly limit rule.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	proxy, err := proxyFunc(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		collector:    collector,
		policy:       RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.RetryBackoff},
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	f.configureHandlers()
	return f, nil
}

// SetTransport replaces the HTTP transport, e.g. with a mock in tests.
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// SetRetryPolicy replaces the retry budget.
func (f *Fetcher) SetRetryPolicy(p RetryPolicy) {
	f.policy = p
}

// FetchPage returns the body of url and true, or false once the retry
// budget is spent. Callers treat false as "no data", never as fatal.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, bool) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		slog.Warn("giving up on page", slog.String("url", url), slog.Any("error", err))
		return nil, false
	}
	return body, true
}

// Fetch is FetchPage with the final error exposed. Exhaustion wraps
// ErrFetchExhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempts := f.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			atomic.AddInt64(&f.retryCount, 1)
			f.metrics.IncRetries()
			if err := sleepCtx(ctx, f.policy.Backoff); err != nil {
				return nil, fmt.Errorf("fetch %s interrupted: %w", url, err)
			}
		}

		body, err := f.get(url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		slog.Debug("fetch attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchExhausted, attempts, lastErr)
}

func (f *Fetcher) get(url string) ([]byte, error) {
	atomic.AddInt64(&f.requestCount, 1)

	ctx := colly.NewContext()
	err := f.collector.Request(http.MethodGet, url, nil, ctx, nil)
	status, _ := ctx.GetAny("status").(int)
	if err == nil && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		err = fmt.Errorf("http status %d", status)
	}
	if err != nil {
		classified := classifyError(err, status)
		category := errorTypeLabel(classified)
		atomic.AddInt64(&f.errorCount, 1)
		f.mu.Lock()
		f.errorsByType[category]++
		f.mu.Unlock()
		f.metrics.IncRequest("failure")
		f.metrics.IncError(category)
		return nil, classified
	}

	f.metrics.IncRequest("success")
	body, _ := ctx.GetAny("body").([]byte)
	return body, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil && r.StatusCode != 0 {
			r.Ctx.Put("status", r.StatusCode)
		}
	})
}

// stats snapshots request counters into result.
func (f *Fetcher) stats(result *models.CollectResult) {
	result.RequestCount = int(atomic.LoadInt64(&f.requestCount))
	result.ErrorCount = int(atomic.LoadInt64(&f.errorCount))
	result.RetryCount = int(atomic.LoadInt64(&f.retryCount))

	f.mu.Lock()
	defer f.mu.Unlock()
	result.ErrorsByType = make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		result.ErrorsByType[k] = v
	}
}

func proxyFunc(p models.ProxyConfig) (func(*http.Request) (*url.URL, error), error) {
	if p.IsZero() {
		return nil, nil
	}

	parse := func(raw string) (*url.URL, error) {
		if raw == "" {
			return nil, nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		return u, nil
	}
	httpProxy, err := parse(p.HTTP)
	if err != nil {
		return nil, err
	}
	httpsProxy, err := parse(p.HTTPS)
	if err != nil {
		return nil, err
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" {
			return httpsProxy, nil
		}
		return httpProxy, nil
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
