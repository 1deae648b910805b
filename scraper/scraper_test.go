package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/config"
	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/pipeline"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://xwlb.test"

type testItem struct {
	title   string
	content string
}

func newTestScraper(t *testing.T) (*Scraper, *httpmock.MockTransport, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DayURLTemplate = testBase + "/day/%s.shtml"
	cfg.DataDir = t.TempDir()
	cfg.Parallelism = 4
	cfg.RetryBackoff = 0
	cfg.LockTimeout = 2 * time.Second

	s, err := NewScraper(cfg)
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	s.Fetcher().SetTransport(transport)
	return s, transport, cfg
}

func htmlResponder(body string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

func dayURL(compact string) string {
	return testBase + "/day/" + compact + ".shtml"
}

func itemURL(compact string, i int) string {
	return fmt.Sprintf("%s/%s/VIDE%d.shtml", testBase, compact, i)
}

// registerDay serves a day-page for compact plus one detail page per item.
func registerDay(transport *httpmock.MockTransport, compact string, items []testItem) {
	var builder strings.Builder
	builder.WriteString("<html><body><ul>")
	for i, item := range items {
		fmt.Fprintf(&builder, "<li><a href=\"/%s/VIDE%d.shtml\" title=\"%s\"></a><span>00:0%d:00</span></li>", compact, i, item.title, i)
		page := "<html><body><div id=\"content_area\"></div></body></html>"
		if item.content != "" {
			page = fmt.Sprintf("<html><body><div id=\"content_area\"><p>央视网消息（新闻联播）：%s</p></div></body></html>", item.content)
		}
		transport.RegisterResponder(http.MethodGet, itemURL(compact, i), htmlResponder(page))
	}
	builder.WriteString("<li>footer</li></ul></body></html>")
	transport.RegisterResponder(http.MethodGet, dayURL(compact), htmlResponder(builder.String()))
}

func TestFetcherRetriesThenSucceeds(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	var calls atomic.Int64
	transport.RegisterResponder(http.MethodGet, testBase+"/flaky", func(*http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return httpmock.NewStringResponse(http.StatusBadGateway, "busy"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	body, ok := s.Fetcher().FetchPage(context.Background(), testBase+"/flaky")
	require.True(t, ok)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetcherExhaustsAttempts(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	transport.RegisterResponder(http.MethodGet, testBase+"/down", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	_, ok := s.Fetcher().FetchPage(context.Background(), testBase+"/down")
	assert.False(t, ok)
	assert.Equal(t, 3, transport.GetCallCountInfo()["GET "+testBase+"/down"])

	_, err := s.Fetcher().Fetch(context.Background(), testBase+"/down")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchExhausted))
	assert.Equal(t, "server_error", errorTypeLabel(err))
}

func TestFetcherFixedBackoff(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	transport.RegisterResponder(http.MethodGet, testBase+"/missing", httpmock.NewStringResponder(http.StatusNotFound, ""))
	s.Fetcher().SetRetryPolicy(RetryPolicy{MaxAttempts: 3, Backoff: 30 * time.Millisecond})

	start := time.Now()
	_, ok := s.Fetcher().FetchPage(context.Background(), testBase+"/missing")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFetcherStopsRetryingWhenCancelled(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	transport.RegisterResponder(http.MethodGet, testBase+"/missing", httpmock.NewStringResponder(http.StatusNotFound, ""))
	s.Fetcher().SetRetryPolicy(RetryPolicy{MaxAttempts: 5, Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Fetcher().Fetch(ctx, testBase+"/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET "+testBase+"/missing"])
}

func TestCollectRangeIsolatesFailedDates(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	registerDay(transport, "20240925", []testItem{{title: "[视频]A", content: "alpha"}, {title: "[视频]B"}})
	transport.RegisterResponder(http.MethodGet, dayURL("20240926"), httpmock.NewStringResponder(http.StatusInternalServerError, ""))
	registerDay(transport, "20240927", []testItem{{title: "[视频]C", content: "gamma"}})

	result, err := s.Collect(context.Background(), "2024-09-25", "20240927")
	require.NoError(t, err)

	require.Len(t, result.Records, 2, "item without content is dropped, failed date yields nothing")
	byTitle := map[string]models.NewsRecord{}
	for _, r := range result.Records {
		byTitle[r.Title] = r
	}
	assert.Equal(t, models.NewsRecord{
		Date:     "2024-09-25",
		Duration: "00:00:00",
		Title:    "A",
		Content:  "alpha",
		Link:     itemURL("20240925", 0),
	}, byTitle["A"])
	assert.Equal(t, "2024-09-27", byTitle["C"].Date)

	assert.ElementsMatch(t, []string{"20240925", "20240926", "20240927"}, result.Dates)
	assert.ElementsMatch(t, []string{"20240926"}, result.EmptyDates)
	assert.Equal(t, 3, transport.GetCallCountInfo()["GET "+dayURL("20240926")])
	assert.Equal(t, 3, result.ErrorsByType["server_error"])
}

func TestCollectRangeRejectsBadInput(t *testing.T) {
	s, _, _ := newTestScraper(t)

	_, err := s.CollectRange(context.Background(), "2024-09-27", "2024-09-25")
	assert.True(t, errors.Is(err, ErrInvalidRange))

	_, err = s.CollectRange(context.Background(), "not a date", "2024-09-25")
	assert.Error(t, err)
}

func TestCollectRangeCachesItemContent(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	registerDay(transport, "20240925", []testItem{{title: "[视频]A", content: "alpha"}})

	for i := 0; i < 2; i++ {
		records, err := s.CollectRange(context.Background(), 20240925, 20240925)
		require.NoError(t, err)
		require.Len(t, records, 1)
	}
	info := transport.GetCallCountInfo()
	assert.Equal(t, 2, info["GET "+dayURL("20240925")])
	assert.Equal(t, 1, info["GET "+itemURL("20240925", 0)])
}

func TestCollectDailyFallsBackAndPersists(t *testing.T) {
	s, transport, cfg := newTestScraper(t)
	registerDay(transport, "20240926", nil)
	registerDay(transport, "20240925", []testItem{
		{title: "[视频]国内联播快讯", content: "digest"},
		{title: "[视频]Other", content: "other"},
	})

	records := s.CollectDaily(context.Background(), "2024-09-26")
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "2024-09-25", r.Date)
	}

	_, allLines := cfg.AllPaths()
	_, subsetLines := cfg.SubsetPaths()
	last, err := pipeline.LastRecord(allLines)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "2024-09-25", last.Date)

	subset, err := os.ReadFile(subsetLines)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(subset), "\n"))
	assert.Contains(t, string(subset), "国内联播快讯")

	again := s.CollectDaily(context.Background(), "2024-09-26")
	assert.Len(t, again, 2, "records are still returned when nothing new is stored")
	all, err := os.ReadFile(allLines)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(all), "\n"), "re-running the same day appends nothing")
}

func TestCollectDailyNoData(t *testing.T) {
	s, transport, cfg := newTestScraper(t)
	registerDay(transport, "20240926", nil)
	registerDay(transport, "20240925", nil)

	records := s.CollectDaily(context.Background(), "20240926")
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, allLines := cfg.AllPaths()
	_, err := os.Stat(allLines)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCollectDailySwallowsFailures(t *testing.T) {
	s, transport, cfg := newTestScraper(t)
	registerDay(transport, "20240926", []testItem{{title: "[视频]A", content: "alpha"}})

	allTable, _ := cfg.AllPaths()
	require.NoError(t, os.Mkdir(allTable, 0o755))

	records := s.CollectDaily(context.Background(), "2024-09-26")
	assert.NotNil(t, records)
	assert.Empty(t, records)

	assert.Empty(t, s.CollectDaily(context.Background(), "garbage"))
}

func TestCollectDailyInterrupted(t *testing.T) {
	s, transport, _ := newTestScraper(t)
	registerDay(transport, "20240926", []testItem{{title: "[视频]A", content: "alpha"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, s.CollectDaily(ctx, "2024-09-26"))
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestProxyFunc(t *testing.T) {
	proxy, err := proxyFunc(models.ProxyConfig{})
	require.NoError(t, err)
	assert.Nil(t, proxy)

	proxy, err = proxyFunc(models.ProxyConfig{HTTPS: "http://10.0.0.2:3128"})
	require.NoError(t, err)

	httpsReq := &http.Request{URL: &url.URL{Scheme: "https", Host: "tv.example.test"}}
	got, err := proxy(httpsReq)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:3128", got.Host)

	httpReq := &http.Request{URL: &url.URL{Scheme: "http", Host: "tv.example.test"}}
	got, err = proxy(httpReq)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
