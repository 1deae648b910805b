package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/config"
	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/parser"
	"github.com/aluiziolira/go-scrape-xwlb/pipeline"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRange is returned when the end date precedes the start date.
var ErrInvalidRange = errors.New("scraper: end date before start date")

// Scraper collects day-pages over a date range and persists daily batches.
type Scraper struct {
	cfg      *config.Config
	fetcher  *Fetcher
	cleaner  *pipeline.Cleaner
	guard    *pipeline.Guard
	contents *lru.Cache[string, string]
	Metrics  *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	var contents *lru.Cache[string, string]
	if cfg.ContentCacheSize > 0 {
		contents, err = lru.New[string, string](cfg.ContentCacheSize)
		if err != nil {
			return nil, fmt.Errorf("build content cache: %w", err)
		}
	}

	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		cleaner: &pipeline.Cleaner{
			TitlePrefix:   cfg.TitlePrefix,
			ContentPrefix: cfg.ContentPrefix,
			NotFound:      cfg.ContentNotFound,
		},
		guard:    pipeline.NewGuard(cfg.LockTimeout),
		contents: contents,
		Metrics:  metrics,
	}, nil
}

// Fetcher exposes the underlying fetcher, e.g. to swap its transport.
func (s *Scraper) Fetcher() *Fetcher {
	return s.fetcher
}

// CollectRange fetches every day from start to end inclusive and returns the
// cleaned records. Per-date failures yield no records for that date.
func (s *Scraper) CollectRange(ctx context.Context, start, end any) ([]models.NewsRecord, error) {
	result, err := s.Collect(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Collect is CollectRange with a run summary.
func (s *Scraper) Collect(ctx context.Context, start, end any) (*models.CollectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startDay, err := parser.ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	endDay, err := parser.ParseDate(end)
	if err != nil {
		return nil, fmt.Errorf("end date: %w", err)
	}
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, parser.CompactDate(startDay), parser.CompactDate(endDay))
	}
	if s.cfg.Parallelism <= 0 {
		return nil, fmt.Errorf("worker pool: parallelism must be positive, got %d", s.cfg.Parallelism)
	}

	result := &models.CollectResult{StartTime: time.Now()}

	var (
		g   errgroup.Group
		mu  sync.Mutex
		raw []models.NewsRecord
	)
	g.SetLimit(s.cfg.Parallelism)

	for _, day := range parser.DateRange(startDay, endDay) {
		if ctx.Err() != nil {
			slog.Info("interrupted, not scheduling remaining dates", slog.String("next_date", parser.CompactDate(day)))
			break
		}
		compact := parser.CompactDate(day)
		result.Dates = append(result.Dates, compact)

		g.Go(func() error {
			records := s.collectDay(ctx, compact)
			s.Metrics.IncDate(len(records) > 0)

			mu.Lock()
			defer mu.Unlock()
			if len(records) == 0 {
				result.EmptyDates = append(result.EmptyDates, compact)
				slog.Info("no data for date", slog.String("date", compact))
				return nil
			}
			raw = append(raw, records...)
			result.DatesWithData = append(result.DatesWithData, compact)
			slog.Info("fetched date", slog.String("date", compact), slog.Int("records", len(records)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	s.Metrics.AddRecords(len(raw))
	result.Records = s.cleaner.CleanBatch(raw)
	result.EndTime = time.Now()
	s.fetcher.stats(result)
	return result, nil
}

// collectDay fetches one day-page and the detail page of each item on it,
// sequentially. A panic or an interruption discards the whole day.
func (s *Scraper) collectDay(ctx context.Context, compact string) (records []models.NewsRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("date task panicked",
				slog.String("date", compact),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			records = nil
		}
	}()

	pageURL := s.cfg.DayURL(compact)
	body, ok := s.fetcher.FetchPage(ctx, pageURL)
	if !ok {
		return nil
	}

	records, err := parser.ParseDayPage(body, compact, pageURL, s.cfg.UnknownDuration)
	if err != nil {
		slog.Error("parse day page", slog.String("date", compact), slog.Any("error", err))
		return nil
	}
	for i := range records {
		records[i].Content = s.itemContent(ctx, records[i].Link)
	}

	if ctx.Err() != nil {
		slog.Warn("discarding partially collected date", slog.String("date", compact), slog.Any("error", ctx.Err()))
		return nil
	}
	return records
}

func (s *Scraper) itemContent(ctx context.Context, link string) string {
	if s.contents != nil {
		if content, ok := s.contents.Get(link); ok {
			return content
		}
	}

	body, ok := s.fetcher.FetchPage(ctx, link)
	if !ok {
		return s.cfg.ContentNotFound
	}
	content := parser.ParseItemContent(body, s.cfg.ContentNotFound)
	if content != s.cfg.ContentNotFound && s.contents != nil {
		s.contents.Add(link, content)
	}
	return content
}
