package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-xwlb/models"
	"github.com/aluiziolira/go-scrape-xwlb/parser"
	"github.com/aluiziolira/go-scrape-xwlb/pipeline"
)

// CollectDaily collects target (falling back to the previous day when the
// target has nothing yet), persists the full set and the digest subset to
// their store pairs, and returns the records. Every failure is logged and
// turned into an empty result so the caller never has to handle one.
func (s *Scraper) CollectDaily(ctx context.Context, target any) (records []models.NewsRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("daily collection panicked", slog.Any("target", target), slog.Any("panic", r))
			records = []models.NewsRecord{}
		}
	}()

	records, err := s.collectDaily(ctx, target)
	if err != nil {
		slog.Error("daily collection failed", slog.Any("target", target), slog.Any("error", err))
		return []models.NewsRecord{}
	}
	return records
}

func (s *Scraper) collectDaily(ctx context.Context, target any) ([]models.NewsRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	day, err := parser.ParseDate(target)
	if err != nil {
		return nil, fmt.Errorf("target date: %w", err)
	}

	records, err := s.CollectRange(ctx, day, day)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		previous := day.AddDate(0, 0, -1)
		slog.Info("no data for target date, trying previous day",
			slog.String("target", parser.CompactDate(day)),
			slog.String("previous", parser.CompactDate(previous)),
		)
		records, err = s.CollectRange(ctx, previous, previous)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collection interrupted: %w", err)
	}
	if len(records) == 0 {
		slog.Info("no data collected", slog.String("target", parser.CompactDate(day)))
		return []models.NewsRecord{}, nil
	}

	subset := pipeline.SplitByTitle(records, s.cfg.SubsetTitle)

	allTable, allLines := s.cfg.AllPaths()
	subsetTable, subsetLines := s.cfg.SubsetPaths()
	errAll := s.persist(ctx, "all", records, allTable, allLines)
	errSubset := s.persist(ctx, "subset", subset, subsetTable, subsetLines)
	if err := errors.Join(errAll, errSubset); err != nil {
		return nil, err
	}

	slog.Info("daily collection saved",
		slog.String("target", parser.CompactDate(day)),
		slog.Int("records", len(records)),
		slog.Int("subset", len(subset)),
	)
	return records, nil
}

func (s *Scraper) persist(ctx context.Context, dataset string, batch []models.NewsRecord, tablePath, linesPath string) error {
	appended, err := s.guard.AppendIfNewer(ctx, batch, tablePath, linesPath)
	switch {
	case err != nil:
		s.Metrics.IncAppend(dataset, "failed")
		return fmt.Errorf("persist %s: %w", dataset, err)
	case appended:
		s.Metrics.IncAppend(dataset, "appended")
	default:
		s.Metrics.IncAppend(dataset, "skipped")
	}
	return nil
}
