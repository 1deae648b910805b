package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-xwlb/models"
)

// Guard appends batches to a store pair only when they are newer than the
// last persisted record.
type Guard struct {
	LockTimeout  time.Duration
	PollInterval time.Duration
}

// NewGuard builds a guard that waits up to lockTimeout for a store's lock.
func NewGuard(lockTimeout time.Duration) *Guard {
	return &Guard{
		LockTimeout:  lockTimeout,
		PollInterval: 50 * time.Millisecond,
	}
}

// AppendIfNewer persists batch to the (tablePath, linesPath) pair when
// batch[0] is dated strictly after the last valid record in linesPath. The
// whole read-decide-write sequence runs under the pair's lock. Only the
// first record's date is compared: a batch holds one collection date.
func (g *Guard) AppendIfNewer(ctx context.Context, batch []models.NewsRecord, tablePath, linesPath string) (bool, error) {
	if len(batch) == 0 {
		return false, nil
	}

	unlock, err := lockPair(ctx, linesPath, g.LockTimeout, g.PollInterval)
	if err != nil {
		return false, err
	}
	defer unlock()

	last, err := LastRecord(linesPath)
	if err != nil {
		return false, err
	}
	if last != nil {
		newer, err := IsNewer(batch[0].Date, last.Date)
		if err != nil {
			return false, fmt.Errorf("compare with %s: %w", linesPath, err)
		}
		if !newer {
			slog.Info("store already up to date",
				slog.String("path", linesPath),
				slog.String("batch_date", batch[0].Date),
				slog.String("last_date", last.Date),
			)
			return false, nil
		}
	}

	writer, err := NewDualWriter(tablePath, linesPath)
	if err != nil {
		return false, err
	}
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return false, fmt.Errorf("append to %s: %w", linesPath, err)
	}
	if err := writer.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", linesPath, err)
	}

	slog.Info("appended batch",
		slog.String("path", linesPath),
		slog.String("date", batch[0].Date),
		slog.Int("records", len(batch)),
	)
	return true, nil
}
