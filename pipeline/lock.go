package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a store pair's lock is not acquired in time.
var ErrLockTimeout = errors.New("pipeline: lock acquisition timed out")

// LockPath is the sibling lock file guarding the store pair of linesPath.
func LockPath(linesPath string) string {
	return linesPath + ".lock"
}

// lockPair takes the exclusive cross-process lock for linesPath. The
// returned func releases it and is safe to defer.
func lockPair(ctx context.Context, linesPath string, timeout, poll time.Duration) (func(), error) {
	if err := ensureDir(linesPath); err != nil {
		return nil, err
	}

	fl := flock.New(LockPath(linesPath))
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, poll)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, fl.Path(), timeout)
		}
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Error("release store lock", slog.String("path", fl.Path()), slog.Any("error", err))
		}
	}, nil
}
