package concurrence

import (
	"context"
	"time"
)

// Delay blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when cut short and nil otherwise.
// A non-positive d returns immediately unless ctx is already done.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
