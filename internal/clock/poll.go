// Package clock provides helpers for time-related operations.
package clock

import (
	"context"
	"time"
)

// Poll calls check every interval until it reports done, fails, or ctx ends.
// The first check runs immediately.
func Poll(ctx context.Context, interval time.Duration, check func(ctx context.Context) (bool, error)) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		timer.Reset(interval)
	}
}
