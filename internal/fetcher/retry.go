package fetcher

import (
	"context"
	"fmt"
	"time"
)

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
