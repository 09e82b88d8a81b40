package worker

import (
	"context"
	"log/slog"
	"time"
)

// Every calls fn each interval until ctx is done. Errors are logged and the
// loop keeps going.
func Every(ctx context.Context, interval time.Duration, name string, log *slog.Logger, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(ctx); err != nil {
				log.Error("periodic job failed", "job", name, "err", err)
			}
		}
	}
}
