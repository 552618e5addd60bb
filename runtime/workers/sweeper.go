package workers

import (
	"context"
	"log/slog"
	"time"

	"opschat/ratelimit"
)

// RateWindowSweeper periodically evicts stale per-sender rate windows so
// the limiter map stays proportional to recently active senders.
type RateWindowSweeper struct {
	limiter  *ratelimit.Limiter
	interval time.Duration
	log      *slog.Logger
}

func NewRateWindowSweeper(log *slog.Logger, limiter *ratelimit.Limiter, interval time.Duration) *RateWindowSweeper {
	return &RateWindowSweeper{limiter: limiter, interval: interval, log: log}
}

func (w *RateWindowSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping rate window sweeper")
			return nil
		case <-ticker.C:
			if removed := w.limiter.Sweep(); removed > 0 {
				w.log.Debug("Swept idle rate windows", "removed", removed)
			}
		}
	}
}
