package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger never reclaims value log space on its own; RunValueLogGC has to be
// driven by the application.
type BadgerGC struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewBadgerGC(log *slog.Logger, db *badger.DB, interval time.Duration) *BadgerGC {
	return &BadgerGC{db: db, interval: interval, log: log}
}

func (w *BadgerGC) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping badger GC worker")
			return nil
		case <-ticker.C:
			// One pass per tick; ErrNoRewrite just means nothing to do.
			if err := w.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				w.log.Warn("Value log GC failed", "error", err)
			}
		}
	}
}
