// Package observability aggregates runtime counters for the messaging
// subsystem. Counters are atomic; Snapshot is safe to call from the debug
// endpoints while the serving path increments them.
package observability

import (
	"sync/atomic"
)

type Stats struct {
	MessagesSent          atomic.Uint64
	DeliveredLive         atomic.Uint64
	DeliveredOnReconnect  atomic.Uint64
	ReadReceipts          atomic.Uint64
	RateLimitedRejections atomic.Uint64
	ForbiddenRejections   atomic.Uint64
	ActiveConnections     atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

// Snapshot returns the current counters in a form the debug server can
// render directly.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"messages_sent":           s.MessagesSent.Load(),
		"delivered_live":          s.DeliveredLive.Load(),
		"delivered_on_reconnect":  s.DeliveredOnReconnect.Load(),
		"read_receipts":           s.ReadReceipts.Load(),
		"rate_limited_rejections": s.RateLimitedRejections.Load(),
		"forbidden_rejections":    s.ForbiddenRejections.Load(),
		"active_connections":      s.ActiveConnections.Load(),
	}
}
