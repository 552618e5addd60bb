// Package ratelimit guards the message ingestion path with a per-sender
// fixed window. The state is process-local; a horizontally scaled
// deployment must move it to a shared store.
package ratelimit

import (
	"sync"
	"time"
)

// window tracks one sender's current count.
type window struct {
	count       int
	windowStart time.Time
}

// Limiter allows up to max messages per sender per windowLength.
//
// Rejected attempts still increment the counter, so a flood of rejected
// sends cannot re-open the window early. The window only resets once the
// sender stays under it for a full windowLength.
type Limiter struct {
	mu           sync.Mutex
	senders      map[string]*window
	max          int
	windowLength time.Duration
	now          func() time.Time
}

func NewLimiter(max int, windowLength time.Duration) *Limiter {
	return &Limiter{
		senders:      make(map[string]*window),
		max:          max,
		windowLength: windowLength,
		now:          time.Now,
	}
}

// Allow records one attempt from senderID and reports whether it is within
// the window.
func (l *Limiter) Allow(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.senders[senderID]
	if !ok {
		l.senders[senderID] = &window{count: 1, windowStart: now}
		return true
	}
	if now.Sub(w.windowStart) > l.windowLength {
		w.count = 0
		w.windowStart = now
	}
	w.count++
	return w.count <= l.max
}

// Sweep drops senders idle for several windows, keeping the map bounded.
// Run it periodically from a background worker.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for senderID, w := range l.senders {
		if now.Sub(w.windowStart) > 3*l.windowLength {
			delete(l.senders, senderID)
			removed++
		}
	}
	return removed
}
