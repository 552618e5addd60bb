package runtime

import (
	"log/slog"
	"sync"

	"opschat/contract"
	"opschat/domain/event"
)

// Registry tracks live connections indexed by user id, so fan-out to one
// user costs the size of their device set, not the total connection count.
// It is the sole writer of connection membership and holds no state beyond
// the process lifetime.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]contract.Conn // userID -> connID -> conn
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]map[string]contract.Conn),
		log:   log,
	}
}

// Register adds a connection to its user's set. It reports whether this is
// the user's first live connection, i.e. the offline→online transition.
func (r *Registry) Register(c contract.Conn) bool {
	userID := c.Identity().UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]contract.Conn)
		r.conns[userID] = set
	}
	set[c.ID()] = c
	return !ok
}

// Unregister removes a connection and reports whether its user now has zero
// live connections. Empty sets are dropped so the map does not grow with
// every user that ever connected.
func (r *Registry) Unregister(c contract.Conn) bool {
	userID := c.Identity().UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(set, c.ID())
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor returns the live connections of one user.
func (r *Registry) ConnectionsFor(userID string) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return nil
	}
	conns := make([]contract.Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// BroadcastExcept fans a frame out to every live connection except the
// given one. A send failure on one connection is logged and skipped; it
// must never abort delivery to the others.
func (r *Registry) BroadcastExcept(except contract.Conn, frame event.Frame) {
	r.mu.RLock()
	targets := make([]contract.Conn, 0, len(r.conns))
	for _, set := range r.conns {
		for _, c := range set {
			if except != nil && c.ID() == except.ID() {
				continue
			}
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.Deliver(frame); err != nil {
			r.log.Warn("Broadcast delivery failed, skipping connection",
				"conn_id", c.ID(),
				"user_id", c.Identity().UserID,
				"event", frame.EventType(),
				"error", err)
		}
	}
}
