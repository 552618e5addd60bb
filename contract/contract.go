//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"opschat/domain"
	"opschat/domain/event"
)

// Conn is one live client connection. Many may exist per user (multi-device).
// Deliver is best-effort: a failure concerns this connection only and must
// never abort fan-out to the others.
type Conn interface {
	ID() string
	Identity() domain.Identity
	Deliver(frame event.Frame) error
	Close()
}

// IRegistry tracks live connections keyed by authenticated user id.
// It is the sole writer of connection membership and is process-local.
type IRegistry interface {
	// Register adds the connection and reports whether the user just
	// transitioned from offline to online.
	Register(c Conn) bool
	// Unregister removes the connection and reports whether the user now
	// has zero live connections.
	Unregister(c Conn) bool
	ConnectionsFor(userID string) []Conn
	Online(userID string) bool
	// BroadcastExcept fans a frame out to every live connection but the
	// given one. Per-recipient failures are isolated.
	BroadcastExcept(except Conn, frame event.Frame)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
