package workers

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs    atomic.Int32
	failFor int32
}

// Run panics for the first failFor invocations, then returns nil.
func (w *countingWorker) Run(_ context.Context) error {
	n := w.runs.Add(1)
	if n <= w.failFor {
		panic("boom")
	}
	return nil
}

type blockingWorker struct{}

func (blockingWorker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_Supervisor_Restarts_Panicked_Worker(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{failFor: 2}

	sup := NewSupervisor(testLogger())
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	req.EqualValues(3, worker.runs.Load())
}

func Test_Supervisor_Does_Not_Restart_Finished_Worker(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{}

	sup := NewSupervisor(testLogger())
	sup.Add(worker)
	sup.Run(context.Background())

	req.EqualValues(1, worker.runs.Load())
}

func Test_Supervisor_Stop_Unblocks_Workers(t *testing.T) {
	sup := NewSupervisor(testLogger())
	sup.Add(blockingWorker{})

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	// Give Run a moment to install its cancel function.
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}
