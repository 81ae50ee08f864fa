package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// LocalDispatcher runs jobs on in-process goroutines, at most concurrency at
// a time. Jobs beyond that wait for a free slot without blocking Dispatch.
type LocalDispatcher struct {
	worker *Worker
	slots  chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLocalDispatcher(worker *Worker, concurrency int, logger *slog.Logger) *LocalDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		worker: worker,
		slots:  make(chan struct{}, concurrency),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch schedules the job and returns immediately. The run is detached
// from ctx, which usually belongs to the submitting request.
func (d *LocalDispatcher) Dispatch(_ context.Context, jobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.slots <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.slots }()

		if err := d.worker.Run(d.ctx, jobID); err != nil {
			d.logger.Error("run generation job", "job_id", jobID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting jobs and waits for queued and running ones. When ctx
// expires first, running jobs are cancelled and queued ones stay pending.
func (d *LocalDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
