// Package worker drains the evaluation queue into the store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/pkg/logger"
	"github.com/okian/concord/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Event abstracts what workers read off the queue.
type Event = model.Event

// Recorder persists one evaluation.
type Recorder interface {
	Append(ctx context.Context, e model.Event) error
}

// Invalidator drops derived state of a scope after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, scope model.Scope) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes queued evaluations.
type Worker interface {
	// Run processes events until ctx is done, Shutdown is called or the
	// queue channel is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current event.
	Shutdown(ctx context.Context) error
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, model.Scope) error { return nil }

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	recorder    Recorder
	invalidator Invalidator
	name        string
	processed   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       queue,
		recorder:    recorder,
		invalidator: nopInvalidator{},
		name:        "worker",
		processed:   new(atomic.Int64),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing evaluation", logger.Error(err))
			}
		}
	}
}

// Shutdown implements Worker.Shutdown.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of evaluations this worker stored.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event is passed by value through the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.recorder.Append(ctx, event); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		w.logger.Error(ctx, "storing evaluation failed",
			logger.String("event_id", event.EventID),
			logger.String("scope", event.Scope.String()),
			logger.Error(err),
		)
		return fmt.Errorf("store evaluation %s: %w", event.EventID, err)
	}
	w.processed.Add(1)

	// A stale report is only served until its TTL expires, so a failed
	// invalidation is logged rather than failing the event.
	if err := w.invalidator.Invalidate(ctx, event.Scope); err != nil {
		metrics.RecordErrorByComponent("worker", "invalidate_error")
		w.logger.Warn(ctx, "invalidating cached report failed",
			logger.String("scope", event.Scope.String()),
			logger.Error(err),
		)
	}
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	started  atomic.Bool
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// runtime.NumCPU(). Options are applied to every worker.
func NewPool(workerCount int, queue Queue, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
	}
	processed := new(atomic.Int64)
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, recorder, wopts...)
		w.processed = processed
		pool.workers[i] = w
	}
	pool.logger = pool.workers[0].logger.Named("pool")

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the number of evaluations stored by the pool.
func (p *Pool) Processed() int64 {
	return p.workers[0].processed.Load()
}

// Stop signals every worker to stop after its current event and waits.
// Queued evaluations are left in the queue.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	})
	if p.started.Load() {
		for _, w := range p.workers {
			<-w.done
		}
	}
	metrics.UpdateWorkerCount(0)
}

// Shutdown closes the queue and waits for the workers to drain it. If ctx
// or the pool timeout expires first, the remaining workers are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var err error
	for i, w := range p.workers {
		if !p.started.Load() {
			break
		}
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			err = fmt.Errorf("drain timed out: %w", shutdownCtx.Err())
		}
		if err != nil {
			break
		}
	}
	p.Stop()
	return err
}
