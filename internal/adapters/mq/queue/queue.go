// Package queue buffers accepted evaluations between the API and the workers.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Event represents the payload type flowing through the queue.
type Event = model.Event

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue. It returns false if the queue is
	// full, closed or ctx is done.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns the channel consumers read from. Every caller gets the
	// same channel; it is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops accepting events. Already queued events stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel and a single
// forwarding goroutine that accounts for dequeues. An event counts against
// capacity until a consumer has received it.
type InMemoryQueue struct {
	events   chan Event
	out      chan Event
	capacity int
	size     atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	q.out = make(chan Event)

	metrics.UpdateQueueCapacity(q.capacity)
	q.report(0)

	go q.forward()
	return q
}

func (q *InMemoryQueue) forward() {
	defer close(q.out)
	for e := range q.events {
		q.out <- e
		metrics.RecordQueueDequeue()
		q.report(int(q.size.Add(-1)))
	}
}

func (q *InMemoryQueue) report(size int) {
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: Event is passed by value through the channel
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	n := q.size.Add(1)
	if n > int64(q.capacity) {
		q.size.Add(-1)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
	q.events <- e
	metrics.RecordQueueEnqueue()
	q.report(int(n))
	return true
}

// Dequeue implements Queue.Dequeue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Event {
	return q.out
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := int(q.size.Load())
	q.report(size)
	return size
}

// Close implements Queue.Close. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed implements Queue.IsClosed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
