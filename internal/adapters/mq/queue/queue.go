// Package queue provides a bounded in-memory queue with non-blocking enqueue.
// It carries position fixes towards the evaluator and alerts towards the
// delivery workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/herdwatch/pkg/metrics"
)

const (
	defaultQueueCapacity = 10_000
	defaultQueueName     = "default"
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. Returns false when the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns the receive side of the queue.
	// The channel is closed once the queue is closed and drained.
	Dequeue() <-chan T

	Len() int
	Cap() int

	// Close stops accepting items. Buffered items stay readable.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items chan T
	name  string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue; default capacity is 10,000 items.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{name: defaultQueueName, capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&s)
	}

	q := &InMemoryQueue[T]{
		items: make(chan T, s.capacity),
		name:  s.name,
	}
	metrics.UpdateQueueCapacity(q.name, s.capacity)
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue adds an item without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.name, "closed")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError(q.name, "context_cancelled")
		return false
	default:
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(q.name, len(q.items))
		return true
	default:
		metrics.RecordQueueEnqueueError(q.name, "queue_full")
		return false
	}
}

// Dequeue returns the queue channel.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.items
}

// Len returns the number of buffered items.
func (q *InMemoryQueue[T]) Len() int {
	n := len(q.items)
	metrics.UpdateQueueSize(q.name, n)
	return n
}

// Cap returns the queue capacity.
func (q *InMemoryQueue[T]) Cap() int {
	return cap(q.items)
}

// Name returns the metrics label of the queue.
func (q *InMemoryQueue[T]) Name() string {
	return q.name
}

// Close stops the queue. It is safe to call more than once.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
