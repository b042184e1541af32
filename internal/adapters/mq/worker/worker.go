// Package worker runs processors over items read from a queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

// Source is the receive side workers drain.
type Source[T any] interface {
	Dequeue() <-chan T
}

// Processor handles a single item.
type Processor[T any] interface {
	Process(ctx context.Context, item T) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc[T any] func(ctx context.Context, item T) error

// Process calls f.
func (f ProcessorFunc[T]) Process(ctx context.Context, item T) error {
	return f(ctx, item)
}

// Worker processes items until its source closes or ctx is cancelled.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker[T any] struct {
	source    Source[T]
	processor Processor[T]
	pool      string
	settings  settings

	shutdown chan struct{}
	done     chan struct{}
}

// NewInMemoryWorker creates a worker reading from source.
func NewInMemoryWorker[T any](source Source[T], processor Processor[T], opts ...Option) *InMemoryWorker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(s.name)
	}
	return &InMemoryWorker[T]{
		source:    source,
		processor: processor,
		pool:      s.name,
		settings:  s,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run drains the source. It returns when the source is closed and empty,
// on Shutdown, or when ctx is cancelled.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, item); err != nil {
				w.settings.logger.Error(ctx, "error processing item", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current item.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.settings.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker[T]) process(ctx context.Context, item T) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(w.pool, float64(time.Since(start).Milliseconds()))
	}()

	if w.settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.settings.timeout)
		defer cancel()
	}

	if err := w.processor.Process(ctx, item); err != nil {
		metrics.RecordWorkerError(w.pool)
		metrics.RecordErrorByComponent(w.pool, "process_error")
		return err
	}
	return nil
}

// Pool runs several workers over one source.
type Pool[T any] struct {
	workers  []*InMemoryWorker[T]
	source   Source[T]
	name     string
	logger   logger.Logger
	shutdown bool
}

// NewPool creates a pool of workerCount workers; < 1 means NumCPU.
func NewPool[T any](workerCount int, source Source[T], processor Processor[T], opts ...Option) *Pool[T] {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	s := settings{name: "worker-pool"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(s.name)
	}

	p := &Pool[T]{
		workers: make([]*InMemoryWorker[T], workerCount),
		source:  source,
		name:    s.name,
		logger:  s.logger,
	}
	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts,
			WithName(s.name),
			WithLogger(s.logger.Named(s.name+"-"+strconv.Itoa(i))),
		)
		p.workers[i] = NewInMemoryWorker(source, processor, wopts...)
	}
	metrics.UpdateWorkerCount(p.name, workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int {
	return len(p.workers)
}

// Start launches all workers.
func (p *Pool[T]) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the source when it supports Close and waits for workers to
// drain what is left. Items still queued when ctx expires are abandoned.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if p.shutdown {
		return nil
	}
	p.shutdown = true

	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			metrics.UpdateWorkerCount(p.name, 0)
			return fmt.Errorf("worker pool %s: %w", p.name, ctx.Err())
		}
	}
	metrics.UpdateWorkerCount(p.name, 0)
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}
