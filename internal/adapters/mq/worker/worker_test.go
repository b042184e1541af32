package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/herdwatch/internal/adapters/mq/queue"
	worker "github.com/okian/herdwatch/internal/adapters/mq/worker"
	model "github.com/okian/herdwatch/internal/domain/model"
	logging "github.com/okian/herdwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingProcessor struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]error
	delay  time.Duration
}

func (p *recordingProcessor) Process(ctx context.Context, fix model.PositionFix) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, fix.FixID)
	return p.failOn[fix.FixID]
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		q := queue.NewInMemoryQueue[model.PositionFix](queue.WithCapacity(10))
		proc := &recordingProcessor{failOn: map[string]error{"bad": errors.New("boom")}}
		w := worker.NewInMemoryWorker[model.PositionFix](q, proc, worker.WithName("fixes"))

		convey.Convey("When items are queued and the queue is closed", func() {
			for _, id := range []string{"a", "bad", "b"} {
				convey.So(q.Enqueue(ctx, model.PositionFix{FixID: id}), convey.ShouldBeTrue)
			}
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then every item is processed, errors included", func() {
				convey.So(proc.seen, convey.ShouldResemble, []string{"a", "bad", "b"})
			})
		})

		convey.Convey("When the worker is shut down", func() {
			go w.Run(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then it stops without error", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker with a processing timeout", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		q := queue.NewInMemoryQueue[model.PositionFix](queue.WithCapacity(1))
		var deadline atomic.Bool
		proc := worker.ProcessorFunc[model.PositionFix](func(ctx context.Context, _ model.PositionFix) error {
			<-ctx.Done()
			deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})
		w := worker.NewInMemoryWorker[model.PositionFix](q, proc, worker.WithTimeout(20*time.Millisecond))

		q.Enqueue(ctx, model.PositionFix{FixID: "slow"})
		_ = q.Close()
		w.Run(ctx)

		convey.Convey("Then the item context expires", func() {
			convey.So(deadline.Load(), convey.ShouldBeTrue)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		q := queue.NewInMemoryQueue[model.PositionFix](queue.WithCapacity(1000))
		proc := &recordingProcessor{delay: time.Millisecond}
		pool := worker.NewPool[model.PositionFix](4, q, proc, worker.WithName("fixes"))

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When items are processed and the pool shut down", func() {
			pool.Start(ctx)
			for i := 0; i < 200; i++ {
				convey.So(q.Enqueue(ctx, model.PositionFix{FixID: fmt.Sprintf("fix-%d", i)}), convey.ShouldBeTrue)
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then queued items drain before workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(proc.count(), convey.ShouldEqual, 200)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})

			convey.Convey("Then a second shutdown is a no-op", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When workerCount is not positive", func() {
			p := worker.NewPool[model.PositionFix](0, q, proc)

			convey.Convey("Then it defaults to at least one worker", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}
