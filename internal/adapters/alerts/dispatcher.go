// Package alerts delivers geofence exit alerts through notify services.
//
// Delivery is asynchronous and best effort: alerts are queued without
// blocking the evaluator, each delivery has a timeout, and a failed delivery
// is logged and dropped. There are no retries.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/nikoksr/notify"

	"github.com/okian/herdwatch/internal/adapters/mq/queue"
	"github.com/okian/herdwatch/internal/adapters/mq/worker"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

const (
	defaultQueueSize = 1_000
	defaultWorkers   = 2
	defaultTimeout   = 10 * time.Second
	queueName        = "alerts"
)

// Dispatcher queues alerts and sends them from a worker pool.
type Dispatcher struct {
	sender notify.Notifier
	queue  *queue.InMemoryQueue[model.Alert]
	pool   *worker.Pool[model.Alert]
	logger logger.Logger

	queueSize int
	workers   int
	timeout   time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize bounds the number of pending alerts.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher sending through sender, usually a
// *notify.Notify composed of several services.
func NewDispatcher(sender notify.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:    sender,
		queueSize: defaultQueueSize,
		workers:   defaultWorkers,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("alerts")
	}

	d.queue = queue.NewInMemoryQueue[model.Alert](queue.WithCapacity(d.queueSize), queue.WithName(queueName))
	d.pool = worker.NewPool[model.Alert](d.workers, d.queue,
		worker.ProcessorFunc[model.Alert](d.deliver),
		worker.WithName("alert-workers"),
		worker.WithTimeout(d.timeout),
		worker.WithLogger(d.logger),
	)
	return d
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Emit queues a without blocking. It returns false when the queue is full
// or closed; the caller decides how to account for the drop.
// Caller cancellation is ignored; only a full or closed queue refuses.
func (d *Dispatcher) Emit(ctx context.Context, a model.Alert) bool {
	return d.queue.Enqueue(context.WithoutCancel(ctx), a)
}

// Pending returns the number of queued alerts.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Shutdown stops accepting alerts and waits for queued ones to be sent.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}

func (d *Dispatcher) deliver(ctx context.Context, a model.Alert) error {
	start := time.Now()
	err := d.sender.Send(ContextWithAlert(ctx, a), Subject(a), a.Message)
	metrics.RecordAlertDeliveryLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordAlertFailed()
		d.logger.Error(ctx, "alert delivery failed",
			logger.String("alert_id", a.ID),
			logger.String("entity_id", a.Event.EntityID),
			logger.Bool("delivered", false),
			logger.Error(err),
		)
		return fmt.Errorf("deliver alert %s: %w", a.ID, err)
	}

	metrics.RecordAlertDelivered()
	d.logger.Debug(ctx, "alert delivered",
		logger.String("alert_id", a.ID),
		logger.Bool("delivered", true),
	)
	return nil
}

// Subject renders a short alert title.
func Subject(a model.Alert) string {
	name := a.Event.EntityName
	if name == "" {
		name = a.Event.EntityID
	}
	return fmt.Sprintf("[herdwatch] %s left geofence %s", name, a.Event.Fence)
}

type alertKey struct{}

// ContextWithAlert attaches the alert being delivered so services that
// publish structured payloads can read it.
func ContextWithAlert(ctx context.Context, a model.Alert) context.Context {
	return context.WithValue(ctx, alertKey{}, a)
}

// AlertFromContext returns the alert attached by ContextWithAlert.
func AlertFromContext(ctx context.Context) (model.Alert, bool) {
	a, ok := ctx.Value(alertKey{}).(model.Alert)
	return a, ok
}
