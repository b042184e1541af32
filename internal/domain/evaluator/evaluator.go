// Package evaluator decides containment for tracked entities, persists the
// resulting status and hands exit alerts to a sink.
//
// Each entity is evaluated inside a per-entity critical section:
// read previous status, compute containment, write new status, emit alert.
// Concurrent updates of the same entity therefore cannot both observe the
// same stale status.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/transition"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

// EntityStore is the entity persistence the evaluator needs.
type EntityStore interface {
	Get(ctx context.Context, id string) (model.TrackedEntity, error)
	List(ctx context.Context) ([]model.TrackedEntity, error)
	UpdateState(ctx context.Context, id string, u model.StateUpdate) error
}

// FenceSource returns the polygon in effect for a fence name.
type FenceSource interface {
	Load(name string) geofence.Polygon
}

// AlertSink accepts alerts without blocking. It reports whether the alert
// was accepted for delivery.
type AlertSink interface {
	Emit(ctx context.Context, a model.Alert) bool
}

// Outcome describes a single entity evaluation.
type Outcome struct {
	Entity      model.TrackedEntity
	Previous    model.Status
	Current     model.Status
	Containment geofence.Result
	Alerted     bool
	Stale       bool
}

// Evaluator runs containment checks and transition detection.
type Evaluator struct {
	entities EntityStore
	fences   FenceSource
	alerts   AlertSink
	locks    *keyLock

	fence       string
	concurrency int
	now         func() time.Time
	logger      logger.Logger
}

// NewEvaluator wires an evaluator to its collaborators.
func NewEvaluator(entities EntityStore, fences FenceSource, alerts AlertSink, opts ...Option) *Evaluator {
	e := &Evaluator{
		entities: entities,
		fences:   fences,
		alerts:   alerts,
		locks:    newKeyLock(),
	}
	defaults(e)
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("evaluator")
	}
	return e
}

// Fence returns the fence name in use.
func (e *Evaluator) Fence() string {
	return e.fence
}

// Apply evaluates a single position fix.
//
// A fix older than the entity's last fix is ignored and reported as Stale.
// A fix with no timestamp is stamped with the current time.
func (e *Evaluator) Apply(ctx context.Context, fix model.PositionFix) (Outcome, error) {
	if err := fix.Validate(); err != nil {
		return Outcome{}, err
	}
	if fix.TS.IsZero() {
		fix.TS = e.now()
	}

	unlock := e.locks.Lock(fix.EntityID)
	defer unlock()

	ent, err := e.entities.Get(ctx, fix.EntityID)
	if err != nil {
		return Outcome{}, e.storeErr("get", fix.EntityID, err)
	}

	if !ent.LastFixAt.IsZero() && fix.TS.Before(ent.LastFixAt) {
		metrics.RecordFixStale()
		e.logger.Debug(ctx, "stale fix ignored",
			logger.String("entity_id", ent.ID),
			logger.String("fix_id", fix.FixID),
		)
		return Outcome{Entity: ent, Previous: ent.Status, Current: ent.Status, Stale: true}, nil
	}

	pt := fix.Point()
	return e.evaluate(ctx, ent, e.fences.Load(e.fence), model.StateUpdate{
		Position:  &pt,
		Battery:   fix.Battery,
		LastFixAt: fix.TS,
	})
}

// EvaluatePass re-evaluates every positioned entity against the fence as it
// was when the pass started. Entities without a position are skipped.
//
// A failed entity list aborts the whole pass. A failure on one entity only
// affects that entity and is counted in Failed.
func (e *Evaluator) EvaluatePass(ctx context.Context) (model.PassSummary, error) {
	start := e.now()
	summary := model.PassSummary{Fence: e.fence, StartedAt: start}
	poly := e.fences.Load(e.fence)

	list, err := e.entities.List(ctx)
	if err != nil {
		metrics.RecordPass("aborted", 0)
		return summary, e.storeErr("list", "", err)
	}

	var (
		evaluated, skipped, failed, alerts atomic.Int64
		inside, outside                    atomic.Int64
		g                                  errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, snap := range list {
		if !snap.HasPosition() {
			skipped.Add(1)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		id := snap.ID
		g.Go(func() error {
			out, err := e.reevaluate(ctx, id, poly)
			switch {
			case errors.Is(err, model.ErrEntityNotFound):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				e.logger.Warn(ctx, "entity evaluation failed",
					logger.String("entity_id", id), logger.Error(err))
			case out.Stale:
				skipped.Add(1)
			default:
				evaluated.Add(1)
				if out.Alerted {
					alerts.Add(1)
				}
				if out.Current == model.StatusInside {
					inside.Add(1)
				} else {
					outside.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Evaluated = int(evaluated.Load())
	summary.Skipped = int(skipped.Load())
	summary.Failed = int(failed.Load())
	summary.Alerts = int(alerts.Load())
	summary.Inside = int(inside.Load())
	summary.Outside = int(outside.Load())
	summary.Duration = e.now().Sub(start)

	outcome := "ok"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	if ctx.Err() != nil {
		outcome = "cancelled"
	}
	metrics.RecordPass(outcome, float64(summary.Duration.Milliseconds()))
	e.logger.Info(ctx, "evaluation pass finished",
		logger.String("fence", summary.Fence),
		logger.Int("evaluated", summary.Evaluated),
		logger.Int("skipped", summary.Skipped),
		logger.Int("failed", summary.Failed),
		logger.Int("alerts", summary.Alerts),
		logger.Duration("duration", summary.Duration),
	)
	return summary, ctx.Err()
}

// reevaluate re-reads the entity under its lock so the previous status is
// never older than the one a concurrent Apply wrote.
func (e *Evaluator) reevaluate(ctx context.Context, id string, poly geofence.Polygon) (Outcome, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	ent, err := e.entities.Get(ctx, id)
	if err != nil {
		return Outcome{}, e.storeErr("get", id, err)
	}
	if !ent.HasPosition() {
		return Outcome{Entity: ent, Previous: ent.Status, Current: ent.Status, Stale: true}, nil
	}
	return e.evaluate(ctx, ent, poly, model.StateUpdate{})
}

// evaluate must be called with the entity lock held. u carries the position
// fields to persist; when u.Position is nil the stored position is used.
func (e *Evaluator) evaluate(ctx context.Context, ent model.TrackedEntity, poly geofence.Polygon, u model.StateUpdate) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var pt model.Point
	switch {
	case u.Position != nil:
		pt = *u.Position
	case ent.Position != nil:
		pt = *ent.Position
	default:
		return Outcome{Entity: ent, Previous: ent.Status, Current: ent.Status, Stale: true}, nil
	}

	res := poly.Contains(pt)
	if res.Computed {
		metrics.RecordEvaluation("computed")
	} else {
		metrics.RecordEvaluation(string(res.Fallback))
	}

	d := transition.Decide(ent.Status, res.Inside)
	u.Status = d.Next
	if err := e.entities.UpdateState(ctx, ent.ID, u); err != nil {
		return Outcome{}, e.storeErr("update_state", ent.ID, err)
	}

	previous := ent.Status
	ent.Status = d.Next
	ent.Position = &pt
	if u.Battery != nil {
		b := *u.Battery
		ent.Battery = &b
	}
	if !u.LastFixAt.IsZero() {
		ent.LastFixAt = u.LastFixAt
	}

	if d.Changed(previous) {
		metrics.RecordTransition(previous.String(), d.Next.String())
	}

	out := Outcome{
		Entity:      ent,
		Previous:    previous,
		Current:     d.Next,
		Containment: res,
		Alerted:     d.Alert,
	}
	if d.Alert {
		e.emit(ctx, ent, previous, pt)
	}
	return out, nil
}

func (e *Evaluator) emit(ctx context.Context, ent model.TrackedEntity, previous model.Status, pt model.Point) {
	at := ent.LastFixAt
	if at.IsZero() {
		at = e.now()
	}
	ev := model.ContainmentEvent{
		EntityID:   ent.ID,
		EntityName: ent.Name,
		Previous:   previous,
		Current:    ent.Status,
		Position:   pt,
		Battery:    ent.Battery,
		Fence:      e.fence,
		At:         at,
	}
	alert := model.Alert{ID: uuid.NewString(), Event: ev, Message: FormatAlert(ev)}

	metrics.RecordAlertEmitted()
	e.logger.Info(ctx, "geofence exit",
		logger.String("entity_id", ent.ID),
		logger.String("alert_id", alert.ID),
		logger.Float64("lat", pt.Lat),
		logger.Float64("lon", pt.Lon),
	)
	if e.alerts == nil {
		return
	}
	// The status is already committed, so the caller's cancellation must not drop the alert.
	if !e.alerts.Emit(context.WithoutCancel(ctx), alert) {
		metrics.RecordAlertDropped()
		e.logger.Warn(ctx, "alert dropped",
			logger.String("entity_id", ent.ID),
			logger.String("alert_id", alert.ID),
		)
	}
}

func (e *Evaluator) storeErr(op, id string, err error) error {
	if errors.Is(err, model.ErrEntityNotFound) {
		return fmt.Errorf("entity %s: %w", id, err)
	}
	metrics.RecordStoreError(op)
	return fmt.Errorf("%w: %s %s: %w", ErrStore, op, id, err)
}
