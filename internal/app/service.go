// Package service wires stores, the fence registry, the evaluator and the
// alert dispatcher into the operations exposed by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/herdwatch/internal/adapters/mq/queue"
	"github.com/okian/herdwatch/internal/adapters/mq/worker"
	"github.com/okian/herdwatch/internal/adapters/repository"
	"github.com/okian/herdwatch/internal/domain/dedupe"
	"github.com/okian/herdwatch/internal/domain/evaluator"
	"github.com/okian/herdwatch/internal/domain/geofence"
	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/internal/domain/types"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

// Dispatcher delivers alerts asynchronously.
type Dispatcher interface {
	evaluator.AlertSink
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
	Pending() int
}

// Service implements the API dependencies for the herd tracker.
type Service struct {
	mu sync.RWMutex
	// fenceMu orders store writes and registry installs of the active fence.
	fenceMu sync.Mutex

	stores    *repository.Stores
	alerts    Dispatcher
	registry  *geofence.Registry
	evaluator *evaluator.Evaluator
	deduper   dedupe.Deduper
	fixes     *queue.InMemoryQueue[model.PositionFix]
	pool      *worker.Pool[model.PositionFix]

	workerCount     int
	queueSize       int
	dedupeSize      int
	fence           string
	interval        time.Duration
	passConcurrency int
	now             func() time.Time

	started     bool
	cancel      context.CancelFunc
	stopSched   context.CancelFunc
	schedDone   chan struct{}
	lastPass    atomic.Pointer[model.PassSummary]
	passRunning sync.Mutex

	logger logger.Logger
}

// New constructs a Service over stores, sending alerts to alerts.
func New(stores *repository.Stores, alerts Dispatcher, opts ...Option) *Service {
	s := &Service{
		stores:   stores,
		alerts:   alerts,
		registry: geofence.NewRegistry(),
	}
	defaults(s)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.evaluator = evaluator.NewEvaluator(stores.Entities, s.registry, alerts,
		evaluator.WithFence(s.fence),
		evaluator.WithConcurrency(s.passConcurrency),
		evaluator.WithClock(s.now),
		evaluator.WithLogger(s.logger.Named("evaluator")),
	)
	return s
}

// Start loads the active fence, then starts the alert dispatcher, the fix
// workers and the evaluation scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting herdwatch service...")

	if err := s.loadFence(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.fixes = queue.NewInMemoryQueue[model.PositionFix](
		queue.WithCapacity(s.queueSize),
		queue.WithName("fixes"),
	)
	s.pool = worker.NewPool[model.PositionFix](s.workerCount, s.fixes,
		worker.ProcessorFunc[model.PositionFix](s.process),
		worker.WithName("fix-workers"),
		worker.WithLogger(s.logger.Named("fix-workers")),
	)
	s.alerts.Start(runCtx)
	s.pool.Start(runCtx)

	if s.interval > 0 {
		schedCtx, stop := context.WithCancel(runCtx)
		s.stopSched = stop
		s.schedDone = make(chan struct{})
		go s.schedule(schedCtx, s.schedDone)
	}

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "herdwatch service started",
		logger.String("store", s.stores.Driver),
		logger.String("fence", s.fence),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("evaluationInterval", s.interval),
	)
	return nil
}

// Stop stops the scheduler, drains queued fixes and pending alerts, then
// releases background goroutines. Stores are owned by the caller.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	stopSched, schedDone, pool, cancel := s.stopSched, s.schedDone, s.pool, s.cancel
	s.stopSched, s.schedDone = nil, nil
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping herdwatch service...")

	if stopSched != nil {
		stopSched()
		<-schedDone
	}
	err := errors.Join(pool.Shutdown(ctx), s.alerts.Shutdown(ctx))
	cancel()

	s.logger.Info(ctx, "herdwatch service stopped")
	return err
}

func (s *Service) loadFence(ctx context.Context) error {
	s.fenceMu.Lock()
	defer s.fenceMu.Unlock()

	g, err := s.stores.Fences.Get(ctx, s.fence)
	switch {
	case errors.Is(err, model.ErrFenceNotFound):
		s.registry.Delete(s.fence)
		metrics.UpdateFenceVertices(0)
		s.logger.Warn(ctx, "no geofence defined; entities are treated as inside",
			logger.String("fence", s.fence))
		return nil
	case err != nil:
		return fmt.Errorf("load fence %s: %w", s.fence, err)
	}
	s.install(g)
	s.logger.Info(ctx, "geofence loaded",
		logger.String("fence", g.Name), logger.Int("vertices", len(g.Vertices)))
	return nil
}

func (s *Service) install(g model.Geofence) {
	poly := geofence.NewPolygon(g.Vertices)
	s.registry.Store(g.Name, poly)
	metrics.UpdateFenceVertices(poly.Len())
}

func (s *Service) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EvaluateNow(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "scheduled evaluation failed", logger.Error(err))
			}
		}
	}
}

// process is the fix worker body.
func (s *Service) process(ctx context.Context, fix model.PositionFix) error {
	out, err := s.evaluator.Apply(ctx, fix)
	if err != nil {
		s.logger.Warn(ctx, "fix evaluation failed",
			logger.String("entity_id", fix.EntityID),
			logger.String("fix_id", fix.FixID),
			logger.Error(err),
		)
		return err
	}
	s.logger.Debug(ctx, "fix evaluated",
		logger.String("entity_id", fix.EntityID),
		logger.String("fix_id", fix.FixID),
		logger.String("status", out.Current.String()),
		logger.Bool("stale", out.Stale),
		logger.Bool("alerted", out.Alerted),
	)
	return nil
}

// RegisterEntity creates an entity. With an initial position the entity is
// evaluated right away; a first position outside the fence never alerts.
// If that evaluation fails the entity is removed again.
func (s *Service) RegisterEntity(ctx context.Context, in types.EntityInput) (model.TrackedEntity, error) {
	now := s.now()
	e := model.TrackedEntity{
		ID:        strings.TrimSpace(in.ID),
		Name:      strings.TrimSpace(in.Name),
		Battery:   in.Battery,
		Status:    model.StatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := e.Validate(); err != nil {
		return model.TrackedEntity{}, err
	}
	if in.Position != nil && !in.Position.Valid() {
		return model.TrackedEntity{}, fmt.Errorf("%w: position out of range", model.ErrInvalidEntity)
	}

	if err := s.stores.Entities.Create(ctx, e); err != nil {
		return model.TrackedEntity{}, err
	}
	s.logger.Info(ctx, "entity registered", logger.String("entity_id", e.ID), logger.String("name", e.Name))

	if in.Position == nil {
		return e, nil
	}
	out, err := s.evaluator.Apply(ctx, model.PositionFix{
		EntityID: e.ID,
		Lat:      in.Position.Lat,
		Lon:      in.Position.Lon,
		Battery:  in.Battery,
		TS:       now,
	})
	if err != nil {
		// Registration is all or nothing: drop the entity the evaluation could not place.
		if dErr := s.stores.Entities.Delete(context.WithoutCancel(ctx), e.ID); dErr != nil {
			s.logger.Error(ctx, "rollback of unevaluated entity failed",
				logger.String("entity_id", e.ID), logger.Error(dErr))
		}
		return model.TrackedEntity{}, err
	}
	return out.Entity, nil
}

// RemoveEntity deletes an entity.
func (s *Service) RemoveEntity(ctx context.Context, id string) error {
	if err := s.stores.Entities.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "entity removed", logger.String("entity_id", id))
	return nil
}

// Entity returns one entity.
func (s *Service) Entity(ctx context.Context, id string) (model.TrackedEntity, error) {
	return s.stores.Entities.Get(ctx, id)
}

// Entities returns all entities.
func (s *Service) Entities(ctx context.Context) ([]model.TrackedEntity, error) {
	return s.stores.Entities.List(ctx)
}

// SubmitFix validates fix and queues it for evaluation.
//
// A fix without an id gets one; a fix without a timestamp is stamped now.
// A fix id seen before is acknowledged as a duplicate and not queued again.
// When the queue is full the id is forgotten and ErrBackpressure returned
// so the sender can retry.
func (s *Service) SubmitFix(ctx context.Context, fix model.PositionFix) (types.SubmitResult, error) {
	metrics.RecordFixReceived()
	if err := fix.Validate(); err != nil {
		metrics.RecordFixRejected("invalid")
		return types.SubmitResult{}, err
	}

	s.mu.RLock()
	fixes, started := s.fixes, s.started
	s.mu.RUnlock()
	if !started {
		return types.SubmitResult{}, ErrNotStarted
	}

	if _, err := s.stores.Entities.Get(ctx, fix.EntityID); err != nil {
		if errors.Is(err, model.ErrEntityNotFound) {
			metrics.RecordFixRejected("unknown_entity")
		}
		return types.SubmitResult{}, err
	}

	if fix.FixID == "" {
		fix.FixID = uuid.NewString()
	}
	if fix.TS.IsZero() {
		fix.TS = s.now()
	}
	res := types.SubmitResult{FixID: fix.FixID}

	if s.deduper.SeenAndRecord(ctx, fix.FixID) {
		metrics.RecordFixDuplicate()
		res.Duplicate = true
		return res, nil
	}
	if !fixes.Enqueue(ctx, fix) {
		s.deduper.Unrecord(ctx, fix.FixID)
		metrics.RecordFixRejected("backpressure")
		return res, ErrBackpressure
	}
	res.Accepted = true
	return res, nil
}

// ApplyFix evaluates fix synchronously, bypassing the queue and dedupe.
func (s *Service) ApplyFix(ctx context.Context, fix model.PositionFix) (evaluator.Outcome, error) {
	return s.evaluator.Apply(ctx, fix)
}

// ReplaceFence installs vertices, given in (lat, lon) order, as the active
// fence. The store write happens first; the in-memory polygon is swapped
// only after it succeeds. Concurrent replacements install in store order.
func (s *Service) ReplaceFence(ctx context.Context, vertices []model.Point) (model.Geofence, error) {
	for _, v := range vertices {
		if !v.Valid() {
			return model.Geofence{}, fmt.Errorf("%w: fence vertex out of range (%v, %v)", model.ErrInvalidPosition, v.Lat, v.Lon)
		}
	}
	s.fenceMu.Lock()
	g, err := s.stores.Fences.Replace(ctx, s.fence, geofence.Normalize(vertices))
	if err != nil {
		s.fenceMu.Unlock()
		return model.Geofence{}, err
	}
	s.install(g)
	poly := s.registry.Load(g.Name)
	s.fenceMu.Unlock()
	metrics.RecordFenceReplacement()

	s.logger.Info(ctx, "geofence replaced",
		logger.String("fence", g.Name),
		logger.Int("vertices", poly.Len()),
		logger.String("fallback", string(poly.Fallback())),
	)
	return g, nil
}

// ReplaceFenceGeoJSON parses a GeoJSON polygon in [lon, lat] order and
// installs it as the active fence.
func (s *Service) ReplaceFenceGeoJSON(ctx context.Context, data []byte) (model.Geofence, error) {
	vertices, err := geofence.ParseGeoJSON(data)
	if err != nil {
		return model.Geofence{}, err
	}
	return s.ReplaceFence(ctx, vertices)
}

// Fence returns the active fence as stored.
func (s *Service) Fence(ctx context.Context) (model.Geofence, error) {
	return s.stores.Fences.Get(ctx, s.fence)
}

// FenceGeoJSON returns the active fence as a GeoJSON Feature.
func (s *Service) FenceGeoJSON(ctx context.Context) ([]byte, error) {
	g, err := s.Fence(ctx)
	if err != nil {
		return nil, err
	}
	return geofence.ToGeoJSON(g.Name, g.Vertices)
}

// FenceView returns the active fence with both vertex encodings.
func (s *Service) FenceView(ctx context.Context) (types.FenceView, error) {
	g, err := s.Fence(ctx)
	if err != nil {
		return types.FenceView{}, err
	}
	v := types.FenceView{
		Name:      g.Name,
		Vertices:  g.Vertices,
		Defined:   s.registry.Load(g.Name).Defined(),
		UpdatedAt: g.UpdatedAt,
	}
	if data, err := geofence.ToGeoJSON(g.Name, g.Vertices); err == nil {
		v.GeoJSON = data
	}
	return v, nil
}

// DeleteFence removes the active fence. Entities are then treated as inside.
func (s *Service) DeleteFence(ctx context.Context) error {
	s.fenceMu.Lock()
	if err := s.stores.Fences.Delete(ctx, s.fence); err != nil {
		s.fenceMu.Unlock()
		return err
	}
	s.registry.Delete(s.fence)
	s.fenceMu.Unlock()
	metrics.UpdateFenceVertices(0)
	s.logger.Info(ctx, "geofence deleted", logger.String("fence", s.fence))
	return nil
}

// EvaluateNow runs one evaluation pass. Concurrent calls are serialised.
func (s *Service) EvaluateNow(ctx context.Context) (model.PassSummary, error) {
	s.passRunning.Lock()
	defer s.passRunning.Unlock()

	summary, err := s.evaluator.EvaluatePass(ctx)
	if err != nil && summary.Evaluated == 0 && summary.Skipped == 0 && summary.Failed == 0 {
		return summary, err
	}
	s.lastPass.Store(&summary)
	counts, cErr := s.statusCounts(context.WithoutCancel(ctx))
	if cErr == nil {
		cErr = metrics.UpdateEntityStatusCounts(counts)
	}
	if cErr != nil {
		s.logger.Warn(ctx, "status metrics not updated", logger.Error(cErr))
	}
	return summary, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	stats := types.Stats{
		Started:     s.started,
		Store:       s.stores.Driver,
		Fence:       s.fence,
		WorkerCount: s.workerCount,
		DedupeSize:  s.deduper.Size(),
		ByStatus:    map[string]int{},
	}
	if s.started {
		stats.QueueLength = s.fixes.Len()
		stats.QueueCapacity = s.fixes.Cap()
		stats.PendingAlerts = s.alerts.Pending()
	}
	s.mu.RUnlock()

	stats.FenceVertices = s.registry.Load(s.fence).Len()
	if p := s.lastPass.Load(); p != nil {
		last := *p
		stats.LastPass = &last
	}

	ents, err := s.stores.Entities.List(ctx)
	if err != nil {
		s.logger.Warn(ctx, "stats: list entities failed", logger.Error(err))
		return stats
	}
	stats.Entities = len(ents)
	stats.ByStatus = countStatuses(ents)
	return stats
}

// statusCounts counts stored entities by status, every status present.
func (s *Service) statusCounts(ctx context.Context) (map[string]int, error) {
	ents, err := s.stores.Entities.List(ctx)
	if err != nil {
		return nil, err
	}
	return countStatuses(ents), nil
}

func countStatuses(ents []model.TrackedEntity) map[string]int {
	counts := map[string]int{
		model.StatusUnknown.String(): 0,
		model.StatusInside.String():  0,
		model.StatusOutside.String(): 0,
	}
	for _, e := range ents {
		counts[e.Status.String()]++
	}
	return counts
}
