package service

import (
	"runtime"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of fix evaluation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the fix queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many fix ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithActiveFence selects the fence entities are evaluated against.
func WithActiveFence(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.fence = name
		}
	}
}

// WithEvaluationInterval schedules periodic passes; zero disables them.
func WithEvaluationInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithPassConcurrency bounds parallel evaluations inside a pass.
func WithPassConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.passConcurrency = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func defaults(s *Service) {
	s.workerCount = runtime.NumCPU() * 2
	s.queueSize = 10_000
	s.dedupeSize = 100_000
	s.fence = model.DefaultFenceName
	s.interval = 30 * time.Second
	s.passConcurrency = runtime.NumCPU()
	s.now = time.Now
}
