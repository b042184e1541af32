package evaluator

import (
	"runtime"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFence selects the fence name entities are evaluated against.
func WithFence(name string) Option {
	return func(e *Evaluator) {
		if name != "" {
			e.fence = name
		}
	}
}

// WithConcurrency bounds parallel entity evaluations in a pass.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

func defaults(e *Evaluator) {
	e.fence = model.DefaultFenceName
	e.concurrency = runtime.NumCPU()
	e.now = time.Now
}
