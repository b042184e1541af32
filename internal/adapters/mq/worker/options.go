package worker

import (
	"time"

	"github.com/okian/herdwatch/pkg/logger"
)

// Option configures a worker or pool. It is not generic so the same options
// apply to every payload type.
type Option func(*settings)

type settings struct {
	name    string
	timeout time.Duration
	logger  logger.Logger
}

// WithName sets the name used for logging and metrics labels.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds the processing of each item. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}
