package queue

// Option configures an InMemoryQueue. It is not generic so one option set
// serves every payload type.
type Option func(*settings)

type settings struct {
	name     string
	capacity int
}

// WithCapacity sets the maximum number of buffered items.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithName labels the queue in metrics and logs.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}
