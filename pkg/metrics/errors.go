package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrUnknownStatus = errors.New("metrics: unknown entity status")
)
