// Package transition decides the next containment status of an entity and
// whether the change warrants an alert.
package transition

import "github.com/okian/herdwatch/internal/domain/model"

// Decision is the result of comparing previous status with fresh containment.
type Decision struct {
	Next  model.Status
	Alert bool
}

// Decide returns INSIDE when inside, OUTSIDE otherwise.
// Only an INSIDE to OUTSIDE change raises an alert: re-entry, staying outside
// and a first fix outside never do.
func Decide(previous model.Status, inside bool) Decision {
	if inside {
		return Decision{Next: model.StatusInside}
	}
	return Decision{
		Next:  model.StatusOutside,
		Alert: previous == model.StatusInside,
	}
}

// Changed reports whether the decision moves away from previous.
func (d Decision) Changed(previous model.Status) bool {
	return d.Next != previous
}
