package evaluator

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
)

// FormatAlert renders the free-text alert for an exit event.
func FormatAlert(ev model.ContainmentEvent) string {
	var b strings.Builder
	name := ev.EntityName
	if name == "" {
		name = ev.EntityID
	}
	fmt.Fprintf(&b, "%s (%s) left geofence %s at %.6f, %.6f",
		name, ev.EntityID, ev.Fence, ev.Position.Lat, ev.Position.Lon)
	if ev.Battery != nil {
		fmt.Fprintf(&b, " battery %d%%", *ev.Battery)
	}
	if !ev.At.IsZero() {
		b.WriteString(" on ")
		b.WriteString(ev.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}
