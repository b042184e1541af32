// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Status is the containment status of a tracked entity.
type Status uint8

// Containment statuses. The zero value is StatusUnknown.
const (
	StatusUnknown Status = iota
	StatusInside
	StatusOutside
)

var statusNames = [...]string{
	StatusUnknown: "UNKNOWN",
	StatusInside:  "INSIDE",
	StatusOutside: "OUTSIDE",
}

// String returns the upper-case status name.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus converts a status name, case-insensitively. Empty means UNKNOWN.
func ParseStatus(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "UNKNOWN":
		return StatusUnknown, nil
	case "INSIDE":
		return StatusInside, nil
	case "OUTSIDE":
		return StatusOutside, nil
	default:
		return StatusUnknown, fmt.Errorf("%w: %q", ErrUnknownStatus, v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
