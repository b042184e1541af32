package model

import "errors"

// Sentinel errors shared by the domain and its adapters.
var (
	ErrEntityNotFound  = errors.New("entity not found")
	ErrFenceNotFound   = errors.New("geofence not found")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidEntity   = errors.New("invalid entity")
	ErrUnknownStatus   = errors.New("unknown status")
)
