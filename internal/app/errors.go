package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrBackpressure = errors.New("fix queue is full")
	ErrNotStarted   = errors.New("service not started")
)
