package evaluator

import "errors"

// Sentinel errors for evaluation.
var (
	// ErrStore marks entity store read or write failures. No alert is emitted
	// and no partial state is written when it is returned.
	ErrStore = errors.New("entity store failure")
)
