package repository

import (
	"errors"
	"fmt"

	"github.com/okian/herdwatch/internal/domain/model"
)

// Sentinel errors for stores.
var (
	ErrConflict      = errors.New("entity already exists")
	ErrUnknownDriver = errors.New("unknown store driver")
)

func entityNotFound(id string) error {
	return fmt.Errorf("%w: %s", model.ErrEntityNotFound, id)
}

func fenceNotFound(name string) error {
	return fmt.Errorf("%w: %s", model.ErrFenceNotFound, name)
}
