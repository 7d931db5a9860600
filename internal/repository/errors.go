package repository

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tripavail/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrCapacityConstraint is returned when the store rejects a hold insert
	// because the unit's seats are exhausted.
	ErrCapacityConstraint = errors.New("capacity constraint violated")
	// ErrStayOverlap is returned when the store rejects a package hold whose
	// nights overlap a live hold.
	ErrStayOverlap = errors.New("stay overlaps a live hold")
	// ErrStateChanged is returned by conditional updates whose predicate no
	// longer matches the row.
	ErrStateChanged = errors.New("hold state changed")
	ErrUnavailable  = errors.New("store unavailable")
)

// ToDomain maps a store error onto the caller-facing taxonomy. Errors with no
// caller-facing meaning are returned unchanged.
func ToDomain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, ErrUnavailable):
		return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	default:
		return err
	}
}
