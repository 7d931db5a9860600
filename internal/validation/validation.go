// Package validation holds the side-effect free business-rule checks that run
// before admission and confirmation.
package validation

import (
	"time"

	"github.com/kirinyoku/tripavail/internal/domain"
)

// ValidateGuestOrSeatCount checks a requested seat or guest count against the
// capacity currently available.
//
// Returns:
//   - domain.InvalidRequestError when requested < 1.
//   - domain.CapacityExceededError carrying available when requested > available.
func ValidateGuestOrSeatCount(requested, available int) error {
	if requested < 1 {
		return &domain.InvalidRequestError{Reason: domain.ReasonCountTooLow, Bound: 1}
	}
	if requested > available {
		if available < 0 {
			available = 0
		}
		return &domain.CapacityExceededError{Available: available}
	}
	return nil
}

// ValidateStayLength checks nights against inclusive bounds. A zero bound
// means unbounded on that side.
func ValidateStayLength(nights, minNights, maxNights int) error {
	if minNights > 0 && nights < minNights {
		return &domain.InvalidRequestError{Reason: domain.ReasonStayTooShort, Bound: minNights}
	}
	if maxNights > 0 && nights > maxNights {
		return &domain.InvalidRequestError{Reason: domain.ReasonStayTooLong, Bound: maxNights}
	}
	return nil
}

func ValidateStay(stay domain.Stay) error {
	if stay.CheckIn.IsZero() || !stay.CheckOut.After(stay.CheckIn) {
		return &domain.InvalidRequestError{Reason: domain.ReasonBadDates}
	}
	return nil
}

func ValidateGuests(guests, maxGuests int) error {
	if guests < 1 {
		return &domain.InvalidRequestError{Reason: domain.ReasonCountTooLow, Bound: 1}
	}
	if maxGuests > 0 && guests > maxGuests {
		return &domain.InvalidRequestError{Reason: domain.ReasonTooManyGuests, Bound: maxGuests}
	}
	return nil
}

// IsHoldStillValid is the single predicate every mutation path consults
// before acting on a hold.
func IsHoldStillValid(h domain.Hold, now time.Time) bool {
	return h.State == domain.HoldPending && now.Before(h.ExpiresAt)
}

// ValidateHoldForPayment classifies why a hold may not start or finish a
// payment. A pending hold past its deadline is Expired even when the sweeper
// has not reached it yet.
func ValidateHoldForPayment(h *domain.Hold, now time.Time) error {
	if h == nil {
		return domain.ErrNotFound
	}
	if IsHoldStillValid(*h, now) {
		return nil
	}
	if h.State == domain.HoldExpired || h.State == domain.HoldPending {
		return domain.ErrExpired
	}
	return domain.ErrAlreadyFinalized
}
