package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrMismatch         = errors.New("identifier mismatch")
	ErrAlreadyFinalized = errors.New("hold already finalized")
	ErrExpired          = errors.New("hold expired")
	ErrTransientStore   = errors.New("data store unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

// CapacityExceededError carries the true availability at the moment the
// request was rejected.
type CapacityExceededError struct {
	Available int
}

func (e *CapacityExceededError) Error() string {
	if e.Available <= 0 {
		return "no availability left"
	}
	return fmt.Sprintf("only %d left", e.Available)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

type InvalidReason string

const (
	ReasonCountTooLow    InvalidReason = "count_too_low"
	ReasonTooManyGuests  InvalidReason = "too_many_guests"
	ReasonStayTooShort   InvalidReason = "stay_too_short"
	ReasonStayTooLong    InvalidReason = "stay_too_long"
	ReasonBadDates       InvalidReason = "bad_dates"
	ReasonWrongKind      InvalidReason = "wrong_inventory_kind"
	ReasonMissingPayment InvalidReason = "missing_payment_intent"
	ReasonNotConfirmed   InvalidReason = "hold_not_confirmed"
	ReasonBadPrice       InvalidReason = "bad_price"
	ReasonBadCapacity    InvalidReason = "bad_capacity"
	ReasonMissingEvent   InvalidReason = "missing_event"
	ReasonBadNights      InvalidReason = "bad_night_bounds"
)

type InvalidRequestError struct {
	Reason InvalidReason
	Bound  int
}

func (e *InvalidRequestError) Error() string {
	switch e.Reason {
	case ReasonCountTooLow:
		return "at least 1 seat or guest is required"
	case ReasonTooManyGuests:
		return fmt.Sprintf("maximum %d guests", e.Bound)
	case ReasonStayTooShort:
		return fmt.Sprintf("minimum stay is %d nights", e.Bound)
	case ReasonStayTooLong:
		return fmt.Sprintf("maximum stay is %d nights", e.Bound)
	case ReasonBadDates:
		return "check-out must be after check-in"
	case ReasonWrongKind:
		return "operation not supported for this inventory kind"
	case ReasonMissingPayment:
		return "payment intent id is required"
	case ReasonNotConfirmed:
		return "only confirmed holds can be refunded"
	case ReasonBadPrice:
		return "price must not be negative"
	case ReasonBadCapacity:
		return "capacity must be at least 1"
	case ReasonMissingEvent:
		return "event id and type are required"
	case ReasonBadNights:
		return "maximum nights must not be below minimum nights"
	default:
		return string(e.Reason)
	}
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
