package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type InventoryKind string

const (
	KindTour    InventoryKind = "tour"
	KindPackage InventoryKind = "package"
)

// Kinds lists every inventory kind in sweep order.
var Kinds = []InventoryKind{KindTour, KindPackage}

type HoldState string

const (
	HoldPending   HoldState = "pending"
	HoldConfirmed HoldState = "confirmed"
	HoldCancelled HoldState = "cancelled"
	HoldExpired   HoldState = "expired"
	HoldRefunded  HoldState = "refunded"
)

type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// InventoryUnit is a bookable capacity pool. For tours Capacity is the seat
// count of the departure; for packages it is the max-guests ceiling of a
// single stay, and only one stay may occupy any given night.
type InventoryUnit struct {
	ID         int64         `json:"id"`
	Kind       InventoryKind `json:"kind"`
	OwnerID    uuid.UUID     `json:"owner_id"`
	Title      string        `json:"title"`
	Capacity   int           `json:"capacity"`
	MinNights  int           `json:"min_nights"`
	MaxNights  int           `json:"max_nights"`
	PriceCents int64         `json:"price_cents"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Stay is a half-open range of nights [CheckIn, CheckOut).
type Stay struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewStay truncates both ends to UTC calendar dates.
func NewStay(checkIn, checkOut time.Time) Stay {
	return Stay{CheckIn: dateOf(checkIn), CheckOut: dateOf(checkOut)}
}

// Nights counts calendar days between the two dates. It does not go through
// time.Duration, which saturates after about 292 years.
func (s Stay) Nights() int {
	return int((dateOf(s.CheckOut).Unix() - dateOf(s.CheckIn).Unix()) / 86400)
}

func (s Stay) Overlaps(o Stay) bool {
	return s.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(s.CheckOut)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Hold is a time-boxed claim on inventory. ExpiresAt and TotalPriceCents are
// fixed at creation.
type Hold struct {
	ID              uuid.UUID       `json:"id"`
	InventoryUnitID int64           `json:"inventory_unit_id"`
	Kind            InventoryKind   `json:"kind"`
	HolderID        uuid.UUID       `json:"holder_id"`
	RequestedUnits  int             `json:"requested_units"`
	Stay            *Stay           `json:"stay,omitempty"`
	TotalPriceCents int64           `json:"total_price_cents"`
	State           HoldState       `json:"state"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
	PaymentMetadata json.RawMessage `json:"payment_metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Live reports whether the hold still counts against capacity at now.
func (h Hold) Live(now time.Time) bool {
	switch h.State {
	case HoldConfirmed:
		return true
	case HoldPending:
		return now.Before(h.ExpiresAt)
	default:
		return false
	}
}

// SecondsRemaining projects the countdown shown to the traveler. It is never
// consulted for decisions.
func (h Hold) SecondsRemaining(now time.Time) int64 {
	if h.State != HoldPending || !now.Before(h.ExpiresAt) {
		return 0
	}
	return int64(h.ExpiresAt.Sub(now).Seconds())
}

// HoldRef identifies a hold touched by a batch operation.
type HoldRef struct {
	ID              uuid.UUID
	InventoryUnitID int64
	Kind            InventoryKind
}

// Transition describes a hold state change for notification consumers.
// From is empty for newly created holds.
type Transition struct {
	HoldID          uuid.UUID     `json:"hold_id"`
	InventoryUnitID int64         `json:"inventory_unit_id"`
	Kind            InventoryKind `json:"kind"`
	From            HoldState     `json:"from,omitempty"`
	To              HoldState     `json:"to"`
	Reason          string        `json:"reason,omitempty"`
	At              time.Time     `json:"at"`
}

type Availability struct {
	InventoryUnitID int64     `json:"inventory_unit_id"`
	Capacity        int       `json:"capacity"`
	Committed       int       `json:"committed"`
	Available       int       `json:"available"`
	AsOf            time.Time `json:"as_of"`
}

type SweepResult struct {
	Success       bool                    `json:"success"`
	ExpiredCount  int64                   `json:"expired_count"`
	ExpiredByKind map[InventoryKind]int64 `json:"expired_by_kind"`
	FailedKinds   []InventoryKind         `json:"failed_kinds,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Partial reports a sweep where some kinds failed and others did not.
func (r SweepResult) Partial() bool {
	return r.Success && len(r.FailedKinds) > 0
}

// PaymentWebhookRecord makes provider webhook deliveries idempotent per
// event id.
type PaymentWebhookRecord struct {
	ID            int64      `json:"id"`
	StripeEventID string     `json:"stripe_event_id"`
	EventType     string     `json:"event_type"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty"`
	BookingType   string     `json:"booking_type,omitempty"`
	Processed     bool       `json:"processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
