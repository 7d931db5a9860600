package httpgin

import (
	"encoding/json"
	"time"

	"github.com/kirinyoku/tripavail/internal/domain"
)

const dateLayout = "2006-01-02"

type CreateHoldRequest struct {
	HolderID string `json:"holder_id" binding:"required,uuid"`
	Units    int    `json:"units"`
}

type CreateStayRequest struct {
	HolderID string `json:"holder_id" binding:"required,uuid"`
	Guests   int    `json:"guests"`
	CheckIn  string `json:"check_in" binding:"required"`
	CheckOut string `json:"check_out" binding:"required"`
}

type BeginPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

type ConfirmHoldRequest struct {
	PaymentIntentID string          `json:"payment_intent_id" binding:"required"`
	PaymentMethod   string          `json:"payment_method"`
	Metadata        json.RawMessage `json:"metadata" swaggertype:"object"`
}

type CancelHoldRequest struct {
	Reason string `json:"reason"`
}

// PaymentWebhookRequest is the subset of the provider's event envelope the
// reconciler reads.
type PaymentWebhookRequest struct {
	ID   string `json:"id" binding:"required"`
	Type string `json:"type" binding:"required"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentMethod string            `json:"payment_method"`
			Metadata      map[string]string `json:"metadata"`
			LastError     *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

type CreateTourRequest struct {
	OwnerID      string `json:"owner_id" binding:"required,uuid"`
	Title        string `json:"title" binding:"required"`
	Seats        int    `json:"seats"`
	PricePerSeat int64  `json:"price_per_seat_cents"`
}

type CreatePackageRequest struct {
	OwnerID       string `json:"owner_id" binding:"required,uuid"`
	Title         string `json:"title" binding:"required"`
	MaxGuests     int    `json:"max_guests"`
	MinNights     int    `json:"min_nights"`
	MaxNights     int    `json:"max_nights"`
	PricePerNight int64  `json:"price_per_night_cents"`
}

type UpdatePriceRequest struct {
	PriceCents int64 `json:"price_cents"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Available *int   `json:"available,omitempty"`
	Restart   bool   `json:"restart,omitempty"`
}

type CreateUnitResponse struct {
	UnitID int64 `json:"unit_id"`
}

type StayAvailabilityResponse struct {
	UnitID    int64  `json:"unit_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Available bool   `json:"available"`
}

// HoldResponse is a hold plus the countdown the client renders. The
// countdown is derived from expires_at and never drives a decision.
type HoldResponse struct {
	*domain.Hold
	SecondsRemaining int64 `json:"seconds_remaining"`
}

func newHoldResponse(h *domain.Hold, now time.Time) HoldResponse {
	return HoldResponse{Hold: h, SecondsRemaining: h.SecondsRemaining(now)}
}

func parseStay(checkIn, checkOut string) (domain.Stay, error) {
	in, err := time.Parse(dateLayout, checkIn)
	if err != nil {
		return domain.Stay{}, err
	}

	out, err := time.Parse(dateLayout, checkOut)
	if err != nil {
		return domain.Stay{}, err
	}

	return domain.NewStay(in, out), nil
}
