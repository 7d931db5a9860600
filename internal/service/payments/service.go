// Package payments turns payment provider webhooks into hold transitions.
// Each provider event is applied at most once.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
	"github.com/kirinyoku/tripavail/internal/service/reservation"
	"github.com/kirinyoku/tripavail/internal/uow"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

type WebhookStore interface {
	ClaimWebhook(ctx context.Context, rec domain.PaymentWebhookRecord) (*domain.PaymentWebhookRecord, error)
	MarkWebhookProcessed(ctx context.Context, eventID string, errMsg *string, now time.Time) error
}

type Reconciler interface {
	ConfirmOnPaymentSuccess(ctx context.Context, in reservation.ConfirmInput) (*reservation.Confirmation, error)
	RecordPaymentFailure(ctx context.Context, intentID, reason string) (*domain.Hold, error)
}

// Event is a provider webhook reduced to what reconciliation needs.
type Event struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	PaymentIntentID string          `json:"payment_intent_id"`
	HoldID          uuid.UUID       `json:"hold_id"`
	BookingType     string          `json:"booking_type,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	FailureMessage  string          `json:"failure_message,omitempty"`
}

type Result struct {
	EventID   string              `json:"event_id"`
	Duplicate bool                `json:"duplicate"`
	Ignored   bool                `json:"ignored"`
	Outcome   reservation.Outcome `json:"outcome,omitempty"`
	Hold      *domain.Hold        `json:"hold,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type Service struct {
	webhooks   WebhookStore
	reconciler Reconciler
	uow        uow.Runner
	clock      clock.Clock
	logger     *slog.Logger
}

func New(webhooks WebhookStore, reconciler Reconciler, runner uow.Runner, clk clock.Clock, logger *slog.Logger) *Service {
	if runner == nil {
		runner = uow.Direct{}
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webhooks:   webhooks,
		reconciler: reconciler,
		uow:        runner,
		clock:      clk,
		logger:     logger,
	}
}

// HandleEvent applies one provider event inside a single unit of work. The
// event id is claimed first; a delivery whose record is already processed
// changes nothing and reports Duplicate.
//
// Business outcomes such as an expired or mismatched hold are final: the
// record is marked processed with the reason and no error is returned, so the
// provider stops retrying. Store failures roll everything back and are
// returned, so the provider's retry reprocesses the event.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ev: the provider event.
//
// Returns:
//   - *Result: what the delivery did.
//   - error: domain.InvalidRequestError if the event has no id or type.
//   - error: domain.ErrTransientStore if the store failed.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (*Result, error) {
	const op = "service.payments.HandleEvent"

	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonMissingEvent})
	}

	res := &Result{EventID: ev.ID}

	err := s.uow.Do(ctx, func(ctx context.Context, _ func(uow.AfterCommit)) error {
		now := s.clock.Now()

		rec := domain.PaymentWebhookRecord{
			StripeEventID: ev.ID,
			EventType:     ev.Type,
			BookingType:   ev.BookingType,
			CreatedAt:     now,
		}
		if ev.HoldID != uuid.Nil {
			id := ev.HoldID
			rec.BookingID = &id
		}

		claimed, err := s.webhooks.ClaimWebhook(ctx, rec)
		if err != nil {
			return fmt.Errorf("%s:%w", op, repository.ToDomain(err))
		}

		if claimed.Processed {
			res.Duplicate = true
			return nil
		}

		handleErr := s.dispatch(ctx, ev, res)
		if handleErr != nil && !isFinal(handleErr) {
			return fmt.Errorf("%s:%w", op, handleErr)
		}

		var errMsg *string
		if handleErr != nil {
			msg := handleErr.Error()
			errMsg = &msg
			res.Error = msg
		}

		if err := s.webhooks.MarkWebhookProcessed(ctx, ev.ID, errMsg, now); err != nil {
			return fmt.Errorf("%s:%w", op, repository.ToDomain(err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment webhook handled",
		"event_id", ev.ID,
		"type", ev.Type,
		"duplicate", res.Duplicate,
		"ignored", res.Ignored,
		"outcome", res.Outcome,
		"error", res.Error,
	)

	return res, nil
}

func (s *Service) dispatch(ctx context.Context, ev Event, res *Result) error {
	switch ev.Type {
	case EventPaymentSucceeded:
		c, err := s.reconciler.ConfirmOnPaymentSuccess(ctx, reservation.ConfirmInput{
			PaymentIntentID: ev.PaymentIntentID,
			HoldID:          ev.HoldID,
			PaymentMethod:   ev.PaymentMethod,
			Metadata:        ev.Metadata,
		})
		if err != nil {
			return err
		}
		res.Outcome = c.Outcome
		res.Hold = c.Hold
		return nil

	case EventPaymentFailed:
		h, err := s.reconciler.RecordPaymentFailure(ctx, ev.PaymentIntentID, ev.FailureMessage)
		if err != nil {
			return err
		}
		res.Hold = h
		return nil

	default:
		res.Ignored = true
		return nil
	}
}

// isFinal reports errors a provider retry cannot change.
func isFinal(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrMismatch) ||
		errors.Is(err, domain.ErrExpired) ||
		errors.Is(err, domain.ErrAlreadyFinalized) ||
		errors.Is(err, domain.ErrInvalidRequest)
}
