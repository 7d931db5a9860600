package reservation

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
	"github.com/kirinyoku/tripavail/internal/notify"
	"github.com/kirinyoku/tripavail/internal/repository"
	"github.com/kirinyoku/tripavail/internal/uow"
	"github.com/kirinyoku/tripavail/internal/validation"
)

// HoldStore is the row-mutation interface of the holds table.
type HoldStore interface {
	InsertHold(ctx context.Context, h *domain.Hold) error
	GetHold(ctx context.Context, id uuid.UUID) (*domain.Hold, error)
	GetHoldByPaymentIntent(ctx context.Context, intentID string) (*domain.Hold, error)
	AttachPaymentIntent(ctx context.Context, holdID uuid.UUID, intentID string, now time.Time) (*domain.Hold, error)
	MarkConfirmed(ctx context.Context, holdID uuid.UUID, method string, metadata json.RawMessage, now time.Time) (*domain.Hold, error)
	MarkPaymentFailed(ctx context.Context, intentID string, now time.Time) (*domain.Hold, error)
	CancelHold(ctx context.Context, holdID uuid.UUID, reason string, now time.Time) (*domain.Hold, error)
	RefundHold(ctx context.Context, holdID uuid.UUID, now time.Time) (*domain.Hold, error)
}

// Inventory answers the capacity questions admission asks before writing.
type Inventory interface {
	Unit(ctx context.Context, id int64) (*domain.InventoryUnit, error)
	AvailableUnits(ctx context.Context, unitID int64) (int, error)
	StayAvailable(ctx context.Context, unitID int64, stay domain.Stay) (bool, error)
}

type Limiter interface {
	Allow(ctx context.Context, id string) (bool, time.Duration, error)
}

type Config struct {
	HoldTTL time.Duration
}

type Deps struct {
	Holds     HoldStore
	Inventory Inventory
	UoW       uow.Runner
	Clock     clock.Clock
	Sink      *notify.Sink
	// Limiter is optional.
	Limiter Limiter
	Logger  *slog.Logger
}

type Service struct {
	holds     HoldStore
	inventory Inventory
	uow       uow.Runner
	clock     clock.Clock
	sink      *notify.Sink
	limiter   Limiter
	logger    *slog.Logger
	cfg       Config
}

func New(deps Deps, cfg Config) *Service {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 10 * time.Minute
	}

	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}

	if deps.UoW == nil {
		deps.UoW = uow.Direct{}
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		holds:     deps.Holds,
		inventory: deps.Inventory,
		uow:       deps.UoW,
		clock:     deps.Clock,
		sink:      deps.Sink,
		limiter:   deps.Limiter,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

type RequestHoldInput struct {
	UnitID   int64
	HolderID uuid.UUID
	Units    int
	// RateLimitKey identifies the client for throttling. Empty disables it.
	RateLimitKey string
}

// RequestHold places a pending hold on seats of a tour departure.
//
// Availability is re-read right before the insert, but the store's capacity
// constraint is what rejects a request that lost a race; in that case the
// availability is queried again so the error reports the true remainder.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: unit, holder and seat count.
//
// Returns:
//   - *domain.Hold: the created pending hold.
//   - error: domain.CapacityExceededError carrying the seats still available.
//   - error: domain.InvalidRequestError if the count is below 1 or the unit is a package.
//   - error: domain.ErrNotFound if the unit does not exist.
//   - error: domain.RateLimitedError if the client exceeded its request budget.
//   - error: domain.ErrTransientStore if the store cannot be reached.
func (s *Service) RequestHold(ctx context.Context, in RequestHoldInput) (*domain.Hold, error) {
	const op = "service.reservation.RequestHold"

	if in.Units < 1 {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonCountTooLow, Bound: 1})
	}

	if err := s.allow(ctx, in.RateLimitKey); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	unit, err := s.inventory.Unit(ctx, in.UnitID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if unit.Kind != domain.KindTour {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonWrongKind})
	}

	available, err := s.inventory.AvailableUnits(ctx, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := validation.ValidateGuestOrSeatCount(in.Units, available); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	hold := s.newHold(unit, in.HolderID, in.Units, nil, unit.PriceCents*int64(in.Units))

	if err := s.insert(ctx, hold); err != nil {
		if errors.Is(err, repository.ErrCapacityConstraint) {
			fresh, qerr := s.inventory.AvailableUnits(ctx, unit.ID)
			if qerr != nil {
				return nil, fmt.Errorf("%s:%w", op, qerr)
			}
			return nil, fmt.Errorf("%s:%w", op, &domain.CapacityExceededError{Available: fresh})
		}

		return nil, storeErr(op, err)
	}

	return hold, nil
}

type RequestStayInput struct {
	UnitID       int64
	HolderID     uuid.UUID
	Guests       int
	Stay         domain.Stay
	RateLimitKey string
}

// RequestStay places a pending hold on a date range of a package. Any live
// hold overlapping the range makes the package unavailable for it.
//
// Returns:
//   - *domain.Hold: the created pending hold.
//   - error: domain.CapacityExceededError with Available 0 if the nights are taken.
//   - error: domain.InvalidRequestError for bad dates, guest count or stay length.
//   - error: domain.ErrNotFound if the unit does not exist.
func (s *Service) RequestStay(ctx context.Context, in RequestStayInput) (*domain.Hold, error) {
	const op = "service.reservation.RequestStay"

	if err := validation.ValidateStay(in.Stay); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.allow(ctx, in.RateLimitKey); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	unit, err := s.inventory.Unit(ctx, in.UnitID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if unit.Kind != domain.KindPackage {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonWrongKind})
	}

	if err := validation.ValidateGuests(in.Guests, unit.Capacity); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	free, err := s.inventory.StayAvailable(ctx, unit.ID, in.Stay)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !free {
		return nil, fmt.Errorf("%s:%w", op, &domain.CapacityExceededError{Available: 0})
	}

	stay := in.Stay
	hold := s.newHold(unit, in.HolderID, in.Guests, &stay, unit.PriceCents*int64(stay.Nights()))

	if err := s.insert(ctx, hold); err != nil {
		if errors.Is(err, repository.ErrStayOverlap) || errors.Is(err, repository.ErrCapacityConstraint) {
			return nil, fmt.Errorf("%s:%w", op, &domain.CapacityExceededError{Available: 0})
		}

		return nil, storeErr(op, err)
	}

	return hold, nil
}

// BeginPayment is the pre-payment check: the hold must exist, be pending and
// be before its deadline. It records the payment intent that will pay for it.
//
// Returns:
//   - *domain.Hold: the hold with the intent attached.
//   - error: domain.ErrExpired if the deadline passed; the traveler must restart.
//   - error: domain.ErrAlreadyFinalized if the hold left the pending state.
//   - error: domain.ErrMismatch if the intent already pays for another hold.
//   - error: domain.ErrNotFound if the hold does not exist.
func (s *Service) BeginPayment(ctx context.Context, holdID uuid.UUID, intentID string) (*domain.Hold, error) {
	const op = "service.reservation.BeginPayment"

	if intentID == "" {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonMissingPayment})
	}

	h, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		return nil, storeErr(op, err)
	}

	now := s.clock.Now()

	if err := validation.ValidateHoldForPayment(h, now); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	updated, err := s.holds.AttachPaymentIntent(ctx, holdID, intentID, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, domain.ErrMismatch)
		case errors.Is(err, repository.ErrStateChanged):
			return nil, fmt.Errorf("%s:%w", op, s.explain(ctx, holdID, now))
		}
		return nil, storeErr(op, err)
	}

	return updated, nil
}

type ConfirmInput struct {
	PaymentIntentID string
	HoldID          uuid.UUID
	PaymentMethod   string
	Metadata        json.RawMessage
}

// ConfirmOnPaymentSuccess finalizes a hold after the payment provider
// reported success. It is reached from both the browser return path and the
// provider webhook, in any order. The conditional pending-to-confirmed update
// is the only gate: the first caller wins and every later caller gets
// OutcomeAlreadyFinalized with the hold untouched.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: intent id, the hold id the caller claims and payment details.
//
// Returns:
//   - *Confirmation: OutcomeConfirmed or OutcomeAlreadyFinalized with the hold.
//   - error: domain.ErrNotFound if no hold carries the intent.
//   - error: domain.ErrMismatch if the intent belongs to a different hold.
//   - error: domain.ErrExpired if the hold lapsed before payment arrived.
func (s *Service) ConfirmOnPaymentSuccess(ctx context.Context, in ConfirmInput) (*Confirmation, error) {
	const op = "service.reservation.ConfirmOnPaymentSuccess"

	if in.PaymentIntentID == "" {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonMissingPayment})
	}

	var result *Confirmation

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		h, err := s.holds.GetHoldByPaymentIntent(ctx, in.PaymentIntentID)
		if err != nil {
			return storeErr(op, err)
		}

		if h.ID != in.HoldID {
			return fmt.Errorf("%s:%w", op, domain.ErrMismatch)
		}

		now := s.clock.Now()

		res, err := finalizedOutcome(h, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if res != nil {
			result = res
			return nil
		}

		confirmed, err := s.holds.MarkConfirmed(ctx, h.ID, in.PaymentMethod, in.Metadata, now)
		if err != nil {
			if !errors.Is(err, repository.ErrStateChanged) {
				return storeErr(op, err)
			}

			// lost the race; report what the winner left behind
			current, gerr := s.holds.GetHold(ctx, h.ID)
			if gerr != nil {
				return storeErr(op, gerr)
			}
			res, ferr := finalizedOutcome(current, now)
			if ferr != nil {
				return fmt.Errorf("%s:%w", op, ferr)
			}
			result = res
			return nil
		}

		result = &Confirmation{Outcome: OutcomeConfirmed, Hold: confirmed}

		after(func(ctx context.Context) {
			s.sink.Emit(ctx, transition(confirmed, domain.HoldPending, "payment_succeeded", now))
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// finalizedOutcome reports a hold that can no longer be confirmed. It returns
// (nil, nil) for a live pending hold.
func finalizedOutcome(h *domain.Hold, now time.Time) (*Confirmation, error) {
	err := validation.ValidateHoldForPayment(h, now)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return &Confirmation{Outcome: OutcomeAlreadyFinalized, Hold: h}, nil
	default:
		return nil, err
	}
}

// RecordPaymentFailure marks the payment of a pending hold as failed. The
// hold stays pending so the traveler may retry until its deadline.
//
// Returns:
//   - *domain.Hold: the hold with payment_status failed.
//   - error: domain.ErrNotFound if no hold carries the intent.
//   - error: domain.ErrAlreadyFinalized if the hold is no longer pending.
func (s *Service) RecordPaymentFailure(ctx context.Context, intentID, reason string) (*domain.Hold, error) {
	const op = "service.reservation.RecordPaymentFailure"

	if intentID == "" {
		return nil, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonMissingPayment})
	}

	var out *domain.Hold

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		now := s.clock.Now()

		h, err := s.holds.MarkPaymentFailed(ctx, intentID, now)
		if err != nil {
			if !errors.Is(err, repository.ErrStateChanged) {
				return storeErr(op, err)
			}

			if _, gerr := s.holds.GetHoldByPaymentIntent(ctx, intentID); gerr != nil {
				return storeErr(op, gerr)
			}
			return fmt.Errorf("%s:%w", op, domain.ErrAlreadyFinalized)
		}

		out = h

		s.logger.Info("payment failed", "hold_id", h.ID, "intent_id", intentID, "reason", reason)

		after(func(ctx context.Context) {
			s.sink.Emit(ctx, transition(h, domain.HoldPending, "payment_failed", now))
		})

		return nil
	})

	return out, err
}

// Cancel moves a live pending hold to cancelled on operator request. A
// pending hold past its deadline is reported as domain.ErrExpired.
func (s *Service) Cancel(ctx context.Context, holdID uuid.UUID, reason string) (*domain.Hold, error) {
	const op = "service.reservation.Cancel"

	var out *domain.Hold

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		now := s.clock.Now()

		h, err := s.holds.CancelHold(ctx, holdID, reason, now)
		if err != nil {
			if errors.Is(err, repository.ErrStateChanged) {
				return fmt.Errorf("%s:%w", op, s.explain(ctx, holdID, now))
			}
			return storeErr(op, err)
		}

		out = h

		after(func(ctx context.Context) {
			s.sink.Emit(ctx, transition(h, domain.HoldPending, reason, now))
		})

		return nil
	})

	return out, err
}

// Refund moves a confirmed hold to refunded. Refunds of holds that were never
// confirmed are rejected.
func (s *Service) Refund(ctx context.Context, holdID uuid.UUID) (*domain.Hold, error) {
	const op = "service.reservation.Refund"

	var out *domain.Hold

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		now := s.clock.Now()

		h, err := s.holds.RefundHold(ctx, holdID, now)
		if err != nil {
			if !errors.Is(err, repository.ErrStateChanged) {
				return storeErr(op, err)
			}

			current, gerr := s.holds.GetHold(ctx, holdID)
			if gerr != nil {
				return storeErr(op, gerr)
			}
			if current.State == domain.HoldRefunded {
				return fmt.Errorf("%s:%w", op, domain.ErrAlreadyFinalized)
			}
			return fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonNotConfirmed})
		}

		out = h

		after(func(ctx context.Context) {
			s.sink.Emit(ctx, transition(h, domain.HoldConfirmed, "refund", now))
		})

		return nil
	})

	return out, err
}

func (s *Service) GetHold(ctx context.Context, id uuid.UUID) (*domain.Hold, error) {
	const op = "service.reservation.GetHold"

	h, err := s.holds.GetHold(ctx, id)
	if err != nil {
		return nil, storeErr(op, err)
	}

	return h, nil
}

// Now exposes the service clock so callers can project countdowns with the
// same instant the service decides with.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) newHold(
	unit *domain.InventoryUnit,
	holderID uuid.UUID,
	units int,
	stay *domain.Stay,
	totalCents int64,
) *domain.Hold {
	now := s.clock.Now()

	return &domain.Hold{
		ID:              uuid.New(),
		InventoryUnitID: unit.ID,
		Kind:            unit.Kind,
		HolderID:        holderID,
		RequestedUnits:  units,
		Stay:            stay,
		TotalPriceCents: totalCents,
		State:           domain.HoldPending,
		PaymentStatus:   domain.PaymentUnpaid,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.HoldTTL),
		UpdatedAt:       now,
	}
}

func (s *Service) insert(ctx context.Context, h *domain.Hold) error {
	return s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if err := s.holds.InsertHold(ctx, h); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.sink.Emit(ctx, transition(h, "", "created", h.CreatedAt))
		})

		return nil
	})
}

func (s *Service) allow(ctx context.Context, key string) error {
	if s.limiter == nil || key == "" {
		return nil
	}

	ok, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// a limiter outage must not block bookings
		s.logger.Warn("rate limiter unavailable", "error", err)
		return nil
	}

	if !ok {
		return &domain.RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// explain re-reads a hold after a conditional update matched nothing and
// reports why.
func (s *Service) explain(ctx context.Context, holdID uuid.UUID, now time.Time) error {
	h, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		return repository.ToDomain(err)
	}

	if err := validation.ValidateHoldForPayment(h, now); err != nil {
		return err
	}

	return domain.ErrAlreadyFinalized
}

func transition(h *domain.Hold, from domain.HoldState, reason string, at time.Time) domain.Transition {
	return domain.Transition{
		HoldID:          h.ID,
		InventoryUnitID: h.InventoryUnitID,
		Kind:            h.Kind,
		From:            from,
		To:              h.State,
		Reason:          reason,
		At:              at,
	}
}
