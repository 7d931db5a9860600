package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/notify"
	"github.com/kirinyoku/tripavail/internal/repository"
	"github.com/kirinyoku/tripavail/internal/uow"
)

type Store interface {
	CreateUnit(ctx context.Context, u *domain.InventoryUnit) (int64, error)
	UpdatePrice(ctx context.Context, id int64, priceCents int64, now time.Time) error
}

type Service struct {
	store Store
	uow   uow.Runner
	cache notify.Invalidator
	clock clock.Clock
}

// New builds the inventory admin service. cache may be nil.
func New(store Store, runner uow.Runner, cache notify.Invalidator, clk clock.Clock) *Service {
	if runner == nil {
		runner = uow.Direct{}
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		store: store,
		uow:   runner,
		cache: cache,
		clock: clk,
	}
}

type CreateTourInput struct {
	OwnerID      uuid.UUID
	Title        string
	Seats        int
	PricePerSeat int64
}

// CreateTour registers a tour departure with a fixed seat count.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: owner, title, seat count and per-seat price in cents.
//
// Returns:
//   - int64: the created unit ID.
//   - error: domain.InvalidRequestError if seats < 1 or the price is negative.
func (s *Service) CreateTour(ctx context.Context, in CreateTourInput) (int64, error) {
	const op = "service.admin.CreateTour"

	return s.create(ctx, op, &domain.InventoryUnit{
		Kind:       domain.KindTour,
		OwnerID:    in.OwnerID,
		Title:      in.Title,
		Capacity:   in.Seats,
		PriceCents: in.PricePerSeat,
	})
}

type CreatePackageInput struct {
	OwnerID       uuid.UUID
	Title         string
	MaxGuests     int
	MinNights     int
	MaxNights     int
	PricePerNight int64
}

// CreatePackage registers a date-ranged package. A zero MinNights or
// MaxNights leaves that side of the stay length unbounded.
func (s *Service) CreatePackage(ctx context.Context, in CreatePackageInput) (int64, error) {
	const op = "service.admin.CreatePackage"

	if in.MinNights < 0 || in.MaxNights < 0 || (in.MaxNights > 0 && in.MaxNights < in.MinNights) {
		return 0, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonBadNights})
	}

	return s.create(ctx, op, &domain.InventoryUnit{
		Kind:       domain.KindPackage,
		OwnerID:    in.OwnerID,
		Title:      in.Title,
		Capacity:   in.MaxGuests,
		MinNights:  in.MinNights,
		MaxNights:  in.MaxNights,
		PriceCents: in.PricePerNight,
	})
}

// UpdatePrice changes the unit's current price. Holds already placed keep the
// total they were created with.
func (s *Service) UpdatePrice(ctx context.Context, unitID int64, priceCents int64) error {
	const op = "service.admin.UpdatePrice"

	if priceCents < 0 {
		return fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonBadPrice})
	}

	return s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if err := s.store.UpdatePrice(ctx, unitID, priceCents, s.clock.Now()); err != nil {
			return fmt.Errorf("%s:%w", op, repository.ToDomain(err))
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateUnit(ctx, unitID)
			}
		})

		return nil
	})
}

func (s *Service) create(ctx context.Context, op string, u *domain.InventoryUnit) (int64, error) {
	if u.Capacity < 1 {
		return 0, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonBadCapacity})
	}

	if u.PriceCents < 0 {
		return 0, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonBadPrice})
	}

	u.CreatedAt = s.clock.Now()
	u.UpdatedAt = u.CreatedAt

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, _ func(uow.AfterCommit)) error {
		var err error
		id, err = s.store.CreateUnit(ctx, u)
		if err != nil {
			return fmt.Errorf("%s:%w", op, repository.ToDomain(err))
		}
		return nil
	})

	return id, err
}
