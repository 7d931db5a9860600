package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
	redisrepo "github.com/kirinyoku/tripavail/internal/repository/redis"
	"github.com/kirinyoku/tripavail/internal/validation"
)

// Store is the read side of the inventory the queries need.
type Store interface {
	GetUnit(ctx context.Context, id int64) (*domain.InventoryUnit, error)
	CommittedUnits(ctx context.Context, unitID int64, now time.Time) (int, error)
	CountOverlapping(ctx context.Context, unitID int64, stay domain.Stay, now time.Time) (int, error)
}

type Config struct {
	SnapshotTTL time.Duration
}

type Service struct {
	store Store
	cache *redisrepo.Cache
	clock clock.Clock
	cfg   Config
}

// New builds the inventory query service. cache may be nil, in which case
// snapshots are read straight from the store.
func New(store Store, cache *redisrepo.Cache, clk clock.Clock, cfg Config) *Service {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Second
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		store: store,
		cache: cache,
		clock: clk,
		cfg:   cfg,
	}
}

func (s *Service) Unit(ctx context.Context, id int64) (*domain.InventoryUnit, error) {
	const op = "service.inventory.Unit"

	u, err := s.store.GetUnit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ToDomain(err))
	}

	return u, nil
}

// AvailableUnits returns the seats of a tour departure not claimed by a live
// hold. The value is read from the store on every call.
//
// Parameters:
//   - ctx: request-scoped context.
//   - unitID: ID of the tour departure.
//
// Returns:
//   - int: capacity minus live claims, never negative.
//   - error: domain.ErrNotFound if the unit does not exist.
//   - error: domain.InvalidRequestError if the unit is a package.
//   - error: domain.ErrTransientStore if the store cannot be reached.
func (s *Service) AvailableUnits(ctx context.Context, unitID int64) (int, error) {
	const op = "service.inventory.AvailableUnits"

	u, err := s.Unit(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if u.Kind != domain.KindTour {
		return 0, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonWrongKind})
	}

	committed, err := s.store.CommittedUnits(ctx, unitID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, repository.ToDomain(err))
	}

	return max(u.Capacity-committed, 0), nil
}

// StayAvailable enforces the package's stay-length bounds and reports
// whether no live hold occupies any night of stay.
//
// Returns:
//   - bool: true when every night of stay is free.
//   - error: domain.InvalidRequestError if the dates or stay length are invalid.
//   - error: domain.ErrNotFound if the unit does not exist.
func (s *Service) StayAvailable(ctx context.Context, unitID int64, stay domain.Stay) (bool, error) {
	const op = "service.inventory.StayAvailable"

	if err := validation.ValidateStay(stay); err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	u, err := s.Unit(ctx, unitID)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	if u.Kind != domain.KindPackage {
		return false, fmt.Errorf("%s:%w", op, &domain.InvalidRequestError{Reason: domain.ReasonWrongKind})
	}

	if err := validation.ValidateStayLength(stay.Nights(), u.MinNights, u.MaxNights); err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	n, err := s.store.CountOverlapping(ctx, unitID, stay, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, repository.ToDomain(err))
	}

	return n == 0, nil
}

// Snapshot is the display projection of a unit's capacity, served from the
// cache for at most SnapshotTTL. Admission never reads it.
func (s *Service) Snapshot(ctx context.Context, unitID int64) (*domain.Availability, error) {
	const op = "service.inventory.Snapshot"

	load := func(ctx context.Context) (domain.Availability, error) {
		return s.loadSnapshot(ctx, unitID)
	}

	var (
		a   domain.Availability
		err error
	)
	if s.cache != nil {
		a, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyUnitAvailability(unitID), s.cfg.SnapshotTTL, load)
	} else {
		a, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &a, nil
}

func (s *Service) loadSnapshot(ctx context.Context, unitID int64) (domain.Availability, error) {
	u, err := s.Unit(ctx, unitID)
	if err != nil {
		return domain.Availability{}, err
	}

	now := s.clock.Now()

	committed, err := s.store.CommittedUnits(ctx, unitID, now)
	if err != nil {
		return domain.Availability{}, repository.ToDomain(err)
	}

	a := domain.Availability{
		InventoryUnitID: u.ID,
		Capacity:        u.Capacity,
		Committed:       committed,
		AsOf:            now,
	}

	// package capacity is a per-stay guest ceiling, not a pool
	if u.Kind == domain.KindTour {
		a.Available = max(u.Capacity-committed, 0)
	} else {
		a.Available = u.Capacity
	}

	return a, nil
}
