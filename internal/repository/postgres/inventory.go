package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
}

const unitColumns = `id, kind, owner_id, title, capacity, min_nights, max_nights,
	price_cents, created_at, updated_at`

// GetUnit retrieves an inventory unit by its ID.
//
// Returns:
//   - *domain.InventoryUnit: the unit when found.
//   - error: repository.ErrNotFound if the unit does not exist.
func (r *InventoryRepo) GetUnit(ctx context.Context, id int64) (*domain.InventoryUnit, error) {
	const op = "postgresrepo.InventoryRepo.GetUnit"

	db := handle(ctx, r.pool)

	var u domain.InventoryUnit
	err := db.QueryRow(ctx,
		`SELECT `+unitColumns+`
		 FROM inventory_units WHERE id = $1`,
		id,
	).Scan(
		&u.ID, &u.Kind, &u.OwnerID, &u.Title, &u.Capacity, &u.MinNights,
		&u.MaxNights, &u.PriceCents, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

// CommittedUnits sums requested units of holds that still count against the
// unit's capacity at now: confirmed holds and pending holds before their
// deadline.
func (r *InventoryRepo) CommittedUnits(ctx context.Context, unitID int64, now time.Time) (int, error) {
	const op = "postgresrepo.InventoryRepo.CommittedUnits"

	db := handle(ctx, r.pool)

	var total int
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(requested_units), 0)
		 FROM holds
		 WHERE inventory_unit_id = $1
		   AND (state = 'confirmed' OR (state = 'pending' AND expires_at > $2))`,
		unitID, now,
	).Scan(&total)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return total, nil
}

// CountOverlapping counts live holds on a package unit whose nights overlap
// stay.
func (r *InventoryRepo) CountOverlapping(
	ctx context.Context,
	unitID int64,
	stay domain.Stay,
	now time.Time,
) (int, error) {
	const op = "postgresrepo.InventoryRepo.CountOverlapping"

	db := handle(ctx, r.pool)

	var n int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM holds
		 WHERE inventory_unit_id = $1
		   AND (state = 'confirmed' OR (state = 'pending' AND expires_at > $2))
		   AND daterange(check_in, check_out) && daterange($3::date, $4::date)`,
		unitID, now, stay.CheckIn, stay.CheckOut,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

// CreateUnit inserts an inventory unit and returns its ID.
func (r *InventoryRepo) CreateUnit(ctx context.Context, u *domain.InventoryUnit) (int64, error) {
	const op = "postgresrepo.InventoryRepo.CreateUnit"

	db := handle(ctx, r.pool)

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO inventory_units
		   (kind, owner_id, title, capacity, min_nights, max_nights, price_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING id`,
		u.Kind, u.OwnerID, u.Title, u.Capacity, u.MinNights, u.MaxNights, u.PriceCents, u.CreatedAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// UpdatePrice changes the unit's current price. Existing holds keep the
// price frozen at their creation.
func (r *InventoryRepo) UpdatePrice(ctx context.Context, id int64, priceCents int64, now time.Time) error {
	const op = "postgresrepo.InventoryRepo.UpdatePrice"

	db := handle(ctx, r.pool)

	tag, err := db.Exec(ctx,
		`UPDATE inventory_units SET price_cents = $2, updated_at = $3 WHERE id = $1`,
		id, priceCents, now,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
