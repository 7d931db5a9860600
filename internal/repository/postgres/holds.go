package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

type HoldRepo struct {
	pool *pgxpool.Pool
}

const holdColumns = `id, inventory_unit_id, kind, holder_id, requested_units, check_in, check_out,
	total_price_cents, state, payment_status, payment_intent_id, payment_method,
	payment_metadata, created_at, expires_at, confirmed_at, paid_at, cancelled_at,
	cancel_reason, updated_at`

func scanHold(row pgx.Row) (*domain.Hold, error) {
	var (
		h                 domain.Hold
		checkIn, checkOut *time.Time
		metadata          []byte
	)

	if err := row.Scan(
		&h.ID, &h.InventoryUnitID, &h.Kind, &h.HolderID, &h.RequestedUnits,
		&checkIn, &checkOut, &h.TotalPriceCents, &h.State, &h.PaymentStatus,
		&h.PaymentIntentID, &h.PaymentMethod, &metadata, &h.CreatedAt,
		&h.ExpiresAt, &h.ConfirmedAt, &h.PaidAt, &h.CancelledAt,
		&h.CancelReason, &h.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if checkIn != nil && checkOut != nil {
		stay := domain.NewStay(*checkIn, *checkOut)
		h.Stay = &stay
	}
	if len(metadata) > 0 {
		h.PaymentMetadata = json.RawMessage(metadata)
	}

	return &h, nil
}

// InsertHold inserts a pending hold. The capacity trigger on the holds table
// is the enforcement point for overbooking.
//
// Returns:
//   - error: repository.ErrCapacityConstraint if the seats are exhausted.
//   - error: repository.ErrStayOverlap if a live hold covers any of the nights.
//   - error: repository.ErrNotFound if the inventory unit does not exist.
func (r *HoldRepo) InsertHold(ctx context.Context, h *domain.Hold) error {
	const op = "postgresrepo.HoldRepo.InsertHold"

	db := handle(ctx, r.pool)

	var checkIn, checkOut *time.Time
	if h.Stay != nil {
		checkIn, checkOut = &h.Stay.CheckIn, &h.Stay.CheckOut
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO holds
		   (id, inventory_unit_id, kind, holder_id, requested_units, check_in, check_out,
		    total_price_cents, state, payment_status, created_at, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $11)`,
		h.ID, h.InventoryUnitID, h.Kind, h.HolderID, h.RequestedUnits, checkIn, checkOut,
		h.TotalPriceCents, h.State, h.PaymentStatus, h.CreatedAt, h.ExpiresAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *HoldRepo) GetHold(ctx context.Context, id uuid.UUID) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.GetHold"

	db := handle(ctx, r.pool)

	h, err := scanHold(db.QueryRow(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = $1`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return h, nil
}

func (r *HoldRepo) GetHoldByPaymentIntent(ctx context.Context, intentID string) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.GetHoldByPaymentIntent"

	db := handle(ctx, r.pool)

	h, err := scanHold(db.QueryRow(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE payment_intent_id = $1`, intentID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return h, nil
}

// AttachPaymentIntent records the intent that will pay for a live pending
// hold and moves its payment status to processing.
//
// Returns:
//   - error: repository.ErrStateChanged if the hold is no longer pending or its
//     deadline passed.
//   - error: repository.ErrConflict if the intent already belongs to another hold.
func (r *HoldRepo) AttachPaymentIntent(
	ctx context.Context,
	holdID uuid.UUID,
	intentID string,
	now time.Time,
) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.AttachPaymentIntent"

	return r.conditionalUpdate(ctx, op,
		`UPDATE holds
		 SET payment_intent_id = $2, payment_status = 'processing', updated_at = $3
		 WHERE id = $1 AND state = 'pending' AND expires_at > $3
		 RETURNING `+holdColumns,
		holdID, intentID, now,
	)
}

// MarkConfirmed is the single atomic gate from pending to confirmed. Only
// the first caller to observe the pending row wins.
func (r *HoldRepo) MarkConfirmed(
	ctx context.Context,
	holdID uuid.UUID,
	method string,
	metadata json.RawMessage,
	now time.Time,
) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.MarkConfirmed"

	var meta []byte
	if len(metadata) > 0 {
		meta = metadata
	}

	return r.conditionalUpdate(ctx, op,
		`UPDATE holds
		 SET state = 'confirmed', payment_status = 'paid', paid_at = $4, confirmed_at = $4,
		     payment_method = NULLIF($2, ''), payment_metadata = $3, updated_at = $4
		 WHERE id = $1 AND state = 'pending' AND expires_at > $4
		 RETURNING `+holdColumns,
		holdID, method, meta, now,
	)
}

func (r *HoldRepo) MarkPaymentFailed(ctx context.Context, intentID string, now time.Time) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.MarkPaymentFailed"

	return r.conditionalUpdate(ctx, op,
		`UPDATE holds
		 SET payment_status = 'failed', updated_at = $2
		 WHERE payment_intent_id = $1 AND state = 'pending'
		 RETURNING `+holdColumns,
		intentID, now,
	)
}

func (r *HoldRepo) CancelHold(ctx context.Context, holdID uuid.UUID, reason string, now time.Time) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.CancelHold"

	return r.conditionalUpdate(ctx, op,
		`UPDATE holds
		 SET state = 'cancelled', cancelled_at = $3, cancel_reason = NULLIF($2, ''), updated_at = $3
		 WHERE id = $1 AND state = 'pending' AND expires_at > $3
		 RETURNING `+holdColumns,
		holdID, reason, now,
	)
}

func (r *HoldRepo) RefundHold(ctx context.Context, holdID uuid.UUID, now time.Time) (*domain.Hold, error) {
	const op = "postgresrepo.HoldRepo.RefundHold"

	return r.conditionalUpdate(ctx, op,
		`UPDATE holds
		 SET state = 'refunded', payment_status = 'refunded', updated_at = $2
		 WHERE id = $1 AND state = 'confirmed'
		 RETURNING `+holdColumns,
		holdID, now,
	)
}

// ExpirePending transitions pending holds of one inventory kind whose
// deadline passed to expired. Rows already swept no longer match the
// predicate, so repeated calls are no-ops.
//
// Returns:
//   - []domain.HoldRef: the holds expired by this call.
//   - error: if the update fails.
func (r *HoldRepo) ExpirePending(
	ctx context.Context,
	kind domain.InventoryKind,
	now time.Time,
) ([]domain.HoldRef, error) {
	const op = "postgresrepo.HoldRepo.ExpirePending"

	db := handle(ctx, r.pool)

	rows, err := db.Query(ctx,
		`UPDATE holds
		 SET state = 'expired', updated_at = $2
		 WHERE kind = $1 AND state = 'pending' AND expires_at <= $2
		 RETURNING id, inventory_unit_id, kind`,
		kind, now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.HoldRef
	for rows.Next() {
		var ref domain.HoldRef
		if err := rows.Scan(&ref.ID, &ref.InventoryUnitID, &ref.Kind); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *HoldRepo) conditionalUpdate(ctx context.Context, op, sql string, args ...any) (*domain.Hold, error) {
	db := handle(ctx, r.pool)

	h, err := scanHold(db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wrapDBErr(op, repository.ErrStateChanged)
		}
		return nil, wrapDBErr(op, err)
	}

	return h, nil
}
