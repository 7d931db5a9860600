package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

type WebhookRepo struct {
	pool *pgxpool.Pool
}

// ClaimWebhook records a provider event the first time it is seen and
// returns the stored record. Redeliveries get the existing row back, so the
// caller can tell from Processed whether the event was already handled.
func (r *WebhookRepo) ClaimWebhook(
	ctx context.Context,
	rec domain.PaymentWebhookRecord,
) (*domain.PaymentWebhookRecord, error) {
	const op = "postgresrepo.WebhookRepo.ClaimWebhook"

	db := handle(ctx, r.pool)

	if _, err := db.Exec(ctx,
		`INSERT INTO payment_webhook_records
		   (stripe_event_id, event_type, booking_id, booking_type, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 ON CONFLICT (stripe_event_id) DO NOTHING`,
		rec.StripeEventID, rec.EventType, rec.BookingID, rec.BookingType, rec.CreatedAt,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	var (
		out         domain.PaymentWebhookRecord
		bookingType *string
	)
	// FOR UPDATE makes a concurrent redelivery wait until this one commits.
	err := db.QueryRow(ctx,
		`SELECT id, stripe_event_id, event_type, booking_id, booking_type,
		        processed, processed_at, error_message, created_at
		 FROM payment_webhook_records
		 WHERE stripe_event_id = $1
		 FOR UPDATE`,
		rec.StripeEventID,
	).Scan(
		&out.ID, &out.StripeEventID, &out.EventType, &out.BookingID, &bookingType,
		&out.Processed, &out.ProcessedAt, &out.ErrorMessage, &out.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if bookingType != nil {
		out.BookingType = *bookingType
	}

	return &out, nil
}

func (r *WebhookRepo) MarkWebhookProcessed(
	ctx context.Context,
	eventID string,
	errMsg *string,
	now time.Time,
) error {
	const op = "postgresrepo.WebhookRepo.MarkWebhookProcessed"

	db := handle(ctx, r.pool)

	tag, err := db.Exec(ctx,
		`UPDATE payment_webhook_records
		 SET processed = true, processed_at = $2, error_message = $3
		 WHERE stripe_event_id = $1`,
		eventID, now, errMsg,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
