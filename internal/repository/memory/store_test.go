package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUnit(t *testing.T, s *Store, kind domain.InventoryKind, capacity int) int64 {
	t.Helper()

	id, err := s.CreateUnit(context.Background(), &domain.InventoryUnit{
		Kind:       kind,
		OwnerID:    uuid.New(),
		Title:      "unit",
		Capacity:   capacity,
		PriceCents: 1000,
		CreatedAt:  t0,
	})
	require.NoError(t, err)
	return id
}

func pendingHold(unitID int64, kind domain.InventoryKind, units int, at time.Time) *domain.Hold {
	return &domain.Hold{
		ID:              uuid.New(),
		InventoryUnitID: unitID,
		Kind:            kind,
		HolderID:        uuid.New(),
		RequestedUnits:  units,
		State:           domain.HoldPending,
		PaymentStatus:   domain.PaymentUnpaid,
		CreatedAt:       at,
		ExpiresAt:       at.Add(10 * time.Minute),
	}
}

func TestStore_InsertHold_EnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 3)

	require.NoError(t, s.InsertHold(ctx, pendingHold(unit, domain.KindTour, 2, t0)))

	err := s.InsertHold(ctx, pendingHold(unit, domain.KindTour, 2, t0))
	assert.ErrorIs(t, err, repository.ErrCapacityConstraint)

	committed, err := s.CommittedUnits(ctx, unit, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, committed)

	// after the first hold's deadline its seats are free again
	later := t0.Add(11 * time.Minute)
	require.NoError(t, s.InsertHold(ctx, pendingHold(unit, domain.KindTour, 3, later)))
}

func TestStore_InsertHold_ConcurrentNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 5)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.InsertHold(ctx, pendingHold(unit, domain.KindTour, 1, t0)); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted.Load())
}

func TestStore_InsertHold_StayOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindPackage, 4)

	day := func(d int) time.Time { return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC) }

	first := pendingHold(unit, domain.KindPackage, 2, t0)
	stay := domain.NewStay(day(10), day(13))
	first.Stay = &stay
	require.NoError(t, s.InsertHold(ctx, first))

	overlapping := pendingHold(unit, domain.KindPackage, 2, t0)
	o := domain.NewStay(day(12), day(14))
	overlapping.Stay = &o
	assert.ErrorIs(t, s.InsertHold(ctx, overlapping), repository.ErrStayOverlap)

	adjacent := pendingHold(unit, domain.KindPackage, 2, t0)
	a := domain.NewStay(day(13), day(15))
	adjacent.Stay = &a
	assert.NoError(t, s.InsertHold(ctx, adjacent))

	tooMany := pendingHold(unit, domain.KindPackage, 5, t0)
	tm := domain.NewStay(day(20), day(22))
	tooMany.Stay = &tm
	assert.ErrorIs(t, s.InsertHold(ctx, tooMany), repository.ErrCapacityConstraint)
}

func TestStore_MarkConfirmed_IsSingleShot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 3)
	h := pendingHold(unit, domain.KindTour, 1, t0)
	require.NoError(t, s.InsertHold(ctx, h))

	confirmed, err := s.MarkConfirmed(ctx, h.ID, "card", nil, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.HoldConfirmed, confirmed.State)
	assert.Equal(t, domain.PaymentPaid, confirmed.PaymentStatus)

	_, err = s.MarkConfirmed(ctx, h.ID, "card", nil, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, repository.ErrStateChanged)
}

func TestStore_MarkConfirmed_RejectsPastDeadline(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 3)
	h := pendingHold(unit, domain.KindTour, 1, t0)
	require.NoError(t, s.InsertHold(ctx, h))

	_, err := s.MarkConfirmed(ctx, h.ID, "", nil, h.ExpiresAt)
	assert.ErrorIs(t, err, repository.ErrStateChanged)
}

func TestStore_ExpirePending_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 5)

	stale := pendingHold(unit, domain.KindTour, 1, t0)
	fresh := pendingHold(unit, domain.KindTour, 1, t0.Add(5*time.Minute))
	require.NoError(t, s.InsertHold(ctx, stale))
	require.NoError(t, s.InsertHold(ctx, fresh))

	now := t0.Add(11 * time.Minute)

	refs, err := s.ExpirePending(ctx, domain.KindTour, now)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, stale.ID, refs[0].ID)

	refs, err = s.ExpirePending(ctx, domain.KindTour, now)
	require.NoError(t, err)
	assert.Empty(t, refs)

	got, err := s.GetHold(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldPending, got.State)
}

func TestStore_ClaimWebhook_ReturnsExistingRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec := domain.PaymentWebhookRecord{StripeEventID: "evt_1", EventType: "payment_intent.succeeded", CreatedAt: t0}

	first, err := s.ClaimWebhook(ctx, rec)
	require.NoError(t, err)
	assert.False(t, first.Processed)

	require.NoError(t, s.MarkWebhookProcessed(ctx, "evt_1", nil, t0))

	second, err := s.ClaimWebhook(ctx, rec)
	require.NoError(t, err)
	assert.True(t, second.Processed)
	assert.Equal(t, first.ID, second.ID)
}

func TestStore_AttachPaymentIntent_ConflictsAcrossHolds(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	unit := seedUnit(t, s, domain.KindTour, 5)

	a := pendingHold(unit, domain.KindTour, 1, t0)
	b := pendingHold(unit, domain.KindTour, 1, t0)
	require.NoError(t, s.InsertHold(ctx, a))
	require.NoError(t, s.InsertHold(ctx, b))

	_, err := s.AttachPaymentIntent(ctx, a.ID, "pi_1", t0)
	require.NoError(t, err)

	_, err = s.AttachPaymentIntent(ctx, b.ID, "pi_1", t0)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.GetHoldByPaymentIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, domain.PaymentProcessing, got.PaymentStatus)
}
