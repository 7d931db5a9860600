package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/notify"
	"github.com/kirinyoku/tripavail/internal/repository"
	"github.com/kirinyoku/tripavail/internal/repository/memory"
	"github.com/kirinyoku/tripavail/internal/service/inventory"
	"github.com/kirinyoku/tripavail/internal/service/reservation"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	clock *clock.Manual
	rec   *notify.Recorder
	res   *reservation.Service
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.NewStore()
	clk := clock.NewManual(t0)
	rec := &notify.Recorder{}

	res := reservation.New(reservation.Deps{
		Holds:     st,
		Inventory: inventory.New(st, nil, clk, inventory.Config{}),
		Clock:     clk,
		Sink:      notify.NewSink(rec, nil, nil),
	}, reservation.Config{})

	return &fixture{
		store: st,
		clock: clk,
		rec:   rec,
		res:   res,
		svc:   New(st, res, nil, clk, nil),
	}
}

func (f *fixture) holdWithIntent(t *testing.T, intent string) *domain.Hold {
	t.Helper()
	ctx := context.Background()

	unit, err := f.store.CreateUnit(ctx, &domain.InventoryUnit{
		Kind: domain.KindTour, OwnerID: uuid.New(), Title: "t", Capacity: 5, PriceCents: 500, CreatedAt: t0,
	})
	require.NoError(t, err)

	h, err := f.res.RequestHold(ctx, reservation.RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})
	require.NoError(t, err)

	h, err = f.res.BeginPayment(ctx, h.ID, intent)
	require.NoError(t, err)
	return h
}

func TestHandleEvent_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.holdWithIntent(t, "pi_1")

	ev := Event{
		ID:              "evt_1",
		Type:            EventPaymentSucceeded,
		PaymentIntentID: "pi_1",
		HoldID:          h.ID,
		BookingType:     "tour",
		PaymentMethod:   "card",
	}

	first, err := f.svc.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, reservation.OutcomeConfirmed, first.Outcome)

	f.clock.Advance(time.Minute)

	second, err := f.svc.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.Outcome)

	got, err := f.res.GetHold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldConfirmed, got.State)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, t0, *got.PaidAt)

	confirmations := 0
	for _, tr := range f.rec.Transitions() {
		if tr.To == domain.HoldConfirmed {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
}

func TestHandleEvent_BrowserReturnThenWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.holdWithIntent(t, "pi_2")

	_, err := f.res.ConfirmOnPaymentSuccess(ctx, reservation.ConfirmInput{PaymentIntentID: "pi_2", HoldID: h.ID})
	require.NoError(t, err)

	res, err := f.svc.HandleEvent(ctx, Event{ID: "evt_2", Type: EventPaymentSucceeded, PaymentIntentID: "pi_2", HoldID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeAlreadyFinalized, res.Outcome)
	assert.Empty(t, res.Error)
}

func TestHandleEvent_FinalOutcomesAreRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.holdWithIntent(t, "pi_3")

	res, err := f.svc.HandleEvent(ctx, Event{ID: "evt_3", Type: EventPaymentSucceeded, PaymentIntentID: "pi_3", HoldID: uuid.New()})
	require.NoError(t, err)
	assert.Contains(t, res.Error, domain.ErrMismatch.Error())

	// redelivery does not reprocess a final outcome
	again, err := f.svc.HandleEvent(ctx, Event{ID: "evt_3", Type: EventPaymentSucceeded, PaymentIntentID: "pi_3", HoldID: h.ID})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	f.clock.Advance(11 * time.Minute)

	late, err := f.svc.HandleEvent(ctx, Event{ID: "evt_4", Type: EventPaymentSucceeded, PaymentIntentID: "pi_3", HoldID: h.ID})
	require.NoError(t, err)
	assert.Contains(t, late.Error, domain.ErrExpired.Error())

	got, err := f.res.GetHold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldPending, got.State)
}

func TestHandleEvent_PaymentFailedAndUnknownTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.holdWithIntent(t, "pi_5")

	res, err := f.svc.HandleEvent(ctx, Event{
		ID: "evt_5", Type: EventPaymentFailed, PaymentIntentID: "pi_5", FailureMessage: "card_declined",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Hold)
	assert.Equal(t, domain.PaymentFailed, res.Hold.PaymentStatus)
	assert.Equal(t, domain.HoldPending, res.Hold.State)

	ignored, err := f.svc.HandleEvent(ctx, Event{ID: "evt_6", Type: "charge.dispute.created", HoldID: h.ID})
	require.NoError(t, err)
	assert.True(t, ignored.Ignored)

	_, err = f.svc.HandleEvent(ctx, Event{Type: EventPaymentSucceeded})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

type unreachableReconciler struct{}

func (unreachableReconciler) ConfirmOnPaymentSuccess(context.Context, reservation.ConfirmInput) (*reservation.Confirmation, error) {
	return nil, errors.Join(domain.ErrTransientStore, repository.ErrUnavailable)
}

func (unreachableReconciler) RecordPaymentFailure(context.Context, string, string) (*domain.Hold, error) {
	return nil, errors.Join(domain.ErrTransientStore, repository.ErrUnavailable)
}

func TestHandleEvent_TransientFailureLeavesEventRetryable(t *testing.T) {
	st := memory.NewStore()
	svc := New(st, unreachableReconciler{}, nil, clock.NewManual(t0), nil)
	ctx := context.Background()

	ev := Event{ID: "evt_7", Type: EventPaymentSucceeded, PaymentIntentID: "pi_7", HoldID: uuid.New()}

	_, err := svc.HandleEvent(ctx, ev)
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	rec, err := st.ClaimWebhook(ctx, domain.PaymentWebhookRecord{StripeEventID: "evt_7", EventType: ev.Type})
	require.NoError(t, err)
	assert.False(t, rec.Processed)
}
