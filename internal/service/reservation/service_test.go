package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/notify"
	"github.com/kirinyoku/tripavail/internal/repository/memory"
	"github.com/kirinyoku/tripavail/internal/service/inventory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func day(d int) time.Time { return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	store    *memory.Store
	clock    *clock.Manual
	recorder *notify.Recorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.NewStore()
	clk := clock.NewManual(t0)
	rec := &notify.Recorder{}

	svc := New(Deps{
		Holds:     st,
		Inventory: inventory.New(st, nil, clk, inventory.Config{}),
		Clock:     clk,
		Sink:      notify.NewSink(rec, nil, nil),
	}, Config{HoldTTL: 10 * time.Minute})

	return &fixture{store: st, clock: clk, recorder: rec, svc: svc}
}

func (f *fixture) tour(t *testing.T, capacity int, price int64) int64 {
	t.Helper()

	id, err := f.store.CreateUnit(context.Background(), &domain.InventoryUnit{
		Kind:       domain.KindTour,
		OwnerID:    uuid.New(),
		Title:      "Hunza valley day tour",
		Capacity:   capacity,
		PriceCents: price,
		CreatedAt:  t0,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) pkg(t *testing.T, maxGuests, minNights, maxNights int, price int64) int64 {
	t.Helper()

	id, err := f.store.CreateUnit(context.Background(), &domain.InventoryUnit{
		Kind:       domain.KindPackage,
		OwnerID:    uuid.New(),
		Title:      "Skardu lakeside cabin",
		Capacity:   maxGuests,
		MinNights:  minNights,
		MaxNights:  maxNights,
		PriceCents: price,
		CreatedAt:  t0,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) pendingWithIntent(t *testing.T, unitID int64, units int, intent string) *domain.Hold {
	t.Helper()
	ctx := context.Background()

	h, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unitID, HolderID: uuid.New(), Units: units})
	require.NoError(t, err)

	h, err = f.svc.BeginPayment(ctx, h.ID, intent)
	require.NoError(t, err)
	return h
}

func TestRequestHold_CreatesPendingHoldWithFrozenTerms(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 10, 2500)

	h, err := f.svc.RequestHold(context.Background(), RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 3})
	require.NoError(t, err)

	assert.Equal(t, domain.HoldPending, h.State)
	assert.Equal(t, domain.PaymentUnpaid, h.PaymentStatus)
	assert.Equal(t, int64(7500), h.TotalPriceCents)
	assert.Equal(t, t0.Add(10*time.Minute), h.ExpiresAt)

	events := f.recorder.Transitions()
	require.Len(t, events, 1)
	assert.Equal(t, domain.HoldState(""), events[0].From)
	assert.Equal(t, domain.HoldPending, events[0].To)
}

func TestRequestHold_Rejections(t *testing.T) {
	f := newFixture(t)
	tour := f.tour(t, 3, 100)
	pkg := f.pkg(t, 4, 2, 0, 100)
	ctx := context.Background()

	_, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: tour, HolderID: uuid.New(), Units: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.RequestHold(ctx, RequestHoldInput{UnitID: tour, HolderID: uuid.New(), Units: 4})
	var ce *domain.CapacityExceededError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Available)

	_, err = f.svc.RequestHold(ctx, RequestHoldInput{UnitID: pkg, HolderID: uuid.New(), Units: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.RequestHold(ctx, RequestHoldInput{UnitID: 404, HolderID: uuid.New(), Units: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestHold_TwoConcurrentRequestsOnCapacityThree(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 3, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RequestHold(context.Background(), RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 2})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var ce *domain.CapacityExceededError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Available)
		assert.Equal(t, "only 1 left", ce.Error())
	}
	assert.Equal(t, 1, succeeded)
}

func TestRequestHold_NeverOverbooksUnderContention(t *testing.T) {
	f := newFixture(t)
	const capacity = 7
	unit := f.tour(t, capacity, 100)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestHold(context.Background(), RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, domain.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, 40-capacity, rejected)

	committed, err := f.store.CommittedUnits(context.Background(), unit, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, capacity, committed)
}

// capacityRaceStore reports full availability to the pre-check and lets the
// store constraint reject the insert, as when a concurrent request wins the
// window between read and write.
type capacityRaceStore struct {
	*memory.Store
	stale bool
}

func (s *capacityRaceStore) CommittedUnits(ctx context.Context, unitID int64, now time.Time) (int, error) {
	if s.stale {
		s.stale = false
		return 0, nil
	}
	return s.Store.CommittedUnits(ctx, unitID, now)
}

func TestRequestHold_ConstraintViolationReportsFreshAvailability(t *testing.T) {
	ctx := context.Background()
	st := &capacityRaceStore{Store: memory.NewStore()}
	clk := clock.NewManual(t0)

	unit, err := st.CreateUnit(ctx, &domain.InventoryUnit{Kind: domain.KindTour, Capacity: 5, CreatedAt: t0})
	require.NoError(t, err)

	svc := New(Deps{Holds: st, Inventory: inventory.New(st, nil, clk, inventory.Config{}), Clock: clk}, Config{})

	_, err = svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 4})
	require.NoError(t, err)

	st.stale = true
	_, err = svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 3})

	var ce *domain.CapacityExceededError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Available)
}

func TestRequestStay(t *testing.T) {
	f := newFixture(t)
	unit := f.pkg(t, 4, 2, 14, 12000)
	ctx := context.Background()

	h, err := f.svc.RequestStay(ctx, RequestStayInput{
		UnitID: unit, HolderID: uuid.New(), Guests: 2, Stay: domain.NewStay(day(10), day(13)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(36000), h.TotalPriceCents)
	require.NotNil(t, h.Stay)
	assert.Equal(t, 3, h.Stay.Nights())

	_, err = f.svc.RequestStay(ctx, RequestStayInput{
		UnitID: unit, HolderID: uuid.New(), Guests: 2, Stay: domain.NewStay(day(11), day(14)),
	})
	var ce *domain.CapacityExceededError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Available)

	_, err = f.svc.RequestStay(ctx, RequestStayInput{
		UnitID: unit, HolderID: uuid.New(), Guests: 5, Stay: domain.NewStay(day(20), day(23)),
	})
	var ir *domain.InvalidRequestError
	require.ErrorAs(t, err, &ir)
	assert.Equal(t, domain.ReasonTooManyGuests, ir.Reason)
}

func TestRequestStay_BelowMinimumNights(t *testing.T) {
	f := newFixture(t)
	unit := f.pkg(t, 4, 2, 0, 12000)

	_, err := f.svc.RequestStay(context.Background(), RequestStayInput{
		UnitID: unit, HolderID: uuid.New(), Guests: 2, Stay: domain.NewStay(day(10), day(11)),
	})

	var ir *domain.InvalidRequestError
	require.ErrorAs(t, err, &ir)
	assert.Equal(t, domain.ReasonStayTooShort, ir.Reason)
	assert.Contains(t, err.Error(), "minimum stay is 2 nights")

	n, err := f.store.CountOverlapping(context.Background(), unit, domain.NewStay(day(1), day(28)), f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.recorder.Transitions())
}

func TestBeginPayment(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	ctx := context.Background()

	h, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})
	require.NoError(t, err)

	_, err = f.svc.BeginPayment(ctx, h.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	got, err := f.svc.BeginPayment(ctx, h.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentProcessing, got.PaymentStatus)
	require.NotNil(t, got.PaymentIntentID)
	assert.Equal(t, "pi_1", *got.PaymentIntentID)

	other, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})
	require.NoError(t, err)
	_, err = f.svc.BeginPayment(ctx, other.ID, "pi_1")
	assert.ErrorIs(t, err, domain.ErrMismatch)

	_, err = f.svc.BeginPayment(ctx, uuid.New(), "pi_2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBeginPayment_ExpiredHoldMustRestart(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	ctx := context.Background()

	h, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)

	_, err = f.svc.BeginPayment(ctx, h.ID, "pi_late")
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestConfirmOnPaymentSuccess_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 4000)
	ctx := context.Background()
	h := f.pendingWithIntent(t, unit, 2, "pi_ok")

	f.clock.Advance(3 * time.Minute)
	paidAt := f.clock.Now()

	in := ConfirmInput{
		PaymentIntentID: "pi_ok",
		HoldID:          h.ID,
		PaymentMethod:   "card",
		Metadata:        json.RawMessage(`{"last4":"4242"}`),
	}

	first, err := f.svc.ConfirmOnPaymentSuccess(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, first.Outcome)
	assert.Equal(t, domain.HoldConfirmed, first.Hold.State)
	assert.Equal(t, domain.PaymentPaid, first.Hold.PaymentStatus)
	require.NotNil(t, first.Hold.PaidAt)
	assert.Equal(t, paidAt, *first.Hold.PaidAt)
	require.NotNil(t, first.Hold.PaymentMethod)
	assert.Equal(t, "card", *first.Hold.PaymentMethod)

	f.clock.Advance(time.Minute)

	second, err := f.svc.ConfirmOnPaymentSuccess(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, second.Outcome)
	assert.Equal(t, paidAt, *second.Hold.PaidAt)
	assert.Equal(t, int64(8000), second.Hold.TotalPriceCents)

	confirmations := 0
	for _, tr := range f.recorder.Transitions() {
		if tr.To == domain.HoldConfirmed {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
}

func TestConfirmOnPaymentSuccess_ConcurrentArrivals(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	h := f.pendingWithIntent(t, unit, 1, "pi_race")

	results := make([]*Confirmation, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.ConfirmOnPaymentSuccess(context.Background(), ConfirmInput{PaymentIntentID: "pi_race", HoldID: h.ID})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Outcome == OutcomeConfirmed {
			confirmed++
		}
		assert.Equal(t, domain.HoldConfirmed, r.Hold.State)
	}
	assert.Equal(t, 1, confirmed)
}

func TestConfirmOnPaymentSuccess_Errors(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	ctx := context.Background()
	h := f.pendingWithIntent(t, unit, 1, "pi_a")

	_, err := f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_missing", HoldID: h.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_a", HoldID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrMismatch)

	got, err := f.svc.GetHold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldPending, got.State)
}

func TestConfirmOnPaymentSuccess_AfterDeadlineBeforeSweep(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	h := f.pendingWithIntent(t, unit, 1, "pi_slow")

	f.clock.Advance(10*time.Minute + time.Second)

	_, err := f.svc.ConfirmOnPaymentSuccess(context.Background(), ConfirmInput{PaymentIntentID: "pi_slow", HoldID: h.ID})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestConfirmOnPaymentSuccess_NoResurrectionAfterSweep(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	ctx := context.Background()
	h := f.pendingWithIntent(t, unit, 1, "pi_swept")

	f.clock.Advance(11 * time.Minute)
	refs, err := f.store.ExpirePending(ctx, domain.KindTour, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, refs, 1)

	_, err = f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_swept", HoldID: h.ID})
	assert.ErrorIs(t, err, domain.ErrExpired)

	got, err := f.svc.GetHold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldExpired, got.State)
}

func TestPriceIsFrozenAcrossPriceChanges(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 1000)
	ctx := context.Background()
	h := f.pendingWithIntent(t, unit, 2, "pi_price")

	require.NoError(t, f.store.UpdatePrice(ctx, unit, 9999, f.clock.Now()))

	res, err := f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_price", HoldID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.Hold.TotalPriceCents)
}

func TestRecordPaymentFailure_KeepsHoldPending(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 5, 100)
	ctx := context.Background()
	h := f.pendingWithIntent(t, unit, 1, "pi_declined")

	got, err := f.svc.RecordPaymentFailure(ctx, "pi_declined", "card_declined")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldPending, got.State)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)

	// the traveler retries with a new intent before the deadline
	_, err = f.svc.BeginPayment(ctx, h.ID, "pi_retry")
	require.NoError(t, err)

	res, err := f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_retry", HoldID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)

	_, err = f.svc.RecordPaymentFailure(ctx, "pi_retry", "late")
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestCancelAndRefund(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 2, 100)
	ctx := context.Background()

	pending, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 2})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, pending.ID)
	var ir *domain.InvalidRequestError
	require.ErrorAs(t, err, &ir)
	assert.Equal(t, domain.ReasonNotConfirmed, ir.Reason)

	cancelled, err := f.svc.Cancel(ctx, pending.ID, "operator request")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCancelled, cancelled.State)

	_, err = f.svc.Cancel(ctx, pending.ID, "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)

	// cancelled seats are released
	h := f.pendingWithIntent(t, unit, 2, "pi_r")
	_, err = f.svc.ConfirmOnPaymentSuccess(ctx, ConfirmInput{PaymentIntentID: "pi_r", HoldID: h.ID})
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldRefunded, refunded.State)
	assert.Equal(t, domain.PaymentRefunded, refunded.PaymentStatus)

	_, err = f.svc.Refund(ctx, h.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestCancel_LapsedPendingHoldIsExpired(t *testing.T) {
	f := newFixture(t)
	unit := f.tour(t, 2, 100)
	ctx := context.Background()

	h, err := f.svc.RequestHold(ctx, RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1})
	require.NoError(t, err)

	// past the deadline, before any sweep
	f.clock.Advance(11 * time.Minute)

	_, err = f.svc.Cancel(ctx, h.ID, "operator request")
	assert.ErrorIs(t, err, domain.ErrExpired)

	got, err := f.store.GetHold(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldPending, got.State)
	assert.Nil(t, got.CancelledAt)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 30 * time.Second, nil
}

func TestRequestHold_RateLimited(t *testing.T) {
	st := memory.NewStore()
	clk := clock.NewManual(t0)
	unit, err := st.CreateUnit(context.Background(), &domain.InventoryUnit{Kind: domain.KindTour, Capacity: 5, CreatedAt: t0})
	require.NoError(t, err)

	svc := New(Deps{
		Holds:     st,
		Inventory: inventory.New(st, nil, clk, inventory.Config{}),
		Clock:     clk,
		Limiter:   denyAll{},
	}, Config{})

	_, err = svc.RequestHold(context.Background(), RequestHoldInput{UnitID: unit, HolderID: uuid.New(), Units: 1, RateLimitKey: "client-1"})

	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
}
