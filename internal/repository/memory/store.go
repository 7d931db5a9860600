// Package memory is an in-process store used for local runs without
// PostgreSQL and by service tests. Each call is atomic under one mutex, which
// gives InsertHold the same check-then-insert guarantee as the database
// trigger.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	units    map[int64]*domain.InventoryUnit
	holds    map[uuid.UUID]*domain.Hold
	intents  map[string]uuid.UUID
	webhooks map[string]*domain.PaymentWebhookRecord
	nextUnit int64
	nextHook int64
}

func NewStore() *Store {
	return &Store{
		units:    make(map[int64]*domain.InventoryUnit),
		holds:    make(map[uuid.UUID]*domain.Hold),
		intents:  make(map[string]uuid.UUID),
		webhooks: make(map[string]*domain.PaymentWebhookRecord),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetUnit(_ context.Context, id int64) (*domain.InventoryUnit, error) {
	const op = "memory.Store.GetUnit"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

func (s *Store) CommittedUnits(_ context.Context, unitID int64, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.committedLocked(unitID, now), nil
}

func (s *Store) CountOverlapping(_ context.Context, unitID int64, stay domain.Stay, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.overlappingLocked(unitID, stay, now), nil
}

func (s *Store) CreateUnit(_ context.Context, u *domain.InventoryUnit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUnit++
	cp := *u
	cp.ID = s.nextUnit
	cp.UpdatedAt = cp.CreatedAt
	s.units[cp.ID] = &cp

	return cp.ID, nil
}

func (s *Store) UpdatePrice(_ context.Context, id int64, priceCents int64, now time.Time) error {
	const op = "memory.Store.UpdatePrice"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	u.PriceCents = priceCents
	u.UpdatedAt = now

	return nil
}

// InsertHold re-checks capacity under the write lock, using the hold's
// creation time as the liveness reference.
func (s *Store) InsertHold(_ context.Context, h *domain.Hold) error {
	const op = "memory.Store.InsertHold"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[h.InventoryUnitID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if _, dup := s.holds[h.ID]; dup {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	switch h.Kind {
	case domain.KindPackage:
		if h.Stay == nil {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		if s.overlappingLocked(u.ID, *h.Stay, h.CreatedAt) > 0 {
			return fmt.Errorf("%s:%w", op, repository.ErrStayOverlap)
		}
		if h.RequestedUnits > u.Capacity {
			return fmt.Errorf("%s:%w", op, repository.ErrCapacityConstraint)
		}
	default:
		if s.committedLocked(u.ID, h.CreatedAt)+h.RequestedUnits > u.Capacity {
			return fmt.Errorf("%s:%w", op, repository.ErrCapacityConstraint)
		}
	}

	cp := *h
	cp.UpdatedAt = cp.CreatedAt
	s.holds[cp.ID] = &cp

	return nil
}

func (s *Store) GetHold(_ context.Context, id uuid.UUID) (*domain.Hold, error) {
	const op = "memory.Store.GetHold"

	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holds[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return copyHold(h), nil
}

func (s *Store) GetHoldByPaymentIntent(_ context.Context, intentID string) (*domain.Hold, error) {
	const op = "memory.Store.GetHoldByPaymentIntent"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return copyHold(s.holds[id]), nil
}

func (s *Store) AttachPaymentIntent(
	_ context.Context,
	holdID uuid.UUID,
	intentID string,
	now time.Time,
) (*domain.Hold, error) {
	const op = "memory.Store.AttachPaymentIntent"

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, taken := s.intents[intentID]; taken && owner != holdID {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	h, ok := s.holds[holdID]
	if !ok || h.State != domain.HoldPending || !now.Before(h.ExpiresAt) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	if h.PaymentIntentID != nil && *h.PaymentIntentID != intentID {
		delete(s.intents, *h.PaymentIntentID)
	}

	h.PaymentIntentID = &intentID
	h.PaymentStatus = domain.PaymentProcessing
	h.UpdatedAt = now
	s.intents[intentID] = holdID

	return copyHold(h), nil
}

func (s *Store) MarkConfirmed(
	_ context.Context,
	holdID uuid.UUID,
	method string,
	metadata json.RawMessage,
	now time.Time,
) (*domain.Hold, error) {
	const op = "memory.Store.MarkConfirmed"

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[holdID]
	if !ok || h.State != domain.HoldPending || !now.Before(h.ExpiresAt) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	h.State = domain.HoldConfirmed
	h.PaymentStatus = domain.PaymentPaid
	h.PaidAt = &now
	h.ConfirmedAt = &now
	if method != "" {
		h.PaymentMethod = &method
	}
	if len(metadata) > 0 {
		h.PaymentMetadata = append(json.RawMessage(nil), metadata...)
	}
	h.UpdatedAt = now

	return copyHold(h), nil
}

func (s *Store) MarkPaymentFailed(_ context.Context, intentID string, now time.Time) (*domain.Hold, error) {
	const op = "memory.Store.MarkPaymentFailed"

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.intents[intentID]
	if !ok || s.holds[id].State != domain.HoldPending {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	h := s.holds[id]
	h.PaymentStatus = domain.PaymentFailed
	h.UpdatedAt = now

	return copyHold(h), nil
}

func (s *Store) CancelHold(_ context.Context, holdID uuid.UUID, reason string, now time.Time) (*domain.Hold, error) {
	const op = "memory.Store.CancelHold"

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[holdID]
	if !ok || h.State != domain.HoldPending || !now.Before(h.ExpiresAt) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	h.State = domain.HoldCancelled
	h.CancelledAt = &now
	if reason != "" {
		h.CancelReason = &reason
	}
	h.UpdatedAt = now

	return copyHold(h), nil
}

func (s *Store) RefundHold(_ context.Context, holdID uuid.UUID, now time.Time) (*domain.Hold, error) {
	const op = "memory.Store.RefundHold"

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[holdID]
	if !ok || h.State != domain.HoldConfirmed {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	h.State = domain.HoldRefunded
	h.PaymentStatus = domain.PaymentRefunded
	h.UpdatedAt = now

	return copyHold(h), nil
}

func (s *Store) ExpirePending(_ context.Context, kind domain.InventoryKind, now time.Time) ([]domain.HoldRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.HoldRef
	for _, h := range s.holds {
		if h.Kind != kind || h.State != domain.HoldPending || now.Before(h.ExpiresAt) {
			continue
		}
		h.State = domain.HoldExpired
		h.UpdatedAt = now
		out = append(out, domain.HoldRef{ID: h.ID, InventoryUnitID: h.InventoryUnitID, Kind: h.Kind})
	}

	return out, nil
}

func (s *Store) ClaimWebhook(_ context.Context, rec domain.PaymentWebhookRecord) (*domain.PaymentWebhookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.webhooks[rec.StripeEventID]; ok {
		cp := *existing
		return &cp, nil
	}

	s.nextHook++
	stored := rec
	stored.ID = s.nextHook
	stored.Processed = false
	stored.ProcessedAt = nil
	stored.ErrorMessage = nil
	s.webhooks[rec.StripeEventID] = &stored

	cp := stored
	return &cp, nil
}

func (s *Store) MarkWebhookProcessed(_ context.Context, eventID string, errMsg *string, now time.Time) error {
	const op = "memory.Store.MarkWebhookProcessed"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.webhooks[eventID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	rec.Processed = true
	rec.ProcessedAt = &now
	rec.ErrorMessage = errMsg

	return nil
}

func (s *Store) committedLocked(unitID int64, now time.Time) int {
	total := 0
	for _, h := range s.holds {
		if h.InventoryUnitID == unitID && h.Live(now) {
			total += h.RequestedUnits
		}
	}
	return total
}

func (s *Store) overlappingLocked(unitID int64, stay domain.Stay, now time.Time) int {
	n := 0
	for _, h := range s.holds {
		if h.InventoryUnitID == unitID && h.Stay != nil && h.Live(now) && h.Stay.Overlaps(stay) {
			n++
		}
	}
	return n
}

func copyHold(h *domain.Hold) *domain.Hold {
	cp := *h
	if h.Stay != nil {
		stay := *h.Stay
		cp.Stay = &stay
	}
	return &cp
}
