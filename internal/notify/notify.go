// Package notify delivers hold state transitions to the notification and
// audit sink once the change that caused them is committed.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirinyoku/tripavail/internal/domain"
)

type Publisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

type Invalidator interface {
	InvalidateUnit(ctx context.Context, unitID int64) error
}

// Sink publishes transitions and drops cached views of the affected unit.
// Both collaborators are optional. Delivery failures are logged and never
// fail the operation that produced the transition.
type Sink struct {
	pub    Publisher
	inv    Invalidator
	logger *slog.Logger
}

func NewSink(pub Publisher, inv Invalidator, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{pub: pub, inv: inv, logger: logger}
}

func (s *Sink) Emit(ctx context.Context, t domain.Transition) {
	if s == nil {
		return
	}

	if s.inv != nil {
		if err := s.inv.InvalidateUnit(ctx, t.InventoryUnitID); err != nil {
			s.logger.Warn("invalidate availability cache",
				"unit_id", t.InventoryUnitID, "error", err)
		}
	}

	if s.pub != nil {
		if err := s.pub.PublishTransition(ctx, t); err != nil {
			s.logger.Warn("publish hold transition",
				"hold_id", t.HoldID, "to", t.To, "error", err)
		}
	}
}

// LogPublisher writes transitions to the structured log. It stands in for
// the pub/sub channel when Redis is not configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) PublishTransition(_ context.Context, t domain.Transition) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("hold transition",
		"hold_id", t.HoldID,
		"unit_id", t.InventoryUnitID,
		"kind", t.Kind,
		"from", t.From,
		"to", t.To,
		"reason", t.Reason,
		"at", t.At,
	)

	return nil
}

// Recorder keeps transitions in memory. Tests use it to assert what the
// sink received.
type Recorder struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (r *Recorder) PublishTransition(_ context.Context, t domain.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions = append(r.transitions, t)
	return nil
}

func (r *Recorder) Transitions() []domain.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.Transition(nil), r.transitions...)
}
