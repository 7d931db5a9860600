package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/notify"
	"github.com/kirinyoku/tripavail/internal/uow"
)

type Store interface {
	ExpirePending(ctx context.Context, kind domain.InventoryKind, now time.Time) ([]domain.HoldRef, error)
}

type Service struct {
	store  Store
	uow    uow.Runner
	clock  clock.Clock
	sink   *notify.Sink
	logger *slog.Logger
}

func New(store Store, runner uow.Runner, clk clock.Clock, sink *notify.Sink, logger *slog.Logger) *Service {
	if runner == nil {
		runner = uow.Direct{}
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		uow:    runner,
		clock:  clk,
		sink:   sink,
		logger: logger,
	}
}

// ExpirePendingHolds moves every pending hold past its deadline to expired,
// one inventory kind at a time. A kind that fails is listed in FailedKinds
// while the other kinds still count; Success is false only when no kind
// could be swept. Calling it again right away expires nothing.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - domain.SweepResult: counts per kind and any failure.
func (s *Service) ExpirePendingHolds(ctx context.Context) domain.SweepResult {
	const op = "service.sweeper.ExpirePendingHolds"

	now := s.clock.Now()

	res := domain.SweepResult{
		ExpiredByKind: make(map[domain.InventoryKind]int64, len(domain.Kinds)),
	}

	var errs []string
	for _, kind := range domain.Kinds {
		n, err := s.expireKind(ctx, kind, now)
		if err != nil {
			s.logger.Error("expire pending holds", "op", op, "kind", kind, "error", err)
			res.FailedKinds = append(res.FailedKinds, kind)
			errs = append(errs, fmt.Sprintf("%s: %v", kind, err))
			continue
		}

		res.ExpiredByKind[kind] = n
		res.ExpiredCount += n
	}

	res.Success = len(res.FailedKinds) < len(domain.Kinds)
	if len(errs) > 0 {
		res.Error = strings.Join(errs, "; ")
	}

	s.logger.Info("sweep finished",
		"expired", res.ExpiredCount,
		"failed_kinds", res.FailedKinds,
		"success", res.Success,
	)

	return res
}

func (s *Service) expireKind(ctx context.Context, kind domain.InventoryKind, now time.Time) (int64, error) {
	var n int64

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		refs, err := s.store.ExpirePending(ctx, kind, now)
		if err != nil {
			return err
		}

		n = int64(len(refs))

		after(func(ctx context.Context) {
			for _, ref := range refs {
				s.sink.Emit(ctx, domain.Transition{
					HoldID:          ref.ID,
					InventoryUnitID: ref.InventoryUnitID,
					Kind:            ref.Kind,
					From:            domain.HoldPending,
					To:              domain.HoldExpired,
					Reason:          "deadline_passed",
					At:              now,
				})
			}
		})

		return nil
	})
	if err != nil {
		return 0, errors.Join(domain.ErrTransientStore, err)
	}

	return n, nil
}
