package service

import (
	"log/slog"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/notify"
	redisrepo "github.com/kirinyoku/tripavail/internal/repository/redis"
	"github.com/kirinyoku/tripavail/internal/service/admin"
	"github.com/kirinyoku/tripavail/internal/service/inventory"
	"github.com/kirinyoku/tripavail/internal/service/payments"
	"github.com/kirinyoku/tripavail/internal/service/reservation"
	"github.com/kirinyoku/tripavail/internal/service/sweeper"
	"github.com/kirinyoku/tripavail/internal/uow"
)

type Services struct {
	Inventory   *inventory.Service
	Reservation *reservation.Service
	Sweeper     *sweeper.Service
	Payments    *payments.Service
	Admin       *admin.Service
}

type Config struct {
	Inventory   inventory.Config
	Reservation reservation.Config
}

// Store is everything a backing store must provide to serve all services.
// Both postgresrepo.Repos and memory.Store satisfy it.
type Store interface {
	inventory.Store
	reservation.HoldStore
	sweeper.Store
	payments.WebhookStore
	admin.Store
}

// Deps wires the services. Cache, PubSub and Limiter are optional; without
// PubSub transitions are written to the log.
type Deps struct {
	Store   Store
	UoW     uow.Runner
	Cache   *redisrepo.Cache
	PubSub  *redisrepo.HoldEventsPubSub
	Limiter *redisrepo.SlidingWindowLimiter
	Clock   clock.Clock
	Logger  *slog.Logger
}

func NewServices(deps Deps, cfg Config) *Services {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	var (
		pub     notify.Publisher = notify.LogPublisher{Logger: deps.Logger}
		inv     notify.Invalidator
		limiter reservation.Limiter
	)
	if deps.PubSub != nil {
		pub = deps.PubSub
	}
	if deps.Cache != nil {
		inv = deps.Cache
	}
	if deps.Limiter != nil {
		limiter = deps.Limiter
	}

	sink := notify.NewSink(pub, inv, deps.Logger)

	inventorySvc := inventory.New(deps.Store, deps.Cache, deps.Clock, cfg.Inventory)

	reservationSvc := reservation.New(reservation.Deps{
		Holds:     deps.Store,
		Inventory: inventorySvc,
		UoW:       deps.UoW,
		Clock:     deps.Clock,
		Sink:      sink,
		Limiter:   limiter,
		Logger:    deps.Logger,
	}, cfg.Reservation)

	return &Services{
		Inventory:   inventorySvc,
		Reservation: reservationSvc,
		Sweeper:     sweeper.New(deps.Store, deps.UoW, deps.Clock, sink, deps.Logger),
		Payments:    payments.New(deps.Store, reservationSvc, deps.UoW, deps.Clock, deps.Logger),
		Admin:       admin.New(deps.Store, deps.UoW, inv, deps.Clock),
	}
}
