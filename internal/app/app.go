package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tripavail/internal/clock"
	"github.com/kirinyoku/tripavail/internal/config"
	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/migrations"
	"github.com/kirinyoku/tripavail/internal/postgres"
	"github.com/kirinyoku/tripavail/internal/redis"
	"github.com/kirinyoku/tripavail/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tripavail/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tripavail/internal/repository/redis"
	"github.com/kirinyoku/tripavail/internal/service"
	"github.com/kirinyoku/tripavail/internal/service/inventory"
	"github.com/kirinyoku/tripavail/internal/service/reservation"
	httpgin "github.com/kirinyoku/tripavail/internal/transport/http/gin"
	"github.com/kirinyoku/tripavail/internal/uow"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	pubsub     *redisrepo.HoldEventsPubSub
	httpServer *http.Server
	closers    []func()
}

// New wires storage, Redis (when configured), services and the router. It
// does not start serving; see Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{cfg: cfg, logger: logger}

	deps := service.Deps{
		Clock:  clock.NewSystem(),
		Logger: logger,
	}

	var storePinger httpgin.Pinger

	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")

		st := memory.NewStore()
		deps.Store = st
		deps.UoW = uow.Direct{}
		storePinger = st

	default:
		dsn := cfg.Postgres.DSN()

		pool, err := postgres.New(ctx, postgres.Config{
			DSN:             dsn,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnectAttempts: 5,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: failed to initialize postgres: %w", op, err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := migrations.Up(dsn); err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: failed to apply migrations: %w", op, err)
		}

		st := postgresrepo.NewStore(pool)
		deps.Store = st.Repos()
		deps.UoW = uow.NewUoW(st)
		storePinger = st
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: failed to initialize redis: %w", op, err)
	}

	var (
		idem        *redisrepo.IdempotencyStore
		redisPinger httpgin.Pinger
	)
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		deps.Cache = redisrepo.New(rdb)
		deps.PubSub = redisrepo.NewHoldEventsPubSub(rdb)
		if cfg.Holds.RateLimitPerMinute > 0 {
			deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "holds", cfg.Holds.RateLimitPerMinute, time.Minute)
		}
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Holds.IdempotencyTTL)
		redisPinger = redisPing{rdb}
		a.pubsub = deps.PubSub
	} else {
		logger.Warn("REDIS_ADDR not set, running without cache, rate limiting and idempotency keys")
	}

	a.services = service.NewServices(deps, service.Config{
		Inventory:   inventory.Config{SnapshotTTL: cfg.Holds.AvailabilityTTL},
		Reservation: reservation.Config{HoldTTL: cfg.Holds.TTL},
	})

	router := httpgin.NewRouter(a.services, idem, logger)
	httpgin.WithReadiness(router, storePinger, redisPinger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) Services() *service.Services {
	return a.services
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives. When Redis
// is configured it also subscribes to hold transitions and writes an audit
// line for each.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, a.auditTransition)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("hold transition subscriber: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) auditTransition(_ context.Context, t domain.Transition) {
	a.logger.Info("hold transition",
		slog.Group("hold",
			slog.String("id", t.HoldID.String()),
			slog.Int64("unit_id", t.InventoryUnitID),
			slog.String("kind", string(t.Kind)),
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.String("reason", t.Reason),
			slog.Time("at", t.At),
		),
	)
}

type redisPing struct {
	rdb *goredis.Client
}

func (p redisPing) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
