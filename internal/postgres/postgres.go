package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	DSN      string
	MaxConns int32
	// ConnectAttempts bounds how many pings are tried before giving up.
	// Zero means 1.
	ConnectAttempts int
}

// New opens a pool and waits until the database answers a ping.
func New(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	const op = "postgres.New"

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "tripavail"
	// timestamps are compared against hold deadlines in SQL
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	attempts := max(cfg.ConnectAttempts, 1)

	for i := 1; ; i++ {
		err = ping(ctx, pool)
		if err == nil {
			return pool, nil
		}

		if i >= attempts {
			break
		}

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(time.Duration(i) * 500 * time.Millisecond):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("%s:%w", op, err)
}

func ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return pool.Ping(ctxPing)
}
