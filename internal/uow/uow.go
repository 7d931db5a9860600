package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgresrepo "github.com/kirinyoku/tripavail/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Runner is what services depend on to group store calls atomically.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context, after func(AfterCommit)) error) error
}

type hooksKey struct{}

// UoW represents a unit of work backed by a PostgreSQL transaction.
type UoW struct {
	store *postgresrepo.Store
}

func NewUoW(store *postgresrepo.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options. A call
// made inside another unit of work joins it and defers its hooks to the outer
// commit.
func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	if outer, ok := ctx.Value(hooksKey{}).(*[]AfterCommit); ok && postgresrepo.InTx(ctx) {
		return fn(ctx, func(h AfterCommit) {
			*outer = append(*outer, h)
		})
	}

	var hooks []AfterCommit

	err := u.store.RunTx(ctx, opts, func(ctx context.Context) error {
		ctx = context.WithValue(ctx, hooksKey{}, &hooks)
		return fn(ctx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
