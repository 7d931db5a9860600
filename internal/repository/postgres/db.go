package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

func contextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction carried by the context passed to fn.
// Repositories obtained from the Store pick it up automatically. A nested
// call joins the outer transaction.
//
// The default isolation is read committed: the hold capacity trigger takes a
// row lock on the inventory unit, which serializes competing inserts.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context) error,
) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(contextWithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{pool: s.pool} }
func (s *Store) Holds() *HoldRepo          { return &HoldRepo{pool: s.pool} }
func (s *Store) Webhooks() *WebhookRepo    { return &WebhookRepo{pool: s.pool} }

func handle(ctx context.Context, pool *pgxpool.Pool) DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// Repos groups every repository over one pool so a single value satisfies
// the store interfaces the services declare.
type Repos struct {
	*InventoryRepo
	*HoldRepo
	*WebhookRepo
}

func (s *Store) Repos() Repos {
	return Repos{
		InventoryRepo: s.Inventory(),
		HoldRepo:      s.Holds(),
		WebhookRepo:   s.Webhooks(),
	}
}
