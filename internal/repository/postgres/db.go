package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classbook/internal/repository"
)

const defaultLockTimeout = 2 * time.Second

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	return &Store{
		pool:        pool,
		lockTimeout: lockTimeout,
	}
}

// RunTxWithOpts runs fn in a transaction whose row locks give up after the
// store's lock timeout instead of waiting indefinitely.
func (s *Store) RunTxWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
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

	if _, err := tx.Exec(ctx,
		`SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", s.lockTimeout.Milliseconds()),
	); err != nil {
		return fmt.Errorf("lock timeout: %w", translateDBErr(err))
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.RunTxWithOpts(ctx, nil, func(ctx context.Context, db DB) error {
		return fn(ctx, txRepos{db: db, pool: s.pool})
	})
}

func (s *Store) Offerings() repository.Offerings { return &OfferingRepo{pool: s.pool} }
func (s *Store) Bookings() repository.Bookings   { return &BookingRepo{pool: s.pool} }
func (s *Store) Audit() repository.Audit         { return &AuditRepo{pool: s.pool} }

type txRepos struct {
	pool *pgxpool.Pool
	db   DB
}

func (t txRepos) Offerings() repository.Offerings {
	return (&OfferingRepo{pool: t.pool}).With(t.db)
}

func (t txRepos) Bookings() repository.Bookings {
	return (&BookingRepo{pool: t.pool}).With(t.db)
}

func (t txRepos) Audit() repository.Audit {
	return (&AuditRepo{pool: t.pool}).With(t.db)
}
