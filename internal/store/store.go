// Package store is the durable run/goal/raw-result audit trail (§6.4's
// implicit persistence need: a run survives the process that started it
// long enough to be queried afterward, even though §1's Non-goals rule out
// checkpointed resumption). Grounded on the teacher's core/db/db.go pool
// and WithTx wiring, but hand-written queries instead of the teacher's
// sqlc-generated Queries type — this schema is new and small enough that
// codegen would add a build step for no benefit (see DESIGN.md).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// DB wraps a pgxpool.Pool, mirroring the teacher's core/db.DB.
type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() { db.pool.Close() }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// store method run unmodified inside or outside WithTx. Same shape as
// sqlc's generated DBTX interface, hand-written here instead.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic recovery path upstream — same shape as the
// teacher's core/db.DB.WithTx, generalized from *sqlc.Queries to *RunStore.
func (db *DB) WithTx(ctx context.Context, fn func(s *RunStore) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&RunStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: committing transaction: %w", err)
	}
	return nil
}

// Runs returns a non-transactional RunStore backed by the pool directly.
func (db *DB) Runs() *RunStore {
	return &RunStore{q: db.pool}
}
