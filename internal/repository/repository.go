// Package repository implements the onboarding, checkout and reconcile
// persistence interfaces on PostgreSQL.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/prokit/pkg/pg"
	"github.com/dmitrymomot/prokit/svc/checkout"
	"github.com/dmitrymomot/prokit/svc/onboarding"
	"github.com/dmitrymomot/prokit/svc/reconcile"
)

var (
	_ onboarding.Store       = (*Store)(nil)
	_ checkout.CustomerStore = (*Store)(nil)
	_ reconcile.Store        = (*LedgerStore)(nil)
	_ reconcile.Ledger       = (*Queries)(nil)
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.Querier
	pg.TxBeginner
}

// Queries runs every statement against db, which may be a pool or a
// transaction.
type Queries struct {
	db pg.Querier
}

func New(db pg.Querier) *Queries {
	return &Queries{db: db}
}

// Store is the onboarding.Store and checkout.CustomerStore backed by a pool.
type Store struct {
	*Queries
	pool DB
}

func NewStore(pool DB) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(repo onboarding.Repository) error) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(New(tx))
	})
}

// LedgerStore is the reconcile.Store backed by a pool.
type LedgerStore struct {
	pool DB
}

func NewLedgerStore(pool DB) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) InTx(ctx context.Context, fn func(reconcile.Ledger) error) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(New(tx))
	})
}
