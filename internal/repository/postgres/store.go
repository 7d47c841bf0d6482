// Package postgres implements the repository ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/database"
	apperrors "github.com/gule/marketplace/pkg/errors"
	"github.com/gule/marketplace/pkg/pagination"
)

// Store implements repository.Store. Outside a transaction db is the pool;
// inside InTx it is the pgx.Tx.
type Store struct {
	pool database.Pool
	db   database.DBTX
	inTx bool
}

// NewStore creates a Store on pool.
func NewStore(pool database.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Accounts() repository.AccountRepository { return NewAccountRepository(s.db) }
func (s *Store) Products() repository.ProductRepository { return NewProductRepository(s.db) }
func (s *Store) Orders() repository.OrderRepository     { return NewOrderRepository(s.db) }
func (s *Store) Reviews() repository.ReviewRepository   { return NewReviewRepository(s.db) }
func (s *Store) Audit() repository.AuditRepository      { return NewAuditRepository(s.db) }

// InTx runs fn in a transaction, or in the current one when already inside.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, db: tx, inTx: true})
	})
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// notFound maps pgx.ErrNoRows to a NOT_FOUND AppError.
func notFound(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound(resource, id)
	}
	return err
}

func limitOffset(page, perPage int) (int, int) {
	p := pagination.New(page, perPage)
	return p.Limit(), p.Offset()
}
