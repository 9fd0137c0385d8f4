package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

// NewPool creates a pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, config)
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements negotiation.Store on PostgreSQL. Mutations lock the
// negotiation row with SELECT ... FOR UPDATE.
type Store struct {
	pool *pgxpool.Pool
	stores
}

type stores struct {
	negotiations *NegotiationRepository
	events       *EventRepository
	idempotency  *IdempotencyRepository
}

func newStores(q DBTX) stores {
	return stores{
		negotiations: NewNegotiationRepository(q),
		events:       NewEventRepository(q),
		idempotency:  NewIdempotencyRepository(q),
	}
}

func (s stores) Negotiations() negotiation.Repository { return s.negotiations }
func (s stores) Events() event.Repository { return s.events }
func (s stores) Idempotency() negotiation.IdempotencyRepository { return s.idempotency }

// NewStore creates a store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, stores: newStores(pool)}
}

// WithTx runs fn in a transaction that commits only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(stores negotiation.StoreProvider) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(newStores(tx)); err != nil {
		if isSerializationFailure(err) {
			return negotiation.ErrConcurrentUpdate
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return negotiation.ErrConcurrentUpdate
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
