package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolationCode is the SQLSTATE Postgres raises for a unique constraint
const uniqueViolationCode = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store groups the repositories and provides the unit of work.
// Repositories obtained from the Store passed to WithTx's callback share one
// transaction: either every write inside the callback commits or none does.
type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Categories() CategoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	IdempotencyKeys() IdempotencyKeyRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type sqlStore struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

// NewStore creates a Store backed by db
func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db, q: db}
}

func (s *sqlStore) Users() UserRepository                     { return NewUserRepository(s.q) }
func (s *sqlStore) Products() ProductRepository               { return NewProductRepository(s.q) }
func (s *sqlStore) Categories() CategoryRepository            { return NewCategoryRepository(s.q) }
func (s *sqlStore) Carts() CartRepository                     { return NewCartRepository(s.q) }
func (s *sqlStore) Orders() OrderRepository                   { return NewOrderRepository(s.q) }
func (s *sqlStore) IdempotencyKeys() IdempotencyKeyRepository { return NewIdempotencyKeyRepository(s.q) }

// WithTx runs fn inside a transaction. Nested calls join the outer transaction.
func (s *sqlStore) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(&sqlStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// violatedConstraint returns the constraint name when err is a unique violation
func violatedConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return pgErr.ConstraintName, true
	}
	return "", false
}
