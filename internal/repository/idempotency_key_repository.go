package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	ErrIdempotencyKeyExists   = errors.New("idempotency key already used")
)

// IdempotencyKeyRepository defines the interface for order idempotency key data access
type IdempotencyKeyRepository interface {
	Create(ctx context.Context, key *domain.IdempotencyKey) error
	FindByKey(ctx context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error)
}

type idempotencyKeyRepository struct {
	db DBTX
}

// NewIdempotencyKeyRepository creates a new instance of IdempotencyKeyRepository
func NewIdempotencyKeyRepository(db DBTX) IdempotencyKeyRepository {
	return &idempotencyKeyRepository{db: db}
}

// Create records the key. A key already recorded for the user yields ErrIdempotencyKeyExists.
func (r *idempotencyKeyRepository) Create(ctx context.Context, key *domain.IdempotencyKey) error {
	query := `
		INSERT INTO order_idempotency_keys (user_id, key, order_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Key, key.OrderID, key.CreatedAt)
	if err != nil {
		if _, dup := violatedConstraint(err); dup {
			return ErrIdempotencyKeyExists
		}
		return fmt.Errorf("failed to create idempotency key: %w", err)
	}

	return nil
}

// FindByKey retrieves the order binding of a user's key
func (r *idempotencyKeyRepository) FindByKey(ctx context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	query := `
		SELECT user_id, key, order_id, created_at
		FROM order_idempotency_keys
		WHERE user_id = $1 AND key = $2
	`

	record := &domain.IdempotencyKey{}
	err := r.db.QueryRowContext(ctx, query, userID, key).Scan(
		&record.UserID,
		&record.Key,
		&record.OrderID,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdempotencyKeyNotFound
		}
		return nil, fmt.Errorf("failed to find idempotency key: %w", err)
	}

	return record, nil
}
