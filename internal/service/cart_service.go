package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidInput, domain.MaxQuantity)

// CartService defines the interface for cart business logic
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
}

type cartService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(store repository.Store, logger *zap.Logger) CartService {
	return &cartService{store: store, logger: logger}
}

// passThrough keeps classified errors as they are and wraps the rest
func passThrough(err error, action string) error {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidInput,
		domain.ErrInsufficientStock,
		domain.ErrDuplicateIdentity,
		domain.ErrInvalidCredentials,
		domain.ErrInvalidTransition,
		domain.ErrUnauthorized,
		domain.ErrForbidden,
		context.DeadlineExceeded,
		context.Canceled,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// GetOrCreateCart returns the user's cart, creating an empty one on first access
func (s *cartService) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.store.Carts().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, passThrough(err, "get cart")
	}
	return cart, nil
}

// AddItem adds quantity units of a product to the cart. The requested quantity
// alone must not exceed the product's stock.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if !domain.ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return fmt.Errorf("%w: %d requested, %d available", domain.ErrInsufficientStock, quantity, product.Stock)
		}

		cart, err = tx.Carts().GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Carts().UpsertItem(ctx, cart.ID, productID, quantity); err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "add cart item")
	}

	return cart, nil
}

// UpdateItemQuantity overwrites a line's quantity. A quantity of zero or less removes the line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity > domain.MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if _, ok := current.Item(productID); !ok {
			return repository.ErrCartItemNotFound
		}

		if quantity <= 0 {
			err = tx.Carts().RemoveItem(ctx, current.ID, productID)
		} else {
			err = tx.Carts().SetItemQuantity(ctx, current.ID, productID, quantity)
		}
		if err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "update cart item")
	}

	return cart, nil
}

// RemoveItem deletes a product's line from the cart
func (s *cartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Carts().RemoveItem(ctx, current.ID, productID); err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "remove cart item")
	}

	return cart, nil
}

// ClearCart empties an existing cart
func (s *cartService) ClearCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Carts().Clear(ctx, current.ID); err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "clear cart")
	}

	return cart, nil
}
