package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyOrder           = fmt.Errorf("%w: order must contain at least one item", domain.ErrInvalidInput)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unsupported payment method", domain.ErrInvalidInput)
)

// CreateOrderInput is everything needed to place an order
type CreateOrderInput struct {
	UserID          uuid.UUID
	Items           []domain.OrderLine
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	// IdempotencyKey is optional. A retry carrying the same key returns the first order.
	IdempotencyKey string
}

// OrderService defines the interface for order business logic
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListAllOrders(ctx context.Context, status string) ([]*domain.Order, error)
}

type orderService struct {
	store  repository.Store
	cfg    config.OrdersConfig
	logger *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store repository.Store, cfg config.OrdersConfig, logger *zap.Logger) OrderService {
	return &orderService{store: store, cfg: cfg, logger: logger}
}

func (s *orderService) validate(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, line := range in.Items {
		if !domain.ValidQuantity(line.Quantity) {
			return ErrInvalidQuantity
		}
	}
	if !in.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if err := domain.Validate(in.ShippingAddress); err != nil {
		return fmt.Errorf("%w: shipping address: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// CreateOrder prices the requested lines from the live catalog, takes the
// units out of stock, stores the order and empties the user's cart. All of it
// commits together or not at all.
func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if s.cfg.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CreateTimeout)
		defer cancel()
	}

	if err := s.validate(in); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if order, err := s.replay(ctx, in.UserID, key); err == nil {
			return order, nil
		} else if !errors.Is(err, repository.ErrIdempotencyKeyNotFound) {
			return nil, passThrough(err, "look up idempotency key")
		}
	}

	lines := domain.MergeLines(in.Items)
	for _, line := range lines {
		if !domain.ValidQuantity(line.Quantity) {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
	}

	orderID := uuid.New()
	now := time.Now()

	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		// Claiming the key is the first write, so a concurrent request with the
		// same key blocks here until this transaction settles.
		if key != "" {
			err := tx.IdempotencyKeys().Create(ctx, &domain.IdempotencyKey{
				UserID:    in.UserID,
				Key:       key,
				OrderID:   orderID,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}

		user, err := tx.Users().FindByID(ctx, in.UserID)
		if err != nil {
			return err
		}

		// Lock product rows in a fixed order so concurrent orders cannot deadlock
		lockOrder := append([]domain.OrderLine(nil), lines...)
		sort.Slice(lockOrder, func(i, j int) bool {
			return lockOrder[i].ProductID.String() < lockOrder[j].ProductID.String()
		})

		catalog := make(map[uuid.UUID]*domain.Product, len(lockOrder))
		for _, line := range lockOrder {
			product, err := tx.Products().LockByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: %s", err, line.ProductID)
				}
				return err
			}
			catalog[line.ProductID] = product
		}

		for _, line := range lockOrder {
			if err := tx.Products().DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					p := catalog[line.ProductID]
					return fmt.Errorf("%w: %q has %d left, %d requested",
						domain.ErrInsufficientStock, p.Name, p.Stock, line.Quantity)
				}
				return err
			}
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, domain.SnapshotItem(catalog[line.ProductID], line.Quantity))
		}

		order = &domain.Order{
			ID:              orderID,
			UserID:          in.UserID,
			Items:           items,
			TotalAmount:     domain.ComputeTotal(items),
			Status:          domain.OrderStatusPending,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		if err := tx.Carts().ClearByUserID(ctx, in.UserID); err != nil {
			return err
		}

		if !user.HasShippingDefaults() {
			user.ApplyShippingDefaults(in.ShippingAddress, in.PaymentMethod)
			if err := tx.Users().Update(ctx, user); err != nil {
				return err
			}
		}

		return nil
	})

	if errors.Is(err, repository.ErrIdempotencyKeyExists) {
		// A concurrent request with the same key won the race
		order, err := s.replay(ctx, in.UserID, key)
		if err != nil {
			return nil, passThrough(err, "replay order")
		}
		return order, nil
	}
	if err != nil && key != "" {
		// The failure may come from a concurrent request that has since
		// committed under this key, e.g. it took the last units.
		if order, replayErr := s.replay(ctx, in.UserID, key); replayErr == nil {
			return order, nil
		}
	}
	if err != nil {
		return nil, passThrough(err, "create order")
	}

	logger.FromContext(ctx, s.logger).Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)

	return order, nil
}

// replay returns the order previously created under key
func (s *orderService) replay(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error) {
	record, err := s.store.IdempotencyKeys().FindByKey(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	return s.store.Orders().FindByID(ctx, record.OrderID)
}

// GetOrder retrieves an order by ID
func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, passThrough(err, "get order")
	}
	return order, nil
}

// UpdateOrderStatus moves an order to status. Moving into cancelled restores stock.
func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err = tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if next == domain.OrderStatusCancelled {
			return s.cancel(ctx, tx, order)
		}

		if !order.Status.CanTransitionTo(next) {
			return invalidTransition(order.Status, next)
		}
		order.Status = next
		return tx.Orders().UpdateStatus(ctx, order)
	})
	if err != nil {
		return nil, passThrough(err, "update order status")
	}

	logger.FromContext(ctx, s.logger).Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

// CancelOrder cancels a pending order and returns its units to stock
func (s *orderService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return s.cancel(ctx, tx, order)
	})
	if err != nil {
		return nil, passThrough(err, "cancel order")
	}

	logger.FromContext(ctx, s.logger).Info("Order cancelled", zap.String("order_id", order.ID.String()))

	return order, nil
}

// cancel is the only path into the cancelled status. It must run inside tx.
func (s *orderService) cancel(ctx context.Context, tx repository.Store, order *domain.Order) error {
	if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return invalidTransition(order.Status, domain.OrderStatusCancelled)
	}

	order.Status = domain.OrderStatusCancelled
	if err := tx.Orders().UpdateStatus(ctx, order); err != nil {
		return err
	}

	for _, item := range order.Items {
		err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, domain.ErrNotFound) {
			// The product left the catalog after the order was placed
			logger.FromContext(ctx, s.logger).Warn("Skipping stock restore for deleted product",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", item.ProductID.String()),
			)
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func invalidTransition(from, to domain.OrderStatus) error {
	return fmt.Errorf("%w: cannot move order from %s to %s", domain.ErrInvalidTransition, from, to)
}

// ListOrdersForUser returns a user's orders, most recent first
func (s *orderService) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.store.Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, passThrough(err, "list orders")
	}
	return orders, nil
}

// ListAllOrders returns every order with its owner, optionally filtered by status
func (s *orderService) ListAllOrders(ctx context.Context, status string) ([]*domain.Order, error) {
	var filter *domain.OrderStatus
	if status != "" {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &parsed
	}

	orders, err := s.store.Orders().ListAll(ctx, filter)
	if err != nil {
		return nil, passThrough(err, "list orders")
	}
	return orders, nil
}
