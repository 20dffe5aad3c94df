package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error)
}

type orderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `o.id, o.user_id, o.total_amount, o.status,
	o.shipping_full_name, o.shipping_phone, o.shipping_address, o.shipping_city,
	o.shipping_province, o.shipping_postal_code, o.payment_method, o.created_at, o.updated_at`

func orderScanTargets(order *domain.Order) []interface{} {
	return []interface{}{
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.Status,
		&order.ShippingAddress.FullName,
		&order.ShippingAddress.Phone,
		&order.ShippingAddress.Address,
		&order.ShippingAddress.City,
		&order.ShippingAddress.Province,
		&order.ShippingAddress.PostalCode,
		&order.PaymentMethod,
		&order.CreatedAt,
		&order.UpdatedAt,
	}
}

// Create inserts the order and its item snapshot
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, total_amount, status,
			shipping_full_name, shipping_phone, shipping_address, shipping_city,
			shipping_province, shipping_postal_code, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.Status,
		order.ShippingAddress.FullName,
		order.ShippingAddress.Phone,
		order.ShippingAddress.Address,
		order.ShippingAddress.City,
		order.ShippingAddress.Province,
		order.ShippingAddress.PostalCode,
		order.PaymentMethod,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, position, product_id, name, image, price, description, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for i, item := range order.Items {
		_, err := r.db.ExecContext(
			ctx,
			itemQuery,
			order.ID,
			i,
			item.ProductID,
			item.Name,
			item.Image,
			item.Price,
			item.Description,
			item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) findOne(ctx context.Context, id uuid.UUID, suffix string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 ` + suffix

	order := &domain.Order{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(orderScanTargets(order)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, id, "")
}

// FindByIDForUpdate retrieves an order and locks its row for the rest of the transaction
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, id, "FOR UPDATE")
}

// UpdateStatus persists order.Status and refreshes order.UpdatedAt
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	err := r.db.QueryRowContext(
		ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING updated_at`,
		order.ID, order.Status,
	).Scan(&order.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return nil
}

// ListByUser returns the user's orders, most recent first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		if err := rows.Scan(orderScanTargets(order)...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// ListAll returns every order joined with its owner, optionally filtered by status
func (r *orderRepository) ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `, u.email, u.first_name, u.last_name
		FROM orders o
		INNER JOIN users u ON u.id = o.user_id
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE o.status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY o.created_at DESC, o.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{Customer: &domain.OrderCustomer{}}
		targets := append(orderScanTargets(order),
			&order.Customer.Email,
			&order.Customer.FirstName,
			&order.Customer.LastName,
		)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// attachItems loads the item snapshots of all orders in one query
func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		order.Items = []domain.OrderItem{}
		byID[order.ID] = order
		ids = append(ids, order.ID.String())
	}

	query := `
		SELECT order_id, product_id, name, image, price, description, quantity
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`

	rows, err := r.db.QueryContext(ctx, query, "{"+strings.Join(ids, ",")+"}")
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		err := rows.Scan(
			&orderID,
			&item.ProductID,
			&item.Name,
			&item.Image,
			&item.Price,
			&item.Description,
			&item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	return nil
}
