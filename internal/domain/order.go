package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// fulfilmentRank orders the forward path. Cancelled is not on it.
var fulfilmentRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// ParseOrderStatus validates a raw status value
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, s)
	}
	return status, nil
}

// Valid reports whether s is one of the five recognized statuses
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := fulfilmentRank[s]
	return ok
}

// Terminal reports whether no further transition is possible
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether an order in status s may move to next.
// Fulfilment only moves forward; cancellation is only reachable from pending.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusPending
	}
	return fulfilmentRank[next] > fulfilmentRank[s]
}

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentAlipay     PaymentMethod = "alipay"
	PaymentWechat     PaymentMethod = "wechat"
	PaymentCreditCard PaymentMethod = "credit-card"
)

// Valid reports whether m is a supported payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentAlipay, PaymentWechat, PaymentCreditCard:
		return true
	}
	return false
}

// ShippingAddress is where an order is delivered. All fields are required.
type ShippingAddress struct {
	FullName   string `json:"fullName" validate:"required"`
	Phone      string `json:"phone" validate:"required,phone"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,postcode"`
}

// OrderItem is the snapshot of a product taken when the order was placed
type OrderItem struct {
	ProductID   uuid.UUID       `json:"productId" db:"product_id"`
	Name        string          `json:"name" db:"name"`
	Image       string          `json:"image" db:"image"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Description string          `json:"description" db:"description"`
	Quantity    int             `json:"quantity" db:"quantity"`
}

// LineTotal is price x quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SnapshotItem copies the catalog fields of p into an order line
func SnapshotItem(p *Product, quantity int) OrderItem {
	return OrderItem{
		ProductID:   p.ID,
		Name:        p.Name,
		Image:       p.Image,
		Price:       p.Price,
		Description: p.Description,
		Quantity:    quantity,
	}
}

// OrderCustomer is the minimal owner identity attached to admin listings
type OrderCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Order is an immutable snapshot of purchased items plus a mutable status
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"userId" db:"user_id"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Status          OrderStatus     `json:"status" db:"status"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	Customer        *OrderCustomer  `json:"customer,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// ComputeTotal sums the line totals of items
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// MaxQuantity is the largest quantity a cart or order line can hold.
// Quantity columns are INTEGER.
const MaxQuantity = math.MaxInt32

// ValidQuantity reports whether q fits a cart or order line
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}

// OrderLine is a requested (product, quantity) pair before it is priced
type OrderLine struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gte=1,lte=2147483647"`
}

// MergeLines folds repeated products into one line, keeping first-seen order.
// Merged quantities can exceed MaxQuantity; callers re-check them.
func MergeLines(lines []OrderLine) []OrderLine {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]OrderLine, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// IdempotencyKey binds a client supplied key to the order it produced
type IdempotencyKey struct {
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Key       string    `json:"key" db:"key"`
	OrderID   uuid.UUID `json:"orderId" db:"order_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
