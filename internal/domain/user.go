package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	Email         string        `json:"email" db:"email"`
	PasswordHash  string        `json:"-" db:"password_hash"`
	Role          string        `json:"role" db:"role"`
	FirstName     string        `json:"firstName" db:"first_name"`
	LastName      string        `json:"lastName" db:"last_name"`
	Phone         string        `json:"phone" db:"phone"`
	Address       string        `json:"address" db:"address"`
	City          string        `json:"city" db:"city"`
	Province      string        `json:"province" db:"province"`
	PostalCode    string        `json:"postalCode" db:"postal_code"`
	PaymentMethod PaymentMethod `json:"paymentMethod" db:"payment_method"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// HasShippingDefaults reports whether the user already saved a shipping address
func (u *User) HasShippingDefaults() bool {
	return u.Address != ""
}

// ApplyShippingDefaults stores an order's address and payment method as the user's defaults
func (u *User) ApplyShippingDefaults(addr ShippingAddress, method PaymentMethod) {
	u.Address = addr.Address
	u.City = addr.City
	u.Province = addr.Province
	u.PostalCode = addr.PostalCode
	u.PaymentMethod = method
}
