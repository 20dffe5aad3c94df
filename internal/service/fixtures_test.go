package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    *memstore.Store
	users    UserService
	carts    CartService
	orders   OrderService
	products ProductService
}

func newFixture() *fixture {
	store := memstore.New()
	log := zap.NewNop()
	return &fixture{
		store: store,
		users: NewUserService(store,
			config.JWTConfig{Secret: "test-secret", ExpiryHours: 168},
			config.AuthConfig{PasswordResetEnabled: true, AdminEmails: []string{"admin@example.com"}},
			log,
		),
		carts:    NewCartService(store, log),
		orders:   NewOrderService(store, config.OrdersConfig{CreateTimeout: 5 * time.Second}, log),
		products: NewProductService(store, log),
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID:          uuid.New(),
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Image:       "https://cdn.example.com/" + name + ".png",
		Category:    "general",
		Stock:       stock,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func (f *fixture) user(t *testing.T) *domain.User {
	t.Helper()
	id := uuid.New().String()[:8]
	u, err := f.users.Register(context.Background(), id+"@example.com", "secret123", "Test", "User", "1380000"+id[:4])
	require.NoError(t, err)
	return u
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   "Test User",
		Phone:      "13800138000",
		Address:    "88 Century Ave",
		City:       "Shanghai",
		Province:   "Shanghai",
		PostalCode: "200120",
	}
}
