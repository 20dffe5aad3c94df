package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository/memstore"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret"
	testAdminSecret = "admin-secret"
	testAdminEmail  = "admin@example.com"
)

type testAPI struct {
	store  *memstore.Store
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New()

	userService := service.NewUserService(store,
		config.JWTConfig{Secret: testJWTSecret, ExpiryHours: 168},
		config.AuthConfig{PasswordResetEnabled: true, AdminEmails: []string{testAdminEmail}},
		logger,
	)
	productService := service.NewProductService(store, logger)
	cartService := service.NewCartService(store, logger)
	orderService := service.NewOrderService(store, config.OrdersConfig{CreateTimeout: 5 * time.Second}, logger)

	auth := middleware.AuthMiddleware(testJWTSecret, logger)

	r := chi.NewRouter()
	NewUserHandler(userService, logger).RegisterRoutes(r, auth, nil)
	NewProductHandler(productService, logger).RegisterRoutes(r, middleware.RequireAdminSecret(testAdminSecret, logger))
	NewCartHandler(cartService, logger).RegisterRoutes(r)
	NewOrderHandler(orderService, logger).RegisterRoutes(r, auth)

	return &testAPI{store: store, router: r}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type session struct {
	user  domain.User
	token string
}

// signUp registers an account and logs it in
func (a *testAPI) signUp(t *testing.T, email, phone string) session {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/users/register", RegisterRequest{
		Email: email, Password: "secret123", FirstName: "Test", LastName: "User", Phone: phone,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/users/login", LoginRequest{Identifier: email, Password: "secret123"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	decode(t, w, &resp)
	return session{user: *resp.User, token: resp.Token}
}

func (a *testAPI) seedProduct(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Category:  "kitchen",
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, a.store.Products().Create(context.Background(), p))
	return p
}

func (a *testAPI) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := a.store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func shippingAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   "Test User",
		Phone:      "13800138000",
		Address:    "88 Century Ave",
		City:       "Shanghai",
		Province:   "Shanghai",
		PostalCode: "200120",
	}
}
