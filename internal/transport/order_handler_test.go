package transport

import (
	"net/http"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderRequest(lines ...domain.OrderLine) CreateOrderRequest {
	return CreateOrderRequest{
		OrderItems:      lines,
		ShippingAddress: shippingAddress(),
		PaymentMethod:   string(domain.PaymentAlipay),
	}
}

func TestCreateOrder(t *testing.T) {
	api := newTestAPI(t)
	ann := api.signUp(t, "ann@example.com", "13800138000")
	a := api.seedProduct(t, "Kettle", "100", 10)
	b := api.seedProduct(t, "Mug", "50", 5)

	cartPath := "/api/cart/" + ann.user.ID.String()
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, cartPath, AddCartItemRequest{ProductID: a.ID, Quantity: 2}, nil).Code)

	w := api.do(t, http.MethodPost, "/api/orders/"+ann.user.ID.String(),
		orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 2}, domain.OrderLine{ProductID: b.ID, Quantity: 1}),
		bearer(ann.token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order domain.Order
	decode(t, w, &order)
	assert.True(t, decimal.NewFromInt(250).Equal(order.TotalAmount))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 8, api.stockOf(t, a.ID))
	assert.Equal(t, 4, api.stockOf(t, b.ID))

	var cart domain.Cart
	decode(t, api.do(t, http.MethodGet, cartPath, nil, nil), &cart)
	assert.Empty(t, cart.Items)
}

func TestCreateOrder_Rejections(t *testing.T) {
	api := newTestAPI(t)
	ann := api.signUp(t, "ann@example.com", "13800138000")
	bob := api.signUp(t, "bob@example.com", "13900139000")
	a := api.seedProduct(t, "Kettle", "100", 1)
	path := "/api/orders/" + ann.user.ID.String()

	badAddress := orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 1})
	badAddress.ShippingAddress.PostalCode = "ABC"

	badPayment := orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 1})
	badPayment.PaymentMethod = "cash"

	tests := []struct {
		name    string
		body    CreateOrderRequest
		headers map[string]string
		want    int
	}{
		{name: "no token", body: orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 1}), want: http.StatusUnauthorized},
		{name: "another user", body: orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 1}), headers: bearer(bob.token), want: http.StatusForbidden},
		{name: "no items", body: orderRequest(), headers: bearer(ann.token), want: http.StatusBadRequest},
		{name: "bad postcode", body: badAddress, headers: bearer(ann.token), want: http.StatusBadRequest},
		{name: "bad payment method", body: badPayment, headers: bearer(ann.token), want: http.StatusBadRequest},
		{name: "insufficient stock", body: orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 2}), headers: bearer(ann.token), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, path, tt.body, tt.headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, 1, api.stockOf(t, a.ID))
}

func TestCreateOrder_IdempotencyKeyReplaysFirstOrder(t *testing.T) {
	api := newTestAPI(t)
	ann := api.signUp(t, "ann@example.com", "13800138000")
	a := api.seedProduct(t, "Kettle", "100", 10)

	headers := bearer(ann.token)
	headers[middleware.IdempotencyKeyHeader] = "checkout-1"
	body := orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 3})

	var first, second domain.Order
	w := api.do(t, http.MethodPost, "/api/orders/"+ann.user.ID.String(), body, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &first)

	w = api.do(t, http.MethodPost, "/api/orders/"+ann.user.ID.String(), body, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, api.stockOf(t, a.ID))
}

func TestOrderLifecycle(t *testing.T) {
	api := newTestAPI(t)
	ann := api.signUp(t, "ann@example.com", "13800138000")
	bob := api.signUp(t, "bob@example.com", "13900139000")
	admin := api.signUp(t, testAdminEmail, "13700137000")
	a := api.seedProduct(t, "Kettle", "100", 10)

	place := func() domain.Order {
		w := api.do(t, http.MethodPost, "/api/orders/"+ann.user.ID.String(),
			orderRequest(domain.OrderLine{ProductID: a.ID, Quantity: 2}), bearer(ann.token))
		require.Equal(t, http.StatusCreated, w.Code)
		var o domain.Order
		decode(t, w, &o)
		return o
	}

	first := place()
	second := place()
	orderPath := "/api/orders/" + first.ID.String()

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, orderPath, nil, bearer(ann.token)).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, orderPath, nil, bearer(admin.token)).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, orderPath, nil, bearer(bob.token)).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, orderPath+"/cancel", nil, bearer(bob.token)).Code)

	w := api.do(t, http.MethodPost, orderPath+"/cancel", nil, bearer(ann.token))
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled domain.Order
	decode(t, w, &cancelled)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 8, api.stockOf(t, a.ID))

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, orderPath+"/cancel", nil, bearer(ann.token)).Code)

	statusPath := "/api/orders/" + second.ID.String() + "/status"
	assert.Equal(t, http.StatusForbidden,
		api.do(t, http.MethodPut, statusPath, UpdateOrderStatusRequest{Status: "shipped"}, bearer(ann.token)).Code)
	assert.Equal(t, http.StatusOK,
		api.do(t, http.MethodPut, statusPath, UpdateOrderStatusRequest{Status: "shipped"}, bearer(admin.token)).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.do(t, http.MethodPut, statusPath, UpdateOrderStatusRequest{Status: "processing"}, bearer(admin.token)).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.do(t, http.MethodPut, statusPath, UpdateOrderStatusRequest{Status: "lost"}, bearer(admin.token)).Code)

	var mine []domain.Order
	w = api.do(t, http.MethodGet, "/api/orders/user/"+ann.user.ID.String(), nil, bearer(ann.token))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &mine)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	assert.Equal(t, http.StatusForbidden,
		api.do(t, http.MethodGet, "/api/orders/user/"+ann.user.ID.String(), nil, bearer(bob.token)).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/orders", nil, bearer(ann.token)).Code)

	var shipped []domain.Order
	w = api.do(t, http.MethodGet, "/api/orders?status=shipped", nil, bearer(admin.token))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &shipped)
	require.Len(t, shipped, 1)
	assert.Equal(t, second.ID, shipped[0].ID)
	require.NotNil(t, shipped[0].Customer)
	assert.Equal(t, "ann@example.com", shipped[0].Customer.Email)
}
