package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateOrderRequest is the body of POST /api/orders/{userID}
type CreateOrderRequest struct {
	OrderItems      []domain.OrderLine     `json:"orderItems" validate:"required,min=1,dive"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress" validate:"required"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required,oneof=alipay wechat credit-card"`
}

// UpdateOrderStatusRequest is the body of PUT /api/orders/{id}/status
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderHandler serves the order workflow
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// RegisterRoutes registers the order routes. Every route requires a bearer token.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)

		r.With(middleware.RequireAdmin(h.logger)).Get("/", h.ListAllOrders)
		r.With(middleware.RequireSelfOrAdmin("userID", h.logger)).Get("/user/{userID}", h.ListUserOrders)
		r.With(middleware.RequireAdmin(h.logger)).Put("/{id}/status", h.UpdateStatus)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Get("/{id}", h.GetOrder)

		// On POST the id segment names the user the order is placed for
		r.With(middleware.RequireSelfOrAdmin("id", h.logger)).Post("/{id}", h.CreateOrder)
	})
}

// CreateOrder places an order. A repeated Idempotency-Key returns the first order.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:          userID,
		Items:           req.OrderItems,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		IdempotencyKey:  r.Header.Get(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListUserOrders returns a user's orders, newest first
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	orders, err := h.orderService.ListOrdersForUser(r.Context(), userID)
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// ListAllOrders returns every order, optionally filtered with ?status=
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListAllOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// GetOrder returns one order to its owner or an admin
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// UpdateStatus moves an order to a new status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	order, err := h.orderService.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// CancelOrder cancels a pending order
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	cancelled, err := h.orderService.CancelOrder(r.Context(), order.ID)
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, cancelled)
}

// ownedOrder loads the order in the URL and checks the caller may see it.
// Other users' orders are reported as missing.
func (h *OrderHandler) ownedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return nil, false
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		middleware.RespondWithServiceError(w, r, err, h.logger)
		return nil, false
	}

	if !middleware.CanActFor(r.Context(), order.UserID) {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return nil, false
	}

	return order, true
}
