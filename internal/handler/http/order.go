package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/pagination"
)

// OrderHandler serves order placement and the order state machine.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// OrderItemRequest is one requested line. UnitPrice is accepted for
// compatibility and ignored; the catalogue price is authoritative.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
	UnitPrice *int64 `json:"unit_price,omitempty"`
}

// CreateOrderRequest is the JSON request body for placing an order.
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method" validate:"required,oneof=card bank_transfer wallet"`
}

// TrackingRequest is the JSON request body for attaching shipment tracking.
type TrackingRequest struct {
	Carrier        string     `json:"carrier" validate:"notblank,max=100"`
	TrackingNumber string     `json:"tracking_number" validate:"notblank,max=100"`
	ShippedAt      *time.Time `json:"shipped_at"`
}

// --- Handlers ---

// Create handles POST /api/v1/orders. A repeated Idempotency-Key returns
// the original order with 200 instead of placing a new one.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	input := service.CreateOrderInput{
		BuyerID:         a.ID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, service.OrderItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	order, replayed, err := h.service.CreateOrderOnce(r.Context(), r.Header.Get(IdempotencyHeader), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, replayStatus(replayed), order)
}

// List handles GET /api/v1/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	p := pagination.FromRequest(r)
	q := r.URL.Query()

	buyerID := q.Get("buyer_id")
	if buyerID != "" {
		if _, ok := httputil.ParseUUID(w, r, "buyer_id", buyerID); !ok {
			return
		}
	}

	orders, total, err := h.service.ListOrders(r.Context(), a, service.ListOrdersInput{
		Status:  q.Get("status"),
		BuyerID: buyerID,
		Page:    p.Page,
		PerPage: p.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(orders, total, p))
}

// Get handles GET /api/v1/orders/{orderID}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), a, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateStatus handles PATCH /api/v1/orders/{orderID}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req service.UpdateStatusInput
	if !decode(w, r, &req, h.logger) {
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), a, id, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// Cancel handles POST /api/v1/orders/{orderID}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeOptional(w, r, &req, h.logger) {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), a, id, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// ConfirmReceipt handles POST /api/v1/orders/{orderID}/confirm-receipt
func (h *OrderHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.service.ConfirmReceipt(r.Context(), a, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateTracking handles PATCH /api/v1/orders/{orderID}/tracking
func (h *OrderHandler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req TrackingRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	order, err := h.service.UpdateTracking(r.Context(), a, id, service.TrackingInput{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		ShippedAt:      req.ShippedAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}
