package http

import (
	"log/slog"
	"net/http"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/pagination"
)

// ProductHandler serves the catalogue and its moderation.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: svc, logger: logger}
}

// ModerateRequest is the JSON request body for a moderation decision.
type ModerateRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active suspended rejected"`
	Reason string `json:"reason" validate:"max=500"`
}

// StockRequest is the JSON request body for a stock adjustment.
type StockRequest struct {
	Delta  int    `json:"delta" validate:"required,gte=-1000000,lte=1000000"`
	Reason string `json:"reason" validate:"max=500"`
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pagination.FromRequest(r)

	sellerID := q.Get("seller_id")
	if sellerID != "" {
		if _, ok := httputil.ParseUUID(w, r, "seller_id", sellerID); !ok {
			return
		}
	}

	products, total, err := h.service.ListProducts(r.Context(), optionalActor(r), service.ListProductsInput{
		SellerID: sellerID,
		Status:   q.Get("status"),
		Search:   q.Get("q"),
		Page:     p.Page,
		PerPage:  p.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(products, total, p))
}

// Get handles GET /api/v1/products/{productID}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), optionalActor(r), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	var req service.CreateProductInput
	if !decode(w, r, &req, h.logger) {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), a, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, p)
}

// Update handles PUT /api/v1/products/{productID}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req service.UpdateProductInput
	if !decode(w, r, &req, h.logger) {
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), a, id, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// Moderate handles PATCH /api/v1/products/{productID}/status
func (h *ProductHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req ModerateRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	p, err := h.service.ModerateProduct(r.Context(), a, id, domain.ProductStatus(req.Status), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// AdjustStock handles POST /api/v1/products/{productID}/stock
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req StockRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	p, err := h.service.AdjustStock(r.Context(), a, id, req.Delta, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}
