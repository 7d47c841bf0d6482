package http

import (
	"log/slog"
	"net/http"

	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/pagination"
)

// ReviewHandler serves product reviews.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// CreateReviewRequest is the JSON request body for writing a review.
type CreateReviewRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	OrderID   string `json:"order_id" validate:"required,uuid"`
	Rating    int    `json:"rating" validate:"gte=1,lte=5"`
	Title     string `json:"title" validate:"max=200"`
	Comment   string `json:"comment" validate:"max=5000"`
}

// RespondRequest is the JSON request body for a seller reply.
type RespondRequest struct {
	Text string `json:"text" validate:"notblank,max=2000"`
}

// Create handles POST /api/v1/reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateReviewRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	review, err := h.service.CreateReview(r.Context(), service.CreateReviewInput{
		BuyerID:   a.ID,
		ProductID: req.ProductID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, review)
}

// ListByProduct handles GET /api/v1/products/{productID}/reviews
func (h *ReviewHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	p := pagination.FromRequest(r)

	list, err := h.service.ListReviews(r.Context(), id, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, list)
}

// Update handles PUT /api/v1/reviews/{reviewID}
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	var req service.UpdateReviewInput
	if !decode(w, r, &req, h.logger) {
		return
	}

	review, err := h.service.UpdateReview(r.Context(), a, id, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// Delete handles DELETE /api/v1/reviews/{reviewID}
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), a, id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report handles POST /api/v1/reviews/{reviewID}/report
func (h *ReviewHandler) Report(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeOptional(w, r, &req, h.logger) {
		return
	}

	review, err := h.service.ReportReview(r.Context(), a, id, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// Respond handles POST /api/v1/reviews/{reviewID}/response
func (h *ReviewHandler) Respond(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	var req RespondRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	review, err := h.service.RespondToReview(r.Context(), a, id, req.Text)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}
