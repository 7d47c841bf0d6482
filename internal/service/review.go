package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/event"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// ReviewService implements reviews and the product rating rollup.
type ReviewService struct {
	store   repository.Store
	events  event.Publisher
	audit   audit.Recorder
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewReviewService creates a new review service. metrics may be nil.
func NewReviewService(store repository.Store, events event.Publisher, rec audit.Recorder, metrics *Metrics, logger *slog.Logger) *ReviewService {
	if events == nil {
		events = event.Nop{}
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	return &ReviewService{
		store:   store,
		events:  events,
		audit:   rec,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateReviewInput holds the parameters for creating a review.
type CreateReviewInput struct {
	BuyerID   string `json:"-"`
	ProductID string `json:"product_id" validate:"required"`
	OrderID   string `json:"order_id" validate:"required"`
	Rating    int    `json:"rating" validate:"gte=1,lte=5"`
	Title     string `json:"title" validate:"max=200"`
	Comment   string `json:"comment" validate:"max=5000"`
}

// CreateReview records a verified-purchase review and refreshes the
// product's rating.
func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (*domain.Review, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	product, err := s.store.Products().GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	order, err := s.store.Orders().GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	switch {
	case order.BuyerID != in.BuyerID:
		return nil, apperrors.Forbidden("you can only review products from your own orders")
	case !order.ContainsProduct(in.ProductID):
		return nil, apperrors.Forbidden("order does not contain this product")
	case !domain.Reviewable(order.Status):
		return nil, apperrors.Forbidden(fmt.Sprintf("order is %s; products can be reviewed once delivered", order.Status))
	}

	exists, err := s.store.Reviews().ExistsForBuyer(ctx, in.BuyerID, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return nil, apperrors.DuplicateReview(in.ProductID)
	}

	now := s.now()
	review := &domain.Review{
		ID:        uuid.NewString(),
		ProductID: product.ID,
		OrderID:   order.ID,
		BuyerID:   in.BuyerID,
		SellerID:  product.SellerID,
		Rating:    in.Rating,
		Title:     in.Title,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	summary, err := s.writeAndRollup(ctx, product.ID, func(tx repository.Store) error {
		return tx.Reviews().Create(ctx, review)
	})
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	actor := domain.Actor{ID: in.BuyerID, Type: domain.AccountBuyer}
	s.after(ctx, actor, domain.ActionReviewCreated, review, summary)
	if err := s.events.ReviewCreated(ctx, review, summary); err != nil {
		logDropped(ctx, s.logger, "publish review.created event", err, slog.String("review_id", review.ID))
	}
	return review, nil
}

// UpdateReviewInput changes the author-editable fields.
type UpdateReviewInput struct {
	Rating  *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Comment *string `json:"comment" validate:"omitempty,max=5000"`
}

// UpdateReview lets the author edit their review.
func (s *ReviewService) UpdateReview(ctx context.Context, actor domain.Actor, id string, in UpdateReviewInput) (*domain.Review, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	review, err := s.store.Reviews().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if review.BuyerID != actor.ID {
		return nil, apperrors.Forbidden("you can only edit your own reviews")
	}

	if in.Rating != nil {
		review.Rating = *in.Rating
	}
	if in.Title != nil {
		review.Title = *in.Title
	}
	if in.Comment != nil {
		review.Comment = *in.Comment
	}
	review.UpdatedAt = s.now()

	summary, err := s.writeAndRollup(ctx, review.ProductID, func(tx repository.Store) error {
		return tx.Reviews().Update(ctx, review)
	})
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.after(ctx, actor, domain.ActionReviewUpdated, review, summary)
	return review, nil
}

// DeleteReview removes a review. Authors and admins may delete.
func (s *ReviewService) DeleteReview(ctx context.Context, actor domain.Actor, id string) error {
	review, err := s.store.Reviews().GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if review.BuyerID != actor.ID && !actor.IsAdmin() {
		return apperrors.Forbidden("you can only delete your own reviews")
	}

	summary, err := s.writeAndRollup(ctx, review.ProductID, func(tx repository.Store) error {
		return tx.Reviews().Delete(ctx, review.ID)
	})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.after(ctx, actor, domain.ActionReviewDeleted, review, summary)
	if err := s.events.ReviewDeleted(ctx, review, summary); err != nil {
		logDropped(ctx, s.logger, "publish review.deleted event", err, slog.String("review_id", review.ID))
	}
	return nil
}

// writeAndRollup runs write and recomputes the product rating in one
// transaction. The product row is locked first so concurrent review writes
// for the same product serialize.
func (s *ReviewService) writeAndRollup(ctx context.Context, productID string, write func(tx repository.Store) error) (domain.ReviewSummary, error) {
	var summary domain.ReviewSummary
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Products().GetForUpdate(ctx, productID); err != nil {
			return err
		}
		if err := write(tx); err != nil {
			return err
		}
		ratings, err := tx.Reviews().Ratings(ctx, productID)
		if err != nil {
			return err
		}
		summary = domain.RollupRating(ratings)
		return tx.Products().SetRating(ctx, productID, summary)
	})
	return summary, err
}

func (s *ReviewService) after(ctx context.Context, actor domain.Actor, action string, r *domain.Review, summary domain.ReviewSummary) {
	s.metrics.reviewWritten(action)
	record(ctx, s.audit, actor, action, domain.ResourceReview, r.ID, map[string]any{
		"product_id":     r.ProductID,
		"rating":         r.Rating,
		"product_rating": summary.AverageRating,
		"review_count":   summary.TotalCount,
	})
	s.logger.InfoContext(ctx, "review written",
		slog.String("action", action),
		slog.String("review_id", r.ID),
		slog.String("product_id", r.ProductID),
		slog.Float64("product_rating", summary.AverageRating),
		slog.Int("review_count", summary.TotalCount),
	)
}

// ReportReview flags a review. Each user may report a review once.
func (s *ReviewService) ReportReview(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Review, error) {
	if len(reason) > 500 {
		return nil, fieldError("reason", "must be at most 500 characters")
	}
	review, err := s.store.Reviews().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if review.ReportedBy(actor.ID) {
		return nil, apperrors.AlreadyReported(id)
	}

	report := domain.ReviewReport{ReporterID: actor.ID, Reason: reason, CreatedAt: s.now()}
	if err := s.store.Reviews().AddReport(ctx, id, report); err != nil {
		return nil, fmt.Errorf("report review: %w", err)
	}
	review.Reports = append(review.Reports, report)

	record(ctx, s.audit, actor, domain.ActionReviewReported, domain.ResourceReview, id, map[string]any{"reason": reason})
	s.logger.InfoContext(ctx, "review reported",
		slog.String("review_id", id),
		slog.Int("reports", len(review.Reports)),
	)
	return review, nil
}

// RespondToReview stores the product seller's public reply, replacing any
// earlier one.
func (s *ReviewService) RespondToReview(ctx context.Context, actor domain.Actor, id, text string) (*domain.Review, error) {
	if len(text) == 0 || len(text) > 2000 {
		return nil, fieldError("text", "must be between 1 and 2000 characters")
	}
	review, err := s.store.Reviews().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if !actor.IsSeller() || review.SellerID != actor.ID {
		return nil, apperrors.Forbidden("only the product's seller can respond")
	}

	resp := domain.SellerResponse{Text: text, RespondedAt: s.now()}
	if err := s.store.Reviews().SetResponse(ctx, id, resp); err != nil {
		return nil, fmt.Errorf("respond to review: %w", err)
	}
	review.Response = &resp

	record(ctx, s.audit, actor, domain.ActionReviewResponded, domain.ResourceReview, id, nil)
	return review, nil
}

// ReviewList is one page of a product's reviews plus its rating summary.
type ReviewList struct {
	Reviews    []domain.Review      `json:"reviews"`
	Summary    domain.ReviewSummary `json:"summary"`
	TotalCount int                  `json:"total_count"`
	Page       int                  `json:"page"`
	PerPage    int                  `json:"per_page"`
	TotalPages int                  `json:"total_pages"`
}

// ListReviews returns a page of reviews for a product, newest first.
func (s *ReviewService) ListReviews(ctx context.Context, productID string, page, perPage int) (*ReviewList, error) {
	product, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	p := clampPage(page, perPage)
	reviews, total, err := s.store.Reviews().ListByProduct(ctx, productID, p.Page, p.PerPage)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}

	return &ReviewList{
		Reviews:    reviews,
		Summary:    domain.ReviewSummary{AverageRating: product.Rating, TotalCount: product.ReviewCount},
		TotalCount: total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: (total + p.PerPage - 1) / p.PerPage,
	}, nil
}
