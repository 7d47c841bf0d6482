package memory

import (
	"context"

	"github.com/gule/marketplace/internal/domain"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// ReviewRepository implements repository.ReviewRepository in memory.
type ReviewRepository struct {
	h handle
}

// Create stores a review. A second review of the product by the same buyer
// is rejected.
func (r *ReviewRepository) Create(_ context.Context, rv *domain.Review) error {
	return r.h.do(func(st *state) error {
		for _, existing := range st.reviews {
			if existing.BuyerID == rv.BuyerID && existing.ProductID == rv.ProductID {
				return apperrors.DuplicateReview(rv.ProductID)
			}
		}
		st.reviews[rv.ID] = copyReview(*rv)
		return nil
	})
}

// GetByID returns a copy of a review.
func (r *ReviewRepository) GetByID(_ context.Context, id string) (*domain.Review, error) {
	var out domain.Review
	err := r.h.do(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok {
			return apperrors.NotFound("review", id)
		}
		out = copyReview(rv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update writes the buyer-editable fields of a review.
func (r *ReviewRepository) Update(_ context.Context, rv *domain.Review) error {
	return r.h.do(func(st *state) error {
		cur, ok := st.reviews[rv.ID]
		if !ok {
			return apperrors.NotFound("review", rv.ID)
		}
		cur.Rating = rv.Rating
		cur.Title = rv.Title
		cur.Comment = rv.Comment
		cur.UpdatedAt = rv.UpdatedAt
		st.reviews[rv.ID] = cur
		return nil
	})
}

// Delete removes a review.
func (r *ReviewRepository) Delete(_ context.Context, id string) error {
	return r.h.do(func(st *state) error {
		if _, ok := st.reviews[id]; !ok {
			return apperrors.NotFound("review", id)
		}
		delete(st.reviews, id)
		return nil
	})
}

// ExistsForBuyer reports whether the buyer already reviewed the product.
func (r *ReviewRepository) ExistsForBuyer(_ context.Context, buyerID, productID string) (bool, error) {
	var exists bool
	err := r.h.do(func(st *state) error {
		for _, rv := range st.reviews {
			if rv.BuyerID == buyerID && rv.ProductID == productID {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

// ListByProduct returns one page of a product's reviews, newest first, with
// the total count.
func (r *ReviewRepository) ListByProduct(_ context.Context, productID string, pageNum, perPage int) ([]domain.Review, int, error) {
	var matched []domain.Review
	err := r.h.do(func(st *state) error {
		for _, rv := range st.reviews {
			if rv.ProductID == productID {
				rv := copyReview(rv)
				rv.Reports = nil
				matched = append(matched, rv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	newestFirst(matched,
		func(rv domain.Review) int64 { return rv.CreatedAt.UnixNano() },
		func(rv domain.Review) string { return rv.ID })
	return page(matched, pageNum, perPage), len(matched), nil
}

// Ratings returns every rating given to a product.
func (r *ReviewRepository) Ratings(_ context.Context, productID string) ([]int, error) {
	ratings := make([]int, 0)
	err := r.h.do(func(st *state) error {
		for _, rv := range st.reviews {
			if rv.ProductID == productID {
				ratings = append(ratings, rv.Rating)
			}
		}
		return nil
	})
	return ratings, err
}

// AddReport appends a report. Each user may report a review once.
func (r *ReviewRepository) AddReport(_ context.Context, reviewID string, rep domain.ReviewReport) error {
	return r.h.do(func(st *state) error {
		rv, ok := st.reviews[reviewID]
		if !ok {
			return apperrors.NotFound("review", reviewID)
		}
		if rv.ReportedBy(rep.ReporterID) {
			return apperrors.AlreadyReported(reviewID)
		}
		rv = copyReview(rv)
		rv.Reports = append(rv.Reports, rep)
		st.reviews[reviewID] = rv
		return nil
	})
}

// SetResponse stores the seller's response to a review.
func (r *ReviewRepository) SetResponse(_ context.Context, reviewID string, resp domain.SellerResponse) error {
	return r.h.do(func(st *state) error {
		rv, ok := st.reviews[reviewID]
		if !ok {
			return apperrors.NotFound("review", reviewID)
		}
		rv.Response = &resp
		rv.UpdatedAt = resp.RespondedAt
		st.reviews[reviewID] = rv
		return nil
	})
}
