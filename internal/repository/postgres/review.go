package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/pkg/database"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, product_id, order_id, buyer_id, seller_id, rating, title, comment,
	seller_response, responded_at, created_at, updated_at`

func scanReview(row pgx.Row, extra ...any) (*domain.Review, error) {
	var (
		rv          domain.Review
		response    *string
		respondedAt *time.Time
	)
	dest := []any{
		&rv.ID, &rv.ProductID, &rv.OrderID, &rv.BuyerID, &rv.SellerID,
		&rv.Rating, &rv.Title, &rv.Comment, &response, &respondedAt,
		&rv.CreatedAt, &rv.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if response != nil && respondedAt != nil {
		rv.Response = &domain.SellerResponse{Text: *response, RespondedAt: *respondedAt}
	}
	return &rv, nil
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	query := `
		INSERT INTO reviews (id, product_id, order_id, buyer_id, seller_id, rating, title, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rv.ID, rv.ProductID, rv.OrderID, rv.BuyerID, rv.SellerID,
		rv.Rating, rv.Title, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "reviews_buyer_product_key") {
			return apperrors.DuplicateReview(rv.ProductID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review with its reports.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	rv, err := scanReview(r.db.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "review", id)
	}

	rows, err := r.db.Query(ctx,
		`SELECT reporter_id, reason, created_at FROM review_reports WHERE review_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("query review reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rep domain.ReviewReport
		if err := rows.Scan(&rep.ReporterID, &rep.Reason, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review report: %w", err)
		}
		rv.Reports = append(rv.Reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review reports: %w", err)
	}
	return rv, nil
}

// Update writes rating, title and comment.
func (r *ReviewRepository) Update(ctx context.Context, rv *domain.Review) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE reviews SET rating = $1, title = $2, comment = $3, updated_at = $4 WHERE id = $5`,
		rv.Rating, rv.Title, rv.Comment, rv.UpdatedAt, rv.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", rv.ID)
	}
	return nil
}

// Delete removes a review; its reports cascade.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ExistsForBuyer reports whether buyerID already reviewed productID.
func (r *ReviewRepository) ExistsForBuyer(ctx context.Context, buyerID, productID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE buyer_id = $1 AND product_id = $2)`,
		buyerID, productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing review: %w", err)
	}
	return exists, nil
}

// ListByProduct returns a page of a product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error) {
	limit, offset := limitOffset(page, perPage)

	query := `
		SELECT ` + reviewColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var total int
	reviews := make([]domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, total, nil
}

// Ratings returns every rating recorded for productID.
func (r *ReviewRepository) Ratings(ctx context.Context, productID string) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT rating FROM reviews WHERE product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

// AddReport appends a report; the primary key rejects repeats per reporter.
func (r *ReviewRepository) AddReport(ctx context.Context, reviewID string, rep domain.ReviewReport) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO review_reports (review_id, reporter_id, reason, created_at) VALUES ($1, $2, $3, $4)`,
		reviewID, rep.ReporterID, rep.Reason, rep.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "review_reports_pkey") {
			return apperrors.AlreadyReported(reviewID)
		}
		return fmt.Errorf("insert review report: %w", err)
	}
	return nil
}

// SetResponse stores the seller's reply, replacing any earlier one.
func (r *ReviewRepository) SetResponse(ctx context.Context, reviewID string, resp domain.SellerResponse) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE reviews SET seller_response = $1, responded_at = $2, updated_at = $2 WHERE id = $3`,
		resp.Text, resp.RespondedAt, reviewID,
	)
	if err != nil {
		return fmt.Errorf("set review response: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", reviewID)
	}
	return nil
}
