package domain

import (
	"math"
	"time"
)

// Review is a buyer's rating of a product bought in a specific order.
type Review struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	OrderID   string          `json:"order_id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	Rating    int             `json:"rating"`
	Title     string          `json:"title"`
	Comment   string          `json:"comment"`
	Response  *SellerResponse `json:"seller_response,omitempty"`
	Reports   []ReviewReport  `json:"reports,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SellerResponse is the product seller's public reply.
type SellerResponse struct {
	Text        string    `json:"text"`
	RespondedAt time.Time `json:"responded_at"`
}

// ReviewReport flags a review for moderation.
type ReviewReport struct {
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportedBy reports whether reporterID already flagged the review.
func (r *Review) ReportedBy(reporterID string) bool {
	for _, rep := range r.Reports {
		if rep.ReporterID == reporterID {
			return true
		}
	}
	return false
}

// Reviewable reports whether an order in status s entitles its buyer to review.
func Reviewable(s OrderStatus) bool {
	return s == OrderDelivered || s == OrderCompleted
}

// ReviewSummary contains aggregate review statistics for a product.
type ReviewSummary struct {
	AverageRating float64 `json:"average_rating"`
	TotalCount    int     `json:"total_count"`
}

// RollupRating averages ratings rounded to one decimal.
func RollupRating(ratings []int) ReviewSummary {
	if len(ratings) == 0 {
		return ReviewSummary{}
	}
	var sum int
	for _, r := range ratings {
		sum += r
	}
	avg := float64(sum) / float64(len(ratings))
	return ReviewSummary{
		AverageRating: math.Round(avg*10) / 10,
		TotalCount:    len(ratings),
	}
}
