// Package search defines the product search index behind GET /products?q=.
// Only active listings are indexed; the store stays the source of truth.
package search

import (
	"context"
	"time"

	"github.com/gule/marketplace/internal/domain"
)

// Engine defines the interface for the product search backends.
type Engine interface {
	// Index adds or replaces a single listing.
	Index(ctx context.Context, doc *Document) error

	// Delete removes a listing. Deleting an absent listing is not an error.
	Delete(ctx context.Context, id string) error

	// Search returns listing ids matching the query, best match first.
	Search(ctx context.Context, q *Query) (*Result, error)

	// BulkIndex adds or replaces many listings in one round trip.
	BulkIndex(ctx context.Context, docs []Document) error
}

// Document is a listing as stored in the index.
type Document struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDocument builds the index document for a product.
func NewDocument(p *domain.Product) Document {
	return Document{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Currency:    p.Currency,
		CreatedAt:   p.CreatedAt,
	}
}

// Query holds the parameters of a search request. Page and PerPage are
// expected to be clamped by the caller.
type Query struct {
	Text     string
	SellerID string
	Page     int
	PerPage  int
}

// Result is one page of matching listing ids.
type Result struct {
	IDs   []string
	Total int
}
