package domain

import "time"

// ProductStatus is the moderation state of a listing.
type ProductStatus string

const (
	ProductPending   ProductStatus = "pending"
	ProductActive    ProductStatus = "active"
	ProductSuspended ProductStatus = "suspended"
	ProductRejected  ProductStatus = "rejected"
)

// productTransitions lists admin moderation moves.
var productTransitions = map[ProductStatus][]ProductStatus{
	ProductPending:   {ProductActive, ProductRejected},
	ProductActive:    {ProductSuspended},
	ProductSuspended: {ProductActive},
	ProductRejected:  {ProductActive},
}

// Valid reports whether s is a known product status.
func (s ProductStatus) Valid() bool {
	_, ok := productTransitions[s]
	return ok
}

// CanTransitionTo reports whether an admin may move a product from s to target.
func (s ProductStatus) CanTransitionTo(target ProductStatus) bool {
	for _, t := range productTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Product is a seller's listing. Price is in minor units of Currency.
type Product struct {
	ID          string        `json:"id"`
	SellerID    string        `json:"seller_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       int64         `json:"price"`
	Currency    string        `json:"currency"`
	Stock       int           `json:"stock"`
	Status      ProductStatus `json:"status"`
	Rating      float64       `json:"rating"`
	ReviewCount int           `json:"review_count"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsActive reports whether the product can be bought.
func (p *Product) IsActive() bool {
	return p.Status == ProductActive
}
