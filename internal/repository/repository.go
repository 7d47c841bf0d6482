// Package repository defines the persistence ports of the marketplace.
// Postgres and in-memory implementations live in sub-packages; carts and
// checkout idempotency keys live in Redis.
package repository

import (
	"context"
	"time"

	"github.com/gule/marketplace/internal/domain"
)

// Store groups the transactional repositories. Repositories returned by a
// Store passed to InTx's callback run inside that transaction.
type Store interface {
	Accounts() AccountRepository
	Products() ProductRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Audit() AuditRepository

	// InTx runs fn atomically. An error from fn rolls back every write made
	// through the transactional Store and is returned unchanged. Nested
	// calls join the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

// AccountRepository persists accounts.
type AccountRepository interface {
	// Create inserts an account. A taken email returns apperrors.ErrAlreadyExists.
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error
}

// ProductFilter defines filter criteria for listing products.
type ProductFilter struct {
	SellerID *string
	Status   *domain.ProductStatus
	Search   string
	Page     int
	PerPage  int
}

// ProductRepository persists products and owns every stock mutation.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetByIDs loads several products keyed by id. Missing ids are absent
	// from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error)

	// GetForUpdate loads a product and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Product, error)

	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)

	// Update writes the seller-editable fields. Status and stock are left
	// alone; UpdateStatus and the stock methods own them.
	Update(ctx context.Context, p *domain.Product) error
	UpdateStatus(ctx context.Context, id string, status domain.ProductStatus) error

	// SuspendActiveBySeller suspends every active product of sellerID and
	// returns how many changed.
	SuspendActiveBySeller(ctx context.Context, sellerID string) (int64, error)

	// DecrementStock removes qty units from an active product only if at
	// least qty are on hand. Otherwise it returns apperrors.ErrInsufficientStock.
	DecrementStock(ctx context.Context, id string, qty int) error

	// AdjustStock adds delta (possibly negative) to stock and returns the new
	// level. A change that would go below zero returns
	// apperrors.ErrInsufficientStock.
	AdjustStock(ctx context.Context, id string, delta int) (int, error)

	// SetRating stores a recomputed rating rollup.
	SetRating(ctx context.Context, id string, summary domain.ReviewSummary) error
}

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	BuyerID  *string
	SellerID *string
	Status   *domain.OrderStatus
	Page     int
	PerPage  int
}

// OrderRepository persists orders and their line items.
type OrderRepository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetForUpdate loads an order and locks its row until the transaction
	// ends, serializing status transitions.
	GetForUpdate(ctx context.Context, id string) (*domain.Order, error)

	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus writes o's status, payment status, reason, delivered_at
	// and updated_at, provided the stored status still equals from.
	// Otherwise it returns apperrors.ErrConflict.
	UpdateStatus(ctx context.Context, o *domain.Order, from domain.OrderStatus) error

	UpdateTracking(ctx context.Context, id string, tracking domain.Tracking) error

	// ListDeliveredBefore returns up to limit delivered orders whose
	// delivered_at precedes cutoff, oldest first.
	ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// ReviewRepository persists reviews, reports and seller responses.
type ReviewRepository interface {
	// Create inserts a review. A second review by the same buyer for the
	// same product returns apperrors.ErrAlreadyExists.
	Create(ctx context.Context, r *domain.Review) error
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	Update(ctx context.Context, r *domain.Review) error
	Delete(ctx context.Context, id string) error
	ExistsForBuyer(ctx context.Context, buyerID, productID string) (bool, error)
	ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error)

	// Ratings returns every rating of productID.
	Ratings(ctx context.Context, productID string) ([]int, error)

	// AddReport appends a report. A repeat by the same reporter returns
	// apperrors.ErrAlreadyExists and changes nothing.
	AddReport(ctx context.Context, reviewID string, report domain.ReviewReport) error

	SetResponse(ctx context.Context, reviewID string, resp domain.SellerResponse) error
}

// AuditFilter defines filter criteria for listing audit entries.
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	ActorID      string
	Page         int
	PerPage      int
}

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, int, error)
}

// CartRepository stores carts outside the transactional store.
type CartRepository interface {
	// Get returns the buyer's cart, or an empty cart when none is stored.
	Get(ctx context.Context, buyerID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, buyerID string) error
}

// IdempotencyStore deduplicates checkouts by client-supplied key.
type IdempotencyStore interface {
	// Claim reserves key. When the key is already taken it returns the
	// order id recorded by Complete, or "" while the first request is still
	// in flight.
	Claim(ctx context.Context, key string) (claimed bool, orderID string, err error)

	// Complete records the order created under a claimed key.
	Complete(ctx context.Context, key, orderID string) error

	// Release frees a claim whose checkout failed so the client may retry.
	Release(ctx context.Context, key string) error
}
