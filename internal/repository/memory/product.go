package memory

import (
	"context"
	"strings"
	"time"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// ProductRepository implements repository.ProductRepository in memory.
type ProductRepository struct {
	h handle
}

// Create stores a new product.
func (r *ProductRepository) Create(_ context.Context, p *domain.Product) error {
	return r.h.do(func(st *state) error {
		st.products[p.ID] = *p
		return nil
	})
}

// GetByID returns a product by its ID.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	var out domain.Product
	err := r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperrors.NotFound("product", id)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no extra locking: transactions already run one at a time.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

// GetByIDs returns the products found among ids, keyed by ID.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	err := r.h.do(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				p := p
				out[id] = &p
			}
		}
		return nil
	})
	return out, err
}

// List returns products matching the filter, newest first, with the total
// count. Search matches the name case-insensitively.
func (r *ProductRepository) List(_ context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	var matched []domain.Product
	err := r.h.do(func(st *state) error {
		search := strings.ToLower(filter.Search)
		for _, p := range st.products {
			if filter.SellerID != nil && p.SellerID != *filter.SellerID {
				continue
			}
			if filter.Status != nil && p.Status != *filter.Status {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
				continue
			}
			matched = append(matched, p)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	newestFirst(matched,
		func(p domain.Product) int64 { return p.CreatedAt.UnixNano() },
		func(p domain.Product) string { return p.ID })
	return page(matched, filter.Page, filter.PerPage), len(matched), nil
}

// Update writes the seller-editable fields and leaves status and stock alone.
func (r *ProductRepository) Update(_ context.Context, p *domain.Product) error {
	return r.h.do(func(st *state) error {
		cur, ok := st.products[p.ID]
		if !ok {
			return apperrors.NotFound("product", p.ID)
		}
		cur.Name = p.Name
		cur.Description = p.Description
		cur.Price = p.Price
		cur.Currency = p.Currency
		cur.UpdatedAt = p.UpdatedAt
		st.products[p.ID] = cur
		return nil
	})
}

// UpdateStatus sets a product's moderation status.
func (r *ProductRepository) UpdateStatus(_ context.Context, id string, status domain.ProductStatus) error {
	return r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperrors.NotFound("product", id)
		}
		p.Status = status
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}

// SuspendActiveBySeller suspends the seller's active products and returns
// how many changed.
func (r *ProductRepository) SuspendActiveBySeller(_ context.Context, sellerID string) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		now := time.Now().UTC()
		for id, p := range st.products {
			if p.SellerID == sellerID && p.Status == domain.ProductActive {
				p.Status = domain.ProductSuspended
				p.UpdatedAt = now
				st.products[id] = p
				n++
			}
		}
		return nil
	})
	return n, err
}

// DecrementStock mirrors the guarded UPDATE: missing, inactive and short
// products all fail the same way.
func (r *ProductRepository) DecrementStock(_ context.Context, id string, qty int) error {
	return r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok || p.Status != domain.ProductActive || p.Stock < qty {
			return apperrors.InsufficientStock(id, qty, -1)
		}
		p.Stock -= qty
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}

// AdjustStock adds delta to the stock and returns the new level. A delta
// that would take stock below zero fails with insufficient stock.
func (r *ProductRepository) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	var stock int
	err := r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperrors.NotFound("product", id)
		}
		if p.Stock+delta < 0 {
			return apperrors.InsufficientStock(id, -delta, p.Stock)
		}
		p.Stock += delta
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		stock = p.Stock
		return nil
	})
	return stock, err
}

// SetRating stores a product's rating rollup.
func (r *ProductRepository) SetRating(_ context.Context, id string, summary domain.ReviewSummary) error {
	return r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperrors.NotFound("product", id)
		}
		p.Rating = summary.AverageRating
		p.ReviewCount = summary.TotalCount
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}
