package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// OrderRepository implements repository.OrderRepository in memory.
type OrderRepository struct {
	h handle
}

// Create stores an order with its items.
func (r *OrderRepository) Create(_ context.Context, o *domain.Order) error {
	return r.h.do(func(st *state) error {
		if _, exists := st.orders[o.ID]; exists {
			return apperrors.AlreadyExists("order", "id", o.ID)
		}
		st.orders[o.ID] = copyOrder(*o)
		return nil
	})
}

// GetByID returns a copy of an order, items included.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	var out domain.Order
	err := r.h.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return apperrors.NotFound("order", id)
		}
		out = copyOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is GetByID. Transactions already hold the store lock.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

// List returns orders matching the filter, newest first, with the total count.
func (r *OrderRepository) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var matched []domain.Order
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
				continue
			}
			if filter.SellerID != nil && !o.HasSeller(*filter.SellerID) {
				continue
			}
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			matched = append(matched, copyOrder(o))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	newestFirst(matched,
		func(o domain.Order) int64 { return o.CreatedAt.UnixNano() },
		func(o domain.Order) string { return o.ID })
	return page(matched, filter.Page, filter.PerPage), len(matched), nil
}

// UpdateStatus writes the status, payment status, reason and delivery time,
// failing with a conflict unless the order is still in from.
func (r *OrderRepository) UpdateStatus(_ context.Context, o *domain.Order, from domain.OrderStatus) error {
	return r.h.do(func(st *state) error {
		cur, ok := st.orders[o.ID]
		if !ok || cur.Status != from {
			return apperrors.Conflict(fmt.Sprintf("order %s is no longer %s", o.ID, from))
		}
		cur.Status = o.Status
		cur.PaymentStatus = o.PaymentStatus
		cur.Reason = o.Reason
		cur.DeliveredAt = o.DeliveredAt
		cur.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = cur
		return nil
	})
}

// UpdateTracking replaces an order's shipment tracking.
func (r *OrderRepository) UpdateTracking(_ context.Context, id string, t domain.Tracking) error {
	return r.h.do(func(st *state) error {
		cur, ok := st.orders[id]
		if !ok {
			return apperrors.NotFound("order", id)
		}
		cur.Tracking = t
		cur.UpdatedAt = time.Now().UTC()
		st.orders[id] = cur
		return nil
	})
}

// ListDeliveredBefore returns up to limit delivered orders older than
// cutoff, oldest delivery first.
func (r *OrderRepository) ListDeliveredBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	var matched []domain.Order
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if o.Status == domain.OrderDelivered && o.DeliveredAt != nil && o.DeliveredAt.Before(cutoff) {
				matched = append(matched, copyOrder(o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].DeliveredAt.Before(*matched[j].DeliveredAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
