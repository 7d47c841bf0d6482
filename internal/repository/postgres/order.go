package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/database"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, buyer_id, status, payment_status, payment_method, subtotal_amount, total_amount, currency,
	shipping_address, reason, carrier, tracking_number, shipped_at, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row, extra ...any) (*domain.Order, error) {
	var (
		o                            domain.Order
		status, payStatus, payMethod string
		shippingJSON                 []byte
	)
	dest := []any{
		&o.ID, &o.BuyerID, &status, &payStatus, &payMethod,
		&o.SubtotalAmount, &o.TotalAmount, &o.Currency, &shippingJSON, &o.Reason,
		&o.Tracking.Carrier, &o.Tracking.TrackingNumber, &o.Tracking.ShippedAt,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payStatus)
	o.PaymentMethod = domain.PaymentMethod(payMethod)
	if len(shippingJSON) > 0 && string(shippingJSON) != "null" {
		if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	return &o, nil
}

// Create inserts the order row and its items. Callers wrap it in a
// transaction together with the stock decrements.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	orderQuery := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	ctx, end := database.TraceQuery(ctx, "orders.Create", orderQuery)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, orderQuery,
		o.ID, o.BuyerID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.SubtotalAmount, o.TotalAmount, o.Currency, shippingJSON, o.Reason,
		o.Tracking.Carrier, o.Tracking.TrackingNumber, o.Tracking.ShippedAt,
		o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, seller_id, product_name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, item := range o.Items {
		_, err = r.db.Exec(ctx, itemQuery,
			item.ID, item.OrderID, item.ProductID, item.SellerID,
			item.ProductName, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUpdate retrieves an order and locks its row for the surrounding
// transaction.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (_ *domain.Order, err error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	ctx, end := database.TraceQuery(ctx, "orders.GetForUpdate", query)
	defer func() { end(err) }()

	return r.get(ctx, query, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "order", id)
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return o, nil
}

// List returns orders matching the filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.BuyerID != nil {
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argIndex))
		args = append(args, *filter.BuyerID)
		argIndex++
	}
	if filter.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.seller_id = $%d)", argIndex))
		args = append(args, *filter.SellerID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	limit, offset := limitOffset(filter.Page, filter.PerPage)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var total int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus writes the status change only if the row still holds from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *domain.Order, from domain.OrderStatus) (err error) {
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, reason = $3, delivered_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7`
	ctx, end := database.TraceQuery(ctx, "orders.UpdateStatus", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		string(o.Status), string(o.PaymentStatus), o.Reason, o.DeliveredAt, o.UpdatedAt,
		o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict(fmt.Sprintf("order %s is no longer %s", o.ID, from))
	}
	return nil
}

// UpdateTracking sets carrier metadata.
func (r *OrderRepository) UpdateTracking(ctx context.Context, id string, t domain.Tracking) error {
	query := `
		UPDATE orders
		SET carrier = $1, tracking_number = $2, shipped_at = $3, updated_at = $4
		WHERE id = $5`

	ct, err := r.db.Exec(ctx, query, t.Carrier, t.TrackingNumber, t.ShippedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order tracking: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

// ListDeliveredBefore returns delivered orders awaiting auto-completion.
func (r *OrderRepository) ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'delivered' AND delivered_at < $1
		ORDER BY delivered_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivered orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	byOrder, err := r.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		if items, ok := byOrder[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return nil
}

// loadItems batch-loads items for several orders, grouped by order id.
func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, seller_id, product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SellerID,
			&item.ProductName, &item.UnitPrice, &item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}
	return out, nil
}
