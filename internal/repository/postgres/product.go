package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/pkg/database"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, seller_id, name, description, price, currency, stock, status, rating, review_count, created_at, updated_at`

func scanProduct(row pgx.Row, extra ...any) (*domain.Product, error) {
	var (
		p      domain.Product
		status string
	)
	dest := []any{
		&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Price, &p.Currency,
		&p.Stock, &status, &p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Status = domain.ProductStatus(status)
	return &p, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.SellerID, p.Name, p.Description, p.Price, p.Currency,
		p.Stock, string(p.Status), p.Rating, p.ReviewCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

// GetForUpdate retrieves a product and locks its row for the surrounding
// transaction.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	ctx, end := database.TraceQuery(ctx, "products.GetForUpdate", query)
	defer func() { end(err) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

// GetByIDs loads products in one round trip.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return out, nil
}

// List returns products matching the filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", argIndex))
		args = append(args, *filter.SellerID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, argIndex, argIndex+1,
	)

	limit, offset := limitOffset(filter.Page, filter.PerPage)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var total int
	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, total, nil
}

// Update writes name, description, price, currency and status.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, currency = $4, updated_at = $5
		WHERE id = $6`

	ct, err := r.db.Exec(ctx, query,
		p.Name, p.Description, p.Price, p.Currency, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}
	return nil
}

// UpdateStatus sets the moderation status.
func (r *ProductRepository) UpdateStatus(ctx context.Context, id string, status domain.ProductStatus) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update product status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// SuspendActiveBySeller suspends all of a seller's active products.
func (r *ProductRepository) SuspendActiveBySeller(ctx context.Context, sellerID string) (int64, error) {
	ct, err := r.db.Exec(ctx,
		`UPDATE products SET status = 'suspended', updated_at = $1 WHERE seller_id = $2 AND status = 'active'`,
		time.Now().UTC(), sellerID,
	)
	if err != nil {
		return 0, fmt.Errorf("suspend seller products: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DecrementStock is the single guarded statement that reserves stock. Zero
// affected rows means another checkout got there first, the product is not
// active or it does not exist.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (err error) {
	query := `
		UPDATE products
		SET stock = stock - $1, updated_at = $2
		WHERE id = $3 AND status = 'active' AND stock >= $1`
	ctx, end := database.TraceQuery(ctx, "products.DecrementStock", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.InsufficientStock(id, qty, -1)
	}
	return nil
}

// AdjustStock applies a signed delta, refusing to go below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (_ int, err error) {
	query := `
		UPDATE products
		SET stock = stock + $1, updated_at = $2
		WHERE id = $3 AND stock + $1 >= 0
		RETURNING stock`
	ctx, end := database.TraceQuery(ctx, "products.AdjustStock", query)
	defer func() { end(err) }()

	var stock int
	err = r.db.QueryRow(ctx, query, delta, time.Now().UTC(), id).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	// Distinguish a missing product from a refused decrement.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return 0, getErr
	}
	return 0, apperrors.InsufficientStock(id, -delta, -1)
}

// SetRating stores the rollup.
func (r *ProductRepository) SetRating(ctx context.Context, id string, summary domain.ReviewSummary) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE products SET rating = $1, review_count = $2, updated_at = $3 WHERE id = $4`,
		summary.AverageRating, summary.TotalCount, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set product rating: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}
