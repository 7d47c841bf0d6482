package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/search"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// reindexBatch is the page size Reindex reads and bulk indexes.
const reindexBatch = 100

// ProductService implements listings, moderation and stock adjustment.
type ProductService struct {
	store  repository.Store
	index  search.Engine
	audit  audit.Recorder
	logger *slog.Logger
}

// NewProductService creates a new product service. A nil index leaves text
// search to the store.
func NewProductService(store repository.Store, index search.Engine, rec audit.Recorder, logger *slog.Logger) *ProductService {
	return &ProductService{store: store, index: index, audit: rec, logger: logger}
}

// CreateProductInput holds the parameters for a new listing.
type CreateProductInput struct {
	Name        string `json:"name" validate:"notblank,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Price       int64  `json:"price" validate:"gt=0,lte=1000000000000"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Stock       int    `json:"stock" validate:"gte=0,lte=1000000"`
}

// CreateProduct lists a product for moderation.
func (s *ProductService) CreateProduct(ctx context.Context, actor domain.Actor, in CreateProductInput) (*domain.Product, error) {
	if !actor.IsSeller() {
		return nil, apperrors.Forbidden("only sellers can list products")
	}
	if err := validate(&in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:          uuid.NewString(),
		SellerID:    actor.ID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Currency:    strings.ToUpper(in.Currency),
		Stock:       in.Stock,
		Status:      domain.ProductPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Products().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.syncIndex(ctx, p)

	record(ctx, s.audit, actor, domain.ActionProductCreated, domain.ResourceProduct, p.ID, map[string]any{
		"price": p.Price,
		"stock": p.Stock,
	})
	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", p.ID),
		slog.String("seller_id", p.SellerID),
	)
	return p, nil
}

// GetProduct returns a product. Listings that are not active are visible
// only to their seller and admins.
func (s *ProductService) GetProduct(ctx context.Context, actor *domain.Actor, id string) (*domain.Product, error) {
	p, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !p.IsActive() && !canManage(actor, p) {
		return nil, apperrors.NotFound("product", id)
	}
	return p, nil
}

func canManage(actor *domain.Actor, p *domain.Product) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || (actor.IsSeller() && actor.ID == p.SellerID)
}

// ListProductsInput filters ListProducts.
type ListProductsInput struct {
	SellerID string
	Status   string
	Search   string
	Page     int
	PerPage  int
}

// ListProducts lists products. The public sees active listings only; a
// seller filtering on themselves and admins may see any status.
func (s *ProductService) ListProducts(ctx context.Context, actor *domain.Actor, in ListProductsInput) ([]domain.Product, int, error) {
	p := clampPage(in.Page, in.PerPage)
	f := repository.ProductFilter{Search: strings.TrimSpace(in.Search), Page: p.Page, PerPage: p.PerPage}
	if in.SellerID != "" {
		f.SellerID = &in.SellerID
	}

	privileged := actor != nil && (actor.IsAdmin() || (actor.IsSeller() && in.SellerID == actor.ID))
	switch {
	case !privileged:
		active := domain.ProductActive
		f.Status = &active
	case in.Status != "":
		st := domain.ProductStatus(in.Status)
		if !st.Valid() {
			return nil, 0, fieldError("status", "is not a valid product status")
		}
		f.Status = &st
	}

	if s.index != nil && f.Search != "" && !privileged {
		products, total, err := s.searchIndex(ctx, f)
		if err == nil {
			return products, total, nil
		}
		s.logger.WarnContext(ctx, "search index unavailable, falling back to store",
			slog.String("error", err.Error()),
		)
	}

	products, total, err := s.store.Products().List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// searchIndex answers a public text search from the index and loads the
// hits from the store. Hits the store no longer shows as active are
// dropped from the page and from the index.
func (s *ProductService) searchIndex(ctx context.Context, f repository.ProductFilter) ([]domain.Product, int, error) {
	q := &search.Query{Text: f.Search, Page: f.Page, PerPage: f.PerPage}
	if f.SellerID != nil {
		q.SellerID = *f.SellerID
	}
	res, err := s.index.Search(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}

	found, err := s.store.Products().GetByIDs(ctx, res.IDs)
	if err != nil {
		return nil, 0, fmt.Errorf("load search hits: %w", err)
	}

	total := res.Total
	products := make([]domain.Product, 0, len(res.IDs))
	for _, id := range res.IDs {
		p, ok := found[id]
		if !ok || !p.IsActive() {
			total--
			s.unindex(ctx, id)
			continue
		}
		products = append(products, *p)
	}
	return products, max(total, 0), nil
}

// syncIndex mirrors a product into the search index: active listings are
// indexed, everything else is removed. Index failures are logged only; the
// store stays authoritative and Reindex repairs drift.
func (s *ProductService) syncIndex(ctx context.Context, p *domain.Product) {
	if s.index == nil {
		return
	}
	if !p.IsActive() {
		s.unindex(ctx, p.ID)
		return
	}
	doc := search.NewDocument(p)
	if err := s.index.Index(ctx, &doc); err != nil {
		s.logger.WarnContext(ctx, "failed to index product",
			slog.String("product_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProductService) unindex(ctx context.Context, id string) {
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to remove product from index",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Reindex bulk loads every active listing into the search index and returns
// how many were sent. It runs at startup so the index catches up with
// changes it missed, such as listings suspended with their seller.
func (s *ProductService) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	active := domain.ProductActive
	indexed := 0
	for page := 1; ; page++ {
		products, total, err := s.store.Products().List(ctx, repository.ProductFilter{
			Status:  &active,
			Page:    page,
			PerPage: reindexBatch,
		})
		if err != nil {
			return indexed, fmt.Errorf("list products for reindex: %w", err)
		}
		if len(products) == 0 {
			break
		}

		docs := make([]search.Document, 0, len(products))
		for i := range products {
			docs = append(docs, search.NewDocument(&products[i]))
		}
		if err := s.index.BulkIndex(ctx, docs); err != nil {
			return indexed, fmt.Errorf("bulk index products: %w", err)
		}
		indexed += len(docs)
		if page*reindexBatch >= total {
			break
		}
	}

	s.logger.InfoContext(ctx, "search index rebuilt", slog.Int("products", indexed))
	return indexed, nil
}

// UpdateProductInput changes seller-editable fields.
type UpdateProductInput struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Price       *int64  `json:"price" validate:"omitempty,gt=0,lte=1000000000000"`
}

// UpdateProduct edits the owner's listing. Stock goes through AdjustStock.
func (s *ProductService) UpdateProduct(ctx context.Context, actor domain.Actor, id string, in UpdateProductInput) (*domain.Product, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	p, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !actor.IsSeller() || p.SellerID != actor.ID {
		return nil, apperrors.Forbidden("you can only edit your own products")
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.Products().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.logger.InfoContext(ctx, "product updated", slog.String("product_id", p.ID))

	// Status or stock may have moved since the read.
	fresh, err := s.store.Products().GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	s.syncIndex(ctx, fresh)
	return fresh, nil
}

// ModerateProduct moves a listing through approval and suspension.
func (s *ProductService) ModerateProduct(ctx context.Context, actor domain.Actor, id string, status domain.ProductStatus, reason string) (*domain.Product, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can moderate products")
	}
	if !status.Valid() {
		return nil, fieldError("status", "is not a valid product status")
	}
	p, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	from := p.Status
	if !from.CanTransitionTo(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cannot move product from %s to %s", from, status))
	}
	if err := s.store.Products().UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update product status: %w", err)
	}
	p.Status = status
	s.syncIndex(ctx, p)

	record(ctx, s.audit, actor, domain.ActionProductStatus, domain.ResourceProduct, id, map[string]any{
		"from":   string(from),
		"to":     string(status),
		"reason": reason,
	})
	s.logger.InfoContext(ctx, "product moderated",
		slog.String("product_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(status)),
	)
	return p, nil
}

// AdjustStock adds delta to a product's stock. The owning seller and admins
// may adjust; stock never goes below zero.
func (s *ProductService) AdjustStock(ctx context.Context, actor domain.Actor, id string, delta int, reason string) (*domain.Product, error) {
	if delta == 0 {
		return nil, fieldError("delta", "must not be zero")
	}
	p, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !canManage(&actor, p) {
		return nil, apperrors.Forbidden("you can only adjust stock of your own products")
	}

	stock, err := s.store.Products().AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	p.Stock = stock

	record(ctx, s.audit, actor, domain.ActionProductStockAdjust, domain.ResourceProduct, id, map[string]any{
		"delta":  delta,
		"stock":  stock,
		"reason": reason,
	})
	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("product_id", id),
		slog.Int("delta", delta),
		slog.Int("stock", stock),
	)
	return p, nil
}
