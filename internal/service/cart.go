package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// MaxCartLines caps the number of distinct products in a cart.
const MaxCartLines = 50

// CartService manages Redis carts and turns them into orders.
type CartService struct {
	carts  repository.CartRepository
	store  repository.Store
	orders *OrderService
	logger *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(carts repository.CartRepository, store repository.Store, orders *OrderService, logger *slog.Logger) *CartService {
	return &CartService{carts: carts, store: store, orders: orders, logger: logger}
}

// CartLine is a cart item priced at the product's current price.
type CartLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
	Available   bool   `json:"available"`
}

// CartView is the priced cart returned to buyers. Totals cover available
// lines only.
type CartView struct {
	BuyerID   string     `json:"buyer_id"`
	Items     []CartLine `json:"items"`
	Total     int64      `json:"total"`
	Currency  string     `json:"currency,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// GetCart returns the buyer's priced cart.
func (s *CartService) GetCart(ctx context.Context, buyerID string) (*CartView, error) {
	cart, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// CartItemInput adds or sets a cart line.
type CartItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
}

// AddItem adds quantity of a product to the cart, merging with an existing
// line.
func (s *CartService) AddItem(ctx context.Context, buyerID string, in CartItemInput) (*CartView, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if cart.Quantity(in.ProductID) == 0 && len(cart.Items) >= MaxCartLines {
		return nil, apperrors.InvalidInput(fmt.Sprintf("a cart holds at most %d products", MaxCartLines))
	}

	want := cart.Quantity(in.ProductID) + in.Quantity
	if err := s.checkAvailable(ctx, in.ProductID, want); err != nil {
		return nil, err
	}
	cart.AddItem(in.ProductID, in.Quantity)
	return s.save(ctx, cart)
}

// SetItemQuantity replaces the quantity of a line. Zero removes it.
func (s *CartService) SetItemQuantity(ctx context.Context, buyerID, productID string, quantity int) (*CartView, error) {
	if quantity < 0 || quantity > domain.MaxCartQuantity {
		return nil, fieldError("quantity", fmt.Sprintf("must be between 0 and %d", domain.MaxCartQuantity))
	}
	cart, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if cart.Quantity(productID) == 0 {
		return nil, apperrors.NotFound("cart item", productID)
	}
	if quantity > 0 {
		if err := s.checkAvailable(ctx, productID, quantity); err != nil {
			return nil, err
		}
	}
	cart.SetQuantity(productID, quantity)
	return s.save(ctx, cart)
}

// RemoveItem drops a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, buyerID, productID string) (*CartView, error) {
	cart, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !cart.RemoveItem(productID) {
		return nil, apperrors.NotFound("cart item", productID)
	}
	return s.save(ctx, cart)
}

// ClearCart deletes the buyer's cart.
func (s *CartService) ClearCart(ctx context.Context, buyerID string) error {
	if err := s.carts.Delete(ctx, buyerID); err != nil {
		return apperrors.ServiceUnavailable("cart store unavailable", err)
	}
	return nil
}

// CheckoutInput carries what the cart does not know.
type CheckoutInput struct {
	ShippingAddress domain.Address       `json:"shipping_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
}

// Checkout places an order for the whole cart and clears it. The
// idempotency key has the same meaning as for direct order placement.
func (s *CartService) Checkout(ctx context.Context, buyerID, idempotencyKey string, in CheckoutInput) (*domain.Order, bool, error) {
	cart, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, false, err
	}

	input := CreateOrderInput{
		BuyerID:         buyerID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
	}
	for _, it := range cart.Items {
		input.Items = append(input.Items, OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if len(input.Items) == 0 && idempotencyKey == "" {
		return nil, false, apperrors.InvalidInput("cart is empty")
	}

	order, replayed, err := s.orders.CreateOrderOnce(ctx, idempotencyKey, input)
	if err != nil {
		return nil, false, err
	}
	if !replayed {
		if err := s.carts.Delete(ctx, buyerID); err != nil {
			logDropped(ctx, s.logger, "clear cart after checkout", err, slog.String("order_id", order.ID))
		}
	}
	return order, replayed, nil
}

func (s *CartService) load(ctx context.Context, buyerID string) (*domain.Cart, error) {
	if buyerID == "" {
		return nil, apperrors.Unauthorized("buyer is required")
	}
	cart, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		return nil, apperrors.ServiceUnavailable("cart store unavailable", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, apperrors.ServiceUnavailable("cart store unavailable", err)
	}
	return s.view(ctx, cart)
}

func (s *CartService) checkAvailable(ctx context.Context, productID string, quantity int) error {
	if quantity > domain.MaxCartQuantity {
		return fieldError("quantity", fmt.Sprintf("a cart line holds at most %d units", domain.MaxCartQuantity))
	}
	p, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if !p.IsActive() {
		return fieldError("product_id", "product is not available")
	}
	if p.Stock < quantity {
		return apperrors.InsufficientStock(productID, quantity, p.Stock)
	}
	return nil
}

func (s *CartService) view(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	v := &CartView{BuyerID: cart.BuyerID, Items: []CartLine{}, UpdatedAt: cart.UpdatedAt}
	if len(cart.Items) == 0 {
		return v, nil
	}

	ids := make([]string, len(cart.Items))
	for i, it := range cart.Items {
		ids[i] = it.ProductID
	}
	products, err := s.store.Products().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	for _, it := range cart.Items {
		line := CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
		if p, ok := products[it.ProductID]; ok {
			line.ProductName = p.Name
			line.UnitPrice = p.Price
			line.Currency = p.Currency
			line.LineTotal = p.Price * int64(it.Quantity)
			line.Available = p.IsActive() && p.Stock >= it.Quantity
		}
		if line.Available {
			v.Total += line.LineTotal
			if v.Currency == "" {
				v.Currency = line.Currency
			}
		}
		v.Items = append(v.Items, line)
	}
	return v, nil
}
