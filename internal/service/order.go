package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gule/marketplace/internal/audit"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/escrow"
	"github.com/gule/marketplace/internal/event"
	"github.com/gule/marketplace/internal/notify"
	"github.com/gule/marketplace/internal/repository"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

// autoCompleteBatch bounds one pass of AutoCompleteDelivered.
const autoCompleteBatch = 100

// Notifier queues outbound email. notify.Dispatcher implements it.
type Notifier interface {
	Enqueue(ctx context.Context, msg notify.Message) bool
}

// OrderDeps are the collaborators of OrderService. Idempotency, Metrics and
// Notifier may be nil.
type OrderDeps struct {
	Store       repository.Store
	Ledger      escrow.Ledger
	Events      event.Publisher
	Audit       audit.Recorder
	Notifier    Notifier
	Idempotency repository.IdempotencyStore
	Metrics     *Metrics
	Logger      *slog.Logger

	// RestockAfterShipment returns stock when a shipped or delivered order
	// is cancelled or refunded.
	RestockAfterShipment bool
}

// OrderService implements order placement and the order lifecycle.
type OrderService struct {
	store       repository.Store
	ledger      escrow.Ledger
	events      event.Publisher
	audit       audit.Recorder
	notifier    Notifier
	idempotency repository.IdempotencyStore
	metrics     *Metrics
	logger      *slog.Logger

	restockAfterShipment bool
	now                  func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(d OrderDeps) *OrderService {
	if d.Events == nil {
		d.Events = event.Nop{}
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	return &OrderService{
		store:                d.Store,
		ledger:               d.Ledger,
		events:               d.Events,
		audit:                d.Audit,
		notifier:             d.Notifier,
		idempotency:          d.Idempotency,
		metrics:              d.Metrics,
		logger:               d.Logger,
		restockAfterShipment: d.RestockAfterShipment,
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// OrderItemInput is one requested line. UnitPrice is accepted from clients
// but never used; prices come from the product.
type OrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
	UnitPrice *int64 `json:"unit_price,omitempty"`
}

// CreateOrderInput holds the parameters for placing an order.
type CreateOrderInput struct {
	BuyerID         string               `json:"-"`
	Items           []OrderItemInput     `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress domain.Address       `json:"shipping_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method" validate:"required,oneof=card bank_transfer wallet"`
}

// mergeItems sums quantities of repeated products, keeping first-seen order.
func mergeItems(items []OrderItemInput) []OrderItemInput {
	idx := make(map[string]int, len(items))
	out := make([]OrderItemInput, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// CreateOrder validates the request, snapshots product data and reserves
// stock for every line in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.BuyerID == "" {
		return nil, apperrors.Unauthorized("buyer is required")
	}
	if err := validate(&input); err != nil {
		return nil, err
	}
	lines := mergeItems(input.Items)

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.store.Products().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.NewString(),
		BuyerID:         input.BuyerID,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentHeld,
		PaymentMethod:   input.PaymentMethod,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.ShippingAddress.Country = strings.ToUpper(order.ShippingAddress.Country)

	for i, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperrors.NotFound("product", l.ProductID)
		}
		if !p.IsActive() {
			return nil, fieldError(fmt.Sprintf("items[%d].product_id", i), "product is not available")
		}
		if p.Stock < l.Quantity {
			s.metrics.stockConflict()
			return nil, apperrors.InsufficientStock(p.ID, l.Quantity, p.Stock)
		}
		if order.Currency == "" {
			order.Currency = p.Currency
		} else if order.Currency != p.Currency {
			return nil, apperrors.InvalidInput("all items of an order must share one currency")
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   p.ID,
			SellerID:    p.SellerID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
		})
	}
	if err := order.CalculateTotals(); err != nil {
		return nil, apperrors.InvalidInput("order total is too large")
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		for _, it := range order.Items {
			if err := tx.Products().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			s.metrics.stockConflict()
			s.logger.WarnContext(ctx, "stock reservation lost a race",
				slog.String("buyer_id", order.BuyerID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.orderCreated()
	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("buyer_id", order.BuyerID),
		slog.Int("items", len(order.Items)),
		slog.Int64("total_amount", order.TotalAmount),
	)

	buyer := domain.Actor{ID: order.BuyerID, Type: domain.AccountBuyer}
	record(ctx, s.audit, buyer, domain.ActionOrderCreated, domain.ResourceOrder, order.ID, map[string]any{
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"items":        len(order.Items),
	})
	if err := s.events.OrderCreated(ctx, order); err != nil {
		logDropped(ctx, s.logger, "publish order.created event", err, slog.String("order_id", order.ID))
	}
	s.notifyBuyer(ctx, order, notify.OrderConfirmation)

	return order, nil
}

// CreateOrderOnce places an order at most once per idempotency key. A
// repeated key returns the original order with replayed set; a repeat while
// the first request is still running is a conflict. An empty key, or no
// configured store, places the order unconditionally.
func (s *OrderService) CreateOrderOnce(ctx context.Context, key string, input CreateOrderInput) (order *domain.Order, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		order, err = s.CreateOrder(ctx, input)
		return order, false, err
	}
	if len(key) > 128 {
		return nil, false, apperrors.InvalidInput("Idempotency-Key must be at most 128 characters")
	}
	scoped := input.BuyerID + ":" + key

	claimed, orderID, err := s.idempotency.Claim(ctx, scoped)
	if err != nil {
		return nil, false, apperrors.ServiceUnavailable("idempotency store unavailable", err)
	}
	if !claimed {
		if orderID == "" {
			return nil, false, apperrors.Conflict("a request with this Idempotency-Key is still in progress")
		}
		order, err = s.store.Orders().GetByID(ctx, orderID)
		if err != nil {
			return nil, false, fmt.Errorf("load replayed order: %w", err)
		}
		s.logger.InfoContext(ctx, "checkout replayed", slog.String("order_id", orderID))
		return order, true, nil
	}

	order, err = s.CreateOrder(ctx, input)
	if err != nil {
		if rerr := s.idempotency.Release(ctx, scoped); rerr != nil {
			logDropped(ctx, s.logger, "release idempotency key", rerr)
		}
		return nil, false, err
	}
	if cerr := s.idempotency.Complete(ctx, scoped, order.ID); cerr != nil {
		logDropped(ctx, s.logger, "complete idempotency key", cerr, slog.String("order_id", order.ID))
	}
	return order, false, nil
}

// GetOrder returns an order the actor may see.
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	o, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !o.VisibleTo(actor) {
		return nil, apperrors.Forbidden("you do not have access to this order")
	}
	return o, nil
}

// ListOrdersInput filters ListOrders.
type ListOrdersInput struct {
	Status  string
	BuyerID string
	Page    int
	PerPage int
}

// ListOrders lists the actor's orders: buyers see their own, sellers see
// orders containing their items and admins see everything.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, in ListOrdersInput) ([]domain.Order, int, error) {
	p := clampPage(in.Page, in.PerPage)
	f := repository.OrderFilter{Page: p.Page, PerPage: p.PerPage}
	if in.Status != "" {
		st := domain.OrderStatus(in.Status)
		if !st.Valid() {
			return nil, 0, fieldError("status", "is not a valid order status")
		}
		f.Status = &st
	}

	switch actor.Type {
	case domain.AccountBuyer:
		f.BuyerID = &actor.ID
	case domain.AccountSeller:
		f.SellerID = &actor.ID
	case domain.AccountAdmin:
		if in.BuyerID != "" {
			f.BuyerID = &in.BuyerID
		}
	default:
		return nil, 0, apperrors.Forbidden("unknown account type")
	}

	orders, total, err := s.store.Orders().List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatusInput moves an order. Override lets an admin skip steps.
type UpdateStatusInput struct {
	Status   domain.OrderStatus `json:"status" validate:"required"`
	Reason   string             `json:"reason" validate:"max=500"`
	Override bool               `json:"override"`
}

// UpdateOrderStatus is the seller/admin status endpoint.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor domain.Actor, id string, in UpdateStatusInput) (*domain.Order, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, fieldError("status", "is not a valid order status")
	}
	switch {
	case actor.IsBuyer():
		return nil, apperrors.Forbidden("buyers cannot change order status")
	case in.Override && !actor.IsAdmin():
		return nil, apperrors.Forbidden("only admins may override the order workflow")
	}

	return s.transition(ctx, actor, id, in.Status, in.Reason, in.Override, func(o *domain.Order) error {
		if actor.IsSeller() && !o.HasSeller(actor.ID) {
			return apperrors.Forbidden("order does not contain your products")
		}
		return nil
	})
}

// CancelOrder cancels an order. Buyers may cancel their own orders until they
// are processed; sellers with items in the order and admins may cancel any
// open order.
func (s *OrderService) CancelOrder(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Order, error) {
	if len(reason) > 500 {
		return nil, fieldError("reason", "must be at most 500 characters")
	}
	return s.transition(ctx, actor, id, domain.OrderCancelled, reason, false, func(o *domain.Order) error {
		switch actor.Type {
		case domain.AccountBuyer:
			if o.BuyerID != actor.ID {
				return apperrors.Forbidden("you do not own this order")
			}
			if !o.Status.Terminal() && !o.Status.BuyerCancellable() {
				return apperrors.Conflict(fmt.Sprintf("order is already %s and can no longer be cancelled by the buyer", o.Status))
			}
		case domain.AccountSeller:
			if !o.HasSeller(actor.ID) {
				return apperrors.Forbidden("order does not contain your products")
			}
		}
		return nil
	})
}

// ConfirmReceipt lets the buyer complete a delivered order.
func (s *OrderService) ConfirmReceipt(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	return s.transition(ctx, actor, id, domain.OrderCompleted, "", false, func(o *domain.Order) error {
		if !actor.IsBuyer() || o.BuyerID != actor.ID {
			return apperrors.Forbidden("only the buyer can confirm receipt")
		}
		if o.Status != domain.OrderDelivered {
			return apperrors.Conflict(fmt.Sprintf("order is %s, not delivered", o.Status))
		}
		return nil
	})
}

// transition locks the order, checks authorize and the workflow, settles
// escrow and writes the new status in one transaction. The row lock makes a
// concurrent transition of the same order wait and then see the new status,
// so escrow is settled at most once.
func (s *OrderService) transition(
	ctx context.Context,
	actor domain.Actor,
	id string,
	target domain.OrderStatus,
	reason string,
	override bool,
	authorize func(o *domain.Order) error,
) (*domain.Order, error) {
	var (
		o       *domain.Order
		updated domain.Order
		from    domain.OrderStatus
		payment domain.PaymentStatus
		restock bool
		settled bool
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		o, err = tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if err := authorize(o); err != nil {
			return err
		}

		from = o.Status
		switch {
		case from.Terminal():
			return apperrors.Conflict(fmt.Sprintf("order is %s and can no longer change status", from))
		case override:
			if !from.CanOverrideTo(target) {
				return apperrors.InvalidInput(fmt.Sprintf("cannot override order from %s to %s", from, target))
			}
		case !from.CanTransitionTo(target):
			return apperrors.InvalidInput(fmt.Sprintf("cannot move order from %s to %s", from, target))
		}

		payment, err = escrow.Settle(ctx, s.ledger, o, target, reason)
		if err != nil {
			s.logger.ErrorContext(ctx, "escrow settlement failed",
				slog.String("order_id", o.ID),
				slog.String("target", string(target)),
				slog.String("error", err.Error()),
			)
			return apperrors.ServiceUnavailable("escrow ledger unavailable, order unchanged", err)
		}
		settled = payment != o.PaymentStatus

		now := s.now()
		updated = *o
		updated.Status = target
		updated.PaymentStatus = payment
		updated.UpdatedAt = now
		if reason != "" {
			updated.Reason = reason
		}
		if target == domain.OrderDelivered {
			updated.DeliveredAt = &now
		}
		restock = (target == domain.OrderCancelled || target == domain.OrderRefunded) &&
			domain.RestocksOnExit(from, s.restockAfterShipment)

		if err := tx.Orders().UpdateStatus(ctx, &updated, from); err != nil {
			return err
		}
		if !restock {
			return nil
		}
		for _, it := range updated.Items {
			if _, err := tx.Products().AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("restock %s: %w", it.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		if settled {
			s.logger.ErrorContext(ctx, "escrow settled but status write failed",
				slog.String("order_id", id),
				slog.String("payment_status", string(payment)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	log := s.logger.With(
		slog.String("order_id", o.ID),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.String("actor_id", actor.ID),
	)
	action := domain.ActionOrderStatusChanged
	if override {
		action = domain.ActionOrderStatusOverride
		log.WarnContext(ctx, "order status overridden")
	} else {
		log.InfoContext(ctx, "order status changed", slog.Bool("restocked", restock))
	}
	s.metrics.orderTransition(target, override)

	record(ctx, s.audit, actor, action, domain.ResourceOrder, o.ID, map[string]any{
		"from":           string(from),
		"to":             string(target),
		"reason":         reason,
		"payment_status": string(payment),
		"restocked":      restock,
	})
	if err := s.events.OrderStatusChanged(ctx, &updated, from, override); err != nil {
		logDropped(ctx, s.logger, "publish order.status_changed event", err, slog.String("order_id", o.ID))
	}
	s.notifyBuyer(ctx, &updated, notify.OrderStatusChanged)

	return &updated, nil
}

// TrackingInput is the carrier metadata of a shipment.
type TrackingInput struct {
	Carrier        string     `json:"carrier" validate:"notblank,max=100"`
	TrackingNumber string     `json:"tracking_number" validate:"notblank,max=100"`
	ShippedAt      *time.Time `json:"shipped_at"`
}

// UpdateTracking attaches tracking data. It is allowed in every status,
// terminal ones included.
func (s *OrderService) UpdateTracking(ctx context.Context, actor domain.Actor, id string, in TrackingInput) (*domain.Order, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	o, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	switch {
	case actor.IsAdmin():
	case actor.IsSeller() && o.HasSeller(actor.ID):
	default:
		return nil, apperrors.Forbidden("only the order's sellers can update tracking")
	}

	shippedAt := in.ShippedAt
	if shippedAt == nil {
		now := s.now()
		shippedAt = &now
	}
	tr := domain.Tracking{Carrier: in.Carrier, TrackingNumber: in.TrackingNumber, ShippedAt: shippedAt}
	if err := s.store.Orders().UpdateTracking(ctx, o.ID, tr); err != nil {
		return nil, fmt.Errorf("update tracking: %w", err)
	}
	o.Tracking = tr

	record(ctx, s.audit, actor, domain.ActionOrderTrackingSet, domain.ResourceOrder, o.ID, map[string]any{
		"carrier":         tr.Carrier,
		"tracking_number": tr.TrackingNumber,
	})
	s.logger.InfoContext(ctx, "order tracking updated",
		slog.String("order_id", o.ID),
		slog.String("carrier", tr.Carrier),
	)
	return o, nil
}

// AutoCompleteDelivered completes delivered orders whose buyers did not
// confirm receipt within olderThan. Orders that fail are left for the next run.
func (s *OrderService) AutoCompleteDelivered(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	completed, failed := 0, 0

	for {
		batch, err := s.store.Orders().ListDeliveredBefore(ctx, cutoff, autoCompleteBatch)
		if err != nil {
			return completed, fmt.Errorf("list delivered orders: %w", err)
		}

		progress := 0
		for _, o := range batch {
			if err := ctx.Err(); err != nil {
				return completed, err
			}
			_, err := s.transition(ctx, domain.System, o.ID, domain.OrderCompleted, "auto-completed", false,
				func(*domain.Order) error { return nil })
			if err != nil {
				failed++
				s.logger.WarnContext(ctx, "auto-complete skipped order",
					slog.String("order_id", o.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			progress++
		}
		completed += progress

		if len(batch) < autoCompleteBatch || progress == 0 {
			break
		}
	}

	s.logger.InfoContext(ctx, "auto-complete finished",
		slog.Int("completed", completed),
		slog.Int("failed", failed),
		slog.Time("cutoff", cutoff),
	)
	return completed, nil
}

func (s *OrderService) notifyBuyer(ctx context.Context, o *domain.Order, build func(string, *domain.Order) notify.Message) {
	if s.notifier == nil {
		return
	}
	buyer, err := s.store.Accounts().GetByID(ctx, o.BuyerID)
	if err != nil {
		logDropped(ctx, s.logger, "load buyer for email", err, slog.String("order_id", o.ID))
		return
	}
	s.notifier.Enqueue(ctx, build(buyer.Email, o))
}
