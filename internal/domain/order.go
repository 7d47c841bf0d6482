package domain

import (
	"errors"
	"math"
	"time"
)

// ErrAmountOverflow reports an order amount too large to represent.
var ErrAmountOverflow = errors.New("order amount overflows")

// OrderStatus is a step of the order lifecycle.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// next is the forward chain. Terminal statuses have no entry.
var next = map[OrderStatus]OrderStatus{
	OrderPending:    OrderConfirmed,
	OrderConfirmed:  OrderProcessing,
	OrderProcessing: OrderShipped,
	OrderShipped:    OrderDelivered,
	OrderDelivered:  OrderCompleted,
}

// ValidOrderStatuses returns every order status.
func ValidOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
		OrderDelivered, OrderCompleted, OrderCancelled, OrderRefunded,
	}
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, v := range ValidOrderStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s can never change again.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

// CanTransitionTo reports whether target is the next forward step from s, or
// a cancellation/refund of a non-terminal order.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if target == OrderCancelled || target == OrderRefunded {
		return true
	}
	return next[s] == target
}

// CanOverrideTo reports whether an admin override may move s to target.
// Overrides skip steps but never leave a terminal status.
func (s OrderStatus) CanOverrideTo(target OrderStatus) bool {
	return !s.Terminal() && target.Valid() && target != s
}

// BuyerCancellable reports whether the buyer may still cancel on their own.
func (s OrderStatus) BuyerCancellable() bool {
	return s == OrderPending || s == OrderConfirmed
}

// Shipped reports whether goods have left the seller.
func (s OrderStatus) Shipped() bool {
	return s == OrderShipped || s == OrderDelivered
}

// RestocksOnExit reports whether stock returns to products when an order in
// status from is cancelled or refunded.
func RestocksOnExit(from OrderStatus, restockAfterShipment bool) bool {
	if from.Terminal() {
		return false
	}
	if from.Shipped() {
		return restockAfterShipment
	}
	return true
}

// PaymentStatus is the escrow state of the buyer's funds.
type PaymentStatus string

const (
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
)

// EscrowOutcome returns the payment status entering target settles, if any.
func EscrowOutcome(target OrderStatus) (PaymentStatus, bool) {
	switch target {
	case OrderCompleted:
		return PaymentReleased, true
	case OrderCancelled, OrderRefunded:
		return PaymentRefunded, true
	}
	return "", false
}

// PaymentMethod is how the buyer funds the escrow.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
)

// Valid reports whether m is accepted.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentBankTransfer || m == PaymentWallet
}

// Address is a shipping address.
type Address struct {
	FullName    string `json:"full_name" validate:"notblank,max=200"`
	AddressLine string `json:"address_line" validate:"notblank,max=500"`
	City        string `json:"city" validate:"notblank,max=100"`
	State       string `json:"state,omitempty" validate:"max=100"`
	PostalCode  string `json:"postal_code" validate:"notblank,max=20"`
	Country     string `json:"country" validate:"required,len=2"`
	Phone       string `json:"phone,omitempty" validate:"max=30"`
}

// Tracking is the carrier metadata a seller attaches to a shipment.
type Tracking struct {
	Carrier        string     `json:"carrier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

// Order is a buyer's purchase. Amounts are minor units of Currency.
type Order struct {
	ID              string        `json:"id"`
	BuyerID         string        `json:"buyer_id"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Items           []OrderItem   `json:"items"`
	SubtotalAmount  int64         `json:"subtotal_amount"`
	TotalAmount     int64         `json:"total_amount"`
	Currency        string        `json:"currency"`
	ShippingAddress Address       `json:"shipping_address"`
	Reason          string        `json:"reason,omitempty"`
	Tracking        Tracking      `json:"tracking"`
	DeliveredAt     *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CalculateTotals sets subtotal and total from the line items. It returns
// ErrAmountOverflow, leaving the totals untouched, when a line or the sum
// does not fit in int64.
func (o *Order) CalculateTotals() error {
	var sum int64
	for i := range o.Items {
		it := &o.Items[i]
		if it.UnitPrice < 0 || it.Quantity < 0 {
			return ErrAmountOverflow
		}
		if it.Quantity > 0 && it.UnitPrice > math.MaxInt64/int64(it.Quantity) {
			return ErrAmountOverflow
		}
		line := it.LineTotal()
		if sum > math.MaxInt64-line {
			return ErrAmountOverflow
		}
		sum += line
	}
	o.SubtotalAmount = sum
	o.TotalAmount = sum
	return nil
}

// HasSeller reports whether any line item belongs to sellerID.
func (o *Order) HasSeller(sellerID string) bool {
	for i := range o.Items {
		if o.Items[i].SellerID == sellerID {
			return true
		}
	}
	return false
}

// ContainsProduct reports whether the order bought productID.
func (o *Order) ContainsProduct(productID string) bool {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether actor may read the order.
func (o *Order) VisibleTo(actor Actor) bool {
	switch actor.Type {
	case AccountAdmin:
		return true
	case AccountSeller:
		return o.HasSeller(actor.ID)
	case AccountBuyer:
		return o.BuyerID == actor.ID
	}
	return false
}

// OrderItem is a line of an order. Name, price and seller are copied from the
// product when the order is placed.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	SellerID    string `json:"seller_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// LineTotal returns unit price times quantity.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}
