package domain

import "time"

// MaxCartQuantity caps a single cart line.
const MaxCartQuantity = 999

// Cart is a buyer's pending selection, kept in Redis.
type Cart struct {
	BuyerID   string     `json:"buyer_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem is one product in a cart.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds quantity to an existing line or appends a new one.
func (c *Cart) AddItem(productID string, quantity int) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
}

// SetQuantity replaces a line's quantity. Zero removes it. It reports whether
// the product was in the cart.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = quantity
		}
		return true
	}
	return false
}

// RemoveItem drops a line and reports whether it existed.
func (c *Cart) RemoveItem(productID string) bool {
	return c.SetQuantity(productID, 0)
}

// Quantity returns the cart quantity of productID.
func (c *Cart) Quantity(productID string) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}
