package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAccountType(t *testing.T) {
	for _, s := range []string{"buyer", "seller", "admin"} {
		got, ok := ParseAccountType(s)
		assert.True(t, ok)
		assert.Equal(t, AccountType(s), got)
	}
	_, ok := ParseAccountType("customer")
	assert.False(t, ok)
	_, ok = ParseAccountType("")
	assert.False(t, ok)
}

func TestAccountType_SelfRegistrable(t *testing.T) {
	assert.True(t, AccountBuyer.SelfRegistrable())
	assert.True(t, AccountSeller.SelfRegistrable())
	assert.False(t, AccountAdmin.SelfRegistrable())
}

func TestProductStatus_Transitions(t *testing.T) {
	assert.True(t, ProductPending.CanTransitionTo(ProductActive))
	assert.True(t, ProductPending.CanTransitionTo(ProductRejected))
	assert.True(t, ProductActive.CanTransitionTo(ProductSuspended))
	assert.True(t, ProductSuspended.CanTransitionTo(ProductActive))
	assert.False(t, ProductActive.CanTransitionTo(ProductPending))
	assert.False(t, ProductStatus("draft").Valid())
}

func TestCart_Items(t *testing.T) {
	c := &Cart{}
	c.AddItem("p1", 2)
	c.AddItem("p1", 3)
	c.AddItem("p2", 1)
	assert.Equal(t, 5, c.Quantity("p1"))
	assert.Len(t, c.Items, 2)

	assert.True(t, c.SetQuantity("p2", 4))
	assert.Equal(t, 4, c.Quantity("p2"))

	assert.True(t, c.RemoveItem("p1"))
	assert.False(t, c.RemoveItem("p1"))
	assert.Equal(t, []CartItem{{ProductID: "p2", Quantity: 4}}, c.Items)
}
