package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/domain"
	apperrors "github.com/gule/marketplace/pkg/errors"
)

func TestCart_AddSetRemove(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", seller.ID, 150, 5)
	f.addProduct(t, "p-2", seller.ID, 200, 5)
	ctx := context.Background()

	v, err := f.carts.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Items)

	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	v, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 3, v.Items[0].Quantity)
	assert.Equal(t, int64(450), v.Total)

	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 3})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-2", Quantity: 1})
	require.NoError(t, err)
	v, err = f.carts.SetItemQuantity(ctx, buyer.ID, "p-1", 0)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "p-2", v.Items[0].ProductID)

	_, err = f.carts.RemoveItem(ctx, buyer.ID, "p-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.carts.ClearCart(ctx, buyer.ID))
	v, err = f.carts.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Items)
}

func TestCart_UnavailableLinesAreNotTotalled(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", seller.ID, 100, 5)
	f.addProduct(t, "p-2", seller.ID, 100, 5)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-2", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.store.Products().UpdateStatus(ctx, "p-2", domain.ProductSuspended))

	v, err := f.carts.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v.Total)
	assert.False(t, v.Items[1].Available)
}

func TestCart_Checkout(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", seller.ID, 100, 5)
	ctx := context.Background()
	in := CheckoutInput{ShippingAddress: address(), PaymentMethod: domain.PaymentWallet}

	_, _, err := f.carts.Checkout(ctx, buyer.ID, "", in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "empty cart")

	_, err = f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)

	o, replayed, err := f.carts.Checkout(ctx, buyer.ID, "cart-key", in)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int64(200), o.TotalAmount)
	assert.Equal(t, domain.PaymentWallet, o.PaymentMethod)
	assert.Equal(t, 3, f.stock(t, "p-1"))

	v, err := f.carts.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Items, "cart is cleared after checkout")

	again, replayed, err := f.carts.Checkout(ctx, buyer.ID, "cart-key", in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, o.ID, again.ID)
	assert.Equal(t, 3, f.stock(t, "p-1"))
}

func TestCart_CheckoutKeepsCartOnFailure(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", seller.ID, 100, 2)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, buyer.ID, CartItemInput{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	_, err = f.store.Products().AdjustStock(ctx, "p-1", -1)
	require.NoError(t, err)

	_, _, err = f.carts.Checkout(ctx, buyer.ID, "", CheckoutInput{ShippingAddress: address(), PaymentMethod: domain.PaymentCard})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	v, err := f.carts.GetCart(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, v.Items, 1)
}

func TestCart_RedisDown(t *testing.T) {
	f := newFixture(t)
	f.redis.Close()

	_, err := f.carts.GetCart(context.Background(), buyer.ID)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}
