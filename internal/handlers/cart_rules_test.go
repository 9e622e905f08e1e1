package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func cartProduct(stock int) models.Product {
	return models.Product{
		ID: primitive.NewObjectID(), Name: "Lamp", Price: 40, DiscountPrice: 30,
		Stock: stock, IsActive: true,
	}
}

func TestAddCartItemMergesAndSnapshots(t *testing.T) {
	lamp := cartProduct(5)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cart, err := addCartItem(nil, lamp, 2, first)
	require.NoError(t, err)
	cart, err = addCartItem(cart, lamp, 3, first.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, cart, 1)
	assert.Equal(t, 5, cart[0].Quantity)
	assert.Equal(t, 30.0, cart[0].Price)
	assert.Equal(t, first, cart[0].AddedAt)
}

func TestAddCartItemCapsAtStock(t *testing.T) {
	lamp := cartProduct(3)
	cart, err := addCartItem(nil, lamp, 2, time.Now())
	require.NoError(t, err)

	_, err = addCartItem(cart, lamp, 2, time.Now())
	var stockErr outOfStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 2, cart[0].Quantity, "original cart untouched")
}

func TestAddCartItemRejectsInactive(t *testing.T) {
	lamp := cartProduct(3)
	lamp.IsActive = false
	_, err := addCartItem(nil, lamp, 1, time.Now())
	var notFound productNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestSetCartQuantity(t *testing.T) {
	lamp := cartProduct(4)
	cart, err := addCartItem(nil, lamp, 1, time.Now())
	require.NoError(t, err)

	updated, err := setCartQuantity(cart, lamp, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated[0].Quantity)

	_, err = setCartQuantity(cart, lamp, 5)
	assert.Error(t, err)

	emptied, err := setCartQuantity(cart, models.Product{ID: lamp.ID}, 0)
	require.NoError(t, err)
	assert.Empty(t, emptied)

	_, err = setCartQuantity(cart, cartProduct(1), 1)
	assert.ErrorIs(t, err, errCartItemNotFound)
}

func TestSaveForLaterAndBack(t *testing.T) {
	lamp := cartProduct(4)
	cart, err := addCartItem(nil, lamp, 2, time.Now())
	require.NoError(t, err)

	user := models.User{Cart: cart}
	cart, saved, err := saveForLater(user, lamp.ID, time.Now())
	require.NoError(t, err)
	assert.Empty(t, cart)
	require.Len(t, saved, 1)
	assert.Equal(t, lamp.ID, saved[0].ProductID)

	_, _, err = saveForLater(models.User{Cart: cart, SavedItems: saved}, lamp.ID, time.Now())
	assert.ErrorIs(t, err, errCartItemNotFound)

	remaining, found := removeSavedItem(saved, lamp.ID)
	assert.True(t, found)
	assert.Empty(t, remaining)
}

func TestSummarizeCart(t *testing.T) {
	summary := summarizeCart([]models.CartItem{
		{Price: 19.99, Quantity: 3},
		{Price: 0.1, Quantity: 2},
	})
	assert.Equal(t, 5, summary.ItemCount)
	assert.Equal(t, 60.17, summary.Subtotal)

	empty := summarizeCart(nil)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.Subtotal)
}
