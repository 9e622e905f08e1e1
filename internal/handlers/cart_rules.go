package handlers

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

var errCartItemNotFound = errors.New("item not in cart")

func cartIndex(cart []models.CartItem, productID primitive.ObjectID) int {
	for i, item := range cart {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// addCartItem merges quantity into an existing line or appends a new one.
// The resulting quantity may not exceed the product's stock.
func addCartItem(cart []models.CartItem, product models.Product, quantity int, now time.Time) ([]models.CartItem, error) {
	if !product.Purchasable() {
		return nil, productNotFoundError{ProductID: product.ID}
	}

	existing := 0
	i := cartIndex(cart, product.ID)
	if i >= 0 {
		existing = cart[i].Quantity
	}
	if existing+quantity > product.Stock {
		return nil, outOfStockError{ProductID: product.ID, Available: product.Stock, Requested: existing + quantity}
	}

	updated := append([]models.CartItem(nil), cart...)
	line := models.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     effectiveProductPrice(product.Price, product.DiscountPrice),
		Image:     product.PrimaryImage(),
		Quantity:  existing + quantity,
		AddedAt:   now,
	}
	if i >= 0 {
		line.AddedAt = cart[i].AddedAt
		updated[i] = line
		return updated, nil
	}
	return append(updated, line), nil
}

// setCartQuantity replaces a line's quantity; zero removes the line.
func setCartQuantity(cart []models.CartItem, product models.Product, quantity int) ([]models.CartItem, error) {
	i := cartIndex(cart, product.ID)
	if i < 0 {
		return nil, errCartItemNotFound
	}
	if quantity == 0 {
		updated, _ := removeCartItem(cart, product.ID)
		return updated, nil
	}
	if !product.Purchasable() {
		return nil, productNotFoundError{ProductID: product.ID}
	}
	if quantity > product.Stock {
		return nil, outOfStockError{ProductID: product.ID, Available: product.Stock, Requested: quantity}
	}

	updated := append([]models.CartItem(nil), cart...)
	updated[i].Quantity = quantity
	updated[i].Price = effectiveProductPrice(product.Price, product.DiscountPrice)
	return updated, nil
}

func removeCartItem(cart []models.CartItem, productID primitive.ObjectID) ([]models.CartItem, bool) {
	updated := make([]models.CartItem, 0, len(cart))
	found := false
	for _, item := range cart {
		if item.ProductID == productID {
			found = true
			continue
		}
		updated = append(updated, item)
	}
	return updated, found
}

// saveForLater moves a cart line into saved items, keeping saved items unique.
func saveForLater(user models.User, productID primitive.ObjectID, now time.Time) ([]models.CartItem, []models.SavedItem, error) {
	cart, found := removeCartItem(user.Cart, productID)
	if !found {
		return nil, nil, errCartItemNotFound
	}

	saved := append([]models.SavedItem(nil), user.SavedItems...)
	for _, item := range saved {
		if item.ProductID == productID {
			return cart, saved, nil
		}
	}
	return cart, append(saved, models.SavedItem{ProductID: productID, AddedAt: now}), nil
}

func removeSavedItem(saved []models.SavedItem, productID primitive.ObjectID) ([]models.SavedItem, bool) {
	updated := make([]models.SavedItem, 0, len(saved))
	found := false
	for _, item := range saved {
		if item.ProductID == productID {
			found = true
			continue
		}
		updated = append(updated, item)
	}
	return updated, found
}

type cartSummary struct {
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  float64           `json:"subtotal"`
}

func summarizeCart(cart []models.CartItem) cartSummary {
	if cart == nil {
		cart = []models.CartItem{}
	}
	subtotal := decimal.Zero
	count := 0
	for _, item := range cart {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	return cartSummary{Items: cart, ItemCount: count, Subtotal: roundMoney(subtotal)}
}
