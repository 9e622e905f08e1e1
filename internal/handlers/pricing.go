package handlers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

var (
	taxRate               = decimal.RequireFromString("0.08")
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShippingPrice     = decimal.NewFromInt(10)
)

type discountUpdateInput struct {
	Price         *float64
	DiscountPrice *float64
}

type discountUpdateResult struct {
	Price         float64
	DiscountPrice float64
}

func isProductOnSale(price, discountPrice float64) bool {
	return discountPrice > 0 && discountPrice < price
}

func effectiveProductPrice(price, discountPrice float64) float64 {
	if isProductOnSale(price, discountPrice) {
		return discountPrice
	}
	return price
}

func validateDiscountPrice(price, discountPrice float64) error {
	if discountPrice == 0 {
		return nil
	}
	if discountPrice < 0 {
		return fmt.Errorf("discountPrice must be zero or greater")
	}
	if discountPrice >= price {
		return fmt.Errorf("discountPrice must be less than price")
	}
	return nil
}

// resolveDiscountUpdate merges a partial price update with the stored values
// and validates the result. Lowering the price below an existing discount is
// rejected rather than silently dropping the discount.
func resolveDiscountUpdate(existingPrice, existingDiscount float64, input discountUpdateInput) (discountUpdateResult, error) {
	result := discountUpdateResult{Price: existingPrice, DiscountPrice: existingDiscount}
	if input.Price != nil {
		result.Price = *input.Price
	}
	if input.DiscountPrice != nil {
		result.DiscountPrice = *input.DiscountPrice
	}
	if result.Price <= 0 {
		return discountUpdateResult{}, fmt.Errorf("price must be greater than 0")
	}
	if err := validateDiscountPrice(result.Price, result.DiscountPrice); err != nil {
		return discountUpdateResult{}, err
	}
	return result, nil
}

// decorateProduct fills the derived, non-persisted fields.
func decorateProduct(p *models.Product) {
	p.EffectivePrice = effectiveProductPrice(p.Price, p.DiscountPrice)
	p.OnSale = isProductOnSale(p.Price, p.DiscountPrice)
	p.InStock = p.Stock > 0
	if p.Images == nil {
		p.Images = []models.ProductImage{}
	}
	if p.Reviews == nil {
		p.Reviews = []models.Review{}
	}
	if p.Tags == nil {
		p.Tags = models.StringList{}
	}
}

func roundMoney(v decimal.Decimal) float64 {
	return v.Round(2).InexactFloat64()
}

func lineSubtotal(price float64, quantity int) float64 {
	return roundMoney(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))))
}

type orderTotals struct {
	ItemsPrice    float64
	ShippingPrice float64
	TaxPrice      float64
	TotalPrice    float64
}

// computeOrderTotals derives every money field from the captured line prices.
func computeOrderTotals(items []models.OrderItem) orderTotals {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	itemsPrice = itemsPrice.Round(2)

	shipping := flatShippingPrice
	if itemsPrice.IsZero() || itemsPrice.GreaterThanOrEqual(freeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := itemsPrice.Mul(taxRate).Round(2)

	return orderTotals{
		ItemsPrice:    roundMoney(itemsPrice),
		ShippingPrice: roundMoney(shipping),
		TaxPrice:      roundMoney(tax),
		TotalPrice:    roundMoney(itemsPrice.Add(shipping).Add(tax)),
	}
}

// averageRating is the mean review score rounded to one decimal place.
func averageRating(reviews []models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, r := range reviews {
		sum = sum.Add(decimal.NewFromInt(int64(r.Rating)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(reviews)))).Round(1).InexactFloat64()
}
