package handlers

import (
	"encoding/json"
	"strings"
	"testing"

	"storefront/internal/models"
)

func TestValidateDiscountPrice(t *testing.T) {
	if err := validateDiscountPrice(100, 0); err != nil {
		t.Fatalf("zero discount should be accepted, got %v", err)
	}
	for _, discount := range []float64{100, 120, -1} {
		if err := validateDiscountPrice(100, discount); err == nil {
			t.Fatalf("expected validation error for discountPrice=%v", discount)
		}
	}
}

func TestResolveDiscountUpdateRejectsPriceBelowDiscount(t *testing.T) {
	price := 50.0
	if _, err := resolveDiscountUpdate(100, 60, discountUpdateInput{Price: &price}); err == nil {
		t.Fatal("expected error when new price is below the stored discount")
	}

	discount := 0.0
	got, err := resolveDiscountUpdate(100, 60, discountUpdateInput{Price: &price, DiscountPrice: &discount})
	if err != nil {
		t.Fatalf("clearing the discount with the price change should pass: %v", err)
	}
	if got.Price != 50 || got.DiscountPrice != 0 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestEffectiveProductPriceUsesDiscountWhenOnSale(t *testing.T) {
	if got := effectiveProductPrice(100, 75); got != 75 {
		t.Fatalf("expected discount price 75, got %v", got)
	}
	if got := effectiveProductPrice(100, 0); got != 100 {
		t.Fatalf("expected regular price 100 without discount, got %v", got)
	}
}

func TestDecoratedProductJSON(t *testing.T) {
	p := models.Product{Name: "Test", Price: 120, DiscountPrice: 99, Stock: 10}
	decorateProduct(&p)

	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}
	jsonBody := string(body)
	for _, want := range []string{`"effectivePrice":99`, `"onSale":true`, `"inStock":true`, `"images":[]`} {
		if !strings.Contains(jsonBody, want) {
			t.Fatalf("expected %s in response json, got %s", want, jsonBody)
		}
	}
}

func TestComputeOrderTotals(t *testing.T) {
	totals := computeOrderTotals([]models.OrderItem{{Price: 19.99, Quantity: 3}})
	if totals.ItemsPrice != 59.97 || totals.ShippingPrice != 10 || totals.TaxPrice != 4.8 || totals.TotalPrice != 74.77 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	totals = computeOrderTotals([]models.OrderItem{{Price: 40, Quantity: 2}, {Price: 20, Quantity: 1}})
	if totals.ItemsPrice != 100 || totals.ShippingPrice != 0 || totals.TaxPrice != 8 || totals.TotalPrice != 108 {
		t.Fatalf("free shipping threshold not applied: %+v", totals)
	}
}

func TestAverageRating(t *testing.T) {
	if got := averageRating(nil); got != 0 {
		t.Fatalf("expected 0 for no reviews, got %v", got)
	}
	got := averageRating([]models.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}})
	if got != 4.3 {
		t.Fatalf("expected 4.3, got %v", got)
	}
}
