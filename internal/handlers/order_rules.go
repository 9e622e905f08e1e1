package handlers

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

var errOrderNotCancellable = errors.New("only pending or processing orders can be cancelled")

type outOfStockError struct {
	ProductID primitive.ObjectID
	Available int
	Requested int
}

func (e outOfStockError) Error() string {
	return "insufficient stock"
}

type productNotFoundError struct {
	ProductID primitive.ObjectID
}

func (e productNotFoundError) Error() string {
	return "product not found"
}

type invalidTransitionError struct {
	From string
	To   string
}

func (e invalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// orderLine is a validated, de-duplicated request line.
type orderLine struct {
	ProductID primitive.ObjectID
	Quantity  int
}

// orderTransitions lists the statuses reachable from each status.
var orderTransitions = map[string][]string{
	models.OrderPending:    {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:    {models.OrderDelivered},
	models.OrderDelivered:  {},
	models.OrderCancelled:  {},
}

func canTransition(from, to string) bool {
	return slices.Contains(orderTransitions[from], to)
}

func isCancellable(status string) bool {
	return canTransition(status, models.OrderCancelled)
}

// normalizeOrderLines parses ids, rejects non-positive quantities and merges
// repeated products, preserving first-seen order.
func normalizeOrderLines(items []createOrderItemRequest) ([]orderLine, error) {
	if len(items) == 0 {
		return nil, errors.New("at least one item is required")
	}

	index := make(map[primitive.ObjectID]int, len(items))
	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(item.ProductID))
		if err != nil {
			return nil, fmt.Errorf("invalid productId: %s", item.ProductID)
		}
		if item.Quantity <= 0 {
			return nil, errors.New("quantity must be greater than zero")
		}
		if i, ok := index[productID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, orderLine{ProductID: productID, Quantity: item.Quantity})
	}
	return lines, nil
}

// planOrderItems checks every line against the loaded products and captures
// the line snapshot. It performs no writes, so a rejected order leaves stock
// untouched.
func planOrderItems(lines []orderLine, products map[primitive.ObjectID]models.Product) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Purchasable() {
			return nil, productNotFoundError{ProductID: line.ProductID}
		}
		if product.Stock < line.Quantity {
			return nil, outOfStockError{
				ProductID: line.ProductID,
				Available: product.Stock,
				Requested: line.Quantity,
			}
		}

		price := effectiveProductPrice(product.Price, product.DiscountPrice)
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.PrimaryImage(),
			Price:     price,
			Quantity:  line.Quantity,
			Subtotal:  lineSubtotal(price, line.Quantity),
		})
	}
	return items, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// newOrder assembles the document persisted at checkout.
func newOrder(userID primitive.ObjectID, items []models.OrderItem, address models.Address, paymentMethod, notes string, now time.Time) models.Order {
	totals := computeOrderTotals(items)
	return models.Order{
		OrderNumber:     newOrderNumber(now),
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   models.PaymentPending,
		Status:          models.OrderPending,
		StatusHistory: []models.StatusChange{{
			Status:    models.OrderPending,
			Note:      "order placed",
			ChangedBy: &userID,
			ChangedAt: now,
		}},
		ItemsPrice:    totals.ItemsPrice,
		ShippingPrice: totals.ShippingPrice,
		TaxPrice:      totals.TaxPrice,
		TotalPrice:    totals.TotalPrice,
		Notes:         strings.TrimSpace(notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func productIDs(lines []orderLine) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
