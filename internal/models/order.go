package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"

	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// OrderItem is a line captured at checkout. It is never recalculated, so
// later catalog price changes do not touch historical orders.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Subtotal  float64            `bson:"subtotal" json:"subtotal"`
}

type StatusChange struct {
	Status    string              `bson:"status" json:"status"`
	Note      string              `bson:"note,omitempty" json:"note,omitempty"`
	ChangedBy *primitive.ObjectID `bson:"changedBy,omitempty" json:"changedBy,omitempty"`
	ChangedAt time.Time           `bson:"changedAt" json:"changedAt"`
}

type PaymentResult struct {
	ID     string `bson:"id" json:"id"`
	Status string `bson:"status" json:"status"`
	Email  string `bson:"email,omitempty" json:"email,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber     string             `bson:"orderNumber" json:"orderNumber"`
	UserID          primitive.ObjectID `bson:"user" json:"user"`
	Items           []OrderItem        `bson:"items" json:"items"`
	ShippingAddress Address            `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string             `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus   string             `bson:"paymentStatus" json:"paymentStatus"`
	PaymentResult   *PaymentResult     `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`
	PaidAt          *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	Status          string             `bson:"status" json:"status"`
	StatusHistory   []StatusChange     `bson:"statusHistory" json:"statusHistory"`
	TrackingNumber  string             `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	ItemsPrice      float64            `bson:"itemsPrice" json:"itemsPrice"`
	ShippingPrice   float64            `bson:"shippingPrice" json:"shippingPrice"`
	TaxPrice        float64            `bson:"taxPrice" json:"taxPrice"`
	TotalPrice      float64            `bson:"totalPrice" json:"totalPrice"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	DeliveredAt     *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time         `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancelReason    string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}
