package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/events"
	"storefront/internal/models"
)

type updateOrderStatusRequest struct {
	Status         string `json:"status" binding:"required,oneof=pending processing shipped delivered cancelled"`
	TrackingNumber string `json:"trackingNumber" binding:"max=100"`
	Note           string `json:"note" binding:"max=300"`
}

func GetAllOrders(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"
		defer handlePanic(c, route)

		filter := bson.M{}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			filter["status"] = status
		}
		if paymentStatus := strings.TrimSpace(c.Query("paymentStatus")); paymentStatus != "" {
			filter["paymentStatus"] = paymentStatus
		}
		listOrders(c, db, route, filter)
	}
}

// statusUpdate builds the $set and $push for a non-cancelling transition.
func statusUpdate(order models.Order, req updateOrderStatusRequest, changedBy primitive.ObjectID, now time.Time) (bson.M, error) {
	if !canTransition(order.Status, req.Status) {
		return nil, invalidTransitionError{From: order.Status, To: req.Status}
	}

	set := bson.M{
		"status":    req.Status,
		"updatedAt": now,
	}
	switch req.Status {
	case models.OrderShipped:
		if tracking := strings.TrimSpace(req.TrackingNumber); tracking != "" {
			set["trackingNumber"] = tracking
		}
	case models.OrderDelivered:
		set["deliveredAt"] = now
		if order.PaymentMethod == "cash" && order.PaymentStatus == models.PaymentPending {
			set["paymentStatus"] = models.PaymentPaid
			set["paidAt"] = now
		}
	}

	return bson.M{
		"$set": set,
		"$push": bson.M{"statusHistory": models.StatusChange{
			Status:    req.Status,
			Note:      strings.TrimSpace(req.Note),
			ChangedBy: &changedBy,
			ChangedAt: now,
		}},
	}, nil
}

func UpdateOrderStatus(db *mongo.Database, publisher events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/status"
		defer handlePanic(c, route)

		adminID, ok := requireUserID(c, route)
		if !ok {
			return
		}
		orderID, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req updateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*dbTimeout)
		defer cancel()

		var order models.Order
		err := db.Collection("orders").FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		var updated models.Order
		if req.Status == models.OrderCancelled {
			if !canTransition(order.Status, req.Status) {
				respondOrderError(c, route, invalidTransitionError{From: order.Status, To: req.Status})
				return
			}
			updated, err = cancelOrder(ctx, db, order.ID, adminID, req.Note)
			if err != nil {
				respondOrderError(c, route, err)
				return
			}
			events.PublishOrderEvent(publisher, orderEvent(events.OrderCancelled, updated, order.Status))
		} else {
			update, err := statusUpdate(order, req, adminID, time.Now())
			if err != nil {
				respondOrderError(c, route, err)
				return
			}

			err = db.Collection("orders").FindOneAndUpdate(
				ctx,
				bson.M{"_id": order.ID, "status": order.Status},
				update,
				returnAfter(),
			).Decode(&updated)
			if err == mongo.ErrNoDocuments {
				respondWithError(c, http.StatusConflict, route, "order changed, retry")
				return
			}
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			events.PublishOrderEvent(publisher, orderEvent(events.OrderStatusChanged, updated, order.Status))
		}

		log.Printf("[ORDER] [INFO] order %s %s -> %s by admin %s",
			updated.OrderNumber, order.Status, updated.Status, adminID.Hex())
		c.JSON(http.StatusOK, updated)
	}
}
