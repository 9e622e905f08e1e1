package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/events"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type createOrderRequest struct {
	Items           []createOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress *addressRequest          `json:"shippingAddress"`
	PaymentMethod   string                   `json:"paymentMethod" binding:"required,oneof=card cash paypal"`
	Notes           string                   `json:"notes" binding:"max=500"`
}

type payOrderRequest struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Email     string `json:"email" binding:"omitempty,email"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=300"`
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(db *mongo.Database, publisher events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		lines, err := normalizeOrderLines(req.Items)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*dbTimeout)
		defer cancel()

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
			log.Println("[ORDER] [ERROR] buyer lookup failed:", err)
			respondWithError(c, http.StatusUnauthorized, route, "user not found")
			return
		}

		address := user.Address
		if req.ShippingAddress != nil {
			address = req.ShippingAddress.toAddress()
		}
		if !address.IsComplete() {
			respondWithError(c, http.StatusBadRequest, route, "a complete shipping address is required")
			return
		}

		session, err := db.Client().StartSession()
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer session.EndSession(ctx)

		var order models.Order
		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			products, err := loadProducts(sessCtx, db, productIDs(lines))
			if err != nil {
				return nil, err
			}

			items, err := planOrderItems(lines, products)
			if err != nil {
				return nil, err
			}

			now := time.Now()
			for _, item := range items {
				filter := bson.M{
					"_id":       item.ProductID,
					"isActive":  true,
					"isDeleted": bson.M{"$ne": true},
					"stock":     bson.M{"$gte": item.Quantity},
				}
				update := bson.M{
					"$inc": bson.M{"stock": -item.Quantity},
					"$set": bson.M{"updatedAt": now},
				}

				res, err := db.Collection("products").UpdateOne(sessCtx, filter, update)
				if err != nil {
					return nil, err
				}
				if res.MatchedCount == 0 {
					return nil, outOfStockError{
						ProductID: item.ProductID,
						Available: products[item.ProductID].Stock,
						Requested: item.Quantity,
					}
				}
			}

			order = newOrder(userID, items, address, req.PaymentMethod, req.Notes, now)
			res, err := db.Collection("orders").InsertOne(sessCtx, order)
			if err != nil {
				return nil, err
			}
			if id, ok := res.InsertedID.(primitive.ObjectID); ok {
				order.ID = id
			}
			return nil, nil
		})
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		if _, err := db.Collection("users").UpdateByID(ctx, userID, bson.M{
			"$pull": bson.M{"cart": bson.M{"product": bson.M{"$in": productIDs(lines)}}},
			"$set":  bson.M{"updatedAt": time.Now()},
		}); err != nil {
			log.Println("[ORDER] [WARN] cart cleanup failed:", err)
		}

		log.Printf("[ORDER] [INFO] order %s created for user %s total=%.2f", order.OrderNumber, userID.Hex(), order.TotalPrice)
		events.PublishOrderEvent(publisher, orderEvent(events.OrderCreated, order, ""))

		c.JSON(http.StatusCreated, gin.H{
			"message": "order created",
			"order":   order,
		})
	}
}

func loadProducts(ctx context.Context, db *mongo.Database, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	cursor, err := db.Collection("products").Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// respondOrderError maps order flow errors to HTTP responses.
func respondOrderError(c *gin.Context, route string, err error) {
	var stockErr outOfStockError
	if errors.As(err, &stockErr) {
		log.Printf("[%s] insufficient stock for %s: available=%d requested=%d",
			route, stockErr.ProductID.Hex(), stockErr.Available, stockErr.Requested)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message":   "insufficient stock",
			"productId": stockErr.ProductID.Hex(),
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
		return
	}
	var notFoundErr productNotFoundError
	if errors.As(err, &notFoundErr) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"message":   "product not found or unavailable",
			"productId": notFoundErr.ProductID.Hex(),
		})
		return
	}
	var transitionErr invalidTransitionError
	if errors.As(err, &transitionErr) {
		respondWithError(c, http.StatusBadRequest, route, transitionErr.Error())
		return
	}
	if errors.Is(err, errOrderNotCancellable) {
		respondWithError(c, http.StatusBadRequest, route, err.Error())
		return
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		respondWithError(c, http.StatusNotFound, route, "order not found")
		return
	}
	log.Printf("[%s] order error: %v", route, err)
	respondWithError(c, http.StatusInternalServerError, route, "db error")
}

func orderEvent(eventType string, order models.Order, prevStatus string) events.OrderEvent {
	return events.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.Hex(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID.Hex(),
		Status:      order.Status,
		PrevStatus:  prevStatus,
		TotalPrice:  order.TotalPrice,
	}
}

/* =========================
   READ
========================= */

func GetMyOrders(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/my-orders"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		filter := bson.M{"user": userID}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			filter["status"] = status
		}
		listOrders(c, db, route, filter)
	}
}

func listOrders(c *gin.Context, db *mongo.Database, route string, filter bson.M) {
	page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	total, err := db.Collection("orders").CountDocuments(ctx, filter)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := db.Collection("orders").Find(ctx, filter, opts)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "decode error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":     orders,
		"pagination": paginationMeta(page, limit, total),
	})
}

// loadOrderForCaller fetches an order and enforces owner-or-admin access.
func loadOrderForCaller(c *gin.Context, db *mongo.Database, route string) (models.Order, bool) {
	userID, ok := requireUserID(c, route)
	if !ok {
		return models.Order{}, false
	}
	orderID, ok := objectIDParam(c, route, "id")
	if !ok {
		return models.Order{}, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	var order models.Order
	err := db.Collection("orders").FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		respondWithError(c, http.StatusNotFound, route, "order not found")
		return models.Order{}, false
	}
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return models.Order{}, false
	}

	if order.UserID != userID && !middleware.IsAdmin(c) {
		respondWithError(c, http.StatusForbidden, route, "not allowed to access this order")
		return models.Order{}, false
	}
	return order, true
}

func GetOrderByID(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"
		defer handlePanic(c, route)

		order, ok := loadOrderForCaller(c, db, route)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   PAY
========================= */

func PayOrder(db *mongo.Database, publisher events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/pay"
		defer handlePanic(c, route)

		var req payOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondValidationError(c, route, err)
				return
			}
		}

		order, ok := loadOrderForCaller(c, db, route)
		if !ok {
			return
		}
		userID, _ := middleware.CurrentUserID(c)
		if order.UserID != userID {
			respondWithError(c, http.StatusForbidden, route, "only the buyer can pay for an order")
			return
		}
		if order.Status == models.OrderCancelled {
			respondWithError(c, http.StatusBadRequest, route, "cancelled orders cannot be paid")
			return
		}
		if order.PaymentStatus != models.PaymentPending {
			respondWithError(c, http.StatusBadRequest, route, "order is already "+order.PaymentStatus)
			return
		}

		now := time.Now()
		result := &models.PaymentResult{
			ID:     strings.TrimSpace(req.PaymentID),
			Status: strings.TrimSpace(req.Status),
			Email:  strings.TrimSpace(req.Email),
		}
		if result.Status == "" {
			result.Status = "completed"
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		var updated models.Order
		err := db.Collection("orders").FindOneAndUpdate(
			ctx,
			bson.M{
				"_id":           order.ID,
				"status":        bson.M{"$ne": models.OrderCancelled},
				"paymentStatus": models.PaymentPending,
			},
			bson.M{"$set": bson.M{
				"paymentStatus": models.PaymentPaid,
				"paymentResult": result,
				"paidAt":        now,
				"updatedAt":     now,
			}},
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

		log.Println("[ORDER] [INFO] order paid:", updated.OrderNumber)
		events.PublishOrderEvent(publisher, orderEvent(events.OrderPaid, updated, updated.Status))
		c.JSON(http.StatusOK, updated)
	}
}

/* =========================
   CANCEL
========================= */

func CancelOrder(db *mongo.Database, publisher events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/cancel"
		defer handlePanic(c, route)

		var req cancelOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondValidationError(c, route, err)
				return
			}
		}

		order, ok := loadOrderForCaller(c, db, route)
		if !ok {
			return
		}
		if !isCancellable(order.Status) {
			respondWithError(c, http.StatusBadRequest, route, errOrderNotCancellable.Error())
			return
		}

		userID, _ := middleware.CurrentUserID(c)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*dbTimeout)
		defer cancel()

		updated, err := cancelOrder(ctx, db, order.ID, userID, req.Reason)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		log.Printf("[ORDER] [INFO] order %s cancelled by %s", updated.OrderNumber, userID.Hex())
		events.PublishOrderEvent(publisher, orderEvent(events.OrderCancelled, updated, order.Status))
		c.JSON(http.StatusOK, updated)
	}
}

// cancelOrder flips a cancellable order to cancelled and puts its quantities
// back on the shelf in one transaction. The status filter makes a second
// cancellation match nothing, so stock is restored at most once.
func cancelOrder(ctx context.Context, db *mongo.Database, orderID, changedBy primitive.ObjectID, reason string) (models.Order, error) {
	session, err := db.Client().StartSession()
	if err != nil {
		return models.Order{}, err
	}
	defer session.EndSession(ctx)

	reason = strings.TrimSpace(reason)
	var updated models.Order
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		var before models.Order
		err := db.Collection("orders").FindOne(sessCtx, bson.M{"_id": orderID}).Decode(&before)
		if err != nil {
			return nil, err
		}
		if !isCancellable(before.Status) {
			return nil, errOrderNotCancellable
		}

		now := time.Now()
		set := bson.M{
			"status":      models.OrderCancelled,
			"cancelledAt": now,
			"updatedAt":   now,
		}
		if reason != "" {
			set["cancelReason"] = reason
		}
		if before.PaymentStatus == models.PaymentPaid {
			set["paymentStatus"] = models.PaymentRefunded
		}

		err = db.Collection("orders").FindOneAndUpdate(
			sessCtx,
			bson.M{"_id": orderID, "status": before.Status},
			bson.M{
				"$set": set,
				"$push": bson.M{"statusHistory": models.StatusChange{
					Status:    models.OrderCancelled,
					Note:      reason,
					ChangedBy: &changedBy,
					ChangedAt: now,
				}},
			},
			returnAfter(),
		).Decode(&updated)
		if err == mongo.ErrNoDocuments {
			return nil, errOrderNotCancellable
		}
		if err != nil {
			return nil, err
		}

		for _, item := range before.Items {
			_, err := db.Collection("products").UpdateOne(
				sessCtx,
				bson.M{"_id": item.ProductID},
				bson.M{
					"$inc": bson.M{"stock": item.Quantity},
					"$set": bson.M{"updatedAt": now},
				},
			)
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return updated, nil
}
