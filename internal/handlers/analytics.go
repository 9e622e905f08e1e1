package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

const (
	defaultSalesDays = 30
	maxSalesDays     = 365
	defaultTopLimit  = 10
	maxTopLimit      = 100
)

var notCancelled = bson.M{"status": bson.M{"$ne": models.OrderCancelled}}

type revenueTotals struct {
	Revenue float64 `bson:"revenue" json:"revenue"`
	Orders  int64   `bson:"orders" json:"orders"`
}

type statusCount struct {
	Status string `bson:"_id" json:"status"`
	Count  int64  `bson:"count" json:"count"`
}

type dailySales struct {
	Date    string  `bson:"_id" json:"date"`
	Revenue float64 `bson:"revenue" json:"revenue"`
	Orders  int64   `bson:"orders" json:"orders"`
}

type productSales struct {
	ProductID primitive.ObjectID `bson:"_id" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int64              `bson:"quantity" json:"quantity"`
	Revenue   float64            `bson:"revenue" json:"revenue"`
}

type categorySales struct {
	Category string  `bson:"_id" json:"category"`
	Quantity int64   `bson:"quantity" json:"quantity"`
	Revenue  float64 `bson:"revenue" json:"revenue"`
	Orders   int64   `bson:"orders" json:"orders"`
}

func revenuePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: notCancelled}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"revenue": bson.M{"$sum": "$totalPrice"},
			"orders":  bson.M{"$sum": 1},
		}}},
	}
}

func statusPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func salesPipeline(since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":    bson.M{"$ne": models.OrderCancelled},
			"createdAt": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$createdAt"}},
			"revenue": bson.M{"$sum": "$totalPrice"},
			"orders":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func topProductsPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: notCancelled}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$items.product",
			"name":     bson.M{"$first": "$items.name"},
			"quantity": bson.M{"$sum": "$items.quantity"},
			"revenue":  bson.M{"$sum": "$items.subtotal"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "quantity", Value: -1}, {Key: "revenue", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

// categoryPipelineByRevenue joins order lines to their product to recover
// the category, since order items do not store it.
func categoryPipelineByRevenue() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: notCancelled}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "products",
			"localField":   "items.product",
			"foreignField": "_id",
			"as":           "product",
		}}},
		{{Key: "$unwind", Value: "$product"}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$product.category",
			"quantity": bson.M{"$sum": "$items.quantity"},
			"revenue":  bson.M{"$sum": "$items.subtotal"},
			"orderIds": bson.M{"$addToSet": "$_id"},
		}}},
		{{Key: "$project", Value: bson.M{
			"quantity": 1,
			"revenue":  1,
			"orders":   bson.M{"$size": "$orderIds"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}}}},
	}
}

func boundedIntQuery(raw string, def, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, max), true
}

func money(v float64) float64 {
	return roundMoney(decimal.NewFromFloat(v))
}

func averageOrderValue(t revenueTotals) float64 {
	if t.Orders == 0 {
		return 0
	}
	return roundMoney(decimal.NewFromFloat(t.Revenue).Div(decimal.NewFromInt(t.Orders)))
}

func aggregateAll[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func GetAnalyticsOverview(db *mongo.Database, lowStockThreshold int) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/analytics"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		orders := db.Collection("orders")
		products := db.Collection("products")

		totalOrders, err := orders.CountDocuments(ctx, bson.M{})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		revenue, err := aggregateAll[revenueTotals](ctx, orders, revenuePipeline())
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		totals := revenueTotals{}
		if len(revenue) > 0 {
			totals = revenue[0]
		}

		byStatus, err := aggregateAll[statusCount](ctx, orders, statusPipeline())
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		customers, err := db.Collection("users").CountDocuments(ctx, bson.M{"role": models.RoleUser})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		visible := buildProductFilter(productQuery{})
		activeProducts, err := products.CountDocuments(ctx, visible)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		visible["stock"] = bson.M{"$lte": lowStockThreshold}
		lowStock, err := products.CountDocuments(ctx, visible)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"totalOrders":       totalOrders,
			"totalRevenue":      money(totals.Revenue),
			"averageOrderValue": averageOrderValue(totals),
			"ordersByStatus":    byStatus,
			"totalCustomers":    customers,
			"activeProducts":    activeProducts,
			"lowStockProducts":  lowStock,
			"lowStockThreshold": lowStockThreshold,
		})
	}
}

func GetSalesAnalytics(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/analytics/sales"
		defer handlePanic(c, route)

		days, ok := boundedIntQuery(c.Query("days"), defaultSalesDays, maxSalesDays)
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid days")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
		sales, err := aggregateAll[dailySales](ctx, db.Collection("orders"), salesPipeline(since))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		for i := range sales {
			sales[i].Revenue = money(sales[i].Revenue)
		}

		c.JSON(http.StatusOK, gin.H{"days": days, "since": since, "sales": sales})
	}
}

func GetTopProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/analytics/top-products"
		defer handlePanic(c, route)

		limit, ok := boundedIntQuery(c.Query("limit"), defaultTopLimit, maxTopLimit)
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid limit")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		top, err := aggregateAll[productSales](ctx, db.Collection("orders"), topProductsPipeline(limit))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		for i := range top {
			top[i].Revenue = money(top[i].Revenue)
		}

		c.JSON(http.StatusOK, gin.H{"products": top})
	}
}

func GetCategoryAnalytics(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/analytics/categories"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		categories, err := aggregateAll[categorySales](ctx, db.Collection("orders"), categoryPipelineByRevenue())
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		for i := range categories {
			categories[i].Revenue = money(categories[i].Revenue)
		}

		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}
