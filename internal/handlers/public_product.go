package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cache"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

const (
	catalogCacheOp       = "catalog"
	defaultFeaturedLimit = 8
	maxFeaturedLimit     = 50
)

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"required,max=1000"`
}

type categoryCount struct {
	Name  string `bson:"_id" json:"name"`
	Count int    `bson:"count" json:"count"`
}

// invalidateCatalog drops every cached catalog response.
func invalidateCatalog(ctx context.Context, c cache.Cache) {
	if err := c.DeletePrefix(ctx, c.GenerateKey(catalogCacheOp, "")); err != nil {
		log.Println("[CACHE] [WARN] catalog invalidation failed:", err)
	}
}

/*
GET /api/products
- filters, sort and pagination always applied
- response: products + pagination
*/
func GetProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		query, err := parseProductQuery(c.Query)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		filter := buildProductFilter(query)
		total, err := db.Collection("products").CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		findOptions := productListProjection().
			SetSort(productSort(query.Sort)).
			SetSkip((page - 1) * limit).
			SetLimit(limit)

		cursor, err := db.Collection("products").Find(ctx, filter, findOptions)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		if userID, ok := middleware.CurrentUserID(c); ok && query.Search != "" {
			if err := recordSearch(ctx, db, userID, query.Search); err != nil {
				log.Println("[ACTIVITY] [WARN] search history update failed:", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"products":   products,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

func GetFeaturedProducts(db *mongo.Database, catalog cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/featured"
		defer handlePanic(c, route)

		limit := defaultFeaturedLimit
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondWithError(c, http.StatusBadRequest, route, "invalid limit")
				return
			}
			limit = min(n, maxFeaturedLimit)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		key := catalog.GenerateKey(catalogCacheOp, "featured:"+strconv.Itoa(limit))
		var products []models.Product
		if cache.GetJSON(ctx, catalog, key, &products) {
			c.JSON(http.StatusOK, gin.H{"products": products})
			return
		}

		cursor, err := db.Collection("products").Find(ctx,
			buildProductFilter(productQuery{Featured: true}),
			productListProjection().
				SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "createdAt", Value: -1}}).
				SetLimit(int64(limit)),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		products, err = decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		cache.SetJSON(ctx, catalog, key, products, ttl)
		c.JSON(http.StatusOK, gin.H{"products": products})
	}
}

func categoryPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true, "isDeleted": bson.M{"$ne": true}, "category": bson.M{"$nin": bson.A{"", nil}}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func GetCategories(db *mongo.Database, catalog cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		key := catalog.GenerateKey(catalogCacheOp, "categories")
		var categories []categoryCount
		if cache.GetJSON(ctx, catalog, key, &categories) {
			c.JSON(http.StatusOK, gin.H{"categories": categories})
			return
		}

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		cursor, err := db.Collection("products").Aggregate(ctx, categoryPipeline())
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		categories = make([]categoryCount, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		log.Printf("[%s] returning %d categories", route, len(categories))
		cache.SetJSON(ctx, catalog, key, categories, ttl)
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

func GetProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		var raw bson.M
		err := db.Collection("products").FindOne(ctx, bson.M{
			"_id":       id,
			"isActive":  true,
			"isDeleted": bson.M{"$ne": true},
		}).Decode(&raw)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		if userID, ok := middleware.CurrentUserID(c); ok {
			recordProductView(ctx, db, userID, product.ID)
		}

		c.JSON(http.StatusOK, product)
	}
}

func AddProductReview(db *mongo.Database, catalog cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products/:id/reviews"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		comment := strings.TrimSpace(req.Comment)
		if comment == "" {
			respondWithError(c, http.StatusBadRequest, route, "comment is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		visible := bson.M{"_id": productID, "isActive": true, "isDeleted": bson.M{"$ne": true}}
		filter := bson.M{"reviews.user": bson.M{"$ne": user.ID}}
		for k, v := range visible {
			filter[k] = v
		}

		review := models.Review{
			UserID:    user.ID,
			Name:      user.Name,
			Rating:    req.Rating,
			Comment:   comment,
			CreatedAt: time.Now(),
		}

		var product models.Product
		err := db.Collection("products").FindOneAndUpdate(ctx, filter,
			bson.M{"$push": bson.M{"reviews": review}},
			returnAfter(),
		).Decode(&product)
		if err == mongo.ErrNoDocuments {
			count, countErr := db.Collection("products").CountDocuments(ctx, visible)
			if countErr == nil && count > 0 {
				respondWithError(c, http.StatusConflict, route, "product already reviewed")
				return
			}
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product.Rating = averageRating(product.Reviews)
		product.NumReviews = len(product.Reviews)
		if _, err := db.Collection("products").UpdateByID(ctx, productID, bson.M{"$set": bson.M{
			"rating":     product.Rating,
			"numReviews": product.NumReviews,
		}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		invalidateCatalog(ctx, catalog)
		log.Printf("[REVIEW] [INFO] user %s reviewed %s rating=%d", user.ID.Hex(), productID.Hex(), req.Rating)
		c.JSON(http.StatusCreated, gin.H{
			"message":    "review added",
			"review":     review,
			"rating":     product.Rating,
			"numReviews": product.NumReviews,
		})
	}
}
