package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cache"
	"storefront/internal/models"
)

/* =======================
   REQUEST MODELS
======================= */

type productImageRequest struct {
	URL string `json:"url" binding:"required,max=500"`
	Alt string `json:"alt" binding:"max=200"`
}

type CreateProductRequest struct {
	Name          string                `json:"name" binding:"required,max=200"`
	Description   string                `json:"description" binding:"required,max=5000"`
	Price         float64               `json:"price" binding:"required,gt=0"`
	DiscountPrice float64               `json:"discountPrice" binding:"gte=0"`
	Category      string                `json:"category" binding:"required,max=100"`
	Brand         string                `json:"brand" binding:"max=100"`
	Tags          models.StringList     `json:"tags"`
	Stock         *int                  `json:"stock" binding:"required,min=0"`
	Images        []productImageRequest `json:"images" binding:"omitempty,dive"`
	IsFeatured    bool                  `json:"isFeatured"`
	IsActive      *bool                 `json:"isActive"`
}

type ProductUpdateRequest struct {
	Name          *string                `json:"name" binding:"omitempty,min=1,max=200"`
	Description   *string                `json:"description" binding:"omitempty,max=5000"`
	Price         *float64               `json:"price" binding:"omitempty,gt=0"`
	DiscountPrice *float64               `json:"discountPrice" binding:"omitempty,gte=0"`
	Category      *string                `json:"category" binding:"omitempty,min=1,max=100"`
	Brand         *string                `json:"brand" binding:"omitempty,max=100"`
	Tags          *models.StringList     `json:"tags"`
	Stock         *int                   `json:"stock" binding:"omitempty,min=0"`
	Images        *[]productImageRequest `json:"images" binding:"omitempty,dive"`
	IsFeatured    *bool                  `json:"isFeatured"`
	IsActive      *bool                  `json:"isActive"`
}

var errNoProductFields = errors.New("no fields to update")

/* =======================
   HELPERS
======================= */

func toProductImages(in []productImageRequest) []models.ProductImage {
	out := make([]models.ProductImage, 0, len(in))
	for _, img := range in {
		url := strings.TrimSpace(img.URL)
		if url == "" {
			continue
		}
		out = append(out, models.ProductImage{URL: url, Alt: strings.TrimSpace(img.Alt)})
	}
	return out
}

func mapKeys(input bson.M) []string {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// newProduct validates a create request and builds the document to insert.
func newProduct(req CreateProductRequest, createdBy primitive.ObjectID, now time.Time) (models.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.Product{}, errors.New("name required")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return models.Product{}, errors.New("category required")
	}
	if err := validateDiscountPrice(req.Price, req.DiscountPrice); err != nil {
		return models.Product{}, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	product := models.Product{
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Category:      category,
		Brand:         strings.TrimSpace(req.Brand),
		Tags:          models.NormalizeTags(req.Tags),
		Stock:         *req.Stock,
		Images:        toProductImages(req.Images),
		Reviews:       []models.Review{},
		IsFeatured:    req.IsFeatured,
		IsActive:      isActive,
		CreatedBy:     &createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	decorateProduct(&product)
	return product, nil
}

// productUpdateSet merges a partial update with the stored product and
// returns the $set document.
func productUpdateSet(existing models.Product, req ProductUpdateRequest, now time.Time) (bson.M, error) {
	set := bson.M{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errors.New("name required")
		}
		set["name"] = name
	}
	if req.Description != nil {
		set["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, errors.New("category required")
		}
		set["category"] = category
	}
	if req.Brand != nil {
		set["brand"] = strings.TrimSpace(*req.Brand)
	}
	if req.Tags != nil {
		set["tags"] = models.NormalizeTags(*req.Tags)
	}
	if req.Stock != nil {
		set["stock"] = *req.Stock
	}
	if req.Images != nil {
		set["images"] = toProductImages(*req.Images)
	}
	if req.IsFeatured != nil {
		set["isFeatured"] = *req.IsFeatured
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}

	if req.Price != nil || req.DiscountPrice != nil {
		resolved, err := resolveDiscountUpdate(existing.Price, existing.DiscountPrice, discountUpdateInput{
			Price:         req.Price,
			DiscountPrice: req.DiscountPrice,
		})
		if err != nil {
			return nil, err
		}
		set["price"] = resolved.Price
		set["discountPrice"] = resolved.DiscountPrice
	}

	if len(set) == 0 {
		return nil, errNoProductFields
	}
	set["updatedAt"] = now
	return set, nil
}

func findEditableProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := db.Collection("products").FindOne(ctx, bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&product)
	return product, err
}

/* =======================
   GET (ADMIN) – LIST
======================= */

func GetAllProductsAdmin(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/admin/all"
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

		filter := buildProductFilter(query)
		delete(filter, "isActive")
		if isActive := strings.TrimSpace(c.Query("isActive")); isActive != "" {
			filter["isActive"] = strings.EqualFold(isActive, "true")
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		total, err := db.Collection("products").CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		opts := productListProjection().
			SetSkip((page - 1) * limit).
			SetLimit(limit).
			SetSort(productSort(query.Sort))

		cursor, err := db.Collection("products").Find(ctx, filter, opts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"products":   products,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

/* =======================
   CREATE
======================= */

func CreateProduct(db *mongo.Database, catalog cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, route)

		adminID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		var req CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		product, err := newProduct(req, adminID, time.Now())
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		res, err := db.Collection("products").InsertOne(ctx, product)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		product.ID, _ = res.InsertedID.(primitive.ObjectID)

		invalidateCatalog(ctx, catalog)
		log.Println("[PRODUCT] [INFO] created:", product.ID.Hex())
		c.JSON(http.StatusCreated, product)
	}
}

/* =======================
   UPDATE
======================= */

func UpdateProduct(db *mongo.Database, catalog cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req ProductUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		existing, err := findEditableProduct(ctx, db, id)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		set, err := productUpdateSet(existing, req, time.Now())
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		log.Printf("[PRODUCT] [INFO] update %s fields=%v", id.Hex(), mapKeys(set))

		var updated models.Product
		err = db.Collection("products").FindOneAndUpdate(ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
			bson.M{"$set": set},
			returnAfter(),
		).Decode(&updated)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		invalidateCatalog(ctx, catalog)
		decorateProduct(&updated)
		c.JSON(http.StatusOK, updated)
	}
}

/* =======================
   DELETE (SOFT)
======================= */

// DeleteProduct hides the product but keeps the document and its image
// files, since existing orders still reference both.
func DeleteProduct(db *mongo.Database, catalog cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		now := time.Now()
		res, err := db.Collection("products").UpdateOne(ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{
				"isDeleted": true,
				"deletedAt": now,
				"isActive":  false,
				"updatedAt": now,
			}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}

		// drop it from carts so checkout never meets a deleted product
		if _, err := db.Collection("users").UpdateMany(ctx,
			bson.M{"cart.product": id},
			bson.M{"$pull": bson.M{"cart": bson.M{"product": id}}},
		); err != nil {
			log.Println("[PRODUCT] [WARN] cart cleanup failed:", err)
		}

		invalidateCatalog(ctx, catalog)
		log.Println("[PRODUCT] [INFO] soft deleted:", id.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	}
}
