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

	"storefront/internal/models"
)

type addToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"omitempty,min=1,max=1000"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0,max=1000"`
}

func findProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := db.Collection("products").FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return models.Product{}, productNotFoundError{ProductID: id}
	}
	return product, err
}

func respondCartError(c *gin.Context, route string, err error) {
	if errors.Is(err, errCartItemNotFound) {
		respondWithError(c, http.StatusNotFound, route, err.Error())
		return
	}
	respondOrderError(c, route, err)
}

func setUserFields(ctx context.Context, db *mongo.Database, userID primitive.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now()
	_, err := db.Collection("users").UpdateByID(ctx, userID, bson.M{"$set": set})
	return err
}

func GetCart(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/cart"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, summarizeCart(user.Cart))
	}
}

func AddToCart(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/cart"
		defer handlePanic(c, route)

		var req addToCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.ProductID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}
		product, err := findProduct(ctx, db, productID)
		if err != nil {
			respondCartError(c, route, err)
			return
		}

		cart, err := addCartItem(user.Cart, product, req.Quantity, time.Now())
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		if err := setUserFields(ctx, db, user.ID, bson.M{"cart": cart}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Printf("[CART] [INFO] user %s added %d x %s", user.ID.Hex(), req.Quantity, productID.Hex())
		c.JSON(http.StatusOK, summarizeCart(cart))
	}
}

func UpdateCartItem(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/auth/cart/:productId"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "productId")
		if !ok {
			return
		}

		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		// removal needs no product lookup, the product may be gone already
		product := models.Product{ID: productID}
		if *req.Quantity > 0 {
			var err error
			if product, err = findProduct(ctx, db, productID); err != nil {
				respondCartError(c, route, err)
				return
			}
		}

		cart, err := setCartQuantity(user.Cart, product, *req.Quantity)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		if err := setUserFields(ctx, db, user.ID, bson.M{"cart": cart}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, summarizeCart(cart))
	}
}

func RemoveFromCart(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/auth/cart/:productId"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "productId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		cart, found := removeCartItem(user.Cart, productID)
		if !found {
			respondWithError(c, http.StatusNotFound, route, errCartItemNotFound.Error())
			return
		}
		if err := setUserFields(ctx, db, user.ID, bson.M{"cart": cart}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, summarizeCart(cart))
	}
}

func ClearCart(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/auth/cart"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		if err := setUserFields(ctx, db, userID, bson.M{"cart": []models.CartItem{}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, summarizeCart(nil))
	}
}

func SaveForLater(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/cart/:productId/save"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "productId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		cart, saved, err := saveForLater(user, productID, time.Now())
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		if err := setUserFields(ctx, db, user.ID, bson.M{"cart": cart, "savedItems": saved}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"cart":       summarizeCart(cart),
			"savedItems": saved,
		})
	}
}

func MoveToCart(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/saved/:productId/move"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "productId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		saved, found := removeSavedItem(user.SavedItems, productID)
		if !found {
			respondWithError(c, http.StatusNotFound, route, "item not in saved items")
			return
		}

		product, err := findProduct(ctx, db, productID)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		cart, err := addCartItem(user.Cart, product, 1, time.Now())
		if err != nil {
			respondCartError(c, route, err)
			return
		}

		if err := setUserFields(ctx, db, user.ID, bson.M{"cart": cart, "savedItems": saved}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"cart":       summarizeCart(cart),
			"savedItems": saved,
		})
	}
}

// GetSavedItems returns saved items joined with their current product data.
func GetSavedItems(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/saved"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		ids := make([]primitive.ObjectID, 0, len(user.SavedItems))
		for _, item := range user.SavedItems {
			ids = append(ids, item.ProductID)
		}
		products, err := productsInOrder(ctx, db, ids)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"savedItems": products})
	}
}

func RemoveSavedItem(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/auth/saved/:productId"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, route, "productId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		saved, found := removeSavedItem(user.SavedItems, productID)
		if !found {
			respondWithError(c, http.StatusNotFound, route, "item not in saved items")
			return
		}
		if err := setUserFields(ctx, db, user.ID, bson.M{"savedItems": saved}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"savedItems": saved})
	}
}

// productsInOrder loads visible products for ids, keeping the order of ids
// and skipping products that were removed from the catalog.
func productsInOrder(ctx context.Context, db *mongo.Database, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	cursor, err := db.Collection("products").Find(ctx, bson.M{
		"_id":       bson.M{"$in": ids},
		"isActive":  true,
		"isDeleted": bson.M{"$ne": true},
	}, productListProjection())
	if err != nil {
		return nil, err
	}
	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	ordered := make([]models.Product, 0, len(products))
	for _, id := range ids {
		if product, ok := byID[id]; ok {
			ordered = append(ordered, product)
		}
	}
	return ordered, nil
}
