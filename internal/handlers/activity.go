package handlers

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

const maxSearchQueryLength = 200

type searchHistoryRequest struct {
	Query string `json:"query" binding:"required,max=200"`
}

// normalizeSearchQuery trims, collapses inner whitespace and caps the query
// at maxSearchQueryLength characters.
func normalizeSearchQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if runes := []rune(q); len(runes) > maxSearchQueryLength {
		q = strings.TrimSpace(string(runes[:maxSearchQueryLength]))
	}
	return q
}

// recentlyViewedUpdates removes an earlier view of the product and pushes the
// new one to the front, capped. Two updates because one update may not both
// $pull and $push the same array.
func recentlyViewedUpdates(productID primitive.ObjectID, now time.Time) []bson.M {
	return []bson.M{
		{"$pull": bson.M{"recentlyViewed": bson.M{"product": productID}}},
		{"$push": bson.M{"recentlyViewed": bson.M{
			"$each":     []models.ViewedItem{{ProductID: productID, ViewedAt: now}},
			"$position": 0,
			"$slice":    models.MaxRecentlyViewed,
		}}},
	}
}

// searchHistoryUpdates dedupes case-insensitively and keeps the newest first.
func searchHistoryUpdates(query string, now time.Time) []bson.M {
	return []bson.M{
		{"$pull": bson.M{"searchHistory": bson.M{
			"query": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(query) + "$", Options: "i"},
		}}},
		{"$push": bson.M{"searchHistory": bson.M{
			"$each":     []models.SearchEntry{{Query: query, SearchedAt: now}},
			"$position": 0,
			"$slice":    models.MaxSearchHistory,
		}}},
	}
}

func applyUserUpdates(ctx context.Context, db *mongo.Database, userID primitive.ObjectID, updates []bson.M) error {
	for _, update := range updates {
		if _, err := db.Collection("users").UpdateByID(ctx, userID, update); err != nil {
			return err
		}
	}
	return nil
}

// recordProductView is best effort; a failure never fails the product read.
func recordProductView(ctx context.Context, db *mongo.Database, userID, productID primitive.ObjectID) {
	if err := applyUserUpdates(ctx, db, userID, recentlyViewedUpdates(productID, time.Now())); err != nil {
		log.Println("[ACTIVITY] [WARN] recently viewed update failed:", err)
	}
}

func recordSearch(ctx context.Context, db *mongo.Database, userID primitive.ObjectID, query string) error {
	query = normalizeSearchQuery(query)
	if query == "" {
		return nil
	}
	return applyUserUpdates(ctx, db, userID, searchHistoryUpdates(query, time.Now()))
}

func GetRecentlyViewed(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/recently-viewed"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		ids := make([]primitive.ObjectID, 0, len(user.RecentlyViewed))
		for _, item := range user.RecentlyViewed {
			ids = append(ids, item.ProductID)
		}
		products, err := productsInOrder(ctx, db, ids)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"products": products})
	}
}

func AddSearchHistory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/search-history"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		var req searchHistoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		if normalizeSearchQuery(req.Query) == "" {
			respondWithError(c, http.StatusBadRequest, route, "query is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		if err := recordSearch(ctx, db, userID, req.Query); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "search recorded"})
	}
}

func GetSearchHistory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/search-history"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}

		history := user.SearchHistory
		if history == nil {
			history = []models.SearchEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"searchHistory": history})
	}
}

func ClearSearchHistory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/auth/search-history"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		if err := setUserFields(ctx, db, userID, bson.M{"searchHistory": []models.SearchEntry{}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "search history cleared"})
	}
}
