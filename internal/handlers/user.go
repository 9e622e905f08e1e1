package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

type addressRequest struct {
	Street     string `json:"street" binding:"max=200"`
	City       string `json:"city" binding:"max=100"`
	State      string `json:"state" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"max=20"`
	Country    string `json:"country" binding:"max=100"`
}

func (r addressRequest) toAddress() models.Address {
	return models.Address{
		Street:     strings.TrimSpace(r.Street),
		City:       strings.TrimSpace(r.City),
		State:      strings.TrimSpace(r.State),
		PostalCode: strings.TrimSpace(r.PostalCode),
		Country:    strings.TrimSpace(r.Country),
	}
}

type updateProfileRequest struct {
	Name    *string         `json:"name" binding:"omitempty,min=1,max=100"`
	Email   *string         `json:"email" binding:"omitempty,email"`
	Phone   *string         `json:"phone" binding:"omitempty,max=30"`
	Avatar  *string         `json:"avatar" binding:"omitempty,max=500"`
	Address *addressRequest `json:"address"`
}

type notificationRequest struct {
	Email *bool `json:"email"`
	SMS   *bool `json:"sms"`
}

type updatePreferencesRequest struct {
	Newsletter    *bool                `json:"newsletter"`
	Currency      *string              `json:"currency" binding:"omitempty,len=3"`
	Language      *string              `json:"language" binding:"omitempty,min=2,max=5"`
	Theme         *string              `json:"theme" binding:"omitempty,oneof=light dark system"`
	Notifications *notificationRequest `json:"notifications"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

// loadCurrentUser reads the caller's document or answers 401/404/500.
func loadCurrentUser(ctx context.Context, c *gin.Context, db *mongo.Database, route string) (models.User, bool) {
	userID, ok := requireUserID(c, route)
	if !ok {
		return models.User{}, false
	}

	var user models.User
	err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		respondWithError(c, http.StatusNotFound, route, "user not found")
		return models.User{}, false
	}
	if err != nil {
		log.Printf("[USER] [ERROR] %s user lookup failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return models.User{}, false
	}
	return user, true
}

func GetMe(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/me"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		user, ok := loadCurrentUser(ctx, c, db, route)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// profileUpdates turns a partial profile request into a $set document.
// Empty strings clear optional fields; address replaces the stored one.
func profileUpdates(req updateProfileRequest) bson.M {
	set := bson.M{}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			set["name"] = name
		}
	}
	if req.Email != nil {
		set["email"] = normalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		set["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Avatar != nil {
		set["avatar"] = strings.TrimSpace(*req.Avatar)
	}
	if req.Address != nil {
		set["address"] = req.Address.toAddress()
	}
	return set
}

func UpdateProfile(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/auth/profile"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		set := profileUpdates(req)
		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		if email, ok := set["email"].(string); ok {
			count, err := db.Collection("users").CountDocuments(ctx, bson.M{
				"email": email,
				"_id":   bson.M{"$ne": userID},
			})
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			if count > 0 {
				respondWithError(c, http.StatusConflict, route, "email already registered")
				return
			}
		}

		set["updatedAt"] = time.Now()
		var user models.User
		err := db.Collection("users").FindOneAndUpdate(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": set},
			returnAfter(),
		).Decode(&user)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if err != nil {
			log.Println("[USER] [ERROR] profile update failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Println("[USER] [INFO] profile updated:", userID.Hex())
		c.JSON(http.StatusOK, user)
	}
}

// preferenceUpdates maps only the fields present in the request to dotted paths.
func preferenceUpdates(req updatePreferencesRequest) bson.M {
	set := bson.M{}
	if req.Newsletter != nil {
		set["preferences.newsletter"] = *req.Newsletter
	}
	if req.Currency != nil {
		set["preferences.currency"] = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.Language != nil {
		set["preferences.language"] = strings.ToLower(strings.TrimSpace(*req.Language))
	}
	if req.Theme != nil {
		set["preferences.theme"] = *req.Theme
	}
	if n := req.Notifications; n != nil {
		if n.Email != nil {
			set["preferences.notifications.email"] = *n.Email
		}
		if n.SMS != nil {
			set["preferences.notifications.sms"] = *n.SMS
		}
	}
	return set
}

func UpdatePreferences(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/auth/preferences"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		var req updatePreferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		set := preferenceUpdates(req)
		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no preferences to update")
			return
		}
		set["updatedAt"] = time.Now()

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOneAndUpdate(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": set},
			returnAfter(),
		).Decode(&user)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"preferences": user.Preferences})
	}
}

func ChangePassword(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/auth/password"
		defer handlePanic(c, route)

		var req changePasswordRequest
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

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "current password is incorrect")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{
			"$set": bson.M{"passwordHash": string(hash), "updatedAt": time.Now()},
		}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		// outstanding refresh tokens were issued under the old password
		if _, err := db.Collection("refresh_tokens").UpdateMany(ctx,
			bson.M{"user": user.ID, "revoked": false},
			bson.M{"$set": bson.M{"revoked": true}},
		); err != nil {
			log.Println("[USER] [WARN] refresh token revoke failed:", err)
		}

		log.Println("[USER] [INFO] password changed:", user.ID.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

func DeleteAccount(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/auth/account"
		defer handlePanic(c, route)

		userID, ok := requireUserID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		res, err := db.Collection("users").DeleteOne(ctx, bson.M{"_id": userID})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		if _, err := db.Collection("refresh_tokens").DeleteMany(ctx, bson.M{"user": userID}); err != nil {
			log.Println("[USER] [WARN] refresh token cleanup failed:", err)
		}

		log.Println("[USER] [INFO] account deleted:", userID.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
	}
}
