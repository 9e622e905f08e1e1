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
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/auth"
	"storefront/internal/models"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// TokenSettings groups what every token-issuing handler needs.
type TokenSettings struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type issuedTokens struct {
	AccessToken    string
	RefreshToken   string
	RefreshTokenID primitive.ObjectID
	ExpiresIn      int64
}

func authResponse(tokens *issuedTokens, user models.User) gin.H {
	return gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
		"user":         user,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func Register(db *mongo.Database, settings TokenSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/register"
		defer handlePanic(c, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		email := normalizeEmail(req.Email)
		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "name is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		count, err := db.Collection("users").CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			log.Println("[AUTH] [ERROR] register db error:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("[AUTH] [ERROR] register password hash failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		now := time.Now()
		user := models.User{
			Name:           name,
			Email:          email,
			PasswordHash:   string(hash),
			Role:           models.RoleUser,
			Preferences:    models.DefaultPreferences(),
			Cart:           []models.CartItem{},
			SavedItems:     []models.SavedItem{},
			RecentlyViewed: []models.ViewedItem{},
			SearchHistory:  []models.SearchEntry{},
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		res, err := db.Collection("users").InsertOne(ctx, user)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err != nil {
			log.Println("[AUTH] [ERROR] register insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		user.ID, _ = res.InsertedID.(primitive.ObjectID)

		tokens, err := issueTokens(ctx, db, user, settings)
		if err != nil {
			log.Println("[AUTH] [ERROR] register token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] user registered:", email)
		c.JSON(http.StatusCreated, authResponse(tokens, user))
	}
}

func Login(db *mongo.Database, settings TokenSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		email := normalizeEmail(req.Email)

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"email": email}).Decode(&user)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if err != nil {
			log.Println("[AUTH] [ERROR] login user lookup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if !user.IsActive {
			respondWithError(c, http.StatusForbidden, route, "user is inactive")
			return
		}

		now := time.Now()
		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{"lastLogin": now}}); err != nil {
			log.Println("[AUTH] [WARN] lastLogin update failed:", err)
		}
		user.LastLogin = &now

		tokens, err := issueTokens(ctx, db, user, settings)
		if err != nil {
			log.Println("[AUTH] [ERROR] login token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] login succeeded:", user.Email)
		c.JSON(http.StatusOK, authResponse(tokens, user))
	}
}

func Refresh(db *mongo.Database, settings TokenSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/refresh"
		defer handlePanic(c, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		// claiming the token in one write means a replayed or concurrent
		// refresh of the same token matches nothing
		var token models.RefreshToken
		err := db.Collection("refresh_tokens").FindOneAndUpdate(ctx,
			bson.M{
				"tokenHash": auth.HashToken(strings.TrimSpace(req.RefreshToken)),
				"revoked":   false,
				"expiresAt": bson.M{"$gt": time.Now()},
			},
			bson.M{"$set": bson.M{"revoked": true}},
		).Decode(&token)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusUnauthorized, route, "invalid refresh token")
			return
		}
		if err != nil {
			log.Println("[AUTH] [ERROR] refresh token claim failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": token.UserID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "user not found")
			return
		}
		if !user.IsActive {
			respondWithError(c, http.StatusForbidden, route, "user is inactive")
			return
		}

		tokens, err := issueTokens(ctx, db, user, settings)
		if err != nil {
			log.Println("[AUTH] [ERROR] refresh token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		if _, err := db.Collection("refresh_tokens").UpdateByID(ctx, token.ID, bson.M{
			"$set": bson.M{"replacedByToken": tokens.RefreshTokenID},
		}); err != nil {
			log.Println("[AUTH] [WARN] refresh token chain not recorded:", err)
		}

		c.JSON(http.StatusOK, authResponse(tokens, user))
	}
}

func Logout(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/logout"
		defer handlePanic(c, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		res, err := db.Collection("refresh_tokens").UpdateOne(ctx, bson.M{
			"tokenHash": auth.HashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":   false,
		}, bson.M{"$set": bson.M{"revoked": true}})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusUnauthorized, route, "invalid refresh token")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// issueTokens signs an access token and stores the hash of a fresh refresh token.
func issueTokens(ctx context.Context, db *mongo.Database, user models.User, settings TokenSettings) (*issuedTokens, error) {
	if user.ID.IsZero() {
		return nil, errors.New("user has no id")
	}

	accessToken, err := auth.IssueAccessToken(user.ID, user.Email, user.Role, settings.Secret, settings.AccessTTL)
	if err != nil {
		return nil, err
	}

	plainRefresh, err := auth.NewRefreshString()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refresh := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(plainRefresh),
		ExpiresAt: now.Add(settings.RefreshTTL),
		CreatedAt: now,
	}

	res, err := db.Collection("refresh_tokens").InsertOne(ctx, refresh)
	if err != nil {
		return nil, err
	}
	refreshID, _ := res.InsertedID.(primitive.ObjectID)

	return &issuedTokens{
		AccessToken:    accessToken,
		RefreshToken:   plainRefresh,
		RefreshTokenID: refreshID,
		ExpiresIn:      int64(settings.AccessTTL.Seconds()),
	}, nil
}
