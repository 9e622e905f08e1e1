package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/auth"
	"storefront/internal/models"
)

var testTokens = TokenSettings{
	Secret:     "test-secret",
	AccessTTL:  15 * time.Minute,
	RefreshTTL: 24 * time.Hour,
}

func authRouter(db *mongo.Database) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/auth/register", Register(db, testTokens))
	r.POST("/api/auth/login", Login(db, testTokens))
	r.POST("/api/auth/refresh", Refresh(db, testTokens))
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// mockDoc turns a model into the document shape mock cursor responses carry.
func mockDoc(t *testing.T, v interface{}) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func storedUser(t *testing.T, password string, active bool) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return models.User{
		ID:           primitive.NewObjectID(),
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     active,
	}
}

func TestRegister(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("rejects invalid body", func(mt *mtest.T) {
		rec := postJSON(authRouter(mt.DB), "/api/auth/register", gin.H{"name": "Ada", "email": "nope", "password": "123"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Message string   `json:"message"`
			Details []string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation failed", body.Message)
		assert.Contains(t, body.Details, "email must be a valid email")
		assert.Contains(t, body.Details, "password must be at least 6")
	})

	mt.Run("duplicate email conflicts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}))

		rec := postJSON(authRouter(mt.DB), "/api/auth/register", gin.H{"name": "Ada", "email": "ADA@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"message":"email already registered"}`, rec.Body.String())
	})

	mt.Run("creates user and issues tokens", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
		)

		rec := postJSON(authRouter(mt.DB), "/api/auth/register", gin.H{"name": " Ada ", "email": " ADA@example.com ", "password": "secret1"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var body struct {
			AccessToken  string          `json:"accessToken"`
			RefreshToken string          `json:"refreshToken"`
			User         json.RawMessage `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.RefreshToken)
		assert.NotContains(t, string(body.User), "passwordHash")

		var user models.User
		require.NoError(t, json.Unmarshal(body.User, &user))
		assert.Equal(t, "ada@example.com", user.Email)
		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, models.RoleUser, user.Role)

		claims, err := auth.ParseAccessToken(body.AccessToken, testTokens.Secret)
		require.NoError(t, err)
		assert.Equal(t, user.ID.Hex(), claims.UserID)
	})
}

func TestLogin(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("unknown email", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch))

		rec := postJSON(authRouter(mt.DB), "/api/auth/login", gin.H{"email": "who@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	mt.Run("wrong password", func(mt *mtest.T) {
		user := storedUser(t, "secret1", true)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, mockDoc(t, user)))

		rec := postJSON(authRouter(mt.DB), "/api/auth/login", gin.H{"email": user.Email, "password": "wrong-one"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"invalid credentials"}`, rec.Body.String())
	})

	mt.Run("inactive user", func(mt *mtest.T) {
		user := storedUser(t, "secret1", false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, mockDoc(t, user)))

		rec := postJSON(authRouter(mt.DB), "/api/auth/login", gin.H{"email": user.Email, "password": "secret1"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	mt.Run("success", func(mt *mtest.T) {
		user := storedUser(t, "secret1", true)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, mockDoc(t, user)),
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}},
			mtest.CreateSuccessResponse(),
		)

		rec := postJSON(authRouter(mt.DB), "/api/auth/login", gin.H{"email": "ADA@example.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			AccessToken string      `json:"accessToken"`
			ExpiresIn   int64       `json:"expiresIn"`
			User        models.User `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(900), body.ExpiresIn)
		assert.Equal(t, user.ID, body.User.ID)
		assert.NotNil(t, body.User.LastLogin)

		claims, err := auth.ParseAccessToken(body.AccessToken, testTokens.Secret)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, claims.Role)
	})
}

// commandNames lists the commands the mock client sent, in order.
func commandNames(mt *mtest.T) []string {
	var names []string
	for _, evt := range mt.GetAllStartedEvents() {
		names = append(names, evt.CommandName)
	}
	return names
}

// sentCommands returns every command of the given name, in order.
func sentCommands(mt *mtest.T, name string) []bson.Raw {
	var cmds []bson.Raw
	for _, evt := range mt.GetAllStartedEvents() {
		if evt.CommandName == name {
			cmds = append(cmds, evt.Command)
		}
	}
	return cmds
}

func findAndModifyResponse(value interface{}) bson.D {
	return bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: value}}
}

func TestRefresh(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	user := storedUser(t, "secret1", true)
	stored := models.RefreshToken{
		ID:        primitive.NewObjectID(),
		UserID:    user.ID,
		TokenHash: auth.HashToken("old-refresh"),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}

	mt.Run("used, expired or unknown token", func(mt *mtest.T) {
		mt.AddMockResponses(findAndModifyResponse(nil))

		rec := postJSON(authRouter(mt.DB), "/api/auth/refresh", gin.H{"refreshToken": "old-refresh"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, []string{"findAndModify"}, commandNames(mt))

		cmd := sentCommands(mt, "findAndModify")[0]
		assert.Equal(t, auth.HashToken("old-refresh"), cmd.Lookup("query", "tokenHash").StringValue())
		assert.False(t, cmd.Lookup("query", "revoked").Boolean())
		_, hasExpiry := cmd.Lookup("query", "expiresAt", "$gt").TimeOK()
		assert.True(t, hasExpiry)
		assert.True(t, cmd.Lookup("update", "$set", "revoked").Boolean())
	})

	mt.Run("claims the token before issuing a new pair", func(mt *mtest.T) {
		mt.AddMockResponses(
			findAndModifyResponse(mockDoc(t, stored)),
			mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, mockDoc(t, user)),
			mtest.CreateSuccessResponse(),
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}},
		)

		rec := postJSON(authRouter(mt.DB), "/api/auth/refresh", gin.H{"refreshToken": " old-refresh "})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"findAndModify", "find", "insert", "update"}, commandNames(mt))

		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.RefreshToken)
		assert.NotEqual(t, "old-refresh", body.RefreshToken)

		chain := sentCommands(mt, "update")[0].Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(t, stored.ID, chain.Lookup("q", "_id").ObjectID())
		_, linked := chain.Lookup("u", "$set", "replacedByToken").ObjectIDOK()
		assert.True(t, linked)
	})

	mt.Run("inactive user", func(mt *mtest.T) {
		inactive := storedUser(t, "secret1", false)
		inactive.ID = user.ID
		mt.AddMockResponses(
			findAndModifyResponse(mockDoc(t, stored)),
			mtest.CreateCursorResponse(0, "shop.users", mtest.FirstBatch, mockDoc(t, inactive)),
		)

		rec := postJSON(authRouter(mt.DB), "/api/auth/refresh", gin.H{"refreshToken": "old-refresh"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, sentCommands(mt, "insert"))
	})
}
