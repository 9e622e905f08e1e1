package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/models"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(Deps{
		Cache:     cache.NewMemoryCache("test"),
		Publisher: events.NewNoopPublisher(),
		Config: config.Config{
			JWTSecret:      testSecret,
			AccessTokenTTL: time.Minute,
			UploadDir:      t.TempDir(),
			CacheTTL:       time.Minute,
		},
	})
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(primitive.NewObjectID(), "someone@example.com", role, testSecret, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r *gin.Engine, method, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesRegistered(t *testing.T) {
	r := newTestRouter(t)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"GET /api/auth/me",
		"PUT /api/auth/preferences",
		"POST /api/auth/cart",
		"PUT /api/auth/cart/:productId",
		"POST /api/auth/saved/:productId/move",
		"GET /api/auth/recently-viewed",
		"GET /api/products",
		"GET /api/products/featured",
		"GET /api/products/:id",
		"GET /api/categories",
		"POST /api/products/:id/images",
		"POST /api/orders",
		"GET /api/orders/my-orders",
		"PUT /api/orders/:id/status",
		"PUT /api/orders/:id/cancel",
		"GET /api/orders/admin/analytics/top-products",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/auth/cart"},
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/orders/my-orders"},
		{http.MethodPost, "/api/products/abc/reviews"},
		{http.MethodPost, "/api/products"},
	} {
		w := serve(r, tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	r := newTestRouter(t)
	customer := token(t, models.RoleUser)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodPut, "/api/orders/abc/status"},
		{http.MethodGet, "/api/orders/admin/analytics"},
		{http.MethodPost, "/api/products"},
		{http.MethodDelete, "/api/products/abc"},
		{http.MethodGet, "/api/products/admin/all"},
	} {
		w := serve(r, tc.method, tc.path, customer)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAdminRoutesValidateIDs(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodDelete, "/api/products/not-an-id", token(t, models.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	w := serve(newTestRouter(t), http.MethodGet, "/api/nope", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"route not found"}`, w.Body.String())
}
