package middleware

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
	"storefront/internal/models"
)

const testSecret = "test-secret"

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	whoami := func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok, "id": id.Hex(), "admin": IsAdmin(c)})
	}
	r.GET("/user", UserAuth(testSecret), whoami)
	r.GET("/admin", AdminAuth(testSecret), whoami)
	r.GET("/optional", OptionalAuth(testSecret), whoami)
	r.GET("/staff", UserAuth(testSecret), RequireRole(models.RoleAdmin), whoami)
	return r
}

func bearer(t *testing.T, role string) (string, primitive.ObjectID) {
	t.Helper()
	id := primitive.NewObjectID()
	tok, err := auth.IssueAccessToken(id, "x@example.com", role, testSecret, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok, id
}

func do(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserAuthRequiresToken(t *testing.T) {
	r := newTestRouter()

	w := do(r, "/user", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"missing token"}`, w.Body.String())

	w = do(r, "/user", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/user", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	header, id := bearer(t, models.RoleUser)
	w = do(r, "/user", header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.Hex())
}

func TestAdminAuthRejectsNonAdmin(t *testing.T) {
	r := newTestRouter()

	header, _ := bearer(t, models.RoleUser)
	w := do(r, "/admin", header)
	assert.Equal(t, http.StatusForbidden, w.Code)

	header, _ = bearer(t, models.RoleAdmin)
	w = do(r, "/admin", header)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admin":true`)
}

func TestOptionalAuth(t *testing.T) {
	r := newTestRouter()

	w := do(r, "/optional", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	w = do(r, "/optional", "Bearer garbage")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	header, _ := bearer(t, models.RoleUser)
	w = do(r, "/optional", header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}

func TestRequireRoleAfterUserAuth(t *testing.T) {
	r := newTestRouter()

	userHeader, _ := bearer(t, models.RoleUser)
	assert.Equal(t, http.StatusForbidden, do(r, "/staff", userHeader).Code)

	adminHeader, _ := bearer(t, models.RoleAdmin)
	assert.Equal(t, http.StatusOK, do(r, "/staff", adminHeader).Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/staff", "").Code)
}
