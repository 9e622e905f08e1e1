package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

// Deps is everything the HTTP layer needs from the outside.
type Deps struct {
	DB        *mongo.Database
	Cache     cache.Cache
	Publisher events.Publisher
	Config    config.Config
}

// NewRouter wires every /api route onto a gin engine.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	tokens := handlers.TokenSettings{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	db := d.DB

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Static("/uploads", filepath.Join(cfg.UploadDir, "uploads"))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})

	api := r.Group("/api")
	api.GET("/health", health(db))

	userAuth := middleware.UserAuth(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuth(cfg.JWTSecret)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register(db, tokens))
		authGroup.POST("/login", handlers.Login(db, tokens))
		authGroup.POST("/refresh", handlers.Refresh(db, tokens))
		authGroup.POST("/logout", handlers.Logout(db))

		me := authGroup.Group("", userAuth)
		me.GET("/me", handlers.GetMe(db))
		me.PUT("/profile", handlers.UpdateProfile(db))
		me.PUT("/preferences", handlers.UpdatePreferences(db))
		me.PUT("/password", handlers.ChangePassword(db))
		me.DELETE("/account", handlers.DeleteAccount(db))

		me.GET("/cart", handlers.GetCart(db))
		me.POST("/cart", handlers.AddToCart(db))
		me.DELETE("/cart", handlers.ClearCart(db))
		me.PUT("/cart/:productId", handlers.UpdateCartItem(db))
		me.DELETE("/cart/:productId", handlers.RemoveFromCart(db))
		me.POST("/cart/:productId/save", handlers.SaveForLater(db))

		me.GET("/saved", handlers.GetSavedItems(db))
		me.POST("/saved/:productId/move", handlers.MoveToCart(db))
		me.DELETE("/saved/:productId", handlers.RemoveSavedItem(db))

		me.GET("/recently-viewed", handlers.GetRecentlyViewed(db))
		me.GET("/search-history", handlers.GetSearchHistory(db))
		me.POST("/search-history", handlers.AddSearchHistory(db))
		me.DELETE("/search-history", handlers.ClearSearchHistory(db))
	}

	categories := handlers.GetCategories(db, d.Cache, cfg.CacheTTL)
	api.GET("/categories", categories)

	products := api.Group("/products")
	{
		products.GET("", optionalAuth, handlers.GetProducts(db))
		products.GET("/featured", handlers.GetFeaturedProducts(db, d.Cache, cfg.CacheTTL))
		products.GET("/categories", categories)
		products.GET("/:id", optionalAuth, handlers.GetProduct(db))
		products.POST("/:id/reviews", userAuth, handlers.AddProductReview(db, d.Cache))

		admin := products.Group("", middleware.AdminAuth(cfg.JWTSecret))
		admin.GET("/admin/all", handlers.GetAllProductsAdmin(db))
		admin.POST("", handlers.CreateProduct(db, d.Cache))
		admin.PUT("/:id", handlers.UpdateProduct(db, d.Cache))
		admin.DELETE("/:id", handlers.DeleteProduct(db, d.Cache))
		admin.POST("/:id/images", handlers.UploadProductImage(db, d.Cache, cfg.UploadDir))
		admin.DELETE("/:id/images", handlers.DeleteProductImage(db, d.Cache, cfg.UploadDir))
	}

	orders := api.Group("/orders", userAuth)
	{
		orders.POST("", handlers.CreateOrder(db, d.Publisher))
		orders.GET("/my-orders", handlers.GetMyOrders(db))
		orders.GET("/:id", handlers.GetOrderByID(db))
		orders.PUT("/:id/pay", handlers.PayOrder(db, d.Publisher))
		orders.PUT("/:id/cancel", handlers.CancelOrder(db, d.Publisher))

		admin := orders.Group("", adminOnly)
		admin.GET("", handlers.GetAllOrders(db))
		admin.PUT("/:id/status", handlers.UpdateOrderStatus(db, d.Publisher))
		admin.GET("/admin/analytics", handlers.GetAnalyticsOverview(db, cfg.LowStockThreshold))
		admin.GET("/admin/analytics/sales", handlers.GetSalesAnalytics(db))
		admin.GET("/admin/analytics/top-products", handlers.GetTopProducts(db))
		admin.GET("/admin/analytics/categories", handlers.GetCategoryAnalytics(db))
	}

	return r
}

func health(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Client().Ping(ctx, readpref.Primary()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
	}
}
