// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	authHandler := handlers.NewAuthHandler(db, redisClient, cfg)
	productHandler := handlers.NewProductHandler(db, cfg)
	cartHandler := handlers.NewCartHandler(db, redisClient, cfg)
	checkoutHandler := handlers.NewCheckoutHandler(db, redisClient, cfg)
	orderHandler := handlers.NewOrderHandler(db, redisClient, cfg)
	promotionHandler := handlers.NewPromotionHandler(db, redisClient, cfg)
	invoiceHandler := handlers.NewInvoiceHandler(db, redisClient, cfg)

	// Authentication routes
	auth := rg.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.POST("/logout", authHandler.Logout)

		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.GET("/me", authHandler.GetCurrentUser)
			protected.GET("/validate", authHandler.ValidateToken)
			protected.GET("/profile", authHandler.GetProfile)
			protected.PUT("/profile", authHandler.UpdateProfile)
			protected.POST("/change-password", authHandler.ChangePassword)
		}
	}

	// Product catalog routes (public)
	products := rg.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/categories", productHandler.GetCategories)
		products.GET("/slug/:slug", productHandler.GetProductBySlug)
		products.GET("/:id", productHandler.GetProduct)
	}

	// Cart routes. Guests are keyed by the session cookie, signed-in
	// users by their id, so auth is optional throughout.
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cart.GET("", cartHandler.GetCart)
		cart.DELETE("", cartHandler.ClearCart)
		cart.GET("/count", cartHandler.GetCartCount)
		cart.POST("/items", cartHandler.AddToCart)
		cart.PUT("/items/:id", cartHandler.UpdateCartItem)
		cart.DELETE("/items/:id", cartHandler.RemoveFromCart)
		cart.POST("/validate", cartHandler.ValidateCart)
		cart.POST("/merge", middleware.AuthMiddleware(cfg), cartHandler.MergeGuestCart)
	}

	// Checkout routes, promotion application included
	checkout := rg.Group("/checkout")
	checkout.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkout.GET("/summary", checkoutHandler.GetCheckoutSummary)
		checkout.POST("/validate", checkoutHandler.ValidateCheckout)
		checkout.GET("/promotions", checkoutHandler.GetEligiblePromotions)
		checkout.POST("/promotions", checkoutHandler.ApplyPromotion)
		checkout.POST("/promotions/validate", checkoutHandler.ValidatePromotion)
		checkout.DELETE("/promotions/:id", checkoutHandler.RemovePromotion)
	}

	// Order routes
	orders := rg.Group("/orders")
	{
		// Guests can place orders under their session
		orders.POST("", middleware.OptionalAuthMiddleware(cfg), orderHandler.CreateOrder)

		authenticated := orders.Group("")
		authenticated.Use(middleware.AuthMiddleware(cfg))
		{
			authenticated.GET("", orderHandler.GetUserOrders)
			authenticated.GET("/:id", orderHandler.GetOrder)
			authenticated.POST("/:id/cancel", orderHandler.CancelOrder)
			authenticated.GET("/:id/invoice", invoiceHandler.GenerateInvoice)
		}
	}

	// Admin routes
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/products", productHandler.CreateProduct)
		admin.PUT("/products/:id", productHandler.UpdateProduct)
		admin.DELETE("/products/:id", productHandler.DeleteProduct)

		admin.POST("/categories", productHandler.CreateCategory)
		admin.DELETE("/categories/:id", productHandler.DeleteCategory)

		admin.GET("/promotions", promotionHandler.GetPromotions)
		admin.GET("/promotions/stats", promotionHandler.GetRedemptionStats)
		admin.GET("/promotions/:id", promotionHandler.GetPromotion)
		admin.POST("/promotions", promotionHandler.CreatePromotion)
		admin.PUT("/promotions/:id", promotionHandler.UpdatePromotion)
		admin.DELETE("/promotions/:id", promotionHandler.DeletePromotion)

		admin.GET("/orders", orderHandler.GetOrders)
		admin.PUT("/orders/:id/status", orderHandler.UpdateOrderStatus)
	}
}
