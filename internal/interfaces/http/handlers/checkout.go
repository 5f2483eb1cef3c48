// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
	config          *config.Config
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkout.NewService(db, redisClient, cfg),
		config:          cfg,
	}
}

// GetCheckoutSummary handles GET /checkout/summary
func (h *CheckoutHandler) GetCheckoutSummary(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	summary, err := h.checkoutService.GetCheckoutSummary(userID, sessionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout summary retrieved successfully",
		"data":    summary,
	})
}

// ApplyPromotion handles POST /checkout/promotions
func (h *CheckoutHandler) ApplyPromotion(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	var req checkout.ApplyPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	application, err := h.checkoutService.ApplyPromotionCode(userID, sessionID, req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to apply promotion code",
		})
		return
	}

	if !application.Applied {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Promotion code could not be applied",
			"data":    application,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion code applied successfully",
		"data":    application,
	})
}

// RemovePromotion handles DELETE /checkout/promotions/:id
func (h *CheckoutHandler) RemovePromotion(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	promotionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid promotion ID",
		})
		return
	}

	summary, err := h.checkoutService.RemovePromotion(userID, sessionID, uint(promotionID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion removed successfully",
		"data":    summary,
	})
}

// ValidatePromotion handles POST /checkout/promotions/validate.
// Validation previews the discount without mutating the applied set.
func (h *CheckoutHandler) ValidatePromotion(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	var req checkout.ApplyPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkoutService.ValidatePromotionCode(userID, sessionID, req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to validate promotion code",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion code validated",
		"data":    result,
	})
}

// GetEligiblePromotions handles GET /checkout/promotions
func (h *CheckoutHandler) GetEligiblePromotions(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	promos, err := h.checkoutService.EligiblePromotions(userID, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve eligible promotions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Eligible promotions retrieved successfully",
		"data":    promos,
	})
}

// ValidateCheckout handles POST /checkout/validate
func (h *CheckoutHandler) ValidateCheckout(c *gin.Context) {
	userID := middleware.GetUserIDPtrFromContext(c)
	sessionID := getOrCreateSessionID(c)

	var req checkout.CheckoutValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	validation, err := h.checkoutService.ValidateCheckout(userID, sessionID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to validate checkout",
		})
		return
	}

	if !validation.IsValid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Checkout validation failed",
			"data":    validation,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout is valid",
		"data":    validation,
	})
}
