// internal/domain/checkout/service.go
package checkout

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
	"gorm.io/gorm"
)

// Service handles checkout business logic. It composes the cart with the
// promotion engine: every summary is repriced from scratch against the
// session's applied-promotion set.
type Service struct {
	db               *gorm.DB
	redisClient      *redis.Client
	config           *config.Config
	cartService      *cart.Service
	promotionService *promotion.Service
}

// NewService creates a new checkout service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:               db,
		redisClient:      redisClient,
		config:           cfg,
		cartService:      cart.NewService(db, redisClient, cfg),
		promotionService: promotion.NewService(db, redisClient, cfg),
	}
}

// CheckoutPricing represents pricing breakdown
type CheckoutPricing struct {
	Currency       string `json:"currency"`
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
	ShippingCost   int64  `json:"shipping_cost"`
	TotalAmount    int64  `json:"total_amount"`
}

// PaymentMethod represents available payment methods
type PaymentMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// CheckoutSummary represents complete checkout summary
type CheckoutSummary struct {
	Cart              *cart.CartResponse          `json:"cart"`
	Pricing           CheckoutPricing             `json:"pricing"`
	AppliedPromotions []promotion.AppliedDiscount `json:"applied_promotions"`
	PaymentMethods    []PaymentMethod             `json:"payment_methods"`
}

// ApplyPromotionRequest represents a promotion code submission
type ApplyPromotionRequest struct {
	Code string `json:"code" binding:"required"`
}

// PromotionApplication represents the outcome of applying a promotion code
type PromotionApplication struct {
	Code           string           `json:"code"`
	Applied        bool             `json:"applied"`
	Reason         promotion.Reason `json:"reason,omitempty"`
	Message        string           `json:"message,omitempty"`
	DiscountAmount int64            `json:"discount_amount,omitempty"`
	Summary        *CheckoutSummary `json:"summary,omitempty"`
}

// CheckoutValidationRequest represents checkout validation request
type CheckoutValidationRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

// CheckoutValidation represents checkout validation result
type CheckoutValidation struct {
	IsValid        bool             `json:"is_valid"`
	Errors         []string         `json:"errors,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Summary        *CheckoutSummary `json:"summary,omitempty"`
	EstimatedTotal int64            `json:"estimated_total"`
}

// GetCheckoutSummary prices the cart under the session's applied promotions
// and returns the full checkout view
func (s *Service) GetCheckoutSummary(userID *uint, sessionID string) (*CheckoutSummary, error) {
	cartResponse, err := s.cartService.GetCart(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	snapshot := cartResponse.Snapshot()
	appliedSet := s.promotionService.GetAppliedSet(userID, sessionID)
	priced := s.promotionService.Engine().PriceCart(snapshot, appliedSet)

	shippingCost := s.shippingCostFor(priced.Subtotal)

	return &CheckoutSummary{
		Cart: cartResponse,
		Pricing: CheckoutPricing{
			Currency:       s.config.Pricing.Currency,
			Subtotal:       priced.Subtotal,
			DiscountAmount: priced.DiscountAmount,
			ShippingCost:   shippingCost,
			TotalAmount:    priced.FinalAmount + shippingCost,
		},
		AppliedPromotions: priced.AppliedPromotions,
		PaymentMethods:    s.getAvailablePaymentMethods(),
	}, nil
}

// shippingCostFor returns the flat shipping charge, waived above the
// free-shipping threshold. A free-shipping promotion does not zero this line;
// it offsets it as a discount, so the two paths never stack.
func (s *Service) shippingCostFor(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	if s.config.Pricing.FreeShippingThreshold > 0 && subtotal >= s.config.Pricing.FreeShippingThreshold {
		return 0
	}
	return s.config.Pricing.ShippingCost
}

// ApplyPromotionCode validates a code against the cart and, when it passes,
// adds it to the session's applied set and reprices
func (s *Service) ApplyPromotionCode(userID *uint, sessionID string, code string) (*PromotionApplication, error) {
	cartResponse, err := s.cartService.GetCart(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if len(cartResponse.Items) == 0 {
		return nil, fmt.Errorf("cart is empty")
	}

	_, result, err := s.promotionService.ApplyCode(userID, sessionID, code, cartResponse.Snapshot())
	if err != nil {
		if reason := promotion.ReasonForError(err); reason != "" {
			return &PromotionApplication{
				Code:    code,
				Applied: false,
				Reason:  reason,
				Message: err.Error(),
			}, nil
		}
		return nil, err
	}

	if !result.OK {
		return &PromotionApplication{
			Code:    code,
			Applied: false,
			Reason:  result.Reason,
			Message: "promotion code is not valid for this cart",
		}, nil
	}

	summary, err := s.GetCheckoutSummary(userID, sessionID)
	if err != nil {
		return nil, err
	}

	return &PromotionApplication{
		Code:           result.Promotion.Code,
		Applied:        true,
		DiscountAmount: result.DiscountAmount,
		Message:        fmt.Sprintf("promotion %s applied", result.Promotion.Code),
		Summary:        summary,
	}, nil
}

// RemovePromotion drops a promotion from the applied set and reprices.
// Removing a promotion that is not applied is a no-op.
func (s *Service) RemovePromotion(userID *uint, sessionID string, promotionID uint) (*CheckoutSummary, error) {
	if _, err := s.promotionService.RemoveApplied(userID, sessionID, promotionID); err != nil {
		return nil, err
	}
	return s.GetCheckoutSummary(userID, sessionID)
}

// ValidatePromotionCode previews a code against the cart without applying it
func (s *Service) ValidatePromotionCode(userID *uint, sessionID string, code string) (*promotion.ValidationResult, error) {
	snapshot, err := s.cartService.Snapshot(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	result, err := s.promotionService.ValidateCode(code, snapshot, userID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EligiblePromotions lists the promotions the storefront may advertise for
// the current cart and user
func (s *Service) EligiblePromotions(userID *uint, sessionID string) ([]promotion.Promotion, error) {
	snapshot, err := s.cartService.Snapshot(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return s.promotionService.EligibleForCart(snapshot, userID)
}

// ValidateCheckout validates checkout data before order placement
func (s *Service) ValidateCheckout(userID *uint, sessionID string, req *CheckoutValidationRequest) (*CheckoutValidation, error) {
	validation := &CheckoutValidation{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	summary, err := s.GetCheckoutSummary(userID, sessionID)
	if err != nil {
		validation.IsValid = false
		validation.Errors = append(validation.Errors, err.Error())
		return validation, nil
	}

	validation.Summary = summary
	validation.EstimatedTotal = summary.Pricing.TotalAmount

	if len(summary.Cart.Items) == 0 {
		validation.IsValid = false
		validation.Errors = append(validation.Errors, "cart is empty")
	}

	paymentMethodValid := false
	for _, pm := range summary.PaymentMethods {
		if pm.ID == req.PaymentMethodID && pm.Available {
			paymentMethodValid = true
			break
		}
	}
	if !paymentMethodValid {
		validation.IsValid = false
		validation.Errors = append(validation.Errors, "invalid or unavailable payment method")
	}

	for _, item := range summary.Cart.Items {
		if item.Product != nil && item.Product.TrackQuantity && item.Product.Quantity < item.Quantity {
			validation.Warnings = append(validation.Warnings,
				fmt.Sprintf("Limited stock for %s. Available: %d", item.Product.Name, item.Product.Quantity))
		}
	}

	return validation, nil
}

func (s *Service) getAvailablePaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{
			ID:          "card",
			Name:        "Credit / Debit Card",
			Description: "Pay using a credit or debit card",
			Available:   true,
		},
		{
			ID:          "cod",
			Name:        "Cash on Delivery",
			Description: "Pay cash when your order is delivered",
			Available:   true,
		},
	}
}
