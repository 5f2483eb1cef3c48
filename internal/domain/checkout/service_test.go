// internal/domain/checkout/service_test.go
package checkout

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
	return newTestServiceWith(t, unreachable)
}

func newTestServiceWith(t *testing.T, redisClient *redis.Client) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:checkout_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&user.User{},
		&product.Category{}, &product.Product{},
		&cart.CartItem{},
		&promotion.Promotion{}, &promotion.Redemption{},
	))

	cfg := &config.Config{
		Pricing: config.PricingConfig{Currency: "JPY", ShippingCost: 500, FreeShippingThreshold: 50000},
	}

	return NewService(db, redisClient, cfg)
}

func seedCartWithSubtotal(t *testing.T, db *gorm.DB, subtotal int64) uint {
	t.Helper()

	category := product.Category{Name: "Apparel", Slug: "apparel", IsActive: true}
	require.NoError(t, db.Create(&category).Error)

	p := product.Product{
		SKU: "ITEM-1", Name: "Item", Slug: "item", Price: subtotal,
		CategoryID: category.ID, IsActive: true, TrackQuantity: true, Quantity: 10,
	}
	require.NoError(t, db.Create(&p).Error)

	buyer := user.User{Email: "buyer@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&buyer).Error)

	item := cart.CartItem{UserID: &buyer.ID, ProductID: p.ID, Quantity: 1, Price: p.Price}
	require.NoError(t, db.Create(&item).Error)

	return buyer.ID
}

func seedPercentPromo(t *testing.T, db *gorm.DB, code string, value float64, minCart int64) promotion.Promotion {
	t.Helper()

	p := promotion.Promotion{
		Code: code, Name: code, Kind: promotion.KindPercentage, Value: value,
		MinCartAmount: minCart,
		StartsAt:      time.Now().Add(-time.Hour),
		EndsAt:        time.Now().Add(time.Hour),
		Stackable:     true, IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func TestCheckoutSummaryWithoutPromotions(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 7500)

	summary, err := svc.GetCheckoutSummary(&buyerID, "")
	require.NoError(t, err)

	assert.Equal(t, "JPY", summary.Pricing.Currency)
	assert.Equal(t, int64(7500), summary.Pricing.Subtotal)
	assert.Zero(t, summary.Pricing.DiscountAmount)
	assert.Equal(t, int64(500), summary.Pricing.ShippingCost)
	assert.Equal(t, int64(8000), summary.Pricing.TotalAmount)
	assert.Empty(t, summary.AppliedPromotions)
	assert.NotEmpty(t, summary.PaymentMethods)
}

func TestCheckoutSummaryWaivesShippingAboveThreshold(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 60000)

	summary, err := svc.GetCheckoutSummary(&buyerID, "")
	require.NoError(t, err)

	assert.Equal(t, int64(60000), summary.Pricing.Subtotal)
	assert.Zero(t, summary.Pricing.ShippingCost)
	assert.Equal(t, int64(60000), summary.Pricing.TotalAmount)
}

func TestValidatePromotionCodePreview(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 20000)
	seedPercentPromo(t, svc.db, "WELCOME10", 10, 10000)

	result, err := svc.ValidatePromotionCode(&buyerID, "", "welcome10")
	require.NoError(t, err)

	require.True(t, result.OK)
	assert.Equal(t, int64(2000), result.DiscountAmount)
	assert.Equal(t, int64(18000), result.FinalAmount)
	assert.Equal(t, "WELCOME10", result.Promotion.Code)
}

func TestValidatePromotionCodeSharesFailureReason(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 5000)
	seedPercentPromo(t, svc.db, "BIGSPEND", 10, 10000)

	// Unknown code and ineligible code are indistinguishable to the caller
	unknown, err := svc.ValidatePromotionCode(&buyerID, "", "NOSUCHCODE")
	require.NoError(t, err)
	assert.False(t, unknown.OK)
	assert.Equal(t, promotion.ReasonCodeNotFoundOrIneligible, unknown.Reason)

	ineligible, err := svc.ValidatePromotionCode(&buyerID, "", "BIGSPEND")
	require.NoError(t, err)
	assert.False(t, ineligible.OK)
	assert.Equal(t, promotion.ReasonCodeNotFoundOrIneligible, ineligible.Reason)
}

func TestApplyPromotionCodeRejectsEmptyCart(t *testing.T) {
	svc := newTestService(t)

	buyer := user.User{Email: "empty@example.com", Password: "x", IsActive: true}
	require.NoError(t, svc.db.Create(&buyer).Error)

	_, err := svc.ApplyPromotionCode(&buyer.ID, "", "WELCOME10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestApplyPromotionCodeReturnsReasonWhenIneligible(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 5000)
	seedPercentPromo(t, svc.db, "BIGSPEND", 10, 10000)

	application, err := svc.ApplyPromotionCode(&buyerID, "", "BIGSPEND")
	require.NoError(t, err)

	assert.False(t, application.Applied)
	assert.Equal(t, promotion.ReasonCodeNotFoundOrIneligible, application.Reason)
	assert.Nil(t, application.Summary)
}

func TestClearCartDropsAppliedPromotions(t *testing.T) {
	mr := miniredis.RunT(t)
	svc := newTestServiceWith(t, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	buyerID := seedCartWithSubtotal(t, svc.db, 20000)
	seedPercentPromo(t, svc.db, "TENOFF", 10, 0)

	application, err := svc.ApplyPromotionCode(&buyerID, "", "TENOFF")
	require.NoError(t, err)
	require.True(t, application.Applied)
	require.Equal(t, int64(2000), application.Summary.Pricing.DiscountAmount)

	require.NoError(t, svc.cartService.ClearCart(&buyerID, ""))

	// Refilling the cart must start from a clean slate; the promotion
	// applied to the previous cart does not carry over
	var item product.Product
	require.NoError(t, svc.db.First(&item).Error)
	_, err = svc.cartService.AddToCart(&buyerID, "", &cart.AddToCartRequest{ProductID: item.ID, Quantity: 1})
	require.NoError(t, err)

	summary, err := svc.GetCheckoutSummary(&buyerID, "")
	require.NoError(t, err)
	assert.Zero(t, summary.Pricing.DiscountAmount)
	assert.Empty(t, summary.AppliedPromotions)
}

func TestEligiblePromotionsForCart(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 20000)
	seedPercentPromo(t, svc.db, "WELCOME10", 10, 10000)
	seedPercentPromo(t, svc.db, "BIGSPEND", 15, 50000)

	promos, err := svc.EligiblePromotions(&buyerID, "")
	require.NoError(t, err)

	require.Len(t, promos, 1)
	assert.Equal(t, "WELCOME10", promos[0].Code)
}

func TestValidateCheckout(t *testing.T) {
	svc := newTestService(t)
	buyerID := seedCartWithSubtotal(t, svc.db, 7500)

	valid, err := svc.ValidateCheckout(&buyerID, "", &CheckoutValidationRequest{PaymentMethodID: "cod"})
	require.NoError(t, err)
	assert.True(t, valid.IsValid)
	assert.Empty(t, valid.Errors)
	assert.Equal(t, int64(8000), valid.EstimatedTotal)

	invalid, err := svc.ValidateCheckout(&buyerID, "", &CheckoutValidationRequest{PaymentMethodID: "wire"})
	require.NoError(t, err)
	assert.False(t, invalid.IsValid)
	assert.Contains(t, invalid.Errors, "invalid or unavailable payment method")
}

func TestValidateCheckoutRejectsEmptyCart(t *testing.T) {
	svc := newTestService(t)

	buyer := user.User{Email: "empty@example.com", Password: "x", IsActive: true}
	require.NoError(t, svc.db.Create(&buyer).Error)

	validation, err := svc.ValidateCheckout(&buyer.ID, "", &CheckoutValidationRequest{PaymentMethodID: "cod"})
	require.NoError(t, err)
	assert.False(t, validation.IsValid)
	assert.Contains(t, validation.Errors, "cart is empty")
}
