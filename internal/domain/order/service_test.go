// internal/domain/order/service_test.go
package order

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

	dsn := fmt.Sprintf("file:order_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&user.User{},
		&product.Category{}, &product.Product{},
		&cart.CartItem{},
		&promotion.Promotion{}, &promotion.Redemption{},
		&Order{}, &OrderItem{}, &OrderPromotion{}, &OrderStatusHistory{},
	))

	cfg := &config.Config{
		Pricing: config.PricingConfig{Currency: "JPY", ShippingCost: 500, FreeShippingThreshold: 50000},
	}

	return NewService(db, redisClient, cfg)
}

func seedCatalog(t *testing.T, db *gorm.DB) (product.Product, product.Product) {
	t.Helper()

	category := product.Category{Name: "Apparel", Slug: "apparel", IsActive: true}
	require.NoError(t, db.Create(&category).Error)

	shirt := product.Product{
		SKU: "SHIRT-1", Name: "Shirt", Slug: "shirt", Price: 3000,
		CategoryID: category.ID, IsActive: true, TrackQuantity: true, Quantity: 10,
	}
	mug := product.Product{
		SKU: "MUG-1", Name: "Mug", Slug: "mug", Price: 1500,
		CategoryID: category.ID, IsActive: true, TrackQuantity: true, Quantity: 3,
	}
	require.NoError(t, db.Create(&shirt).Error)
	require.NoError(t, db.Create(&mug).Error)
	return shirt, mug
}

func seedUserCart(t *testing.T, db *gorm.DB, userID uint, items ...cart.CartItem) {
	t.Helper()
	for i := range items {
		items[i].UserID = &userID
		require.NoError(t, db.Create(&items[i]).Error)
	}
}

func seedUser(t *testing.T, db *gorm.DB) user.User {
	t.Helper()
	u := user.User{Email: "buyer@example.com", Password: "x", FirstName: "Kai", IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func orderRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		ShippingAddress: Address{
			FirstName: "Kai", LastName: "Sato",
			AddressLine1: "1-2-3 Ginza", City: "Tokyo", PostalCode: "104-0061", Country: "JP",
		},
		PaymentMethod: "card",
	}
}

func TestCreateOrderFromUserCart(t *testing.T) {
	svc := newTestService(t)
	shirt, mug := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	seedUserCart(t, svc.db, buyer.ID,
		cart.CartItem{ProductID: shirt.ID, Quantity: 2, Price: shirt.Price},
		cart.CartItem{ProductID: mug.ID, Quantity: 1, Price: mug.Price},
	)

	placed, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(7500), placed.SubtotalAmount)
	assert.Zero(t, placed.DiscountAmount)
	assert.Equal(t, int64(500), placed.ShippingAmount)
	assert.Equal(t, int64(8000), placed.TotalAmount)
	assert.Equal(t, "buyer@example.com", placed.Email)
	assert.Equal(t, OrderStatusPending, placed.Status)
	assert.Len(t, placed.Items, 2)
	assert.Contains(t, placed.OrderNumber, "ORD-")

	// Stock was decremented and the cart emptied
	var storedShirt product.Product
	require.NoError(t, svc.db.First(&storedShirt, shirt.ID).Error)
	assert.Equal(t, 8, storedShirt.Quantity)

	var remaining int64
	svc.db.Model(&cart.CartItem{}).Where("user_id = ?", buyer.ID).Count(&remaining)
	assert.Zero(t, remaining)

	var history []OrderStatusHistory
	svc.db.Where("order_id = ?", placed.ID).Find(&history)
	require.Len(t, history, 1)
	assert.Equal(t, OrderStatusPending, history[0].Status)
}

func TestCreateOrderWaivesShippingAboveThreshold(t *testing.T) {
	svc := newTestService(t)
	shirt, _ := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	require.NoError(t, svc.db.Model(&product.Product{}).Where("id = ?", shirt.ID).
		Updates(map[string]interface{}{"price": 30000, "quantity": 5}).Error)

	seedUserCart(t, svc.db, buyer.ID,
		cart.CartItem{ProductID: shirt.ID, Quantity: 2, Price: 30000},
	)

	placed, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(60000), placed.SubtotalAmount)
	assert.Zero(t, placed.ShippingAmount)
	assert.Equal(t, int64(60000), placed.TotalAmount)
}

func TestCreateOrderFailsOnInsufficientStock(t *testing.T) {
	svc := newTestService(t)
	_, mug := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	seedUserCart(t, svc.db, buyer.ID,
		cart.CartItem{ProductID: mug.ID, Quantity: 5, Price: mug.Price},
	)

	_, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient inventory")

	// Nothing was persisted
	var orderCount int64
	svc.db.Model(&Order{}).Count(&orderCount)
	assert.Zero(t, orderCount)

	var storedMug product.Product
	require.NoError(t, svc.db.First(&storedMug, mug.ID).Error)
	assert.Equal(t, 3, storedMug.Quantity)
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	svc := newTestService(t)
	seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	_, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestCreateOrderHonorsGlobalUsageLimitAcrossSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	svc := newTestServiceWith(t, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	shirt, _ := seedCatalog(t, svc.db)

	promo := promotion.Promotion{
		Code: "ONEUSE", Name: "One use only", Kind: promotion.KindPercentage, Value: 10,
		UsageLimit: 1,
		StartsAt:   time.Now().Add(-time.Hour),
		EndsAt:     time.Now().Add(time.Hour),
		Stackable:  true, IsActive: true,
	}
	require.NoError(t, svc.db.Create(&promo).Error)

	first := user.User{Email: "first@example.com", Password: "x", IsActive: true}
	second := user.User{Email: "second@example.com", Password: "x", IsActive: true}
	require.NoError(t, svc.db.Create(&first).Error)
	require.NoError(t, svc.db.Create(&second).Error)

	// Both users apply the last remaining use before either places an order
	for _, buyer := range []user.User{first, second} {
		seedUserCart(t, svc.db, buyer.ID,
			cart.CartItem{ProductID: shirt.ID, Quantity: 1, Price: shirt.Price},
		)
		snapshot, err := svc.cartService.Snapshot(&buyer.ID, "")
		require.NoError(t, err)
		_, result, err := svc.promotionService.ApplyCode(&buyer.ID, "", "ONEUSE", snapshot)
		require.NoError(t, err)
		require.True(t, result.OK)
	}

	placed, err := svc.CreateOrder(&first.ID, "", orderRequest())
	require.NoError(t, err)
	require.Len(t, placed.Promotions, 1)

	// The second order cannot redeem the exhausted code
	_, err = svc.CreateOrder(&second.ID, "", orderRequest())
	require.ErrorIs(t, err, promotion.ErrUsageLimitReached)

	var stored promotion.Promotion
	require.NoError(t, svc.db.First(&stored, promo.ID).Error)
	assert.Equal(t, 1, stored.UsageCount)

	// The failed order left nothing behind
	var orderCount int64
	svc.db.Model(&Order{}).Where("user_id = ?", second.ID).Count(&orderCount)
	assert.Zero(t, orderCount)
}

func TestCancelOrderRestoresInventory(t *testing.T) {
	svc := newTestService(t)
	shirt, _ := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	seedUserCart(t, svc.db, buyer.ID,
		cart.CartItem{ProductID: shirt.ID, Quantity: 4, Price: shirt.Price},
	)

	placed, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.NoError(t, err)

	var afterOrder product.Product
	require.NoError(t, svc.db.First(&afterOrder, shirt.ID).Error)
	assert.Equal(t, 6, afterOrder.Quantity)

	require.NoError(t, svc.CancelOrder(placed.ID, "changed my mind", buyer.ID))

	var afterCancel product.Product
	require.NoError(t, svc.db.First(&afterCancel, shirt.ID).Error)
	assert.Equal(t, 10, afterCancel.Quantity)

	cancelled, err := svc.GetOrder(placed.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, cancelled.Status)

	// A cancelled order cannot be cancelled again
	assert.Error(t, svc.CancelOrder(placed.ID, "again", buyer.ID))
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	svc := newTestService(t)
	shirt, _ := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	seedUserCart(t, svc.db, buyer.ID,
		cart.CartItem{ProductID: shirt.ID, Quantity: 1, Price: shirt.Price},
	)

	placed, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
	require.NoError(t, err)

	// Skipping confirmed is not a legal move
	err = svc.UpdateOrderStatus(placed.ID, OrderStatusShipped, "", buyer.ID)
	require.Error(t, err)

	require.NoError(t, svc.UpdateOrderStatus(placed.ID, OrderStatusConfirmed, "payment received", buyer.ID))
	require.NoError(t, svc.UpdateOrderStatus(placed.ID, OrderStatusProcessing, "", buyer.ID))
	require.NoError(t, svc.UpdateOrderStatus(placed.ID, OrderStatusShipped, "", buyer.ID))

	updated, err := svc.GetOrder(placed.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, updated.Status)
	assert.NotNil(t, updated.ShippedAt)
	assert.Len(t, updated.StatusHistory, 4)
}

func TestGetUserOrdersPagination(t *testing.T) {
	svc := newTestService(t)
	shirt, _ := seedCatalog(t, svc.db)
	buyer := seedUser(t, svc.db)

	for i := 0; i < 3; i++ {
		seedUserCart(t, svc.db, buyer.ID,
			cart.CartItem{ProductID: shirt.ID, Quantity: 1, Price: shirt.Price},
		)
		_, err := svc.CreateOrder(&buyer.ID, "", orderRequest())
		require.NoError(t, err)
	}

	resp, err := svc.GetUserOrders(buyer.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.Len(t, resp.Orders, 2)
	assert.True(t, resp.Pagination.HasNext)
}
