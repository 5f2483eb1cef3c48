// internal/domain/promotion/service_test.go
package promotion

import (
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Promotion{}, &Redemption{}))

	// Each test gets its own in-memory database; the redis client points
	// nowhere, exercising the degrade-to-empty path of the applied set.
	cfg := &config.Config{
		Pricing: config.PricingConfig{Currency: "JPY", ShippingCost: 500, FreeShippingThreshold: 50000},
	}
	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})

	svc := NewService(db, unreachable, cfg)
	svc.engine = svc.engine.WithClock(func() time.Time { return testNow })
	return svc
}

func createRequest(code string, kind Kind, value float64) *PromotionCreateRequest {
	return &PromotionCreateRequest{
		Code:     code,
		Name:     code + " promotion",
		Kind:     kind,
		Value:    value,
		StartsAt: testNow.Add(-time.Hour),
		EndsAt:   testNow.Add(time.Hour),
	}
}

func TestCreatePromotionNormalizesCode(t *testing.T) {
	svc := newTestService(t)

	promo, err := svc.CreatePromotion(createRequest("  welcome10 ", KindPercentage, 10))
	require.NoError(t, err)

	assert.Equal(t, "WELCOME10", promo.Code)
	assert.True(t, promo.Stackable)
	assert.True(t, promo.IsActive)
}

func TestCreatePromotionRejectsMalformedDefinition(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreatePromotion(createRequest("BROKEN", KindPercentage, 150))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "percentage value")

	var count int64
	svc.db.Model(&Promotion{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreatePromotionRejectsDuplicateCode(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreatePromotion(createRequest("SUMMER", KindPercentage, 10))
	require.NoError(t, err)

	_, err = svc.CreatePromotion(createRequest("summer", KindFixedAmount, 500))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestUpdatePromotionValidatesResult(t *testing.T) {
	svc := newTestService(t)

	promo, err := svc.CreatePromotion(createRequest("SPRING", KindPercentage, 10))
	require.NoError(t, err)

	bad := float64(0)
	_, err = svc.UpdatePromotion(promo.ID, &PromotionUpdateRequest{Value: &bad})
	require.Error(t, err)

	// The stored row is untouched after a rejected update
	stored, err := svc.GetPromotion(promo.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(10), stored.Value)

	newValue := float64(25)
	updated, err := svc.UpdatePromotion(promo.ID, &PromotionUpdateRequest{Value: &newValue})
	require.NoError(t, err)
	assert.Equal(t, float64(25), updated.Value)
}

func TestDeletePromotionRemovesFromCatalog(t *testing.T) {
	svc := newTestService(t)

	promo, err := svc.CreatePromotion(createRequest("GONE", KindFixedAmount, 500))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePromotion(promo.ID))

	catalog, err := svc.LoadCatalog()
	require.NoError(t, err)
	assert.Empty(t, catalog)

	assert.Error(t, svc.DeletePromotion(promo.ID))
}

func TestLoadCatalogExcludesMalformedRows(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreatePromotion(createRequest("GOOD", KindPercentage, 10))
	require.NoError(t, err)

	// Written behind the service's back, as a bad migration or manual edit would
	broken := Promotion{
		Code: "BROKEN", Name: "broken", Kind: KindPercentage, Value: 150,
		StartsAt: testNow.Add(-time.Hour), EndsAt: testNow.Add(time.Hour),
		Stackable: true, IsActive: true,
	}
	require.NoError(t, svc.db.Create(&broken).Error)

	catalog, err := svc.LoadCatalog()
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "GOOD", catalog[0].Code)
}

func TestRecordRedemptionAppendsLedgerAndIncrementsUsage(t *testing.T) {
	svc := newTestService(t)

	promo, err := svc.CreatePromotion(createRequest("ONCE", KindPercentage, 10))
	require.NoError(t, err)

	userID := uint(7)
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userID, 101, promo.Code, 2000)
	})
	require.NoError(t, err)

	stored, err := svc.GetPromotion(promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)

	counts, err := svc.UserRedemptionCounts(&userID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[promo.ID])

	otherUser := uint(8)
	counts, err = svc.UserRedemptionCounts(&otherUser)
	require.NoError(t, err)
	assert.Zero(t, counts[promo.ID])
}

func TestRecordRedemptionEnforcesGlobalUsageLimit(t *testing.T) {
	svc := newTestService(t)

	req := createRequest("ONEUSE", KindPercentage, 10)
	req.UsageLimit = 1
	promo, err := svc.CreatePromotion(req)
	require.NoError(t, err)

	userA, userB := uint(1), uint(2)
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userA, 101, promo.Code, 1000)
	})
	require.NoError(t, err)

	// Both sessions held the code while the count was zero; only the first
	// order may consume the last remaining use
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userB, 102, promo.Code, 1000)
	})
	require.ErrorIs(t, err, ErrUsageLimitReached)

	stored, err := svc.GetPromotion(promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)

	// The rejected transaction rolled back its ledger row too
	var ledger int64
	svc.db.Model(&Redemption{}).Where("promotion_id = ?", promo.ID).Count(&ledger)
	assert.Equal(t, int64(1), ledger)
}

func TestRecordRedemptionEnforcesPerUserCap(t *testing.T) {
	svc := newTestService(t)

	req := createRequest("PERUSER", KindPercentage, 10)
	req.PerUserLimit = 1
	promo, err := svc.CreatePromotion(req)
	require.NoError(t, err)

	userID := uint(7)
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userID, 201, promo.Code, 500)
	})
	require.NoError(t, err)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userID, 202, promo.Code, 500)
	})
	require.ErrorIs(t, err, ErrUsageLimitReached)

	// Another user's first redemption still goes through
	otherUser := uint(8)
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &otherUser, 203, promo.Code, 500)
	})
	require.NoError(t, err)
}

func TestUserRedemptionCountsForGuest(t *testing.T) {
	svc := newTestService(t)

	counts, err := svc.UserRedemptionCounts(nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestEligibleForCartHonorsLedgerCaps(t *testing.T) {
	svc := newTestService(t)

	req := createRequest("CAPPED", KindPercentage, 10)
	req.PerUserLimit = 1
	promo, err := svc.CreatePromotion(req)
	require.NoError(t, err)

	cart := cartWithSubtotal(10000)
	userID := uint(3)

	eligible, err := svc.EligibleForCart(cart, &userID)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRedemption(tx, promo.ID, &userID, 55, promo.Code, 1000)
	})
	require.NoError(t, err)

	// The user exhausted their cap; everyone else still qualifies
	eligible, err = svc.EligibleForCart(cart, &userID)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	otherUser := uint(4)
	eligible, err = svc.EligibleForCart(cart, &otherUser)
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}

func TestServiceValidateCodePreview(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreatePromotion(createRequest("WELCOME10", KindPercentage, 10))
	require.NoError(t, err)

	result, err := svc.ValidateCode("welcome10", cartWithSubtotal(20000), nil)
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, int64(2000), result.DiscountAmount)
	assert.Equal(t, int64(18000), result.FinalAmount)

	result, err = svc.ValidateCode("NO-SUCH-CODE", cartWithSubtotal(20000), nil)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonCodeNotFoundOrIneligible, result.Reason)
}

func TestGetAppliedSetDegradesToEmptyWithoutRedis(t *testing.T) {
	svc := newTestService(t)

	set := svc.GetAppliedSet(nil, "session-abc")
	assert.Empty(t, set)

	userID := uint(9)
	set = svc.GetAppliedSet(&userID, "")
	assert.Empty(t, set)
}

func TestGetPromotionsPagination(t *testing.T) {
	svc := newTestService(t)

	for _, code := range []string{"A1", "A2", "A3"} {
		_, err := svc.CreatePromotion(createRequest(code, KindFixedAmount, 100))
		require.NoError(t, err)
	}
	inactive := false
	req := createRequest("A4", KindFixedAmount, 100)
	req.IsActive = &inactive
	_, err := svc.CreatePromotion(req)
	require.NoError(t, err)

	resp, err := svc.GetPromotions(&PromotionListRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Total)
	assert.Len(t, resp.Promotions, 2)

	active := true
	resp, err = svc.GetPromotions(&PromotionListRequest{Page: 1, Limit: 20, IsActive: &active})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
}

func TestGetRedemptionStats(t *testing.T) {
	svc := newTestService(t)

	big, err := svc.CreatePromotion(createRequest("BIG", KindPercentage, 20))
	require.NoError(t, err)
	small, err := svc.CreatePromotion(createRequest("SMALL", KindFixedAmount, 300))
	require.NoError(t, err)

	userID := uint(1)
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		if err := svc.RecordRedemption(tx, big.ID, &userID, 1, big.Code, 4000); err != nil {
			return err
		}
		if err := svc.RecordRedemption(tx, big.ID, nil, 2, big.Code, 6000); err != nil {
			return err
		}
		return svc.RecordRedemption(tx, small.ID, &userID, 3, small.Code, 300)
	})
	require.NoError(t, err)

	stats, err := svc.GetRedemptionStats()
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Ordered by total discount descending
	assert.Equal(t, "BIG", stats[0].Code)
	assert.Equal(t, int64(2), stats[0].Redemptions)
	assert.Equal(t, int64(10000), stats[0].DiscountTotal)
	assert.Equal(t, "SMALL", stats[1].Code)
	assert.Equal(t, int64(1), stats[1].Redemptions)
}
