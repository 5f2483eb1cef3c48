// internal/domain/promotion/service.go
package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"gorm.io/gorm"
)

// ErrUsageLimitReached is returned when recording a redemption would push a
// promotion past its global usage limit or the user's per-user cap. The apply
// step checks the same caps, but between apply and order placement another
// order can consume the remaining uses.
var ErrUsageLimitReached = errors.New("promotion usage limit reached")

// Service wires the pricing engine to its collaborators: the promotion
// catalog in Postgres, the usage ledger, and the per-session applied set in
// Redis. The engine itself stays pure; this layer fetches inputs and
// persists outcomes.
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	config      *config.Config
	engine      *Engine
}

// NewService creates a new promotion service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		config:      cfg,
		engine:      NewEngine(cfg.Pricing.ShippingCost),
	}
}

// Engine exposes the pure pricing engine to the checkout and order flows
func (s *Service) Engine() *Engine {
	return s.engine
}

// PromotionCreateRequest represents promotion creation data
type PromotionCreateRequest struct {
	Code                 string    `json:"code" binding:"required"`
	Name                 string    `json:"name" binding:"required"`
	Description          string    `json:"description"`
	Kind                 Kind      `json:"kind" binding:"required"`
	Value                float64   `json:"value"`
	MinCartAmount        int64     `json:"min_cart_amount"`
	MinItemCount         int       `json:"min_item_count"`
	MaxDiscount          int64     `json:"max_discount"`
	StartsAt             time.Time `json:"starts_at" binding:"required"`
	EndsAt               time.Time `json:"ends_at" binding:"required"`
	UsageLimit           int       `json:"usage_limit"`
	PerUserLimit         int       `json:"per_user_limit"`
	ApplicableCategories string    `json:"applicable_categories"`
	ExcludedProductIDs   string    `json:"excluded_product_ids"`
	Stackable            *bool     `json:"stackable"`
	IsActive             *bool     `json:"is_active"`
}

// PromotionUpdateRequest represents promotion update data
type PromotionUpdateRequest struct {
	Name                 *string    `json:"name"`
	Description          *string    `json:"description"`
	Kind                 *Kind      `json:"kind"`
	Value                *float64   `json:"value"`
	MinCartAmount        *int64     `json:"min_cart_amount"`
	MinItemCount         *int       `json:"min_item_count"`
	MaxDiscount          *int64     `json:"max_discount"`
	StartsAt             *time.Time `json:"starts_at"`
	EndsAt               *time.Time `json:"ends_at"`
	UsageLimit           *int       `json:"usage_limit"`
	PerUserLimit         *int       `json:"per_user_limit"`
	ApplicableCategories *string    `json:"applicable_categories"`
	ExcludedProductIDs   *string    `json:"excluded_product_ids"`
	Stackable            *bool      `json:"stackable"`
	IsActive             *bool      `json:"is_active"`
}

// PromotionListRequest represents promotion list query parameters
type PromotionListRequest struct {
	Page     int   `form:"page,default=1"`
	Limit    int   `form:"limit,default=20"`
	IsActive *bool `form:"is_active"`
}

// PromotionListResponse represents promotions with pagination
type PromotionListResponse struct {
	Promotions []Promotion `json:"promotions"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
}

// RedemptionStat aggregates the usage ledger per promotion for the back-office
type RedemptionStat struct {
	PromotionID   uint   `json:"promotion_id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Redemptions   int64  `json:"redemptions"`
	DiscountTotal int64  `json:"discount_total"`
}

// LoadCatalog returns every non-deleted promotion ordered by id. Malformed
// definitions are excluded from the pool and logged; they remain editable in
// the back-office.
func (s *Service) LoadCatalog() ([]Promotion, error) {
	var promos []Promotion
	if err := s.db.Order("id ASC").Find(&promos).Error; err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	valid := promos[:0]
	for _, p := range promos {
		if err := p.Validate(); err != nil {
			log.Printf("Warning: excluding malformed promotion %q (id=%d): %v", p.Code, p.ID, err)
			continue
		}
		valid = append(valid, p)
	}

	return valid, nil
}

// UserRedemptionCounts queries the usage ledger for the user's redemption
// count per promotion. A nil user id (guest) has no ledger history.
func (s *Service) UserRedemptionCounts(userID *uint) (map[uint]int, error) {
	counts := make(map[uint]int)
	if userID == nil {
		return counts, nil
	}

	var rows []struct {
		PromotionID uint
		Count       int
	}
	err := s.db.Model(&Redemption{}).
		Select("promotion_id, COUNT(*) as count").
		Where("user_id = ?", *userID).
		Group("promotion_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query redemption counts: %w", err)
	}

	for _, row := range rows {
		counts[row.PromotionID] = row.Count
	}
	return counts, nil
}

// EligibleForCart returns the promotions currently eligible for the cart and
// user, sorted by id.
func (s *Service) EligibleForCart(cart CartSnapshot, userID *uint) ([]Promotion, error) {
	promos, err := s.LoadCatalog()
	if err != nil {
		return nil, err
	}

	counts, err := s.UserRedemptionCounts(userID)
	if err != nil {
		return nil, err
	}

	return s.engine.EligiblePromotions(promos, cart, counts), nil
}

// ValidateCode previews a promotion code against the cart without touching
// the applied set.
func (s *Service) ValidateCode(code string, cart CartSnapshot, userID *uint) (ValidationResult, error) {
	promos, err := s.LoadCatalog()
	if err != nil {
		return ValidationResult{}, err
	}

	counts, err := s.UserRedemptionCounts(userID)
	if err != nil {
		return ValidationResult{}, err
	}

	return s.engine.ValidateCode(code, promos, cart, counts), nil
}

// Applied-set persistence.
//
// The applied set lives in Redis for the duration of a shopping session,
// keyed by user id or guest session id. Only promotion ids are stored; the
// definitions are re-read from the catalog on every load so edits and
// deletions take effect immediately.

func (s *Service) appliedSetKey(userID *uint, sessionID string) string {
	if userID != nil {
		return fmt.Sprintf("applied_promotions:user:%d", *userID)
	}
	return fmt.Sprintf("applied_promotions:session:%s", sessionID)
}

// GetAppliedSet loads the applied-promotion set for the session. A missing
// or unreadable entry is an empty set, never an error: a lost applied set
// degrades to "no discount", not to a failed request.
func (s *Service) GetAppliedSet(userID *uint, sessionID string) AppliedSet {
	ctx := context.Background()

	data, err := s.redisClient.Get(ctx, s.appliedSetKey(userID, sessionID)).Result()
	if err != nil {
		return AppliedSet{}
	}

	var ids []uint
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return AppliedSet{}
	}
	if len(ids) == 0 {
		return AppliedSet{}
	}

	var promos []Promotion
	if err := s.db.Where("id IN ?", ids).Find(&promos).Error; err != nil {
		return AppliedSet{}
	}

	byID := make(map[uint]Promotion, len(promos))
	for _, p := range promos {
		byID[p.ID] = p
	}

	// Preserve application order; drop ids whose promotion no longer exists
	set := make(AppliedSet, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			set = append(set, p)
		}
	}
	return set
}

func (s *Service) saveAppliedSet(userID *uint, sessionID string, set AppliedSet) error {
	ctx := context.Background()

	data, err := json.Marshal(set.IDs())
	if err != nil {
		return err
	}

	return s.redisClient.Set(ctx, s.appliedSetKey(userID, sessionID), data, 24*time.Hour).Err()
}

// ApplyCode validates a code for the cart and, when valid, applies it to the
// session's applied set under the stacking rules. The ValidationResult is
// returned either way so handlers can surface the failure reason.
func (s *Service) ApplyCode(userID *uint, sessionID string, code string, cart CartSnapshot) (AppliedSet, ValidationResult, error) {
	result, err := s.ValidateCode(code, cart, userID)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	if !result.OK {
		return nil, result, nil
	}

	set, err := Apply(*result.Promotion, s.GetAppliedSet(userID, sessionID))
	if err != nil {
		return nil, result, err
	}

	if err := s.saveAppliedSet(userID, sessionID, set); err != nil {
		return nil, result, fmt.Errorf("failed to persist applied promotions: %w", err)
	}

	return set, result, nil
}

// RemoveApplied removes a promotion from the session's applied set
func (s *Service) RemoveApplied(userID *uint, sessionID string, promotionID uint) (AppliedSet, error) {
	set := Remove(promotionID, s.GetAppliedSet(userID, sessionID))
	if err := s.saveAppliedSet(userID, sessionID, set); err != nil {
		return nil, fmt.Errorf("failed to persist applied promotions: %w", err)
	}
	return set, nil
}

// ClearApplied empties the session's applied set. Called on cart clear and
// after order placement.
func (s *Service) ClearApplied(userID *uint, sessionID string) error {
	ctx := context.Background()
	return s.redisClient.Del(ctx, s.appliedSetKey(userID, sessionID)).Err()
}

// RecordRedemption appends one usage-ledger row and bumps the promotion's
// usage count inside the caller's transaction, once per promotion per
// completed order. Usage caps are re-checked here, not just at apply time:
// the increment is guarded so usage_count can never pass usage_limit even
// when two sessions redeemed the same nearly-exhausted code, and the
// per-user cap is re-counted against the ledger. Failing the transaction is
// deliberate; the order must not keep a discount it cannot redeem. The
// ledger performs no deduplication by order id, that remains the caller's
// responsibility.
func (s *Service) RecordRedemption(tx *gorm.DB, promotionID uint, userID *uint, orderID uint, code string, discountAmount int64) error {
	if userID != nil {
		var promo Promotion
		if err := tx.First(&promo, promotionID).Error; err != nil {
			return fmt.Errorf("promotion not found: %w", err)
		}
		if promo.PerUserLimit > 0 {
			var used int64
			err := tx.Model(&Redemption{}).
				Where("promotion_id = ? AND user_id = ?", promotionID, *userID).
				Count(&used).Error
			if err != nil {
				return fmt.Errorf("failed to count user redemptions: %w", err)
			}
			if used >= int64(promo.PerUserLimit) {
				return fmt.Errorf("promotion %s: %w", code, ErrUsageLimitReached)
			}
		}
	}

	redemption := Redemption{
		PromotionID:    promotionID,
		UserID:         userID,
		OrderID:        orderID,
		Code:           code,
		DiscountAmount: discountAmount,
	}
	if err := tx.Create(&redemption).Error; err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}

	result := tx.Model(&Promotion{}).
		Where("id = ?", promotionID).
		Where("usage_limit = 0 OR usage_count < usage_limit").
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment usage count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("promotion %s: %w", code, ErrUsageLimitReached)
	}

	return nil
}

// Administrative CRUD

// CreatePromotion creates a new promotion definition
func (s *Service) CreatePromotion(req *PromotionCreateRequest) (*Promotion, error) {
	promo := Promotion{
		Code:                 req.Code,
		Name:                 req.Name,
		Description:          req.Description,
		Kind:                 req.Kind,
		Value:                req.Value,
		MinCartAmount:        req.MinCartAmount,
		MinItemCount:         req.MinItemCount,
		MaxDiscount:          req.MaxDiscount,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		UsageLimit:           req.UsageLimit,
		PerUserLimit:         req.PerUserLimit,
		ApplicableCategories: req.ApplicableCategories,
		ExcludedProductIDs:   req.ExcludedProductIDs,
		Stackable:            true,
		IsActive:             true,
	}
	if req.Stackable != nil {
		promo.Stackable = *req.Stackable
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}

	if err := promo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid promotion definition: %w", err)
	}

	var existing Promotion
	result := s.db.Where("UPPER(code) = UPPER(?)", req.Code).First(&existing)
	if result.Error == nil {
		return nil, fmt.Errorf("promotion with code %q already exists", req.Code)
	}

	if err := s.db.Create(&promo).Error; err != nil {
		return nil, fmt.Errorf("failed to create promotion: %w", err)
	}

	return &promo, nil
}

// UpdatePromotion updates an existing promotion definition
func (s *Service) UpdatePromotion(id uint, req *PromotionUpdateRequest) (*Promotion, error) {
	promo, err := s.GetPromotion(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		promo.Name = *req.Name
	}
	if req.Description != nil {
		promo.Description = *req.Description
	}
	if req.Kind != nil {
		promo.Kind = *req.Kind
	}
	if req.Value != nil {
		promo.Value = *req.Value
	}
	if req.MinCartAmount != nil {
		promo.MinCartAmount = *req.MinCartAmount
	}
	if req.MinItemCount != nil {
		promo.MinItemCount = *req.MinItemCount
	}
	if req.MaxDiscount != nil {
		promo.MaxDiscount = *req.MaxDiscount
	}
	if req.StartsAt != nil {
		promo.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		promo.EndsAt = *req.EndsAt
	}
	if req.UsageLimit != nil {
		promo.UsageLimit = *req.UsageLimit
	}
	if req.PerUserLimit != nil {
		promo.PerUserLimit = *req.PerUserLimit
	}
	if req.ApplicableCategories != nil {
		promo.ApplicableCategories = *req.ApplicableCategories
	}
	if req.ExcludedProductIDs != nil {
		promo.ExcludedProductIDs = *req.ExcludedProductIDs
	}
	if req.Stackable != nil {
		promo.Stackable = *req.Stackable
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}

	if err := promo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid promotion definition: %w", err)
	}

	if err := s.db.Save(promo).Error; err != nil {
		return nil, fmt.Errorf("failed to update promotion: %w", err)
	}

	return promo, nil
}

// DeletePromotion soft-deletes a promotion
func (s *Service) DeletePromotion(id uint) error {
	result := s.db.Delete(&Promotion{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete promotion: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("promotion not found")
	}
	return nil
}

// GetPromotion retrieves a promotion by id
func (s *Service) GetPromotion(id uint) (*Promotion, error) {
	var promo Promotion
	if err := s.db.First(&promo, id).Error; err != nil {
		return nil, fmt.Errorf("promotion not found")
	}
	return &promo, nil
}

// GetPromotions retrieves promotions with pagination for the back-office
func (s *Service) GetPromotions(req *PromotionListRequest) (*PromotionListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&Promotion{})
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count promotions: %w", err)
	}

	var promos []Promotion
	err := query.Order("id ASC").
		Offset((req.Page - 1) * req.Limit).
		Limit(req.Limit).
		Find(&promos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}

	return &PromotionListResponse{
		Promotions: promos,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
	}, nil
}

// GetRedemptionStats aggregates the usage ledger per promotion
func (s *Service) GetRedemptionStats() ([]RedemptionStat, error) {
	var stats []RedemptionStat
	err := s.db.Model(&Redemption{}).
		Select("promotion_redemptions.promotion_id, promotions.code, promotions.name, COUNT(*) as redemptions, SUM(promotion_redemptions.discount_amount) as discount_total").
		Joins("JOIN promotions ON promotions.id = promotion_redemptions.promotion_id").
		Group("promotion_redemptions.promotion_id, promotions.code, promotions.name").
		Order("discount_total DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate redemptions: %w", err)
	}
	return stats, nil
}
