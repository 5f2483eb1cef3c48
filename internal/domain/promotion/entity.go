// internal/domain/promotion/entity.go
package promotion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Kind represents the discount type of a promotion
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeShipping Kind = "free_shipping"
)

// Promotion represents a discount rule managed by the back-office.
// All monetary fields are whole currency units (zero-decimal currency).
type Promotion struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Name        string `gorm:"not null;size:255" json:"name"`
	Description string `gorm:"size:500" json:"description"`
	Kind        Kind   `gorm:"not null;size:20" json:"kind"`

	// Value is a percentage for percentage promotions and a currency
	// amount for fixed-amount promotions. Unused for free shipping.
	Value float64 `gorm:"not null;default:0" json:"value"`

	MinCartAmount int64 `gorm:"default:0" json:"min_cart_amount"` // 0 = no minimum
	MinItemCount  int   `gorm:"default:0" json:"min_item_count"`  // 0 = no minimum
	MaxDiscount   int64 `gorm:"default:0" json:"max_discount"`    // 0 = uncapped

	// Active window [StartsAt, EndsAt)
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`

	UsageLimit   int `gorm:"default:0" json:"usage_limit"` // 0 = unlimited
	UsageCount   int `gorm:"default:0" json:"usage_count"`
	PerUserLimit int `gorm:"default:0" json:"per_user_limit"` // 0 = unlimited

	// Comma-separated id lists, empty = no restriction
	ApplicableCategories string `gorm:"size:500" json:"applicable_categories"`
	ExcludedProductIDs   string `gorm:"size:500" json:"excluded_product_ids"`

	Stackable bool `gorm:"default:true" json:"stackable"`
	IsActive  bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Promotion) TableName() string {
	return "promotions"
}

// BeforeSave normalizes the redemption code so lookups stay case-insensitive
func (p *Promotion) BeforeSave(tx *gorm.DB) error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	return nil
}

// Validate checks the promotion definition for administrative data-entry
// errors. Malformed promotions are rejected on write and excluded from the
// eligibility pool on read.
func (p *Promotion) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("promotion code is required")
	}

	switch p.Kind {
	case KindPercentage:
		if p.Value <= 0 || p.Value > 100 {
			return fmt.Errorf("percentage value must be in (0, 100], got %v", p.Value)
		}
	case KindFixedAmount:
		if p.Value <= 0 {
			return fmt.Errorf("fixed amount must be positive, got %v", p.Value)
		}
	case KindFreeShipping:
		// No value required
	default:
		return fmt.Errorf("unknown promotion kind: %q", p.Kind)
	}

	if !p.EndsAt.After(p.StartsAt) {
		return fmt.Errorf("active window is inverted: ends_at %s is not after starts_at %s",
			p.EndsAt.Format(time.RFC3339), p.StartsAt.Format(time.RFC3339))
	}

	if p.MinCartAmount < 0 || p.MaxDiscount < 0 {
		return fmt.Errorf("monetary bounds must not be negative")
	}
	if p.MinItemCount < 0 || p.UsageLimit < 0 || p.PerUserLimit < 0 {
		return fmt.Errorf("count limits must not be negative")
	}

	return nil
}

// WithinWindow reports whether now falls inside the half-open active window
func (p *Promotion) WithinWindow(now time.Time) bool {
	return !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// HasGlobalUsesLeft reports whether the global usage cap still allows redemptions
func (p *Promotion) HasGlobalUsesLeft() bool {
	return p.UsageLimit == 0 || p.UsageCount < p.UsageLimit
}

// CategoryIDs parses the applicable-categories filter; empty means unrestricted
func (p *Promotion) CategoryIDs() []uint {
	return parseIDList(p.ApplicableCategories)
}

// ExcludedIDs parses the excluded-products filter
func (p *Promotion) ExcludedIDs() []uint {
	return parseIDList(p.ExcludedProductIDs)
}

func parseIDList(raw string) []uint {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseUint(part, 10, 32); err == nil {
			ids = append(ids, uint(id))
		}
	}
	return ids
}

// Redemption is one row of the append-only usage ledger: a completed use of
// a promotion tied to a finalized order. The ledger backs both the global
// usage count and the per-user redemption caps. Deduplication by order id is
// the caller's responsibility; the ledger itself accepts every append.
type Redemption struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PromotionID    uint      `gorm:"not null;index" json:"promotion_id"`
	UserID         *uint     `gorm:"index" json:"user_id"` // nil for guest checkouts
	OrderID        uint      `gorm:"not null;index" json:"order_id"`
	Code           string    `gorm:"not null;size:50" json:"code"`
	DiscountAmount int64     `gorm:"not null" json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName overrides the table name
func (Redemption) TableName() string {
	return "promotion_redemptions"
}
