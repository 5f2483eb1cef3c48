// internal/domain/promotion/engine.go
package promotion

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

// Rule violation errors returned by Apply. Handlers branch on these to
// render user feedback.
var (
	ErrAlreadyApplied = errors.New("promotion already applied")
	ErrNotStackable   = errors.New("promotion cannot be combined with the applied promotions")
)

// Reason identifies why a code validation failed
type Reason string

const (
	// ReasonCodeNotFoundOrIneligible covers both unknown codes and codes
	// whose promotion is currently ineligible. The two cases are deliberately
	// indistinguishable so the API cannot be used to enumerate codes.
	ReasonCodeNotFoundOrIneligible Reason = "CODE_NOT_FOUND_OR_INELIGIBLE"
	ReasonAlreadyApplied           Reason = "ALREADY_APPLIED"
	ReasonNotStackable             Reason = "NOT_STACKABLE"
)

// ReasonForError maps an Apply error to its wire-level reason
func ReasonForError(err error) Reason {
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		return ReasonAlreadyApplied
	case errors.Is(err, ErrNotStackable):
		return ReasonNotStackable
	default:
		return ""
	}
}

// LineItem is a read-only snapshot of one cart line
type LineItem struct {
	ProductID  uint  `json:"product_id"`
	CategoryID uint  `json:"category_id"`
	UnitPrice  int64 `json:"unit_price"`
	Quantity   int   `json:"quantity"`
}

// CartSnapshot is the cart as seen by the engine for one calculation.
// The engine never mutates it.
type CartSnapshot struct {
	Items []LineItem `json:"items"`
}

// Subtotal returns the undiscounted cart total
func (c CartSnapshot) Subtotal() int64 {
	var subtotal int64
	for _, item := range c.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return subtotal
}

// ItemCount returns the total line-item quantity
func (c CartSnapshot) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// AppliedSet is the ordered sequence of promotions applied to the active
// cart. Apply, Remove and Clear treat it as an immutable value and return a
// new set, so callers never share backing storage.
type AppliedSet []Promotion

// Contains reports whether the set holds the given promotion id
func (s AppliedSet) Contains(id uint) bool {
	for _, p := range s {
		if p.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the promotion ids in application order
func (s AppliedSet) IDs() []uint {
	ids := make([]uint, len(s))
	for i, p := range s {
		ids[i] = p.ID
	}
	return ids
}

// Apply appends a promotion to the set under the stacking rules:
// a promotion may appear at most once, a non-stackable promotion must be
// alone, and nothing may join a set that already holds a non-stackable one.
func Apply(p Promotion, set AppliedSet) (AppliedSet, error) {
	if set.Contains(p.ID) {
		return nil, ErrAlreadyApplied
	}

	if !p.Stackable && len(set) > 0 {
		return nil, ErrNotStackable
	}
	for _, applied := range set {
		if !applied.Stackable {
			return nil, ErrNotStackable
		}
	}

	next := make(AppliedSet, len(set), len(set)+1)
	copy(next, set)
	return append(next, p), nil
}

// Remove drops the promotion with the given id. Removing an absent id is a
// no-op, not an error.
func Remove(id uint, set AppliedSet) AppliedSet {
	next := make(AppliedSet, 0, len(set))
	for _, p := range set {
		if p.ID != id {
			next = append(next, p)
		}
	}
	return next
}

// Clear empties the set. Used on cart clear and on order placement.
func Clear(set AppliedSet) AppliedSet {
	return AppliedSet{}
}

// AppliedDiscount is the per-promotion slice of a priced cart's discount
type AppliedDiscount struct {
	PromotionID uint   `json:"promotion_id"`
	Code        string `json:"code"`
	Kind        Kind   `json:"kind"`
	Amount      int64  `json:"amount"`
}

// PricedCart is the priced view of a cart. It is recomputed on demand and
// never cached across cart mutations.
type PricedCart struct {
	Subtotal          int64             `json:"subtotal"`
	DiscountAmount    int64             `json:"discount_amount"`
	FinalAmount       int64             `json:"final_amount"`
	AppliedPromotions []AppliedDiscount `json:"applied_promotions"`
}

// ValidationResult is the outcome of a code validation preview
type ValidationResult struct {
	OK             bool       `json:"ok"`
	Reason         Reason     `json:"reason,omitempty"`
	Promotion      *Promotion `json:"promotion,omitempty"`
	DiscountAmount int64      `json:"discount_amount"`
	FinalAmount    int64      `json:"final_amount"`
}

// Engine computes promotion eligibility and cart pricing. It is a pure
// calculator: all data comes in through arguments, nothing is persisted, and
// no call blocks. Callers fetch promotions and usage counts, invoke the
// engine, then persist whatever they need.
type Engine struct {
	shippingCost int64
	clock        func() time.Time
}

// NewEngine creates an engine with the configured flat shipping cost, which
// is the monetary value of a free-shipping promotion.
func NewEngine(shippingCost int64) *Engine {
	return &Engine{
		shippingCost: shippingCost,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's time source. Useful for tests and for
// pricing against a fixed point in time.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ShippingCost returns the configured flat shipping cost
func (e *Engine) ShippingCost() int64 {
	return e.shippingCost
}

// EligiblePromotions returns the subset of promotions whose rule conditions
// currently hold for the given cart and user, sorted by id for determinism.
// userCounts maps promotion id to the user's redemption count from the usage
// ledger; pass nil for anonymous carts.
func (e *Engine) EligiblePromotions(promos []Promotion, cart CartSnapshot, userCounts map[uint]int) []Promotion {
	now := e.clock()
	subtotal := cart.Subtotal()
	itemCount := cart.ItemCount()

	eligible := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if e.isEligible(&p, now, subtotal, itemCount, cart.Items, userCounts) {
			eligible = append(eligible, p)
		}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible
}

func (e *Engine) isEligible(p *Promotion, now time.Time, subtotal int64, itemCount int, items []LineItem, userCounts map[uint]int) bool {
	// Malformed definitions never enter the eligibility pool
	if p.Validate() != nil {
		return false
	}

	if !p.IsActive || !p.WithinWindow(now) || !p.HasGlobalUsesLeft() {
		return false
	}

	if p.PerUserLimit > 0 && userCounts[p.ID] >= p.PerUserLimit {
		return false
	}

	if p.MinCartAmount > 0 && subtotal < p.MinCartAmount {
		return false
	}
	if p.MinItemCount > 0 && itemCount < p.MinItemCount {
		return false
	}

	if categories := p.CategoryIDs(); len(categories) > 0 {
		matched := false
		for _, item := range items {
			for _, categoryID := range categories {
				if item.CategoryID == categoryID {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, excludedID := range p.ExcludedIDs() {
		for _, item := range items {
			if item.ProductID == excludedID {
				return false
			}
		}
	}

	return true
}

// ValidateCode checks a user-supplied promotion code against the eligible
// promotions for the cart. The lookup is case-insensitive and only matches
// already-eligible promotions; a nonexistent code and an ineligible one
// produce the same failure. On success the result carries the projected
// discount and final amount — this is a preview and mutates nothing.
func (e *Engine) ValidateCode(code string, promos []Promotion, cart CartSnapshot, userCounts map[uint]int) ValidationResult {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	for _, p := range e.EligiblePromotions(promos, cart, userCounts) {
		if p.Code != normalized {
			continue
		}

		subtotal := cart.Subtotal()
		discount := e.ComputeDiscount(&p, subtotal)
		matched := p
		return ValidationResult{
			OK:             true,
			Promotion:      &matched,
			DiscountAmount: discount,
			FinalAmount:    subtotal - discount,
		}
	}

	return ValidationResult{
		OK:     false,
		Reason: ReasonCodeNotFoundOrIneligible,
	}
}

// ComputeDiscount returns the discount a single promotion yields against the
// given subtotal, clamped so it never exceeds MaxDiscount (when set) nor the
// subtotal itself. Percentage discounts round half-up to whole currency
// units.
func (e *Engine) ComputeDiscount(p *Promotion, currentSubtotal int64) int64 {
	if currentSubtotal <= 0 {
		return 0
	}

	var amount int64
	switch p.Kind {
	case KindPercentage:
		amount = roundHalfUp(float64(currentSubtotal) * p.Value / 100)
	case KindFixedAmount:
		amount = roundHalfUp(p.Value)
	case KindFreeShipping:
		// Models the waived shipping cost as a monetary amount
		amount = e.shippingCost
	}

	if p.MaxDiscount > 0 && amount > p.MaxDiscount {
		amount = p.MaxDiscount
	}
	if amount > currentSubtotal {
		amount = currentSubtotal
	}
	if amount < 0 {
		amount = 0
	}

	return amount
}

// PriceCart prices the cart under the applied promotions. Stacked promotions
// are applied sequentially in application order, each computed against the
// subtotal remaining after the previous discounts. This keeps stacked
// percentage promotions from ever exceeding a 100% combined discount.
func (e *Engine) PriceCart(cart CartSnapshot, set AppliedSet) PricedCart {
	subtotal := cart.Subtotal()
	remaining := subtotal

	applied := make([]AppliedDiscount, 0, len(set))
	var totalDiscount int64
	for _, p := range set {
		amount := e.ComputeDiscount(&p, remaining)
		applied = append(applied, AppliedDiscount{
			PromotionID: p.ID,
			Code:        p.Code,
			Kind:        p.Kind,
			Amount:      amount,
		})
		totalDiscount += amount
		remaining -= amount
	}

	final := subtotal - totalDiscount
	if final < 0 {
		final = 0
	}

	return PricedCart{
		Subtotal:          subtotal,
		DiscountAmount:    totalDiscount,
		FinalAmount:       final,
		AppliedPromotions: applied,
	}
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
