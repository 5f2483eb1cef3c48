// internal/domain/promotion/engine_test.go
package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func testEngine(shippingCost int64) *Engine {
	return NewEngine(shippingCost).WithClock(func() time.Time { return testNow })
}

func activeWindow() (time.Time, time.Time) {
	return testNow.Add(-24 * time.Hour), testNow.Add(24 * time.Hour)
}

func percentPromo(id uint, code string, value float64) Promotion {
	startsAt, endsAt := activeWindow()
	return Promotion{
		ID:        id,
		Code:      code,
		Name:      code,
		Kind:      KindPercentage,
		Value:     value,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Stackable: true,
		IsActive:  true,
	}
}

func fixedPromo(id uint, code string, amount float64) Promotion {
	p := percentPromo(id, code, 0)
	p.Kind = KindFixedAmount
	p.Value = amount
	return p
}

func freeShippingPromo(id uint, code string) Promotion {
	p := percentPromo(id, code, 0)
	p.Kind = KindFreeShipping
	p.Value = 0
	return p
}

func cartWithSubtotal(subtotal int64) CartSnapshot {
	return CartSnapshot{Items: []LineItem{
		{ProductID: 1, CategoryID: 1, UnitPrice: subtotal, Quantity: 1},
	}}
}

func TestCartSnapshotTotals(t *testing.T) {
	cart := CartSnapshot{Items: []LineItem{
		{ProductID: 1, CategoryID: 1, UnitPrice: 1500, Quantity: 2},
		{ProductID: 2, CategoryID: 2, UnitPrice: 700, Quantity: 3},
	}}

	assert.Equal(t, int64(5100), cart.Subtotal())
	assert.Equal(t, 5, cart.ItemCount())
}

func TestEligibilityFilters(t *testing.T) {
	engine := testEngine(500)
	cart := CartSnapshot{Items: []LineItem{
		{ProductID: 10, CategoryID: 3, UnitPrice: 10000, Quantity: 2},
	}}
	startsAt, endsAt := activeWindow()

	inactive := percentPromo(1, "OFF", 10)
	inactive.IsActive = false

	expired := percentPromo(2, "EXPIRED", 10)
	expired.StartsAt = testNow.Add(-48 * time.Hour)
	expired.EndsAt = testNow.Add(-24 * time.Hour)

	notYetStarted := percentPromo(3, "SOON", 10)
	notYetStarted.StartsAt = testNow.Add(time.Hour)
	notYetStarted.EndsAt = testNow.Add(48 * time.Hour)

	exhausted := percentPromo(4, "GONE", 10)
	exhausted.UsageLimit = 5
	exhausted.UsageCount = 5

	userCapped := percentPromo(5, "ONCE", 10)
	userCapped.PerUserLimit = 1

	belowMinimum := percentPromo(6, "BIGSPEND", 10)
	belowMinimum.MinCartAmount = 50000

	tooFewItems := percentPromo(7, "BULK", 10)
	tooFewItems.MinItemCount = 5

	wrongCategory := percentPromo(8, "SHOES", 10)
	wrongCategory.ApplicableCategories = "7,8"

	excludesProduct := percentPromo(9, "NOTTHIS", 10)
	excludesProduct.ExcludedProductIDs = "10"

	malformed := Promotion{
		ID: 10, Code: "BROKEN", Kind: KindPercentage, Value: 150,
		StartsAt: startsAt, EndsAt: endsAt, Stackable: true, IsActive: true,
	}

	ok := percentPromo(11, "GOOD", 10)

	matchingCategory := percentPromo(12, "CAT", 10)
	matchingCategory.ApplicableCategories = "3,4"

	all := []Promotion{
		inactive, expired, notYetStarted, exhausted, userCapped,
		belowMinimum, tooFewItems, wrongCategory, excludesProduct,
		malformed, ok, matchingCategory,
	}

	eligible := engine.EligiblePromotions(all, cart, map[uint]int{5: 1})

	require.Len(t, eligible, 2)
	assert.Equal(t, uint(11), eligible[0].ID)
	assert.Equal(t, uint(12), eligible[1].ID)
}

func TestEligibilityEmptyCart(t *testing.T) {
	engine := testEngine(500)

	unconditional := fixedPromo(1, "ANY", 100)
	gated := percentPromo(2, "MIN", 10)
	gated.MinCartAmount = 1

	eligible := engine.EligiblePromotions([]Promotion{unconditional, gated}, CartSnapshot{}, nil)

	// Only promotions without cart minimums survive an empty cart
	require.Len(t, eligible, 1)
	assert.Equal(t, "ANY", eligible[0].Code)
}

func TestEligibilityWindowBoundaries(t *testing.T) {
	engine := testEngine(0)
	cart := cartWithSubtotal(1000)

	// [StartsAt, EndsAt): the start instant is in, the end instant is out
	startingNow := percentPromo(1, "STARTS", 10)
	startingNow.StartsAt = testNow
	startingNow.EndsAt = testNow.Add(time.Hour)

	endingNow := percentPromo(2, "ENDS", 10)
	endingNow.StartsAt = testNow.Add(-time.Hour)
	endingNow.EndsAt = testNow

	eligible := engine.EligiblePromotions([]Promotion{startingNow, endingNow}, cart, nil)
	require.Len(t, eligible, 1)
	assert.Equal(t, "STARTS", eligible[0].Code)
}

func TestValidateCodeSimplePercentage(t *testing.T) {
	engine := testEngine(500)

	welcome := percentPromo(1, "WELCOME10", 10)
	welcome.MinCartAmount = 5000

	result := engine.ValidateCode("welcome10", []Promotion{welcome}, cartWithSubtotal(20000), nil)

	require.True(t, result.OK)
	assert.Equal(t, int64(2000), result.DiscountAmount)
	assert.Equal(t, int64(18000), result.FinalAmount)
	require.NotNil(t, result.Promotion)
	assert.Equal(t, uint(1), result.Promotion.ID)
}

func TestValidateCodeBelowMinimum(t *testing.T) {
	engine := testEngine(500)

	welcome := percentPromo(1, "WELCOME10", 10)
	welcome.MinCartAmount = 5000

	result := engine.ValidateCode("WELCOME10", []Promotion{welcome}, cartWithSubtotal(3000), nil)

	assert.False(t, result.OK)
	assert.Equal(t, ReasonCodeNotFoundOrIneligible, result.Reason)
}

func TestValidateCodeUnknownAndIneligibleLookTheSame(t *testing.T) {
	engine := testEngine(500)

	gated := percentPromo(1, "SECRET", 10)
	gated.MinCartAmount = 99999999

	cart := cartWithSubtotal(100)
	unknown := engine.ValidateCode("NOSUCHCODE", []Promotion{gated}, cart, nil)
	ineligible := engine.ValidateCode("SECRET", []Promotion{gated}, cart, nil)

	assert.Equal(t, unknown, ineligible)
}

func TestValidateCodeIsAPreview(t *testing.T) {
	engine := testEngine(500)
	promos := []Promotion{percentPromo(1, "TEN", 10)}
	cart := cartWithSubtotal(1000)

	first := engine.ValidateCode("TEN", promos, cart, nil)
	second := engine.ValidateCode("TEN", promos, cart, nil)

	// Validation mutates nothing, so repeating it yields the same answer
	assert.Equal(t, first, second)
}

func TestComputeDiscountCappedByMaxDiscount(t *testing.T) {
	engine := testEngine(500)

	p := percentPromo(1, "TWENTY", 20)
	p.MaxDiscount = 10000

	discount := engine.ComputeDiscount(&p, 100000)
	assert.Equal(t, int64(10000), discount, "raw 20000 must clamp to the max discount")

	priced := engine.PriceCart(cartWithSubtotal(100000), AppliedSet{p})
	assert.Equal(t, int64(90000), priced.FinalAmount)
}

func TestComputeDiscountNeverExceedsSubtotal(t *testing.T) {
	engine := testEngine(500)

	p := fixedPromo(1, "BIG", 5000)
	assert.Equal(t, int64(1200), engine.ComputeDiscount(&p, 1200))
	assert.Equal(t, int64(0), engine.ComputeDiscount(&p, 0))
}

func TestComputeDiscountRoundsHalfUp(t *testing.T) {
	engine := testEngine(0)

	p := percentPromo(1, "HALF", 12.5)
	// 12.5% of 333 = 41.625 -> 42
	assert.Equal(t, int64(42), engine.ComputeDiscount(&p, 333))

	p.Value = 10
	// 10% of 5 = 0.5 -> rounds up to 1
	assert.Equal(t, int64(1), engine.ComputeDiscount(&p, 5))
}

func TestComputeDiscountFreeShippingUsesConfiguredCost(t *testing.T) {
	engine := testEngine(2000)

	p := freeShippingPromo(1, "SHIPFREE")
	assert.Equal(t, int64(2000), engine.ComputeDiscount(&p, 30000))

	// Still clamped by the remaining subtotal
	assert.Equal(t, int64(800), engine.ComputeDiscount(&p, 800))
}

func TestApplyAndRemove(t *testing.T) {
	a := percentPromo(1, "A", 10)
	b := percentPromo(2, "B", 20)

	set, err := Apply(a, AppliedSet{})
	require.NoError(t, err)
	require.Len(t, set, 1)

	set, err = Apply(b, set)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, []uint{1, 2}, set.IDs())

	_, err = Apply(a, set)
	assert.ErrorIs(t, err, ErrAlreadyApplied)
	assert.Equal(t, ReasonAlreadyApplied, ReasonForError(err))

	set = Remove(1, set)
	assert.Equal(t, []uint{2}, set.IDs())

	assert.Empty(t, Clear(set))
}

func TestRemoveIsIdempotent(t *testing.T) {
	set := AppliedSet{percentPromo(1, "A", 10), percentPromo(2, "B", 20)}

	once := Remove(1, set)
	twice := Remove(1, once)
	assert.Equal(t, once, twice)

	// Removing an absent id is a no-op, not an error
	assert.Equal(t, set.IDs(), Remove(99, set).IDs())
}

func TestApplyThenRemoveRestoresSet(t *testing.T) {
	a := percentPromo(1, "A", 10)
	b := percentPromo(2, "B", 20)
	original := AppliedSet{a}

	applied, err := Apply(b, original)
	require.NoError(t, err)

	restored := Remove(b.ID, applied)
	assert.Equal(t, original.IDs(), restored.IDs())
}

func TestApplyDoesNotAliasOriginalSet(t *testing.T) {
	a := percentPromo(1, "A", 10)
	b := percentPromo(2, "B", 20)
	c := percentPromo(3, "C", 30)

	base, err := Apply(a, AppliedSet{})
	require.NoError(t, err)

	withB, err := Apply(b, base)
	require.NoError(t, err)
	withC, err := Apply(c, base)
	require.NoError(t, err)

	assert.Equal(t, []uint{1, 2}, withB.IDs())
	assert.Equal(t, []uint{1, 3}, withC.IDs())
	assert.Equal(t, []uint{1}, base.IDs())
}

func TestNonStackableExclusivity(t *testing.T) {
	exclusive := percentPromo(1, "SOLO", 50)
	exclusive.Stackable = false
	regular := percentPromo(2, "EXTRA", 10)

	// A non-stackable promotion cannot join a non-empty set
	set := AppliedSet{regular}
	_, err := Apply(exclusive, set)
	assert.ErrorIs(t, err, ErrNotStackable)
	assert.Equal(t, ReasonNotStackable, ReasonForError(err))

	// Nothing can join once a non-stackable promotion is applied
	set, err = Apply(exclusive, AppliedSet{})
	require.NoError(t, err)
	_, err = Apply(regular, set)
	assert.ErrorIs(t, err, ErrNotStackable)

	// Removing the non-stackable member unlocks the set again
	set = Remove(exclusive.ID, set)
	_, err = Apply(regular, set)
	assert.NoError(t, err)
}

// Stacked promotions are priced sequentially against the remaining subtotal,
// not additively against the original one. Two 50% promotions therefore
// discount 75% of the cart, never 100%.
func TestStackingIsSequentialRemainder(t *testing.T) {
	engine := testEngine(500)
	cart := cartWithSubtotal(10000)

	set := AppliedSet{percentPromo(1, "HALF1", 50), percentPromo(2, "HALF2", 50)}
	priced := engine.PriceCart(cart, set)

	assert.Equal(t, int64(7500), priced.DiscountAmount)
	assert.Equal(t, int64(2500), priced.FinalAmount)
	require.Len(t, priced.AppliedPromotions, 2)
	assert.Equal(t, int64(5000), priced.AppliedPromotions[0].Amount)
	assert.Equal(t, int64(2500), priced.AppliedPromotions[1].Amount)
}

func TestStackingFreeShippingWithFixedAmount(t *testing.T) {
	engine := testEngine(2000)
	cart := cartWithSubtotal(30000)

	set := AppliedSet{freeShippingPromo(1, "SHIPFREE"), fixedPromo(2, "FLAT5000", 5000)}
	priced := engine.PriceCart(cart, set)

	assert.Equal(t, int64(7000), priced.DiscountAmount)
	assert.Equal(t, int64(23000), priced.FinalAmount)
}

func TestPriceCartDiscountBoundedBySubtotal(t *testing.T) {
	engine := testEngine(500)
	cart := cartWithSubtotal(1000)

	set := AppliedSet{
		fixedPromo(1, "F1", 800),
		fixedPromo(2, "F2", 800),
		fixedPromo(3, "F3", 800),
	}
	priced := engine.PriceCart(cart, set)

	assert.LessOrEqual(t, priced.DiscountAmount, priced.Subtotal)
	assert.GreaterOrEqual(t, priced.FinalAmount, int64(0))
	assert.Equal(t, int64(1000), priced.DiscountAmount)
	assert.Equal(t, int64(0), priced.FinalAmount)
}

func TestPriceCartEmptyAppliedSet(t *testing.T) {
	engine := testEngine(500)
	priced := engine.PriceCart(cartWithSubtotal(4200), AppliedSet{})

	assert.Equal(t, int64(4200), priced.Subtotal)
	assert.Equal(t, int64(0), priced.DiscountAmount)
	assert.Equal(t, int64(4200), priced.FinalAmount)
	assert.Empty(t, priced.AppliedPromotions)
}

func TestPromotionValidate(t *testing.T) {
	startsAt, endsAt := activeWindow()

	tests := []struct {
		name    string
		mutate  func(*Promotion)
		wantErr bool
	}{
		{"valid percentage", func(p *Promotion) {}, false},
		{"missing code", func(p *Promotion) { p.Code = "" }, true},
		{"percentage over 100", func(p *Promotion) { p.Value = 120 }, true},
		{"percentage zero", func(p *Promotion) { p.Value = 0 }, true},
		{"negative fixed amount", func(p *Promotion) { p.Kind = KindFixedAmount; p.Value = -100 }, true},
		{"free shipping without value", func(p *Promotion) { p.Kind = KindFreeShipping; p.Value = 0 }, false},
		{"unknown kind", func(p *Promotion) { p.Kind = "bogo" }, true},
		{"inverted window", func(p *Promotion) { p.StartsAt, p.EndsAt = p.EndsAt, p.StartsAt }, true},
		{"negative min cart amount", func(p *Promotion) { p.MinCartAmount = -1 }, true},
		{"negative usage limit", func(p *Promotion) { p.UsageLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Promotion{
				Code:     "TEST",
				Kind:     KindPercentage,
				Value:    10,
				StartsAt: startsAt,
				EndsAt:   endsAt,
			}
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseIDList(t *testing.T) {
	p := Promotion{ApplicableCategories: "1, 2,3 ,, x", ExcludedProductIDs: ""}

	assert.Equal(t, []uint{1, 2, 3}, p.CategoryIDs())
	assert.Nil(t, p.ExcludedIDs())
}
