package fare

import (
	"testing"

	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/stretchr/testify/assert"
)

func percent(v float64) *models.PromotionRule {
	return &models.PromotionRule{Code: "PCT", DiscountType: models.DiscountTypePercentage, DiscountValue: v}
}

func fixed(v float64) *models.PromotionRule {
	return &models.PromotionRule{Code: "FIX", DiscountType: models.DiscountTypeFixedAmount, DiscountValue: v}
}

func TestEstimate_Components(t *testing.T) {
	e := NewEstimator(DefaultPolicy())

	got := e.Estimate(Input{
		VehicleClass:        models.VehicleClassStandard,
		RouteDistanceMeters: 10_000,
		StopCount:           2,
		OptionCount:         1,
	}, nil)

	assert.Equal(t, int64(500), got.Base)
	assert.Equal(t, int64(1500+300), got.Distance)
	assert.Equal(t, int64(200), got.Options)
	assert.Equal(t, int64(2500), got.Subtotal)
	assert.Equal(t, int64(0), got.PromoDiscount)
	assert.Equal(t, int64(200), got.Tax)
	assert.Equal(t, int64(2700), got.Total)
	assert.Equal(t, "USD", got.Currency)
}

func TestEstimate_RoundHalfUp(t *testing.T) {
	policy := DefaultPolicy()
	policy.BaseFares = map[models.VehicleClass]int64{models.VehicleClassStandard: 0}
	policy.PerKm = map[models.VehicleClass]int64{models.VehicleClassStandard: 1}
	policy.TaxBasisPoints = 1000
	e := NewEstimator(policy)

	// 500 m at 1 per km is exactly half a unit.
	assert.Equal(t, int64(1), e.Estimate(Input{VehicleClass: models.VehicleClassStandard, RouteDistanceMeters: 500}, nil).Distance)
	assert.Equal(t, int64(0), e.Estimate(Input{VehicleClass: models.VehicleClassStandard, RouteDistanceMeters: 499}, nil).Distance)

	// 10% of 15 is 1.5 -> 2.
	got := e.Estimate(Input{VehicleClass: models.VehicleClassStandard, RouteDistanceMeters: 15_000}, nil)
	assert.Equal(t, int64(15), got.Subtotal)
	assert.Equal(t, int64(2), got.Tax)

	// 10% of 14 is 1.4 -> 1.
	got = e.Estimate(Input{VehicleClass: models.VehicleClassStandard, RouteDistanceMeters: 14_000}, nil)
	assert.Equal(t, int64(1), got.Tax)
}

func TestEstimate_ZeroAndNegativeInputs(t *testing.T) {
	e := NewEstimator(DefaultPolicy())

	got := e.Estimate(Input{}, nil)
	assert.Equal(t, Breakdown{Currency: "USD"}, got)

	got = e.Estimate(Input{
		VehicleClass:        models.VehicleClassComfort,
		RouteDistanceMeters: -5000,
		StopCount:           -2,
		OptionCount:         -1,
	}, nil)
	assert.Equal(t, int64(700), got.Subtotal)
}

func TestEstimate_Additivity(t *testing.T) {
	e := NewEstimator(DefaultPolicy())
	promos := []*models.PromotionRule{nil, percent(15), percent(100), percent(12.5), fixed(300), fixed(1_000_000), fixed(-50), percent(250)}

	for _, class := range models.VehicleClasses {
		for _, meters := range []int64{0, 1, 999, 3_333, 42_195} {
			for stops := 0; stops <= 3; stops++ {
				for _, promo := range promos {
					in := Input{VehicleClass: class, RouteDistanceMeters: meters, StopCount: stops, OptionCount: stops}
					b := e.Estimate(in, promo)

					assert.Equal(t, b.Base+b.Distance+b.Options, b.Subtotal)
					assert.Equal(t, b.Base+b.Distance+b.Options-b.PromoDiscount+b.Tax, b.Total)
					assert.GreaterOrEqual(t, b.Total, int64(0))
					assert.GreaterOrEqual(t, b.PromoDiscount, int64(0))
					assert.LessOrEqual(t, b.PromoDiscount, b.Subtotal)
				}
			}
		}
	}
}

func TestEstimate_Monotonic(t *testing.T) {
	e := NewEstimator(DefaultPolicy())

	prev := int64(-1)
	for meters := int64(0); meters <= 20_000; meters += 250 {
		d := e.Estimate(Input{VehicleClass: models.VehicleClassXL, RouteDistanceMeters: meters}, nil).Distance
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}

	prev = -1
	for stops := 0; stops < 6; stops++ {
		d := e.Estimate(Input{VehicleClass: models.VehicleClassXL, RouteDistanceMeters: 5000, StopCount: stops}, nil).Distance
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestEstimate_FullPercentageClampsToSubtotal(t *testing.T) {
	e := NewEstimator(DefaultPolicy())
	in := Input{VehicleClass: models.VehicleClassPremium, RouteDistanceMeters: 7_700, StopCount: 1, OptionCount: 2}

	b := e.Estimate(in, percent(100))
	assert.Equal(t, b.Subtotal, b.PromoDiscount)
	assert.Equal(t, int64(0), b.Tax)
	assert.Equal(t, int64(0), b.Total)
}

func TestEstimate_PromoTaxOnDiscountedAmount(t *testing.T) {
	e := NewEstimator(DefaultPolicy())
	in := Input{VehicleClass: models.VehicleClassStandard, RouteDistanceMeters: 10_000}

	b := e.Estimate(in, fixed(500))
	assert.Equal(t, int64(2000), b.Subtotal)
	assert.Equal(t, int64(500), b.PromoDiscount)
	assert.Equal(t, int64(120), b.Tax)
	assert.Equal(t, int64(1620), b.Total)
}

func TestEstimate_RemovingPromoRestoresBreakdown(t *testing.T) {
	e := NewEstimator(DefaultPolicy())
	in := Input{VehicleClass: models.VehicleClassComfort, RouteDistanceMeters: 12_345, StopCount: 1, OptionCount: 3}

	before := e.Estimate(in, nil)
	_ = e.Estimate(in, percent(33.33))
	after := e.Estimate(in, nil)
	assert.Equal(t, before, after)
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		subtotal int64
		promo    *models.PromotionRule
		want     int64
	}{
		{"no promo", 1000, nil, 0},
		{"zero subtotal", 0, percent(50), 0},
		{"percentage", 1000, percent(20), 200},
		{"fractional percentage", 1000, percent(12.5), 125},
		{"percentage rounds half up", 5, percent(50), 3},
		{"percentage over 100 clamps", 1000, percent(150), 1000},
		{"negative percentage", 1000, percent(-10), 0},
		{"fixed", 1000, fixed(250), 250},
		{"fixed over subtotal", 1000, fixed(5000), 1000},
		{"negative fixed", 1000, fixed(-1), 0},
		{"unknown type", 1000, &models.PromotionRule{DiscountType: "bogo", DiscountValue: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Discount(tt.subtotal, tt.promo))
		})
	}
}

func TestSubtotalMatchesEstimate(t *testing.T) {
	e := NewEstimator(DefaultPolicy())
	in := Input{VehicleClass: models.VehicleClassVan, RouteDistanceMeters: 8_800, StopCount: 2, OptionCount: 1}
	assert.Equal(t, e.Estimate(in, nil).Subtotal, e.Subtotal(in))
}
