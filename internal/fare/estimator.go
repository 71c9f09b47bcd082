package fare

import (
	"math"

	"github.com/richxcame/ride-booking/pkg/models"
)

// Breakdown is an itemised estimate in minor currency units.
type Breakdown = models.FareBreakdown

const basisPoints = 10000

// Policy holds the local price list. Amounts are minor currency units.
type Policy struct {
	Currency        string
	BaseFares       map[models.VehicleClass]int64
	PerKm           map[models.VehicleClass]int64
	PerStop         int64
	OptionSurcharge int64
	TaxBasisPoints  int64
}

// DefaultPolicy returns the standard price list.
func DefaultPolicy() Policy {
	return Policy{
		Currency: "USD",
		BaseFares: map[models.VehicleClass]int64{
			models.VehicleClassStandard: 500,
			models.VehicleClassComfort:  700,
			models.VehicleClassPremium:  1200,
			models.VehicleClassXL:       900,
			models.VehicleClassVan:      1100,
		},
		PerKm: map[models.VehicleClass]int64{
			models.VehicleClassStandard: 150,
			models.VehicleClassComfort:  180,
			models.VehicleClassPremium:  250,
			models.VehicleClassXL:       200,
			models.VehicleClassVan:      220,
		},
		PerStop:         150,
		OptionSurcharge: 200,
		TaxBasisPoints:  800,
	}
}

// Input is the price-relevant projection of a draft.
type Input struct {
	VehicleClass        models.VehicleClass
	RouteDistanceMeters int64
	StopCount           int
	OptionCount         int
}

// Estimator computes fare breakdowns. It has no I/O and never fails.
type Estimator struct {
	policy Policy
}

// NewEstimator creates an estimator for the given policy.
func NewEstimator(policy Policy) *Estimator {
	return &Estimator{policy: policy}
}

// Policy returns the estimator's price list.
func (e *Estimator) Policy() Policy {
	return e.policy
}

// Subtotal returns base + distance + options for in.
func (e *Estimator) Subtotal(in Input) int64 {
	base, distance, options := e.components(in)
	return base + distance + options
}

// Estimate prices in, applying promo when non-nil. Negative inputs count as
// zero; an unknown vehicle class has no base or per-km rate.
func (e *Estimator) Estimate(in Input, promo *models.PromotionRule) Breakdown {
	base, distance, options := e.components(in)
	subtotal := base + distance + options

	discount := Discount(subtotal, promo)
	taxable := subtotal - discount
	tax := roundHalfUp(taxable*nonNegative(e.policy.TaxBasisPoints), basisPoints)

	return Breakdown{
		Base:          base,
		Distance:      distance,
		Options:       options,
		Subtotal:      subtotal,
		PromoDiscount: discount,
		Tax:           tax,
		Total:         taxable + tax,
		Currency:      e.policy.Currency,
	}
}

func (e *Estimator) components(in Input) (base, distance, options int64) {
	base = nonNegative(e.policy.BaseFares[in.VehicleClass])

	perKm := nonNegative(e.policy.PerKm[in.VehicleClass])
	distance = roundHalfUp(nonNegative(in.RouteDistanceMeters)*perKm, 1000)
	distance += nonNegative(e.policy.PerStop) * nonNegative(int64(in.StopCount))

	options = nonNegative(e.policy.OptionSurcharge) * nonNegative(int64(in.OptionCount))
	return base, distance, options
}

// Discount returns the promotion amount for subtotal, clamped to
// [0, subtotal]. Percentages are resolved to basis points.
func Discount(subtotal int64, promo *models.PromotionRule) int64 {
	if promo == nil || subtotal <= 0 {
		return 0
	}

	var discount int64
	switch promo.DiscountType {
	case models.DiscountTypePercentage:
		bps := int64(math.Round(promo.DiscountValue * 100))
		if bps > basisPoints {
			bps = basisPoints
		}
		discount = roundHalfUp(subtotal*nonNegative(bps), basisPoints)
	case models.DiscountTypeFixedAmount:
		discount = int64(math.Round(promo.DiscountValue))
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

// roundHalfUp divides a non-negative numerator, rounding .5 up.
func roundHalfUp(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
