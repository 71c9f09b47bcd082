package models

// DiscountType selects how a promotion's value is applied.
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// PromotionRule is a validated promotion as returned by the ride API.
// DiscountValue is a percentage in [0,100] for percentage rules and an
// amount in minor currency units for fixed rules. Fractional percentages
// are honoured to two decimal places.
type PromotionRule struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	Description   string       `json:"description"`
}
