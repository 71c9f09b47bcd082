package api

import (
	"time"

	"github.com/richxcame/ride-booking/pkg/models"
)

// CreateBookingRequest is the create-booking body.
type CreateBookingRequest struct {
	RiderID           string                       `json:"rider_id"`
	Legs              []models.Leg                 `json:"legs"`
	VehicleClass      models.VehicleClass          `json:"vehicle_class"`
	Passengers        int                          `json:"passenger_count"`
	Luggage           int                          `json:"luggage_count"`
	Accessibility     []models.AccessibilityOption `json:"accessibility_options,omitempty"`
	DriverPreferences []models.DriverPreference    `json:"driver_preferences,omitempty"`
	Notes             string                       `json:"special_notes,omitempty"`
	IsASAP            bool                         `json:"is_asap"`
	RequestedPickupAt *time.Time                   `json:"requested_pickup_at,omitempty"`
	PromoCode         string                       `json:"promotion_code,omitempty"`
	EstimatedFare     models.FareBreakdown         `json:"estimated_fare"`
}

// PromoValidationRequest asks the ride API whether a code applies.
type PromoValidationRequest struct {
	Code                string              `json:"code"`
	UserID              string              `json:"user_id"`
	PreDiscountSubtotal int64               `json:"pre_discount_subtotal"`
	VehicleClass        models.VehicleClass `json:"vehicle_class"`
}

// PromoValidationResponse carries either a rule or a rejection message.
type PromoValidationResponse struct {
	Valid bool                  `json:"valid"`
	Promo *models.PromotionRule `json:"promo,omitempty"`
	Error string                `json:"error,omitempty"`
}

// UpdateStatusRequest is the status-change body.
type UpdateStatusRequest struct {
	Status    models.BookingStatus `json:"status"`
	ActorID   string               `json:"actor_id"`
	ActorRole string               `json:"actor_role"`
	Reason    string               `json:"reason,omitempty"`
}

type bookingsResponse struct {
	Bookings []models.Booking `json:"bookings"`
}
