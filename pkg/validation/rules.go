package validation

import "time"

// Request bodies accepted by the rider gateway.

// SessionRequest opens a rider session.
type SessionRequest struct {
	AccessToken string `json:"access_token" validate:"required,min=10"`
}

// DraftPatchRequest updates any subset of the draft. Nil fields are left
// unchanged.
type DraftPatchRequest struct {
	Pickup            *string    `json:"pickup" validate:"omitempty,max=500"`
	Dropoff           *string    `json:"dropoff" validate:"omitempty,max=500"`
	Stops             []string   `json:"stops" validate:"omitempty,max=5,dive,max=500"`
	RouteDistanceM    *int64     `json:"route_distance_m" validate:"omitempty,gte=0"`
	ASAP              *bool      `json:"asap"`
	ScheduledPickupAt *time.Time `json:"scheduled_pickup_at"`
	Passengers        *int       `json:"passenger_count" validate:"omitempty,min=1,max=6"`
	Luggage           *int       `json:"luggage_count" validate:"omitempty,min=0,max=5"`
	VehicleClass      *string    `json:"vehicle_class" validate:"omitempty,vehicle_class"`
	Accessibility     []string   `json:"accessibility_options" validate:"omitempty,dive,accessibility_option"`
	DriverPreferences []string   `json:"driver_preferences" validate:"omitempty,dive,driver_preference"`
	Notes             *string    `json:"special_notes" validate:"omitempty,max=500"`
	TermsAccepted     *bool      `json:"terms_accepted"`
}

// ApplyPromoRequest submits a promotion code.
type ApplyPromoRequest struct {
	Code string `json:"code" validate:"required,promo_code"`
}

// CancelTripRequest cancels an active trip.
type CancelTripRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}
