package models

import (
	"time"
)

// BookingStatus is the server-owned lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusRequested           BookingStatus = "requested"
	BookingStatusDriverAssigned      BookingStatus = "driver_assigned"
	BookingStatusDriverEnRoutePickup BookingStatus = "driver_en_route_pickup"
	BookingStatusDriverArrived       BookingStatus = "driver_arrived"
	BookingStatusInProgress          BookingStatus = "in_progress"
	BookingStatusCompleted           BookingStatus = "completed"
	BookingStatusCanceledByClient    BookingStatus = "canceled_by_client"
	BookingStatusCanceledByDriver    BookingStatus = "canceled_by_driver"
	BookingStatusCanceledBySystem    BookingStatus = "canceled_by_system"
	BookingStatusNoShowClient        BookingStatus = "no_show_client"
	BookingStatusNoShowDriver        BookingStatus = "no_show_driver"
	BookingStatusDisputed            BookingStatus = "disputed"
	BookingStatusRefunded            BookingStatus = "refunded"
)

// IsTerminal reports whether no further lifecycle progress is expected.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted,
		BookingStatusCanceledByClient,
		BookingStatusCanceledByDriver,
		BookingStatusCanceledBySystem,
		BookingStatusNoShowClient,
		BookingStatusNoShowDriver,
		BookingStatusDisputed,
		BookingStatusRefunded:
		return true
	}
	return false
}

// IsActive reports a trip that is requested or underway.
func (s BookingStatus) IsActive() bool {
	switch s {
	case BookingStatusRequested,
		BookingStatusDriverAssigned,
		BookingStatusDriverEnRoutePickup,
		BookingStatusDriverArrived,
		BookingStatusInProgress:
		return true
	}
	return false
}

// IsRiderCancelable reports whether the rider may still cancel. Once the
// driver has arrived only the server can end the trip.
func (s BookingStatus) IsRiderCancelable() bool {
	switch s {
	case BookingStatusRequested,
		BookingStatusDriverAssigned,
		BookingStatusDriverEnRoutePickup:
		return true
	}
	return false
}

// VehicleClass is a service tier.
type VehicleClass string

const (
	VehicleClassStandard VehicleClass = "standard"
	VehicleClassComfort  VehicleClass = "comfort"
	VehicleClassPremium  VehicleClass = "premium"
	VehicleClassXL       VehicleClass = "xl"
	VehicleClassVan      VehicleClass = "van"
)

// VehicleClasses lists every tier in display order.
var VehicleClasses = []VehicleClass{
	VehicleClassStandard,
	VehicleClassComfort,
	VehicleClassPremium,
	VehicleClassXL,
	VehicleClassVan,
}

// Valid reports whether c is a known tier.
func (c VehicleClass) Valid() bool {
	for _, known := range VehicleClasses {
		if c == known {
			return true
		}
	}
	return false
}

// AccessibilityOption is a rider accessibility requirement.
type AccessibilityOption string

const (
	AccessibilityWheelchair         AccessibilityOption = "wheelchair"
	AccessibilityServiceAnimal      AccessibilityOption = "service_animal"
	AccessibilityHearingAssistance  AccessibilityOption = "hearing_assistance"
	AccessibilityVisualAssistance   AccessibilityOption = "visual_assistance"
	AccessibilityBoardingAssistance AccessibilityOption = "boarding_assistance"
)

// AccessibilityOptions lists every accessibility flag.
var AccessibilityOptions = []AccessibilityOption{
	AccessibilityWheelchair,
	AccessibilityServiceAnimal,
	AccessibilityHearingAssistance,
	AccessibilityVisualAssistance,
	AccessibilityBoardingAssistance,
}

// DriverPreference is a comfort preference passed to the driver.
type DriverPreference string

const (
	PreferenceQuietRide          DriverPreference = "quiet_ride"
	PreferenceTemperatureControl DriverPreference = "temperature_control"
	PreferenceNoFragrance        DriverPreference = "no_fragrance"
	PreferenceChildSeat          DriverPreference = "child_seat"
	PreferencePetFriendly        DriverPreference = "pet_friendly"
)

// DriverPreferences lists every driver preference flag.
var DriverPreferences = []DriverPreference{
	PreferenceQuietRide,
	PreferenceTemperatureControl,
	PreferenceNoFragrance,
	PreferenceChildSeat,
	PreferencePetFriendly,
}

// Leg is one pickup to dropoff segment of a trip.
type Leg struct {
	Sequence int    `json:"sequence"`
	Pickup   string `json:"pickup"`
	Dropoff  string `json:"dropoff"`
}

// FareBreakdown is an itemised fare in minor currency units.
type FareBreakdown struct {
	Base          int64  `json:"base"`
	Distance      int64  `json:"distance"`
	Options       int64  `json:"options"`
	Subtotal      int64  `json:"subtotal"`
	PromoDiscount int64  `json:"promo_discount"`
	Tax           int64  `json:"tax"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
}

// Booking is the local replica of a server-owned booking.
type Booking struct {
	ID                string                `json:"id"`
	RiderID           string                `json:"rider_id"`
	DriverID          string                `json:"driver_id,omitempty"`
	Status            BookingStatus         `json:"status"`
	Legs              []Leg                 `json:"legs"`
	VehicleClass      VehicleClass          `json:"vehicle_class"`
	Passengers        int                   `json:"passenger_count"`
	Luggage           int                   `json:"luggage_count"`
	Accessibility     []AccessibilityOption `json:"accessibility_options,omitempty"`
	DriverPreferences []DriverPreference    `json:"driver_preferences,omitempty"`
	Notes             string                `json:"special_notes,omitempty"`
	IsASAP            bool                  `json:"is_asap"`
	RequestedPickupAt *time.Time            `json:"requested_pickup_at,omitempty"`
	PromoCode         string                `json:"promotion_code,omitempty"`
	Fare              FareBreakdown         `json:"fare"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (b Booking) Clone() Booking {
	out := b
	out.Legs = append([]Leg(nil), b.Legs...)
	out.Accessibility = append([]AccessibilityOption(nil), b.Accessibility...)
	out.DriverPreferences = append([]DriverPreference(nil), b.DriverPreferences...)
	if b.RequestedPickupAt != nil {
		t := *b.RequestedPickupAt
		out.RequestedPickupAt = &t
	}
	return out
}
