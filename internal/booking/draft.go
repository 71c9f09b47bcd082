package booking

import (
	"strings"
	"time"

	"github.com/richxcame/ride-booking/internal/fare"
	"github.com/richxcame/ride-booking/pkg/models"
)

// Timing is either ASAP or Scheduled.
type Timing interface {
	isTiming()
}

// ASAP requests the next available driver.
type ASAP struct{}

// Scheduled requests a pickup at a fixed time.
type Scheduled struct {
	PickupAt time.Time
}

func (ASAP) isTiming()      {}
func (Scheduled) isTiming() {}

// Promo is either NoPromo or AppliedPromo.
type Promo interface {
	isPromo()
}

// NoPromo means no code is applied.
type NoPromo struct{}

// AppliedPromo is a rule the ride API accepted for a specific pre-discount
// subtotal and vehicle class. It is only valid while both still match.
type AppliedPromo struct {
	Rule              models.PromotionRule
	ValidatedSubtotal int64
	ValidatedClass    models.VehicleClass
}

func (NoPromo) isPromo()      {}
func (AppliedPromo) isPromo() {}

// Draft is the in-progress booking request.
type Draft struct {
	Pickup              string
	Dropoff             string
	Stops               []string
	RouteDistanceMeters int64
	Timing              Timing
	Passengers          int
	Luggage             int
	VehicleClass        models.VehicleClass
	Accessibility       []models.AccessibilityOption
	DriverPreferences   []models.DriverPreference
	Notes               string
	Promo               Promo
	TermsAccepted       bool
}

// NewDraft returns an empty draft with defaults applied.
func NewDraft() Draft {
	return Draft{
		Timing:       ASAP{},
		Passengers:   1,
		VehicleClass: models.VehicleClassStandard,
		Promo:        NoPromo{},
	}
}

func (d Draft) clone() Draft {
	out := d
	out.Stops = append([]string(nil), d.Stops...)
	out.Accessibility = append([]models.AccessibilityOption(nil), d.Accessibility...)
	out.DriverPreferences = append([]models.DriverPreference(nil), d.DriverPreferences...)
	return out
}

func (d Draft) fareInput() fare.Input {
	return fare.Input{
		VehicleClass:        d.VehicleClass,
		RouteDistanceMeters: d.RouteDistanceMeters,
		StopCount:           len(d.Stops),
		OptionCount:         len(d.Accessibility) + len(d.DriverPreferences),
	}
}

func (d Draft) appliedPromo() (AppliedPromo, bool) {
	applied, ok := d.Promo.(AppliedPromo)
	return applied, ok
}

func (d Draft) promoRule() *models.PromotionRule {
	if applied, ok := d.appliedPromo(); ok {
		rule := applied.Rule
		return &rule
	}
	return nil
}

// legs expands pickup, stops and dropoff into consecutive legs.
func (d Draft) legs() []models.Leg {
	points := make([]string, 0, len(d.Stops)+2)
	points = append(points, d.Pickup)
	points = append(points, d.Stops...)
	points = append(points, d.Dropoff)

	legs := make([]models.Leg, 0, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		legs = append(legs, models.Leg{Sequence: i + 1, Pickup: points[i], Dropoff: points[i+1]})
	}
	return legs
}

func (d Draft) hasLocations() bool {
	return strings.TrimSpace(d.Pickup) != "" && strings.TrimSpace(d.Dropoff) != ""
}

// DraftView is the JSON form of a draft.
type DraftView struct {
	Pickup            string                       `json:"pickup"`
	Dropoff           string                       `json:"dropoff"`
	Stops             []string                     `json:"stops"`
	RouteDistanceM    int64                        `json:"route_distance_m"`
	ASAP              bool                         `json:"asap"`
	ScheduledPickupAt *time.Time                   `json:"scheduled_pickup_at,omitempty"`
	Passengers        int                          `json:"passenger_count"`
	Luggage           int                          `json:"luggage_count"`
	VehicleClass      models.VehicleClass          `json:"vehicle_class"`
	Accessibility     []models.AccessibilityOption `json:"accessibility_options"`
	DriverPreferences []models.DriverPreference    `json:"driver_preferences"`
	Notes             string                       `json:"special_notes"`
	Promo             *models.PromotionRule        `json:"promo,omitempty"`
	TermsAccepted     bool                         `json:"terms_accepted"`
}

// View flattens the tagged variants for rendering.
func (d Draft) View() DraftView {
	c := d.clone()
	view := DraftView{
		Pickup:            c.Pickup,
		Dropoff:           c.Dropoff,
		Stops:             c.Stops,
		RouteDistanceM:    c.RouteDistanceMeters,
		Passengers:        c.Passengers,
		Luggage:           c.Luggage,
		VehicleClass:      c.VehicleClass,
		Accessibility:     c.Accessibility,
		DriverPreferences: c.DriverPreferences,
		Notes:             c.Notes,
		Promo:             c.promoRule(),
		TermsAccepted:     c.TermsAccepted,
	}
	switch t := c.Timing.(type) {
	case Scheduled:
		at := t.PickupAt
		view.ScheduledPickupAt = &at
	default:
		view.ASAP = true
	}
	if view.Stops == nil {
		view.Stops = []string{}
	}
	return view
}
