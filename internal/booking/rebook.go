package booking

import (
	"sort"

	"github.com/richxcame/ride-booking/pkg/models"
)

// PrefillFromBooking turns a past trip into a new draft. Pickup comes from
// the first leg and dropoff from the last; every other leg's dropoff becomes
// a stop. The draft is always ASAP with no promo and terms not yet accepted.
func PrefillFromBooking(b *models.Booking) Draft {
	d := NewDraft()
	if b == nil {
		return d
	}

	legs := append([]models.Leg(nil), b.Legs...)
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Sequence < legs[j].Sequence
	})

	if len(legs) > 0 {
		d.Pickup = legs[0].Pickup
		d.Dropoff = legs[len(legs)-1].Dropoff
		for _, leg := range legs[:len(legs)-1] {
			d.Stops = append(d.Stops, leg.Dropoff)
		}
	}

	if b.VehicleClass.Valid() {
		d.VehicleClass = b.VehicleClass
	}
	if b.Passengers > 0 {
		d.Passengers = b.Passengers
	}
	d.Luggage = b.Luggage
	d.Accessibility = append([]models.AccessibilityOption(nil), b.Accessibility...)
	d.DriverPreferences = append([]models.DriverPreference(nil), b.DriverPreferences...)
	d.Notes = b.Notes

	return d
}
