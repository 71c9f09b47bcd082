package schedule

import (
	"fmt"
	"time"
)

// Reason identifies which lead-time bound a pickup time violates.
type Reason string

const (
	ReasonTooSoon Reason = "too_soon"
	ReasonTooFar  Reason = "too_far"
)

const (
	DefaultMinLead = 15 * time.Minute
	DefaultMaxLead = 30 * 24 * time.Hour
)

// Result is the outcome of validating a scheduled pickup.
type Result struct {
	Valid   bool   `json:"valid"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Validator enforces the scheduled pickup lead-time window.
type Validator struct {
	minLead time.Duration
	maxLead time.Duration
}

// NewValidator creates a validator. Non-positive bounds fall back to the
// defaults.
func NewValidator(minLead, maxLead time.Duration) *Validator {
	if minLead <= 0 {
		minLead = DefaultMinLead
	}
	if maxLead <= 0 {
		maxLead = DefaultMaxLead
	}
	return &Validator{minLead: minLead, maxLead: maxLead}
}

// Validate checks pickupAt against now. Both bounds are inclusive.
func (v *Validator) Validate(pickupAt, now time.Time) Result {
	lead := pickupAt.Sub(now)

	if lead < v.minLead {
		return Result{
			Reason:  ReasonTooSoon,
			Message: fmt.Sprintf("Scheduled pickup must be at least %s from now", describe(v.minLead)),
		}
	}
	if lead > v.maxLead {
		return Result{
			Reason:  ReasonTooFar,
			Message: fmt.Sprintf("Scheduled pickup cannot be more than %s in advance", describe(v.maxLead)),
		}
	}
	return Result{Valid: true}
}

// describe renders a lead time the way riders read it: whole days when it
// divides evenly, otherwise minutes.
func describe(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		return plural(int64(d/day), "day")
	}
	if d%time.Minute == 0 {
		return plural(int64(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
