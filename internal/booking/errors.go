package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid wizard transition")
	ErrSubmissionInFlight = errors.New("booking submission already in progress")
	ErrSubmissionTimeout  = errors.New("booking submission timed out")
	ErrPromoSuperseded    = errors.New("promo validation superseded by a newer request")
	ErrPromoStale         = errors.New("promo validated against an outdated fare")
	ErrNotRebookable      = errors.New("only completed bookings can be rebooked")
)

// ValidationError is a locally resolvable problem with one draft field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalidTransition(event string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
}
