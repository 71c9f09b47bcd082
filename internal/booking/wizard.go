package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/internal/fare"
	"github.com/richxcame/ride-booking/internal/promos"
	"github.com/richxcame/ride-booking/internal/schedule"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/security"
	"github.com/richxcame/ride-booking/pkg/validation"
	"go.uber.org/zap"
)

// State is a booking wizard step.
type State string

const (
	StateIdle      State = "idle"
	StateLocation  State = "location"
	StateDetails   State = "details"
	StateVehicle   State = "vehicle"
	StateReview    State = "review"
	StateConfirmed State = "confirmed"
)

func (s State) editable() bool {
	switch s {
	case StateLocation, StateDetails, StateVehicle, StateReview:
		return true
	}
	return false
}

// Field bounds, expressed as validator tags.
const (
	passengerRule = "min=1,max=6"
	luggageRule   = "min=0,max=5"
	notesRule     = "max=500"
	maxStops      = 5
)

const NoticePromoCleared = "promo_cleared"

// Notice is an informational event from the last edit.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BookingCreator submits bookings to the ride API.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*models.Booking, error)
}

// PromoValidator resolves promo codes.
type PromoValidator interface {
	Validate(ctx context.Context, req promos.Request) (*models.PromotionRule, error)
}

// TripStore receives the booking created by a successful submission.
type TripStore interface {
	Upsert(b models.Booking)
}

// Config wires a wizard.
type Config struct {
	RiderID       string
	Estimator     *fare.Estimator
	Schedule      *schedule.Validator
	Promos        PromoValidator
	Creator       BookingCreator
	Trips         TripStore
	SubmitTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Wizard is the per-rider booking state machine. All methods are safe for
// concurrent use; no lock is held while the ride API is called.
type Wizard struct {
	mu sync.Mutex

	riderID       string
	estimator     *fare.Estimator
	schedule      *schedule.Validator
	promos        PromoValidator
	creator       BookingCreator
	trips         TripStore
	submitTimeout time.Duration
	now           func() time.Time

	state      State
	draft      Draft
	fare       fare.Breakdown
	notice     *Notice
	lastErr    error
	submitting bool
	confirmed  *models.Booking

	promoSeq     uint64
	promoPending bool
	promoCancel  context.CancelFunc
}

// NewWizard creates an idle wizard.
func NewWizard(cfg Config) *Wizard {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	estimator := cfg.Estimator
	if estimator == nil {
		estimator = fare.NewEstimator(fare.DefaultPolicy())
	}
	validator := cfg.Schedule
	if validator == nil {
		validator = schedule.NewValidator(schedule.DefaultMinLead, schedule.DefaultMaxLead)
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 20 * time.Second
	}

	return &Wizard{
		riderID:       cfg.RiderID,
		estimator:     estimator,
		schedule:      validator,
		promos:        cfg.Promos,
		creator:       cfg.Creator,
		trips:         cfg.Trips,
		submitTimeout: submitTimeout,
		now:           now,
		state:         StateIdle,
	}
}

// Start opens a fresh draft.
func (w *Wizard) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateIdle {
		return invalidTransition("start", w.state)
	}
	w.open(NewDraft())
	return nil
}

// Rebook opens a draft prefilled from a completed booking.
func (w *Wizard) Rebook(b models.Booking) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateIdle {
		return invalidTransition("rebook", w.state)
	}
	if b.Status != models.BookingStatusCompleted {
		return fmt.Errorf("%w: booking %s is %s", ErrNotRebookable, b.ID, b.Status)
	}
	w.open(PrefillFromBooking(&b))
	return nil
}

func (w *Wizard) open(d Draft) {
	w.draft = d
	w.notice = nil
	w.lastErr = nil
	w.confirmed = nil
	w.recompute()
	w.transition(StateLocation)
}

// Continue advances one step if the current step's guard holds.
func (w *Wizard) Continue() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateLocation:
		if strings.TrimSpace(w.draft.Pickup) == "" {
			return &ValidationError{Field: "pickup", Reason: "pickup address is required"}
		}
		if strings.TrimSpace(w.draft.Dropoff) == "" {
			return &ValidationError{Field: "dropoff", Reason: "dropoff address is required"}
		}
		w.transition(StateDetails)
	case StateDetails:
		if err := w.checkTiming(); err != nil {
			return err
		}
		w.transition(StateVehicle)
	case StateVehicle:
		if !w.draft.VehicleClass.Valid() {
			return &ValidationError{Field: "vehicle_class", Reason: "select a vehicle class"}
		}
		w.recompute()
		w.transition(StateReview)
	default:
		return invalidTransition("continue", w.state)
	}
	return nil
}

// Back returns to the previous step. Backing out of Location discards the
// draft.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmissionInFlight
	}

	switch w.state {
	case StateLocation:
		w.abandonPromo()
		w.discard()
	case StateDetails:
		w.abandonPromo()
		w.transition(StateLocation)
	case StateVehicle:
		w.abandonPromo()
		w.transition(StateDetails)
	case StateReview:
		w.abandonPromo()
		w.transition(StateVehicle)
	default:
		return invalidTransition("back", w.state)
	}
	return nil
}

// Cancel discards the draft from any editing step.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmissionInFlight
	}
	if !w.state.editable() {
		return invalidTransition("cancel", w.state)
	}
	w.abandonPromo()
	w.discard()
	return nil
}

// Reset leaves Confirmed for Idle.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateConfirmed {
		return invalidTransition("reset", w.state)
	}
	w.discard()
	return nil
}

func (w *Wizard) discard() {
	w.draft = Draft{}
	w.fare = fare.Breakdown{}
	w.notice = nil
	w.lastErr = nil
	w.confirmed = nil
	w.transition(StateIdle)
}

func (w *Wizard) transition(to State) {
	from := w.state
	w.state = to
	recordTransition(from, to)
	logger.Get().Debug("booking wizard transition",
		zap.String("rider_id", w.riderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// Edit is one validated change to the draft. The *Edit constructors check
// their input; Apply commits several edits at once.
type Edit func(d *Draft)

// PickupEdit sets the pickup address.
func PickupEdit(address string) (Edit, error) {
	address = security.SanitizeLine(address)
	return func(d *Draft) { d.Pickup = address }, nil
}

// DropoffEdit sets the dropoff address.
func DropoffEdit(address string) (Edit, error) {
	address = security.SanitizeLine(address)
	return func(d *Draft) { d.Dropoff = address }, nil
}

// StopsEdit replaces the ordered intermediate stops.
func StopsEdit(stops []string) (Edit, error) {
	if len(stops) > maxStops {
		return nil, &ValidationError{Field: "stops", Reason: fmt.Sprintf("at most %d stops are allowed", maxStops)}
	}
	cleaned := make([]string, 0, len(stops))
	for _, stop := range stops {
		stop = security.SanitizeLine(stop)
		if stop == "" {
			return nil, &ValidationError{Field: "stops", Reason: "stop addresses must not be empty"}
		}
		cleaned = append(cleaned, stop)
	}
	return func(d *Draft) { d.Stops = cleaned }, nil
}

// RouteDistanceEdit records the routed trip length in meters.
func RouteDistanceEdit(meters int64) (Edit, error) {
	if meters < 0 {
		return nil, &ValidationError{Field: "route_distance_m", Reason: "distance must not be negative"}
	}
	return func(d *Draft) { d.RouteDistanceMeters = meters }, nil
}

// ASAPEdit switches the draft to an immediate pickup.
func ASAPEdit() (Edit, error) {
	return func(d *Draft) { d.Timing = ASAP{} }, nil
}

// ScheduledPickupEdit switches the draft to a scheduled pickup. A time
// outside the lead window is kept so it can be corrected; it blocks
// Continue and Confirm and is reported by Snapshot.
func ScheduledPickupEdit(at time.Time) (Edit, error) {
	return func(d *Draft) { d.Timing = Scheduled{PickupAt: at} }, nil
}

func PassengersEdit(n int) (Edit, error) {
	if err := checkRule(n, passengerRule, "passenger_count", "passengers must be between 1 and 6"); err != nil {
		return nil, err
	}
	return func(d *Draft) { d.Passengers = n }, nil
}

func LuggageEdit(n int) (Edit, error) {
	if err := checkRule(n, luggageRule, "luggage_count", "luggage must be between 0 and 5"); err != nil {
		return nil, err
	}
	return func(d *Draft) { d.Luggage = n }, nil
}

// VehicleClassEdit selects a service tier.
func VehicleClassEdit(class models.VehicleClass) (Edit, error) {
	if !class.Valid() {
		return nil, &ValidationError{Field: "vehicle_class", Reason: fmt.Sprintf("unknown vehicle class %q", class)}
	}
	return func(d *Draft) { d.VehicleClass = class }, nil
}

// AccessibilityEdit replaces the accessibility set. Duplicates collapse.
func AccessibilityEdit(options []models.AccessibilityOption) (Edit, error) {
	set := make([]models.AccessibilityOption, 0, len(options))
	for _, opt := range options {
		if !containsOption(models.AccessibilityOptions, opt) {
			return nil, &ValidationError{Field: "accessibility_options", Reason: fmt.Sprintf("unknown option %q", opt)}
		}
		if !containsOption(set, opt) {
			set = append(set, opt)
		}
	}
	return func(d *Draft) { d.Accessibility = set }, nil
}

// DriverPreferencesEdit replaces the driver preference set. Duplicates
// collapse.
func DriverPreferencesEdit(prefs []models.DriverPreference) (Edit, error) {
	set := make([]models.DriverPreference, 0, len(prefs))
	for _, pref := range prefs {
		if !containsOption(models.DriverPreferences, pref) {
			return nil, &ValidationError{Field: "driver_preferences", Reason: fmt.Sprintf("unknown preference %q", pref)}
		}
		if !containsOption(set, pref) {
			set = append(set, pref)
		}
	}
	return func(d *Draft) { d.DriverPreferences = set }, nil
}

// NotesEdit sets free-text notes for the driver.
func NotesEdit(notes string) (Edit, error) {
	notes = security.SanitizeString(notes)
	if err := checkRule(notes, notesRule, "special_notes", "notes must be at most 500 characters"); err != nil {
		return nil, err
	}
	return func(d *Draft) { d.Notes = notes }, nil
}

func TermsAcceptedEdit(accepted bool) (Edit, error) {
	return func(d *Draft) { d.TermsAccepted = accepted }, nil
}

// SetPickup sets the pickup address.
func (w *Wizard) SetPickup(address string) error { return w.applyOne(PickupEdit(address)) }

// SetDropoff sets the dropoff address.
func (w *Wizard) SetDropoff(address string) error { return w.applyOne(DropoffEdit(address)) }

// SetStops replaces the ordered intermediate stops.
func (w *Wizard) SetStops(stops []string) error { return w.applyOne(StopsEdit(stops)) }

func (w *Wizard) SetRouteDistance(meters int64) error {
	return w.applyOne(RouteDistanceEdit(meters))
}

func (w *Wizard) SetASAP() error { return w.applyOne(ASAPEdit()) }

// SetScheduledPickup switches the draft to a scheduled pickup.
func (w *Wizard) SetScheduledPickup(at time.Time) error {
	return w.applyOne(ScheduledPickupEdit(at))
}

func (w *Wizard) SetPassengers(n int) error { return w.applyOne(PassengersEdit(n)) }

func (w *Wizard) SetLuggage(n int) error { return w.applyOne(LuggageEdit(n)) }

func (w *Wizard) SetVehicleClass(class models.VehicleClass) error {
	return w.applyOne(VehicleClassEdit(class))
}

func (w *Wizard) SetAccessibility(options []models.AccessibilityOption) error {
	return w.applyOne(AccessibilityEdit(options))
}

func (w *Wizard) SetDriverPreferences(prefs []models.DriverPreference) error {
	return w.applyOne(DriverPreferencesEdit(prefs))
}

func (w *Wizard) SetNotes(notes string) error { return w.applyOne(NotesEdit(notes)) }

// SetTermsAccepted records the rider's acceptance of the terms.
func (w *Wizard) SetTermsAccepted(accepted bool) error {
	return w.applyOne(TermsAcceptedEdit(accepted))
}

func (w *Wizard) applyOne(e Edit, err error) error {
	if err != nil {
		return err
	}
	return w.Apply(e)
}

// Apply commits edits together, in order. The promo is checked against the
// result once and the fare is recomputed once.
func (w *Wizard) Apply(edits ...Edit) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmissionInFlight
	}
	if !w.state.editable() {
		return invalidTransition("edit", w.state)
	}

	next := w.draft.clone()
	for _, e := range edits {
		e(&next)
	}
	w.draft = next
	w.notice = nil
	w.invalidateStalePromo()
	w.recompute()
	return nil
}

// invalidateStalePromo clears an applied promo when the pre-discount
// subtotal or vehicle class no longer match what it was validated for.
func (w *Wizard) invalidateStalePromo() {
	applied, ok := w.draft.appliedPromo()
	if !ok {
		return
	}
	subtotal := w.estimator.Subtotal(w.draft.fareInput())
	if subtotal == applied.ValidatedSubtotal && w.draft.VehicleClass == applied.ValidatedClass {
		return
	}

	w.draft.Promo = NoPromo{}
	w.notice = &Notice{
		Kind:    NoticePromoCleared,
		Message: fmt.Sprintf("Promo code %s was removed because your trip changed. Apply it again to check it still qualifies.", applied.Rule.Code),
	}
	recordPromo("cleared")
}

func (w *Wizard) recompute() {
	w.fare = w.estimator.Estimate(w.draft.fareInput(), w.draft.promoRule())
}

func (w *Wizard) checkTiming() error {
	scheduled, ok := w.draft.Timing.(Scheduled)
	if !ok {
		return nil
	}
	result := w.schedule.Validate(scheduled.PickupAt, w.now())
	if !result.Valid {
		return &ValidationError{Field: "scheduled_pickup_at", Reason: result.Message}
	}
	return nil
}

// ApplyPromo validates code against the current draft. Only the most recent
// call can take effect: an older call still in flight is cancelled and
// reports ErrPromoSuperseded. A rejection leaves any applied promo as it
// was.
func (w *Wizard) ApplyPromo(ctx context.Context, code string) (*models.PromotionRule, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if !w.state.editable() {
		state := w.state
		w.mu.Unlock()
		return nil, invalidTransition("apply promo", state)
	}

	w.abandonPromo()
	w.promoSeq++
	seq := w.promoSeq
	promoCtx, cancel := context.WithCancel(ctx)
	w.promoCancel = cancel
	w.promoPending = true

	input := w.draft.fareInput()
	req := promos.Request{
		Code:                code,
		UserID:              w.riderID,
		PreDiscountSubtotal: w.estimator.Subtotal(input),
		VehicleClass:        input.VehicleClass,
	}
	w.mu.Unlock()

	rule, err := w.promos.Validate(promoCtx, req)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	if seq != w.promoSeq {
		recordPromo("superseded")
		return nil, ErrPromoSuperseded
	}
	w.promoPending = false
	w.promoCancel = nil

	if err != nil {
		if _, rejected := promos.AsRejection(err); rejected {
			recordPromo("rejected")
		} else {
			recordPromo("error")
		}
		return nil, err
	}

	current := w.draft.fareInput()
	if w.estimator.Subtotal(current) != req.PreDiscountSubtotal || current.VehicleClass != req.VehicleClass {
		recordPromo("stale")
		return nil, ErrPromoStale
	}

	w.draft.Promo = AppliedPromo{
		Rule:              *rule,
		ValidatedSubtotal: req.PreDiscountSubtotal,
		ValidatedClass:    req.VehicleClass,
	}
	w.notice = nil
	w.recompute()
	recordPromo("applied")

	applied := *rule
	return &applied, nil
}

// RemovePromo clears the applied promo and reprices from scratch.
func (w *Wizard) RemovePromo() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmissionInFlight
	}
	if !w.state.editable() {
		return invalidTransition("remove promo", w.state)
	}
	w.abandonPromo()
	w.draft.Promo = NoPromo{}
	w.recompute()
	return nil
}

// abandonPromo makes any in-flight promo validation irrelevant.
func (w *Wizard) abandonPromo() {
	w.promoSeq++
	if w.promoCancel != nil {
		w.promoCancel()
		w.promoCancel = nil
	}
	w.promoPending = false
}

// Confirm submits the draft from Review. It is not re-entrant: a call made
// while a submission is in flight returns ErrSubmissionInFlight without
// contacting the ride API. On failure the wizard stays in Review with the
// draft intact. The create call is bounded by the submit timeout and is not
// aborted when ctx is cancelled, so a created booking is never lost.
func (w *Wizard) Confirm(ctx context.Context) (*models.Booking, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		recordSubmission("in_flight")
		return nil, ErrSubmissionInFlight
	}
	if w.state != StateReview {
		state := w.state
		w.mu.Unlock()
		return nil, invalidTransition("confirm", state)
	}
	if err := w.checkSubmittable(); err != nil {
		w.mu.Unlock()
		return nil, err
	}

	w.abandonPromo()
	w.recompute()
	req := w.createRequest()
	w.submitting = true
	w.lastErr = nil
	w.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.submitTimeout)
	start := time.Now()
	created, err := w.creator.CreateBooking(submitCtx, req)
	if err == nil && created == nil {
		err = errors.New("ride API returned no booking")
	}
	submitErr := submitCtx.Err()
	cancel()
	submissionDuration.Observe(time.Since(start).Seconds())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		if errors.Is(submitErr, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrSubmissionTimeout, w.submitTimeout, err)
			recordSubmission("timeout")
		} else {
			recordSubmission("failure")
		}
		w.lastErr = err
		logger.WarnContext(ctx, "booking submission failed",
			zap.String("rider_id", w.riderID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("submit booking: %w", err)
	}

	booking := created.Clone()
	if booking.RiderID == "" {
		booking.RiderID = w.riderID
	}
	if w.trips != nil {
		w.trips.Upsert(booking)
	}
	w.confirmed = &booking
	w.transition(StateConfirmed)
	recordSubmission("success")
	logger.InfoContext(ctx, "booking created",
		zap.String("booking_id", booking.ID),
		zap.String("rider_id", w.riderID),
		zap.String("vehicle_class", string(booking.VehicleClass)),
	)

	out := booking.Clone()
	return &out, nil
}

func (w *Wizard) checkSubmittable() error {
	d := w.draft
	if !d.TermsAccepted {
		return &ValidationError{Field: "terms_accepted", Reason: "terms must be accepted before booking"}
	}
	if !d.hasLocations() {
		return &ValidationError{Field: "pickup", Reason: "pickup and dropoff addresses are required"}
	}
	if !d.VehicleClass.Valid() {
		return &ValidationError{Field: "vehicle_class", Reason: "select a vehicle class"}
	}
	if err := checkRule(d.Passengers, passengerRule, "passenger_count", "passengers must be between 1 and 6"); err != nil {
		return err
	}
	if err := checkRule(d.Luggage, luggageRule, "luggage_count", "luggage must be between 0 and 5"); err != nil {
		return err
	}
	return w.checkTiming()
}

func (w *Wizard) createRequest() api.CreateBookingRequest {
	d := w.draft.clone()
	req := api.CreateBookingRequest{
		RiderID:           w.riderID,
		Legs:              d.legs(),
		VehicleClass:      d.VehicleClass,
		Passengers:        d.Passengers,
		Luggage:           d.Luggage,
		Accessibility:     d.Accessibility,
		DriverPreferences: d.DriverPreferences,
		Notes:             d.Notes,
		EstimatedFare:     w.fare,
	}
	switch t := d.Timing.(type) {
	case Scheduled:
		at := t.PickupAt.UTC()
		req.RequestedPickupAt = &at
	default:
		req.IsASAP = true
	}
	if rule := d.promoRule(); rule != nil {
		req.PromoCode = rule.Code
	}
	return req
}

// Snapshot is a consistent view of the wizard.
type Snapshot struct {
	State        State            `json:"state"`
	Draft        *DraftView       `json:"draft,omitempty"`
	Fare         *fare.Breakdown  `json:"fare,omitempty"`
	Schedule     *schedule.Result `json:"schedule,omitempty"`
	Submitting   bool             `json:"submitting"`
	PromoPending bool             `json:"promo_pending"`
	Notice       *Notice          `json:"notice,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	Booking      *models.Booking  `json:"booking,omitempty"`
}

// Snapshot returns the current state. A scheduled pickup is re-validated
// against the current time.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:        w.state,
		Submitting:   w.submitting,
		PromoPending: w.promoPending,
	}
	if w.state.editable() {
		view := w.draft.View()
		breakdown := w.fare
		snap.Draft = &view
		snap.Fare = &breakdown
		if scheduled, ok := w.draft.Timing.(Scheduled); ok {
			result := w.schedule.Validate(scheduled.PickupAt, w.now())
			snap.Schedule = &result
		}
	}
	if w.notice != nil {
		notice := *w.notice
		snap.Notice = &notice
	}
	if w.lastErr != nil {
		snap.LastError = w.lastErr.Error()
	}
	if w.confirmed != nil {
		b := w.confirmed.Clone()
		snap.Booking = &b
	}
	return snap
}

// State returns the current step.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft returns a copy of the current draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.clone()
}

// Fare returns the current breakdown.
func (w *Wizard) Fare() fare.Breakdown {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fare
}

// LastError returns the most recent submission failure, if any.
func (w *Wizard) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Close abandons any in-flight promo validation.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandonPromo()
}

func checkRule(value interface{}, rule, field, reason string) error {
	if err := validation.Validate.Var(value, rule); err != nil {
		return &ValidationError{Field: field, Reason: reason}
	}
	return nil
}

func containsOption[T comparable](set []T, v T) bool {
	for _, item := range set {
		if item == v {
			return true
		}
	}
	return false
}
