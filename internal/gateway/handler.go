package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/internal/booking"
	"github.com/richxcame/ride-booking/internal/promos"
	"github.com/richxcame/ride-booking/internal/session"
	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/middleware"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/pagination"
	redisClient "github.com/richxcame/ride-booking/pkg/redis"
	"github.com/richxcame/ride-booking/pkg/validation"
)

const sessionKey = "rider_session"

// Handler serves the rider booking API.
type Handler struct {
	sessions       *session.Manager
	idempotency    redisClient.ClientInterface
	idempotencyTTL time.Duration
	promoLimiter   middleware.Allower
}

// NewHandler creates a handler. A nil idempotency store disables replay of
// confirm responses.
func NewHandler(sessions *session.Manager, idempotency redisClient.ClientInterface, idempotencyTTL time.Duration) *Handler {
	return &Handler{
		sessions:       sessions,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
	}
}

// WithPromoLimiter throttles promo code attempts per rider.
func (h *Handler) WithPromoLimiter(l middleware.Allower) *Handler {
	h.promoLimiter = l
	return h
}

// RegisterRoutes registers the gateway routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.POST("/session", h.OpenSession)

	authed := api.Group("")
	authed.Use(middleware.Auth())
	authed.DELETE("/session", h.CloseSession)

	rider := authed.Group("")
	rider.Use(h.requireSession())

	wizard := rider.Group("/wizard")
	{
		wizard.GET("", h.GetWizard)
		wizard.POST("/start", h.StartWizard)
		wizard.POST("/rebook/:id", h.Rebook)
		wizard.POST("/continue", h.Continue)
		wizard.POST("/back", h.Back)
		wizard.POST("/cancel", h.CancelWizard)
		wizard.POST("/reset", h.ResetWizard)
		wizard.PATCH("/draft", h.UpdateDraft)
		applyPromo := []gin.HandlerFunc{h.ApplyPromo}
		if h.promoLimiter != nil {
			applyPromo = append([]gin.HandlerFunc{middleware.RateLimit(h.promoLimiter, "promo")}, applyPromo...)
		}
		wizard.POST("/promo", applyPromo...)
		wizard.DELETE("/promo", h.RemovePromo)

		confirm := []gin.HandlerFunc{h.Confirm}
		if h.idempotency != nil {
			confirm = append([]gin.HandlerFunc{middleware.Idempotency(h.idempotency, h.idempotencyTTL)}, confirm...)
		}
		wizard.POST("/confirm", confirm...)
	}

	rider.GET("/trips", h.ListTrips)
	rider.POST("/trips/:id/cancel", h.CancelTrip)

	rider.GET("/notifications", h.ListNotifications)
	rider.DELETE("/notifications/:id", h.DismissNotification)
}

func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		s, err := h.sessions.Get(userID)
		if err != nil {
			respondError(c, err, "session lookup failed")
			c.Abort()
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// bindAndValidate reports false after answering the request itself.
func bindAndValidate(c *gin.Context, obj interface{}) bool {
	if !common.BindJSON(c, obj) {
		return false
	}
	if err := validation.ValidateStruct(obj); err != nil {
		respondError(c, err, "invalid request")
		return false
	}
	return true
}

type sessionResponse struct {
	UserID      string        `json:"user_id"`
	Role        string        `json:"role"`
	Live        bool          `json:"live"`
	Trips       int           `json:"trips"`
	WizardState booking.State `json:"wizard_state"`
}

func sessionView(s *session.Session) sessionResponse {
	id := s.Identity()
	return sessionResponse{
		UserID:      id.UserID,
		Role:        id.Role,
		Live:        s.Reconciler.Live(),
		Trips:       s.Trips.Len(),
		WizardState: s.Wizard.State(),
	}
}

// OpenSession starts or resumes the rider's session from an access token.
func (h *Handler) OpenSession(c *gin.Context) {
	var req validation.SessionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), req.AccessToken)
	if err != nil {
		respondError(c, err, "failed to open session")
		return
	}
	common.CreatedResponse(c, sessionView(s))
}

// CloseSession ends the caller's session and drops its draft.
func (h *Handler) CloseSession(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	common.SuccessResponse(c, gin.H{"closed": h.sessions.Close(userID)})
}

// GetWizard returns the wizard snapshot.
func (h *Handler) GetWizard(c *gin.Context) {
	common.SuccessResponse(c, currentSession(c).Wizard.Snapshot())
}

// wizardStep runs a parameterless wizard event and answers with the snapshot.
func wizardStep(c *gin.Context, step func(*booking.Wizard) error, failure string) {
	w := currentSession(c).Wizard
	if err := step(w); err != nil {
		respondError(c, err, failure)
		return
	}
	common.SuccessResponse(c, w.Snapshot())
}

func (h *Handler) StartWizard(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).Start, "failed to start booking")
}

func (h *Handler) Continue(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).Continue, "failed to continue")
}

func (h *Handler) Back(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).Back, "failed to go back")
}

func (h *Handler) CancelWizard(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).Cancel, "failed to cancel booking")
}

func (h *Handler) ResetWizard(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).Reset, "failed to reset booking")
}

func (h *Handler) RemovePromo(c *gin.Context) {
	wizardStep(c, (*booking.Wizard).RemovePromo, "failed to remove promo")
}

// Rebook opens a draft from one of the rider's completed trips.
func (h *Handler) Rebook(c *gin.Context) {
	bookingID, ok := common.RequireParam(c, "id", "trip ID")
	if !ok {
		return
	}
	s := currentSession(c)
	trip, found := s.Trips.Get(bookingID)
	if !found {
		common.ErrorResponse(c, http.StatusNotFound, "trip not found")
		return
	}
	if err := s.Wizard.Rebook(trip); err != nil {
		respondError(c, err, "failed to rebook trip")
		return
	}
	common.SuccessResponse(c, s.Wizard.Snapshot())
}

// UpdateDraft applies the fields present in the body as one change. Every
// field is checked first; a refused field leaves the draft untouched.
func (h *Handler) UpdateDraft(c *gin.Context) {
	var req validation.DraftPatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.ASAP != nil && *req.ASAP && req.ScheduledPickupAt != nil {
		common.FieldErrorResponse(c, "choose either asap or a scheduled pickup",
			map[string]string{"scheduled_pickup_at": "cannot be combined with asap"})
		return
	}

	edits, err := draftEdits(&req)
	if err != nil {
		respondError(c, err, "failed to update draft")
		return
	}

	w := currentSession(c).Wizard
	if err := w.Apply(edits...); err != nil {
		respondError(c, err, "failed to update draft")
		return
	}
	common.SuccessResponse(c, w.Snapshot())
}

func draftEdits(req *validation.DraftPatchRequest) ([]booking.Edit, error) {
	var (
		edits []booking.Edit
		err   error
	)
	add := func(e booking.Edit, editErr error) {
		if err != nil {
			return
		}
		if editErr != nil {
			err = editErr
			return
		}
		edits = append(edits, e)
	}

	if req.Pickup != nil {
		add(booking.PickupEdit(*req.Pickup))
	}
	if req.Dropoff != nil {
		add(booking.DropoffEdit(*req.Dropoff))
	}
	if req.Stops != nil {
		add(booking.StopsEdit(req.Stops))
	}
	if req.RouteDistanceM != nil {
		add(booking.RouteDistanceEdit(*req.RouteDistanceM))
	}
	if req.ASAP != nil && *req.ASAP {
		add(booking.ASAPEdit())
	}
	if req.ScheduledPickupAt != nil {
		add(booking.ScheduledPickupEdit(*req.ScheduledPickupAt))
	}
	if req.Passengers != nil {
		add(booking.PassengersEdit(*req.Passengers))
	}
	if req.Luggage != nil {
		add(booking.LuggageEdit(*req.Luggage))
	}
	if req.VehicleClass != nil {
		add(booking.VehicleClassEdit(models.VehicleClass(*req.VehicleClass)))
	}
	if req.Accessibility != nil {
		options := make([]models.AccessibilityOption, len(req.Accessibility))
		for i, o := range req.Accessibility {
			options[i] = models.AccessibilityOption(o)
		}
		add(booking.AccessibilityEdit(options))
	}
	if req.DriverPreferences != nil {
		prefs := make([]models.DriverPreference, len(req.DriverPreferences))
		for i, p := range req.DriverPreferences {
			prefs[i] = models.DriverPreference(p)
		}
		add(booking.DriverPreferencesEdit(prefs))
	}
	if req.Notes != nil {
		add(booking.NotesEdit(*req.Notes))
	}
	if req.TermsAccepted != nil {
		add(booking.TermsAcceptedEdit(*req.TermsAccepted))
	}
	return edits, err
}

type promoResponse struct {
	Valid   bool                  `json:"valid"`
	Promo   *models.PromotionRule `json:"promo,omitempty"`
	Message string                `json:"message,omitempty"`
	Wizard  booking.Snapshot      `json:"wizard"`
}

// ApplyPromo validates a code against the current draft. A refused code is
// a normal answer, not an error.
func (h *Handler) ApplyPromo(c *gin.Context) {
	var req validation.ApplyPromoRequest
	if !bindAndValidate(c, &req) {
		return
	}

	w := currentSession(c).Wizard
	rule, err := w.ApplyPromo(c.Request.Context(), req.Code)
	if err != nil {
		if rejection, ok := promos.AsRejection(err); ok {
			common.SuccessResponse(c, promoResponse{Valid: false, Message: rejection.Message, Wizard: w.Snapshot()})
			return
		}
		respondError(c, err, "failed to validate promo code")
		return
	}
	common.SuccessResponse(c, promoResponse{Valid: true, Promo: rule, Wizard: w.Snapshot()})
}

// Confirm submits the reviewed draft.
func (h *Handler) Confirm(c *gin.Context) {
	w := currentSession(c).Wizard
	if _, err := w.Confirm(c.Request.Context()); err != nil {
		respondError(c, err, "failed to submit booking")
		return
	}
	common.CreatedResponse(c, w.Snapshot())
}

// ListTrips returns the rider's trips. meta.live is false while the status
// stream is down or the list has not been resynced; meta.synced_at is the
// last successful resync.
func (h *Handler) ListTrips(c *gin.Context) {
	s := currentSession(c)
	params := pagination.ParseParams(c)
	trips := s.Trips.List()
	live := s.Reconciler.Live()

	meta := pagination.BuildMeta(params, len(trips))
	meta.Live = &live
	if synced := s.Reconciler.LastSynced(); !synced.IsZero() {
		meta.SyncedAt = &synced
	}
	common.SuccessResponseWithMeta(c, pagination.Page(trips, params), meta)
}

// CancelTrip cancels one of the rider's active trips.
func (h *Handler) CancelTrip(c *gin.Context) {
	bookingID, ok := common.RequireParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req validation.CancelTripRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}

	trip, err := currentSession(c).Reconciler.CancelBooking(c.Request.Context(), bookingID, req.Reason)
	if err != nil {
		respondError(c, err, "failed to cancel trip")
		return
	}
	common.SuccessResponse(c, trip)
}

// ListNotifications returns undismissed notifications, oldest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	params := pagination.ParseParams(c)
	pending := currentSession(c).Inbox.Pending()
	common.SuccessResponseWithMeta(c, pagination.Page(pending, params), pagination.BuildMeta(params, len(pending)))
}

// DismissNotification removes one notification.
func (h *Handler) DismissNotification(c *gin.Context) {
	id, ok := common.RequireParam(c, "id", "notification ID")
	if !ok {
		return
	}
	if !currentSession(c).Inbox.Dismiss(id) {
		common.ErrorResponse(c, http.StatusNotFound, "notification not found")
		return
	}
	common.SuccessResponse(c, gin.H{"dismissed": id})
}
