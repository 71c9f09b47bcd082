package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/internal/booking"
	"github.com/richxcame/ride-booking/internal/promos"
	"github.com/richxcame/ride-booking/internal/realtime"
	"github.com/richxcame/ride-booking/internal/session"
	"github.com/richxcame/ride-booking/pkg/common"
	apperrors "github.com/richxcame/ride-booking/pkg/errors"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/validation"
	"go.uber.org/zap"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// knownErrors are answered as-is without reaching Sentry.
var knownErrors = []errorMapping{
	{booking.ErrSubmissionInFlight, http.StatusConflict, "submission_in_flight", "a booking request is already being submitted"},
	{booking.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "that step is not available right now"},
	{booking.ErrPromoSuperseded, http.StatusConflict, "promo_superseded", "a newer promo code replaced this one"},
	{booking.ErrPromoStale, http.StatusConflict, "promo_stale", "the fare changed while the code was checked, please apply it again"},
	{booking.ErrNotRebookable, http.StatusConflict, "not_rebookable", "only completed trips can be booked again"},
	{booking.ErrSubmissionTimeout, http.StatusGatewayTimeout, "submission_timeout", "the ride service did not answer in time, check your trips before retrying"},
	{realtime.ErrUnknownBooking, http.StatusNotFound, "trip_not_found", "trip not found"},
	{realtime.ErrNotCancelable, http.StatusConflict, "not_cancelable", "this trip can no longer be canceled"},
	{session.ErrNoSession, http.StatusConflict, "session_required", "open a session first"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid or expired token"},
}

// respondError writes the response for err. Unclassified failures are
// reported to Sentry and answered with 502, since every remote call here
// goes to the ride API.
func respondError(c *gin.Context, err error, fallbackMessage string) {
	var fieldErrs *validation.ValidationError
	if errors.As(err, &fieldErrs) {
		common.FieldErrorResponse(c, "invalid request", fieldErrs.Errors)
		return
	}
	var draftErr *booking.ValidationError
	if errors.As(err, &draftErr) {
		common.FieldErrorResponse(c, draftErr.Reason, map[string]string{draftErr.Field: draftErr.Reason})
		return
	}
	if errors.Is(err, promos.ErrEmptyCode) {
		common.FieldErrorResponse(c, "promo code is required", map[string]string{"code": "is required"})
		return
	}

	for _, known := range knownErrors {
		if errors.Is(err, known.target) {
			common.AppErrorResponse(c, common.NewAppError(known.status, known.message, err).WithErrorCode(known.code))
			return
		}
	}

	if appErr, ok := common.AsAppError(err); ok {
		common.AppErrorResponse(c, appErr)
		return
	}

	if httpclient.IsClientError(err) {
		logger.WarnContext(c.Request.Context(), "ride API refused request",
			zap.Int("upstream_status", httpclient.StatusCode(err)),
			zap.Error(err),
		)
		common.AppErrorResponse(c, common.NewAppError(http.StatusUnprocessableEntity,
			"the ride service refused the request", err).WithErrorCode("upstream_rejected"))
		return
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	apperrors.CaptureError(c.Request.Context(), err, map[string]interface{}{
		"path":   c.FullPath(),
		"method": c.Request.Method,
	})
	common.AppErrorResponse(c, common.NewUpstreamError(fallbackMessage, err).WithErrorCode("upstream_failed"))
}
