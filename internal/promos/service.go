package promos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"go.uber.org/zap"
)

// ErrEmptyCode is returned for a blank code, before any remote call.
var ErrEmptyCode = errors.New("promo code is required")

// RejectionError is the ride API's refusal of a code. Its message is shown
// to the rider as-is.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("promo code %s rejected: %s", e.Code, e.Message)
}

// AsRejection returns the RejectionError in err's chain.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// Validator is the remote call the service depends on.
type Validator interface {
	ValidatePromoCode(ctx context.Context, req api.PromoValidationRequest) (*api.PromoValidationResponse, error)
}

// Request carries the pricing context a code is validated against.
type Request struct {
	Code                string
	UserID              string
	PreDiscountSubtotal int64
	VehicleClass        models.VehicleClass
}

// Service validates promotion codes with the ride API.
type Service struct {
	remote Validator
}

// NewService creates a new promos service
func NewService(remote Validator) *Service {
	return &Service{remote: remote}
}

// NormalizeCode trims and upper-cases a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate returns the rule for req.Code. A refusal comes back as
// *RejectionError; anything else is a transport or server failure.
func (s *Service) Validate(ctx context.Context, req Request) (*models.PromotionRule, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	resp, err := s.remote.ValidatePromoCode(ctx, api.PromoValidationRequest{
		Code:                code,
		UserID:              req.UserID,
		PreDiscountSubtotal: req.PreDiscountSubtotal,
		VehicleClass:        req.VehicleClass,
	})
	if err != nil {
		return nil, err
	}

	if !resp.Valid || resp.Promo == nil {
		message := strings.TrimSpace(resp.Error)
		if message == "" {
			message = "This promo code cannot be applied"
		}
		logger.DebugContext(ctx, "promo code rejected",
			zap.String("code", code),
			zap.String("reason", message),
		)
		return nil, &RejectionError{Code: code, Message: message}
	}

	rule := *resp.Promo
	if rule.Code == "" {
		rule.Code = code
	}
	switch rule.DiscountType {
	case models.DiscountTypePercentage, models.DiscountTypeFixedAmount:
	default:
		return nil, fmt.Errorf("promo code %s: unsupported discount type %q", code, rule.DiscountType)
	}
	return &rule, nil
}
