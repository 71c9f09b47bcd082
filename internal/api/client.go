package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/config"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"github.com/richxcame/ride-booking/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	serviceName = "ride-api"
	tracerName  = "ride-booking/api"
)

// Client talks to the ride API on behalf of one rider token. Copies made by
// WithToken share the transport and the breaker.
type Client struct {
	http    *httpclient.Client
	breaker *resilience.CircuitBreaker
	token   string
}

// NewClient creates a ride API client. A nil breaker disables breaking.
func NewClient(hc *httpclient.Client, breaker *resilience.CircuitBreaker) *Client {
	return &Client{http: hc, breaker: breaker}
}

// NewBreaker builds the ride API breaker. Client errors (4xx) are answers,
// not outages, so they do not count toward tripping.
func NewBreaker(cfg config.CircuitBreakerConfig) *resilience.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	settings := cfg.SettingsFor(serviceName)
	return resilience.NewCircuitBreaker(resilience.Settings{
		Name:             serviceName,
		Interval:         time.Duration(settings.IntervalSeconds) * time.Second,
		Timeout:          time.Duration(settings.TimeoutSeconds) * time.Second,
		FailureThreshold: uint32(settings.FailureThreshold),
		SuccessThreshold: uint32(settings.SuccessThreshold),
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || httpclient.IsClientError(err)
		},
	}, func(ctx context.Context, err error) (interface{}, error) {
		logger.WarnContext(ctx, "ride API circuit open", zap.Error(err))
		return nil, common.NewAppError(http.StatusServiceUnavailable,
			"ride service is temporarily unavailable, please try again", resilience.ErrCircuitOpen)
	})
}

// WithToken returns a client that authenticates as the given rider.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// CreateBooking submits a booking. It is sent at most once per call.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	attrs := append(tracing.BookingAttributes("", req.RiderID), tracing.VehicleClassKey.String(string(req.VehicleClass)))

	var booking models.Booking
	err := c.call(ctx, "CreateBooking", attrs, func(ctx context.Context) ([]byte, error) {
		return c.http.Post(ctx, "/api/v1/bookings", req, c.headers())
	}, &booking)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &booking, nil
}

// ValidatePromoCode asks whether code applies to the given subtotal and
// class. A rejection is a successful call with Valid false.
func (c *Client) ValidatePromoCode(ctx context.Context, req PromoValidationRequest) (*PromoValidationResponse, error) {
	attrs := []attribute.KeyValue{
		tracing.UserIDKey.String(req.UserID),
		tracing.PromoCodeKey.String(req.Code),
		tracing.FareSubtotalKey.Int64(req.PreDiscountSubtotal),
	}

	var resp PromoValidationResponse
	err := c.call(ctx, "ValidatePromoCode", attrs, func(ctx context.Context) ([]byte, error) {
		return c.http.Post(ctx, "/api/v1/promo-codes/validate", req, c.headers())
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("validate promo code: %w", err)
	}
	return &resp, nil
}

// UpdateBookingStatus requests a status change as the given actor.
func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID string, req UpdateStatusRequest) error {
	attrs := append(tracing.BookingAttributes(bookingID, req.ActorID), tracing.BookingStatus.String(string(req.Status)))
	path := fmt.Sprintf("/api/v1/bookings/%s/status", url.PathEscape(bookingID))

	err := c.call(ctx, "UpdateBookingStatus", attrs, func(ctx context.Context) ([]byte, error) {
		return c.http.Patch(ctx, path, req, c.headers())
	}, nil)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", bookingID, err)
	}
	return nil
}

// GetBookings returns every booking the rider owns.
func (c *Client) GetBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	path := "/api/v1/bookings?user_id=" + url.QueryEscape(userID)

	var resp bookingsResponse
	err := c.call(ctx, "GetBookings", tracing.BookingAttributes("", userID), func(ctx context.Context) ([]byte, error) {
		return c.http.Get(ctx, path, c.headers())
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get bookings: %w", err)
	}
	return resp.Bookings, nil
}

// call runs fn through the breaker inside a client span and decodes the
// body into out when out is non-nil.
func (c *Client) call(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) ([]byte, error), out interface{}) error {
	return tracing.TraceExternalAPI(ctx, tracerName, serviceName, operation, attrs, func(ctx context.Context) error {
		result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		body, _ := result.([]byte)
		if len(body) == 0 {
			return fmt.Errorf("empty response from %s", operation)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	})
}
