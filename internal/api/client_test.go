package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/config"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *resilience.CircuitBreaker) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(httpclient.NewClient(server.URL, 5*time.Second), breaker).WithToken("tok-123")
}

func testBreakerConfig(threshold int) config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		SuccessThreshold: 1,
		TimeoutSeconds:   60,
		IntervalSeconds:  60,
	}
}

func TestCreateBooking(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/bookings", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var req CreateBookingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rider-1", req.RiderID)
		assert.Equal(t, models.VehicleClassComfort, req.VehicleClass)
		assert.True(t, req.IsASAP)
		require.Len(t, req.Legs, 1)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Booking{
			ID:           "bk-1",
			RiderID:      req.RiderID,
			Status:       models.BookingStatusRequested,
			Legs:         req.Legs,
			VehicleClass: req.VehicleClass,
		})
	}, nil)

	booking, err := client.CreateBooking(context.Background(), CreateBookingRequest{
		RiderID:      "rider-1",
		Legs:         []models.Leg{{Sequence: 1, Pickup: "A", Dropoff: "B"}},
		VehicleClass: models.VehicleClassComfort,
		Passengers:   1,
		IsASAP:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "bk-1", booking.ID)
	assert.Equal(t, models.BookingStatusRequested, booking.Status)
}

func TestCreateBooking_NotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := client.CreateBooking(context.Background(), CreateBookingRequest{RiderID: "rider-1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, httpclient.StatusCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestValidatePromoCode(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		valid bool
		msg   string
	}{
		{
			name:  "accepted",
			reply: `{"valid":true,"promo":{"code":"SAVE10","discount_type":"percentage","discount_value":10,"description":"10% off"}}`,
			valid: true,
		},
		{
			name:  "rejected",
			reply: `{"valid":false,"error":"Minimum ride amount not met"}`,
			msg:   "Minimum ride amount not met",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/promo-codes/validate", r.URL.Path)
				var req PromoValidationRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, int64(2500), req.PreDiscountSubtotal)
				assert.Equal(t, models.VehicleClassStandard, req.VehicleClass)
				_, _ = w.Write([]byte(tt.reply))
			}, nil)

			resp, err := client.ValidatePromoCode(context.Background(), PromoValidationRequest{
				Code:                "SAVE10",
				UserID:              "rider-1",
				PreDiscountSubtotal: 2500,
				VehicleClass:        models.VehicleClassStandard,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, resp.Valid)
			assert.Equal(t, tt.msg, resp.Error)
			if tt.valid {
				require.NotNil(t, resp.Promo)
				assert.Equal(t, models.DiscountTypePercentage, resp.Promo.DiscountType)
				assert.Equal(t, 10.0, resp.Promo.DiscountValue)
			}
		})
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/bookings/bk-9/status", r.URL.Path)

		var req UpdateStatusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.BookingStatusCanceledByClient, req.Status)
		assert.Equal(t, "client", req.ActorRole)
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	err := client.UpdateBookingStatus(context.Background(), "bk-9", UpdateStatusRequest{
		Status:    models.BookingStatusCanceledByClient,
		ActorID:   "rider-1",
		ActorRole: "client",
	})
	assert.NoError(t, err)
}

func TestGetBookings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "rider 1", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`{"bookings":[{"id":"a","status":"completed"},{"id":"b","status":"driver_assigned"}]}`))
	}, nil)

	bookings, err := client.GetBookings(context.Background(), "rider 1")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, models.BookingStatusDriverAssigned, bookings[1].Status)
}

func TestGetBookings_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}, nil)

	_, err := client.GetBookings(context.Background(), "rider-1")
	assert.Error(t, err)
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var calls int32
	breaker := NewBreaker(testBreakerConfig(2))
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}, breaker)

	for i := 0; i < 5; i++ {
		err := client.UpdateBookingStatus(context.Background(), "bk-1", UpdateStatusRequest{Status: models.BookingStatusCanceledByClient})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, httpclient.StatusCode(err))
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.True(t, breaker.Allow())
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls int32
	breaker := NewBreaker(testBreakerConfig(2))
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, breaker)

	for i := 0; i < 2; i++ {
		_, err := client.GetBookings(context.Background(), "rider-1")
		require.Error(t, err)
	}

	_, err := client.GetBookings(context.Background(), "rider-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNewBreaker_Disabled(t *testing.T) {
	assert.Nil(t, NewBreaker(config.CircuitBreakerConfig{Enabled: false}))
}
