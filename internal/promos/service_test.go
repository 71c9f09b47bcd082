package promos

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) ValidatePromoCode(ctx context.Context, req api.PromoValidationRequest) (*api.PromoValidationResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*api.PromoValidationResponse)
	return resp, args.Error(1)
}

func TestValidate_Accepted(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)

	remote.On("ValidatePromoCode", mock.Anything, api.PromoValidationRequest{
		Code:                "SAVE20",
		UserID:              "rider-1",
		PreDiscountSubtotal: 3000,
		VehicleClass:        models.VehicleClassComfort,
	}).Return(&api.PromoValidationResponse{
		Valid: true,
		Promo: &models.PromotionRule{DiscountType: models.DiscountTypePercentage, DiscountValue: 20},
	}, nil)

	rule, err := svc.Validate(context.Background(), Request{
		Code:                "  save20 ",
		UserID:              "rider-1",
		PreDiscountSubtotal: 3000,
		VehicleClass:        models.VehicleClassComfort,
	})
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", rule.Code)
	assert.Equal(t, 20.0, rule.DiscountValue)
	remote.AssertExpectations(t)
}

func TestValidate_Rejected(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)

	remote.On("ValidatePromoCode", mock.Anything, mock.Anything).
		Return(&api.PromoValidationResponse{Valid: false, Error: "Promo code has expired"}, nil)

	rule, err := svc.Validate(context.Background(), Request{Code: "OLD"})
	assert.Nil(t, rule)

	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "Promo code has expired", rejection.Message)
	assert.Equal(t, "OLD", rejection.Code)
}

func TestValidate_RejectedWithoutMessage(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)

	remote.On("ValidatePromoCode", mock.Anything, mock.Anything).
		Return(&api.PromoValidationResponse{Valid: true}, nil)

	_, err := svc.Validate(context.Background(), Request{Code: "HALF"})
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.NotEmpty(t, rejection.Message)
}

func TestValidate_EmptyCodeSkipsRemote(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)

	_, err := svc.Validate(context.Background(), Request{Code: "   "})
	assert.ErrorIs(t, err, ErrEmptyCode)
	remote.AssertNotCalled(t, "ValidatePromoCode", mock.Anything, mock.Anything)
}

func TestValidate_TransportFailure(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)
	boom := errors.New("connection refused")

	remote.On("ValidatePromoCode", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := svc.Validate(context.Background(), Request{Code: "SAVE"})
	assert.ErrorIs(t, err, boom)
	var rejection *RejectionError
	assert.False(t, errors.As(err, &rejection))
}

func TestValidate_UnsupportedDiscountType(t *testing.T) {
	remote := new(mockValidator)
	svc := NewService(remote)

	remote.On("ValidatePromoCode", mock.Anything, mock.Anything).Return(&api.PromoValidationResponse{
		Valid: true,
		Promo: &models.PromotionRule{Code: "BOGO", DiscountType: "buy_one_get_one"},
	}, nil)

	_, err := svc.Validate(context.Background(), Request{Code: "BOGO"})
	assert.Error(t, err)
}

func TestAsRejection(t *testing.T) {
	wrapped := fmt.Errorf("apply promo: %w", &RejectionError{Code: "SPRING", Message: "Code expired"})

	rejection, ok := AsRejection(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Code expired", rejection.Message)

	_, ok = AsRejection(errors.New("connection refused"))
	assert.False(t, ok)
}
