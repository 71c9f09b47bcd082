package session

import (
	"context"
	"sync"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/pkg/models"
)

// Remote is the ride API surface a session uses.
type Remote interface {
	CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*models.Booking, error)
	ValidatePromoCode(ctx context.Context, req api.PromoValidationRequest) (*api.PromoValidationResponse, error)
	GetBookings(ctx context.Context, userID string) ([]models.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, req api.UpdateStatusRequest) error
}

// RemoteFactory returns a Remote authenticated with token.
type RemoteFactory func(token string) Remote

// APIRemote adapts an api.Client to RemoteFactory.
func APIRemote(client *api.Client) RemoteFactory {
	return func(token string) Remote {
		return client.WithToken(token)
	}
}

// remoteProxy lets a session swap tokens without rebuilding its wizard.
type remoteProxy struct {
	mu      sync.RWMutex
	current Remote
}

func (p *remoteProxy) set(r Remote) {
	p.mu.Lock()
	p.current = r
	p.mu.Unlock()
}

func (p *remoteProxy) get() Remote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *remoteProxy) CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*models.Booking, error) {
	return p.get().CreateBooking(ctx, req)
}

func (p *remoteProxy) ValidatePromoCode(ctx context.Context, req api.PromoValidationRequest) (*api.PromoValidationResponse, error) {
	return p.get().ValidatePromoCode(ctx, req)
}

func (p *remoteProxy) GetBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return p.get().GetBookings(ctx, userID)
}

func (p *remoteProxy) UpdateBookingStatus(ctx context.Context, bookingID string, req api.UpdateStatusRequest) error {
	return p.get().UpdateBookingStatus(ctx, bookingID, req)
}
