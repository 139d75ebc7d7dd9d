package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
)

// FareOfferRepository defines the persistence operations for fare offers.
type FareOfferRepository interface {
	// Submit stores a pending offer while the request is open. An existing
	// pending offer from the same driver has its price replaced and keeps its id.
	Submit(ctx context.Context, offer *domain.FareOffer, now time.Time) (*domain.FareOffer, error)

	// GetByID retrieves a fare offer.
	GetByID(ctx context.Context, id string) (*domain.FareOffer, error)

	// ListByRequest retrieves every offer for a ride request, oldest first.
	ListByRequest(ctx context.Context, requestID string) ([]*domain.FareOffer, error)

	// Reject moves a pending offer to rejected.
	Reject(ctx context.Context, id string, now time.Time) error
}
