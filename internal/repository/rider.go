package repository

import (
	"context"

	"ridedispatch/internal/domain"
)

// RiderRepository defines the persistence operations for rider profiles.
// Rider identities are issued upstream; this store only keeps display data.
type RiderRepository interface {
	// GetByID retrieves a rider.
	GetByID(ctx context.Context, id string) (*domain.Rider, error)

	// Upsert creates or replaces a rider's profile.
	Upsert(ctx context.Context, rider *domain.Rider) error
}
