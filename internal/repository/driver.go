package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
)

// DriverRepository defines the persistence operations for driver dispatch state.
// Every mutating method creates the driver record if it does not exist yet.
type DriverRepository interface {
	// GetByID retrieves a driver's state.
	GetByID(ctx context.Context, id string) (*domain.DriverState, error)

	// GetMany retrieves the states of the given drivers. Unknown ids are skipped.
	GetMany(ctx context.Context, ids []string) ([]*domain.DriverState, error)

	// UpdateLocation records a location ping without touching any flag.
	UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) (*domain.DriverState, error)

	// SetAvailability sets the online and available flags together.
	SetAvailability(ctx context.Context, id string, online, available bool, at time.Time) (*domain.DriverState, error)

	// MarkUnavailable clears only the available flag of an existing driver.
	MarkUnavailable(ctx context.Context, id string, at time.Time) (*domain.DriverState, error)

	// SetApproved sets the approval flag. Revoking approval also clears available.
	SetApproved(ctx context.Context, id string, approved bool, at time.Time) (*domain.DriverState, error)
}
