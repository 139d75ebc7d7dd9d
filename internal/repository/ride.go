package repository

import (
	"context"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
)

// TripEstimate is the distance-derived data computed when a request is dispatched.
type TripEstimate struct {
	DistanceKm           float64
	EstimatedDurationMin int
	SuggestedPrice       float64
}

// Resolution describes the winning side of a ride request.
type Resolution struct {
	DriverID   string
	FinalPrice float64
	At         time.Time

	// CounterOffer requires the winner's candidate entry to still hold a
	// counter offer equal to FinalPrice.
	CounterOffer bool

	// FareOfferID, when set, requires that fare offer to be pending at
	// FinalPrice and marks it accepted.
	FareOfferID string
}

// ExpiredRequest identifies a request moved to expired by a sweep.
type ExpiredRequest struct {
	ID      string
	RiderID string
}

// RideRequestRepository defines the persistence operations for ride requests
// and their candidate entries. Conditional updates return ErrConflict when the
// request is no longer open at the supplied time.
type RideRequestRepository interface {
	// Create persists a new ride request.
	Create(ctx context.Context, req *domain.RideRequest) error

	// GetByID retrieves a ride request with its candidates.
	GetByID(ctx context.Context, id string) (*domain.RideRequest, error)

	// RecordDispatch stores the trip estimate and appends candidates while the
	// request is open. Drivers already listed keep their existing entry.
	RecordDispatch(ctx context.Context, id string, estimate TripEstimate, candidates []domain.CandidateEntry, now time.Time) error

	// UpdateCandidate changes one candidate's status while the request is open.
	UpdateCandidate(ctx context.Context, id, driverID string, status domain.CandidateStatus, counterOfferPrice *float64, now time.Time) error

	// Resolve accepts the request for res.DriverID. The winner's entry becomes
	// accepted, pending siblings and pending fare offers become rejected.
	Resolve(ctx context.Context, id string, res Resolution) error

	// Cancel moves an open request to cancelled.
	Cancel(ctx context.Context, id, reason string, now time.Time) error

	// MarkExpired moves an open request whose deadline has passed to expired.
	// It reports whether this call performed the transition.
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireDue moves every open request past its deadline to expired.
	ExpireDue(ctx context.Context, now time.Time) ([]ExpiredRequest, error)

	// ListOpenForDriver returns open, unexpired requests where the driver is a
	// candidate that has not rejected.
	ListOpenForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideRequest, error)

	// ListOpenPickups returns the pickup points of open, unexpired requests.
	ListOpenPickups(ctx context.Context, now time.Time) ([]geo.Point, error)
}
