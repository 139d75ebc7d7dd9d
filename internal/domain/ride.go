package domain

import (
	"time"

	"ridedispatch/internal/geo"
)

// RideRequestStatus represents the lifecycle state of a ride request.
type RideRequestStatus string

const (
	RideRequestSearching RideRequestStatus = "searching"
	RideRequestPending   RideRequestStatus = "pending"
	RideRequestAccepted  RideRequestStatus = "accepted"
	RideRequestRejected  RideRequestStatus = "rejected"
	RideRequestExpired   RideRequestStatus = "expired"
	RideRequestCancelled RideRequestStatus = "cancelled"
)

// OpenRideRequestStatuses lists the statuses from which a request may still change.
var OpenRideRequestStatuses = []RideRequestStatus{RideRequestSearching, RideRequestPending}

// IsOpen reports whether the status is searching or pending.
func (s RideRequestStatus) IsOpen() bool {
	return s == RideRequestSearching || s == RideRequestPending
}

// IsTerminal reports whether no further transition is possible.
func (s RideRequestStatus) IsTerminal() bool {
	return !s.IsOpen()
}

// PaymentMethod represents how the rider intends to pay.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// Location is a point with an optional human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Point returns the coordinate part of the location.
func (l Location) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lng: l.Lng}
}

// RideRequest is a rider's request for a trip, open to driver responses
// until it is accepted, cancelled or expires.
type RideRequest struct {
	ID                    string
	RiderID               string
	Pickup                Location
	Destination           Location
	RequestedPrice        float64 // fare offered by the rider
	SuggestedPrice        float64
	FinalPrice            *float64 // set when accepted
	DistanceKm            float64
	EstimatedDurationMin  int
	SearchRadiusKm        float64
	Status                RideRequestStatus
	ExpiresAt             time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	AcceptedByDriverID    string
	AcceptedAt            *time.Time
	CancelledAt           *time.Time
	CancelReason          string
	VehicleTypePreference string
	PaymentMethod         PaymentMethod
	Notes                 string
	Candidates            []CandidateEntry
}

// IsExpiredAt reports whether the request's deadline has passed at now.
// The deadline itself counts as expired.
func (r *RideRequest) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsOpenAt reports whether the request still accepts mutations at now.
func (r *RideRequest) IsOpenAt(now time.Time) bool {
	return r.Status.IsOpen() && !r.IsExpiredAt(now)
}

// Candidate returns the candidate entry for driverID, or nil.
func (r *RideRequest) Candidate(driverID string) *CandidateEntry {
	for i := range r.Candidates {
		if r.Candidates[i].DriverID == driverID {
			return &r.Candidates[i]
		}
	}
	return nil
}
