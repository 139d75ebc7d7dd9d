package domain

import "time"

// FareOfferStatus is the state of a driver's fare proposal.
type FareOfferStatus string

const (
	FareOfferPending  FareOfferStatus = "pending"
	FareOfferAccepted FareOfferStatus = "accepted"
	FareOfferRejected FareOfferStatus = "rejected"
)

// FareOffer is a price a driver proposes for a ride request. A driver has
// at most one pending offer per request.
type FareOffer struct {
	ID            string
	RideRequestID string
	DriverID      string
	Price         float64
	Status        FareOfferStatus
	CreatedAt     time.Time
	RespondedAt   *time.Time
}
