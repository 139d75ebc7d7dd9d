package service

import "errors"

var (
	// ErrStaleRequest is returned for any mutation of a ride request that is
	// no longer open, including the loser of a concurrent accept.
	ErrStaleRequest = errors.New("ride request is no longer open")

	// ErrNotACandidate is returned when a driver acts on a request they were not offered.
	ErrNotACandidate = errors.New("driver is not a candidate for this ride request")

	// ErrInvalidOffer is returned for non-positive fares and counter offers.
	ErrInvalidOffer = errors.New("offer amount must be greater than zero")

	// ErrNotRequestOwner is returned when a rider acts on another rider's request.
	ErrNotRequestOwner = errors.New("ride request belongs to another rider")

	// ErrNoCounterOffer is returned when accepting a counter offer the driver never made.
	ErrNoCounterOffer = errors.New("driver has no counter offer on this ride request")

	// ErrDriverUnavailable is returned when the driver being assigned is no
	// longer online, available and approved.
	ErrDriverUnavailable = errors.New("driver is no longer available")

	// ErrFareOfferNotPending is returned when responding to a decided fare offer.
	ErrFareOfferNotPending = errors.New("fare offer is no longer pending")

	// ErrDispatchInProgress is returned when another worker holds the dispatch lock.
	ErrDispatchInProgress = errors.New("ride request is already being dispatched")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidRideRequestID is returned when ride request ID is empty.
	ErrInvalidRideRequestID = errors.New("invalid ride request id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDestinationLocation is returned when destination coordinates are invalid.
	ErrInvalidDestinationLocation = errors.New("invalid destination location")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidSearchRadius is returned when the requested radius is out of range.
	ErrInvalidSearchRadius = errors.New("invalid search radius")

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidAction is returned for an unknown driver response action.
	ErrInvalidAction = errors.New("invalid response action")
)
