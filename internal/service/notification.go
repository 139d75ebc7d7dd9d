package service

import (
	"time"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
)

// EventName identifies a realtime event pushed to riders and drivers.
type EventName string

const (
	EventRideRequest       EventName = "ride_request"
	EventRideAccepted      EventName = "ride_accepted"
	EventRideUnavailable   EventName = "ride_unavailable"
	EventRideCancelled     EventName = "ride_cancelled"
	EventRideExpired       EventName = "ride_expired"
	EventCounterOffer      EventName = "counter_offer"
	EventFareOffer         EventName = "fare_offer"
	EventFareOfferRejected EventName = "fare_offer_rejected"
)

// NotificationChannel delivers an event to one connected user.
// Emit is fire-and-forget: it must not block on the recipient and it
// never reports delivery failures to the caller.
type NotificationChannel interface {
	Emit(recipientID string, event EventName, payload any)
}

// NopChannel drops every event.
type NopChannel struct{}

// Emit implements NotificationChannel.
func (NopChannel) Emit(string, EventName, any) {}

// RideRequestPayload is sent to every candidate driver.
type RideRequestPayload struct {
	RideRequestID        string              `json:"ride_request_id"`
	Rider                domain.RiderProfile `json:"rider"`
	Pickup               domain.Location     `json:"pickup"`
	Destination          domain.Location     `json:"destination"`
	DistanceKm           float64             `json:"distance_km"`
	EstimatedDurationMin int                 `json:"estimated_duration_min"`
	OfferedFare          float64             `json:"offered_fare"`
	SuggestedPrice       float64             `json:"suggested_price"`
	VehicleType          string              `json:"vehicle_type,omitempty"`
	PaymentMethod        string              `json:"payment_method"`
	Notes                string              `json:"notes,omitempty"`
	DistanceFromPickupKm float64             `json:"distance_from_pickup_km"`
	EstimatedArrivalMin  int                 `json:"estimated_arrival_min"`
	ExpiresAt            time.Time           `json:"expires_at"`
	CreatedAt            time.Time           `json:"created_at"`
}

// RideAcceptedPayload tells the rider which driver won.
type RideAcceptedPayload struct {
	RideRequestID string    `json:"ride_request_id"`
	DriverID      string    `json:"driver_id"`
	FinalPrice    float64   `json:"final_price"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

// RideClosedPayload tells a participant that a request left the open state.
type RideClosedPayload struct {
	RideRequestID string                   `json:"ride_request_id"`
	Status        domain.RideRequestStatus `json:"status"`
	Reason        string                   `json:"reason,omitempty"`
}

// CounterOfferPayload is sent to the rider when a driver counters.
type CounterOfferPayload struct {
	RideRequestID        string  `json:"ride_request_id"`
	DriverID             string  `json:"driver_id"`
	CounterOfferPrice    float64 `json:"counter_offer_price"`
	DistanceFromPickupKm float64 `json:"distance_from_pickup_km"`
	EstimatedArrivalMin  int     `json:"estimated_arrival_min"`
}

// FareOfferPayload carries a fare offer to the rider or back to its driver.
type FareOfferPayload struct {
	OfferID       string                 `json:"offer_id"`
	RideRequestID string                 `json:"ride_request_id"`
	DriverID      string                 `json:"driver_id"`
	Price         float64                `json:"price"`
	Status        domain.FareOfferStatus `json:"status"`
}

// NotificationService turns lifecycle changes into realtime events.
type NotificationService struct {
	channel NotificationChannel
	logger  *zap.Logger
}

// NewNotificationService creates a new NotificationService. A nil channel drops events.
func NewNotificationService(channel NotificationChannel, log *zap.Logger) *NotificationService {
	if channel == nil {
		channel = NopChannel{}
	}
	return &NotificationService{channel: channel, logger: logger.OrNop(log)}
}

// NotifyRideRequest sends a ride_request event to each candidate.
func (s *NotificationService) NotifyRideRequest(req *domain.RideRequest, rider domain.RiderProfile, candidates []domain.CandidateEntry) {
	for _, c := range candidates {
		s.emit(c.DriverID, EventRideRequest, RideRequestPayload{
			RideRequestID:        req.ID,
			Rider:                rider,
			Pickup:               req.Pickup,
			Destination:          req.Destination,
			DistanceKm:           req.DistanceKm,
			EstimatedDurationMin: req.EstimatedDurationMin,
			OfferedFare:          req.RequestedPrice,
			SuggestedPrice:       req.SuggestedPrice,
			VehicleType:          req.VehicleTypePreference,
			PaymentMethod:        string(req.PaymentMethod),
			Notes:                req.Notes,
			DistanceFromPickupKm: c.DistanceFromPickupKm,
			EstimatedArrivalMin:  c.EstimatedArrivalMin,
			ExpiresAt:            req.ExpiresAt,
			CreatedAt:            req.CreatedAt,
		})
	}
}

// NotifyRideAccepted tells the rider that a driver has won the request.
func (s *NotificationService) NotifyRideAccepted(req *domain.RideRequest) {
	payload := RideAcceptedPayload{
		RideRequestID: req.ID,
		DriverID:      req.AcceptedByDriverID,
	}
	if req.FinalPrice != nil {
		payload.FinalPrice = *req.FinalPrice
	}
	if req.AcceptedAt != nil {
		payload.AcceptedAt = *req.AcceptedAt
	}
	s.emit(req.RiderID, EventRideAccepted, payload)
}

// NotifyRideUnavailable tells drivers that a request they saw is closed.
func (s *NotificationService) NotifyRideUnavailable(req *domain.RideRequest, driverIDs []string) {
	for _, id := range driverIDs {
		s.emit(id, EventRideUnavailable, RideClosedPayload{RideRequestID: req.ID, Status: req.Status})
	}
}

// NotifyRideCancelled tells the given drivers the rider cancelled.
func (s *NotificationService) NotifyRideCancelled(req *domain.RideRequest, driverIDs []string) {
	for _, id := range driverIDs {
		s.emit(id, EventRideCancelled, RideClosedPayload{
			RideRequestID: req.ID,
			Status:        domain.RideRequestCancelled,
			Reason:        req.CancelReason,
		})
	}
}

// NotifyRideExpired tells the rider nobody took the request in time.
func (s *NotificationService) NotifyRideExpired(requestID, riderID string) {
	s.emit(riderID, EventRideExpired, RideClosedPayload{RideRequestID: requestID, Status: domain.RideRequestExpired})
}

// NotifyCounterOffer tells the rider a driver proposed another price.
func (s *NotificationService) NotifyCounterOffer(req *domain.RideRequest, c *domain.CandidateEntry) {
	payload := CounterOfferPayload{
		RideRequestID:        req.ID,
		DriverID:             c.DriverID,
		DistanceFromPickupKm: c.DistanceFromPickupKm,
		EstimatedArrivalMin:  c.EstimatedArrivalMin,
	}
	if c.CounterOfferPrice != nil {
		payload.CounterOfferPrice = *c.CounterOfferPrice
	}
	s.emit(req.RiderID, EventCounterOffer, payload)
}

// NotifyFareOffer tells the rider about a new or revised fare offer.
func (s *NotificationService) NotifyFareOffer(riderID string, offer *domain.FareOffer) {
	s.emit(riderID, EventFareOffer, fareOfferPayload(offer))
}

// NotifyFareOfferRejected tells the driver the rider declined their offer.
func (s *NotificationService) NotifyFareOfferRejected(offer *domain.FareOffer) {
	s.emit(offer.DriverID, EventFareOfferRejected, fareOfferPayload(offer))
}

func fareOfferPayload(offer *domain.FareOffer) FareOfferPayload {
	return FareOfferPayload{
		OfferID:       offer.ID,
		RideRequestID: offer.RideRequestID,
		DriverID:      offer.DriverID,
		Price:         offer.Price,
		Status:        offer.Status,
	}
}

func (s *NotificationService) emit(recipientID string, event EventName, payload any) {
	s.logger.Debug("emitting notification",
		zap.String("recipient_id", recipientID),
		zap.String("event", string(event)),
	)
	s.channel.Emit(recipientID, event, payload)
}
