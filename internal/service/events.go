package service

import (
	"context"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
)

// RideEventPublisher forwards ride status changes to downstream consumers.
type RideEventPublisher interface {
	PublishRideStatus(ctx context.Context, event domain.RideStatusEvent) error
}

// LocationPublisher forwards accepted location pings to the location stream.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, event domain.DriverLocationEvent) error
}

// statusEvent builds the event describing req's current status.
func statusEvent(req *domain.RideRequest) domain.RideStatusEvent {
	return domain.RideStatusEvent{
		RideRequestID: req.ID,
		RiderID:       req.RiderID,
		Status:        req.Status,
		DriverID:      req.AcceptedByDriverID,
		FinalPrice:    req.FinalPrice,
		OccurredAt:    req.UpdatedAt,
	}
}

// publishStatus sends event when a publisher is configured. Broker failures
// are logged and never returned.
func publishStatus(ctx context.Context, pub RideEventPublisher, log *zap.Logger, event domain.RideStatusEvent) {
	if pub == nil {
		return
	}
	if err := pub.PublishRideStatus(ctx, event); err != nil {
		log.Warn("failed to publish ride status event",
			zap.String("ride_request_id", event.RideRequestID),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
	}
}
