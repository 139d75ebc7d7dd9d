package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// ExpirySweeper periodically moves overdue open requests to expired, so
// requests nobody touches still reach a terminal state.
type ExpirySweeper struct {
	rides         repository.RideRequestRepository
	notifications *NotificationService
	publisher     RideEventPublisher
	clock         Clock
	interval      time.Duration
	logger        *zap.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(rides repository.RideRequestRepository, notifications *NotificationService, publisher RideEventPublisher, clock Clock, interval time.Duration, log *zap.Logger) *ExpirySweeper {
	l := logger.OrNop(log)
	if notifications == nil {
		notifications = NewNotificationService(nil, l)
	}
	return &ExpirySweeper{
		rides:         rides,
		notifications: notifications,
		publisher:     publisher,
		clock:         clockOrSystem(clock),
		interval:      interval,
		logger:        l,
	}
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the sweeper.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce expires every overdue open request and returns how many it moved.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired, err := s.rides.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		s.notifications.NotifyRideExpired(e.ID, e.RiderID)
		publishStatus(ctx, s.publisher, s.logger, domain.RideStatusEvent{
			RideRequestID: e.ID,
			RiderID:       e.RiderID,
			Status:        domain.RideRequestExpired,
			OccurredAt:    now,
		})
		observability.RideRequestsResolved.WithLabelValues(string(domain.RideRequestExpired), "sweep").Inc()
	}

	if len(expired) > 0 {
		s.logger.Info("expired overdue ride requests", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}
