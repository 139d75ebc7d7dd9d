package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// requestGuard applies lazy expiry and turns failed conditional updates
// into ErrStaleRequest. It is shared by every component that mutates a
// ride request.
type requestGuard struct {
	rides         repository.RideRequestRepository
	notifications *NotificationService
	publisher     RideEventPublisher
	clock         Clock
	logger        *zap.Logger
}

func (g *requestGuard) load(ctx context.Context, id string) (*domain.RideRequest, error) {
	if id == "" {
		return nil, ErrInvalidRideRequestID
	}
	return g.rides.GetByID(ctx, id)
}

// ensureOpen returns ErrStaleRequest unless req still accepts mutations.
// A request found past its deadline is moved to expired on the way.
func (g *requestGuard) ensureOpen(ctx context.Context, req *domain.RideRequest) error {
	if req.Status.IsTerminal() {
		observability.StaleMutations.Inc()
		return ErrStaleRequest
	}
	if req.IsExpiredAt(g.clock.Now()) {
		g.expire(ctx, req)
		observability.StaleMutations.Inc()
		return ErrStaleRequest
	}
	return nil
}

// expire marks req expired if it is open and past its deadline. Failures
// are logged, the sweeper retries them.
func (g *requestGuard) expire(ctx context.Context, req *domain.RideRequest) {
	now := g.clock.Now()
	if !req.Status.IsOpen() || !req.IsExpiredAt(now) {
		return
	}

	changed, err := g.rides.MarkExpired(ctx, req.ID, now)
	if err != nil {
		g.logger.Warn("failed to mark ride request expired", zap.String("ride_request_id", req.ID), zap.Error(err))
		return
	}

	req.Status = domain.RideRequestExpired
	req.UpdatedAt = now
	if !changed {
		return
	}

	observability.RideRequestsResolved.WithLabelValues(string(domain.RideRequestExpired), "lazy").Inc()
	g.notifications.NotifyRideExpired(req.ID, req.RiderID)
	publishStatus(ctx, g.publisher, g.logger, statusEvent(req))
	g.logger.Info("ride request expired", zap.String("ride_request_id", req.ID))
}

// staleAfterConflict handles a conditional update that found the request
// closed. The request is re-read so an overdue one is marked expired, and
// the caller always gets ErrStaleRequest unless the request vanished.
func (g *requestGuard) staleAfterConflict(ctx context.Context, id string) error {
	observability.StaleMutations.Inc()

	req, err := g.rides.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		g.logger.Warn("failed to reload ride request after conflict", zap.String("ride_request_id", id), zap.Error(err))
		return ErrStaleRequest
	}
	g.expire(ctx, req)
	return ErrStaleRequest
}

// mapConflict converts repository.ErrConflict from a conditional update.
func (g *requestGuard) mapConflict(ctx context.Context, id string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return g.staleAfterConflict(ctx, id)
	}
	return err
}

// pendingCandidateIDs lists drivers that have not given a final answer,
// excluding skip.
func pendingCandidateIDs(req *domain.RideRequest, skip string) []string {
	var ids []string
	for _, c := range req.Candidates {
		if c.DriverID != skip && c.Status.IsPending() {
			ids = append(ids, c.DriverID)
		}
	}
	return ids
}
