package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

const (
	defaultMaxCandidates   = 20
	defaultDispatchLockTTL = 30 * time.Second
)

// DispatchOutcome tags a DispatchResult.
type DispatchOutcome string

const (
	DispatchNotified          DispatchOutcome = "notified"
	DispatchNoEligibleDrivers DispatchOutcome = "no_eligible_drivers"
)

// DispatchResult reports what a dispatch run did. CandidateCount is only
// non-zero for DispatchNotified.
type DispatchResult struct {
	Outcome        DispatchOutcome
	CandidateCount int
	Candidates     []domain.CandidateEntry
}

// Notified builds a result for a dispatch that reached the given candidates.
func Notified(candidates []domain.CandidateEntry) DispatchResult {
	return DispatchResult{Outcome: DispatchNotified, CandidateCount: len(candidates), Candidates: candidates}
}

// NoEligibleDrivers builds a result for a dispatch that found nobody.
func NoEligibleDrivers() DispatchResult {
	return DispatchResult{Outcome: DispatchNoEligibleDrivers}
}

// candidateFinder finds eligible drivers around a point.
type candidateFinder interface {
	FindWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]NearbyDriver, error)
}

// DispatchEngineDeps contains the collaborators of a DispatchEngine.
// Riders, Lock and Surge are optional.
type DispatchEngineDeps struct {
	Rides         repository.RideRequestRepository
	Riders        repository.RiderRepository
	GeoIndex      candidateFinder
	Lock          redis.LockStoreInterface
	Notifications *NotificationService
	Surge         *SurgeService
	Fare          FarePolicy
	Clock         Clock
	MaxCandidates int
	LockTTL       time.Duration
	Logger        *zap.Logger
}

// DispatchEngine finds candidate drivers for a ride request and offers it to them.
type DispatchEngine struct {
	rides         repository.RideRequestRepository
	riders        repository.RiderRepository
	geoIndex      candidateFinder
	lock          redis.LockStoreInterface
	notifications *NotificationService
	surge         *SurgeService
	fare          FarePolicy
	clock         Clock
	maxCandidates int
	lockTTL       time.Duration
	logger        *zap.Logger
}

// NewDispatchEngine creates a new DispatchEngine.
func NewDispatchEngine(deps DispatchEngineDeps) *DispatchEngine {
	e := &DispatchEngine{
		rides:         deps.Rides,
		riders:        deps.Riders,
		geoIndex:      deps.GeoIndex,
		lock:          deps.Lock,
		notifications: deps.Notifications,
		surge:         deps.Surge,
		fare:          deps.Fare,
		clock:         clockOrSystem(deps.Clock),
		maxCandidates: deps.MaxCandidates,
		lockTTL:       deps.LockTTL,
		logger:        logger.OrNop(deps.Logger),
	}
	if e.maxCandidates <= 0 {
		e.maxCandidates = defaultMaxCandidates
	}
	if e.lockTTL <= 0 {
		e.lockTTL = defaultDispatchLockTTL
	}
	if e.notifications == nil {
		e.notifications = NewNotificationService(nil, e.logger)
	}
	return e
}

// EstimateTrip computes distance, duration and suggested price for a trip.
func (e *DispatchEngine) EstimateTrip(ctx context.Context, pickup, destination geo.Point) repository.TripEstimate {
	distance := geo.HaversineKm(pickup, destination)
	duration := geo.TravelMinutes(distance)

	surge := 1.0
	if e.surge != nil {
		surge = e.surge.GetMultiplier(ctx, pickup)
	}

	return repository.TripEstimate{
		DistanceKm:           distance,
		EstimatedDurationMin: duration,
		SuggestedPrice:       e.fare.Estimate(distance, duration, surge),
	}
}

// Dispatch offers req to the nearest eligible drivers within its search
// radius. Candidates are persisted before any driver is notified, and
// notifications are fire-and-forget. req is updated in place.
func (e *DispatchEngine) Dispatch(ctx context.Context, req *domain.RideRequest) (DispatchResult, error) {
	start := time.Now()

	if e.lock != nil {
		locked, err := e.lock.AcquireDispatchLock(ctx, req.ID, e.lockTTL)
		if err != nil {
			return DispatchResult{}, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		if !locked {
			return DispatchResult{}, ErrDispatchInProgress
		}
		defer func() {
			if err := e.lock.ReleaseDispatchLock(ctx, req.ID); err != nil {
				e.logger.Warn("failed to release dispatch lock", zap.String("ride_request_id", req.ID), zap.Error(err))
			}
		}()
	}

	now := e.clock.Now()
	if !req.IsOpenAt(now) {
		return DispatchResult{}, ErrStaleRequest
	}

	pickup := req.Pickup.Point()
	estimate := repository.TripEstimate{
		DistanceKm:     geo.HaversineKm(pickup, req.Destination.Point()),
		SuggestedPrice: req.SuggestedPrice,
	}
	estimate.EstimatedDurationMin = geo.TravelMinutes(estimate.DistanceKm)
	if estimate.SuggestedPrice <= 0 {
		estimate.SuggestedPrice = e.fare.Estimate(estimate.DistanceKm, estimate.EstimatedDurationMin, 1.0)
	}

	nearby, err := e.geoIndex.FindWithinRadius(ctx, pickup, req.SearchRadiusKm)
	if err != nil {
		return DispatchResult{}, err
	}
	if len(nearby) > e.maxCandidates {
		nearby = nearby[:e.maxCandidates]
	}

	candidates := make([]domain.CandidateEntry, 0, len(nearby))
	for _, n := range nearby {
		candidates = append(candidates, domain.CandidateEntry{
			DriverID:             n.Driver.DriverID,
			DistanceFromPickupKm: n.DistanceKm,
			EstimatedArrivalMin:  geo.TravelMinutes(n.DistanceKm),
			Status:               domain.CandidateViewed,
			ViewedAt:             now,
		})
	}

	if err := e.rides.RecordDispatch(ctx, req.ID, estimate, candidates, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return DispatchResult{}, ErrStaleRequest
		}
		return DispatchResult{}, fmt.Errorf("record dispatch: %w", err)
	}

	req.DistanceKm = estimate.DistanceKm
	req.EstimatedDurationMin = estimate.EstimatedDurationMin
	req.SuggestedPrice = estimate.SuggestedPrice
	req.UpdatedAt = now
	req.Candidates = append(req.Candidates, candidates...)
	if len(candidates) > 0 && req.Status == domain.RideRequestSearching {
		req.Status = domain.RideRequestPending
	}

	observability.DispatchLatency.Observe(time.Since(start).Seconds())
	observability.DispatchCandidates.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		observability.DispatchOutcomes.WithLabelValues(string(DispatchNoEligibleDrivers)).Inc()
		e.logger.Info("no eligible drivers for ride request",
			zap.String("ride_request_id", req.ID),
			zap.Float64("radius_km", req.SearchRadiusKm),
		)
		return NoEligibleDrivers(), nil
	}

	e.notifications.NotifyRideRequest(req, e.riderProfile(ctx, req.RiderID), candidates)

	observability.DispatchOutcomes.WithLabelValues(string(DispatchNotified)).Inc()
	e.logger.Info("ride request dispatched",
		zap.String("ride_request_id", req.ID),
		zap.Int("candidates", len(candidates)),
	)
	return Notified(candidates), nil
}

// riderProfile returns the rider's public profile, or just the id when the
// profile cannot be loaded.
func (e *DispatchEngine) riderProfile(ctx context.Context, riderID string) domain.RiderProfile {
	if e.riders == nil {
		return domain.RiderProfile{ID: riderID}
	}
	rider, err := e.riders.GetByID(ctx, riderID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Warn("failed to load rider profile", zap.String("rider_id", riderID), zap.Error(err))
		}
		return domain.RiderProfile{ID: riderID}
	}
	return rider.PublicProfile()
}
