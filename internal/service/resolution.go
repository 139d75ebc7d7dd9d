package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// RespondAction is a driver's answer to a ride request.
type RespondAction string

const (
	ActionAccept       RespondAction = "accept"
	ActionCounterOffer RespondAction = "counter_offer"
	ActionReject       RespondAction = "reject"
	ActionInterested   RespondAction = "interested"
)

// ParseRespondAction validates a response action string.
func ParseRespondAction(s string) (RespondAction, error) {
	switch a := RespondAction(s); a {
	case ActionAccept, ActionCounterOffer, ActionReject, ActionInterested:
		return a, nil
	default:
		return "", ErrInvalidAction
	}
}

// RespondResult is the outcome of a driver response.
type RespondResult struct {
	Request   *domain.RideRequest
	Candidate *domain.CandidateEntry
}

// AcceptCounterResult is the outcome of a rider accepting a counter offer.
type AcceptCounterResult struct {
	Request    *domain.RideRequest
	DriverID   string
	FinalPrice float64
}

// driverGate checks that a driver can still take a ride and takes the
// winner out of dispatch.
type driverGate interface {
	IsEligibleCandidate(ctx context.Context, driverID string) (bool, error)
	MarkBusy(ctx context.Context, driverID string) error
}

// OfferResolutionEngineDeps contains the collaborators of an OfferResolutionEngine.
// Drivers and Publisher are optional.
type OfferResolutionEngineDeps struct {
	Rides         repository.RideRequestRepository
	FareOffers    repository.FareOfferRepository
	Drivers       driverGate
	Notifications *NotificationService
	Publisher     RideEventPublisher
	Clock         Clock
	Logger        *zap.Logger
}

// OfferResolutionEngine applies driver responses and rider decisions to
// open ride requests. Every path that accepts a request goes through a
// single conditional update, so exactly one of any number of concurrent
// accepts succeeds and the rest get ErrStaleRequest.
type OfferResolutionEngine struct {
	requestGuard
	fareOffers repository.FareOfferRepository
	drivers    driverGate
}

// NewOfferResolutionEngine creates a new OfferResolutionEngine.
func NewOfferResolutionEngine(deps OfferResolutionEngineDeps) *OfferResolutionEngine {
	log := logger.OrNop(deps.Logger)
	notifications := deps.Notifications
	if notifications == nil {
		notifications = NewNotificationService(nil, log)
	}
	return &OfferResolutionEngine{
		requestGuard: requestGuard{
			rides:         deps.Rides,
			notifications: notifications,
			publisher:     deps.Publisher,
			clock:         clockOrSystem(deps.Clock),
			logger:        log,
		},
		fareOffers: deps.FareOffers,
		drivers:    deps.Drivers,
	}
}

// Respond records a candidate driver's answer to an open ride request.
// counterOfferAmount is only read for ActionCounterOffer.
func (e *OfferResolutionEngine) Respond(ctx context.Context, requestID, driverID string, action RespondAction, counterOfferAmount *float64) (*RespondResult, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if _, err := ParseRespondAction(string(action)); err != nil {
		return nil, err
	}

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureOpen(ctx, req); err != nil {
		return nil, err
	}
	candidate := req.Candidate(driverID)
	if candidate == nil {
		return nil, ErrNotACandidate
	}
	if action == ActionCounterOffer && (counterOfferAmount == nil || *counterOfferAmount <= 0) {
		return nil, ErrInvalidOffer
	}

	if action == ActionAccept {
		res := repository.Resolution{
			DriverID:   driverID,
			FinalPrice: req.RequestedPrice,
			At:         e.clock.Now(),
		}
		if err := e.resolve(ctx, req, res, "driver_accept"); err != nil {
			return nil, err
		}
		observability.DriverResponses.WithLabelValues(string(action)).Inc()
		return &RespondResult{Request: req, Candidate: req.Candidate(driverID)}, nil
	}

	var status domain.CandidateStatus
	var price *float64
	switch action {
	case ActionCounterOffer:
		status = domain.CandidateCounterOffered
		amount := *counterOfferAmount
		price = &amount
	case ActionReject:
		status = domain.CandidateRejected
	case ActionInterested:
		status = domain.CandidateInterested
	}

	now := e.clock.Now()
	if err := e.rides.UpdateCandidate(ctx, req.ID, driverID, status, price, now); err != nil {
		return nil, e.mapConflict(ctx, req.ID, err)
	}

	candidate.Status = status
	candidate.CounterOfferPrice = price
	candidate.RespondedAt = &now
	req.UpdatedAt = now

	if action == ActionCounterOffer {
		e.notifications.NotifyCounterOffer(req, candidate)
	}

	observability.DriverResponses.WithLabelValues(string(action)).Inc()
	e.logger.Info("driver responded to ride request",
		zap.String("ride_request_id", req.ID),
		zap.String("driver_id", driverID),
		zap.String("action", string(action)),
	)
	return &RespondResult{Request: req, Candidate: candidate}, nil
}

// AcceptCounterOffer lets the owning rider take a driver's counter offer.
func (e *OfferResolutionEngine) AcceptCounterOffer(ctx context.Context, requestID, riderID, driverID string) (*AcceptCounterResult, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RiderID != riderID {
		return nil, ErrNotRequestOwner
	}
	if err := e.ensureOpen(ctx, req); err != nil {
		return nil, err
	}
	candidate := req.Candidate(driverID)
	if candidate == nil {
		return nil, ErrNotACandidate
	}
	if candidate.Status != domain.CandidateCounterOffered || candidate.CounterOfferPrice == nil {
		return nil, ErrNoCounterOffer
	}

	res := repository.Resolution{
		DriverID:     driverID,
		FinalPrice:   *candidate.CounterOfferPrice,
		At:           e.clock.Now(),
		CounterOffer: true,
	}
	if err := e.resolve(ctx, req, res, "counter_offer"); err != nil {
		return nil, err
	}
	return &AcceptCounterResult{Request: req, DriverID: driverID, FinalPrice: res.FinalPrice}, nil
}

// resolve accepts req for res.DriverID and fans out the result. req is
// updated in place on success. A driver who went offline or already won
// another request cannot be assigned.
func (e *OfferResolutionEngine) resolve(ctx context.Context, req *domain.RideRequest, res repository.Resolution, path string) error {
	if e.drivers != nil {
		eligible, err := e.drivers.IsEligibleCandidate(ctx, res.DriverID)
		if err != nil {
			return fmt.Errorf("check driver: %w", err)
		}
		if !eligible {
			return ErrDriverUnavailable
		}
	}

	losers := pendingCandidateIDs(req, res.DriverID)

	if err := e.rides.Resolve(ctx, req.ID, res); err != nil {
		return e.mapConflict(ctx, req.ID, err)
	}

	if e.drivers != nil {
		if err := e.drivers.MarkBusy(ctx, res.DriverID); err != nil {
			e.logger.Warn("failed to mark accepted driver unavailable",
				zap.String("driver_id", res.DriverID),
				zap.Error(err),
			)
		}
	}

	applyResolution(req, res)

	e.notifications.NotifyRideAccepted(req)
	e.notifications.NotifyRideUnavailable(req, losers)
	publishStatus(ctx, e.publisher, e.logger, statusEvent(req))

	observability.RideRequestsResolved.WithLabelValues(string(domain.RideRequestAccepted), path).Inc()
	e.logger.Info("ride request accepted",
		zap.String("ride_request_id", req.ID),
		zap.String("driver_id", res.DriverID),
		zap.Float64("final_price", res.FinalPrice),
		zap.String("path", path),
	)
	return nil
}

// applyResolution mirrors the repository's Resolve onto an in-memory request.
func applyResolution(req *domain.RideRequest, res repository.Resolution) {
	at := res.At
	price := res.FinalPrice

	req.Status = domain.RideRequestAccepted
	req.AcceptedByDriverID = res.DriverID
	req.AcceptedAt = &at
	req.FinalPrice = &price
	req.UpdatedAt = at

	for i := range req.Candidates {
		c := &req.Candidates[i]
		switch {
		case c.DriverID == res.DriverID:
			c.Status = domain.CandidateAccepted
			c.RespondedAt = &at
		case c.Status.IsPending():
			c.Status = domain.CandidateRejected
			c.RespondedAt = &at
		}
	}
}
