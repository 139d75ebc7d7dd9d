package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

const (
	defaultRequestTTL      = 15 * time.Minute
	defaultSearchRadiusKm  = 5.0
	defaultMaxSearchRadius = 50.0
)

// Dispatcher estimates trips and offers ride requests to drivers.
// This interface allows for testing with mock implementations.
type Dispatcher interface {
	EstimateTrip(ctx context.Context, pickup, destination geo.Point) repository.TripEstimate
	Dispatch(ctx context.Context, req *domain.RideRequest) (DispatchResult, error)
}

// Ensure DispatchEngine implements Dispatcher.
var _ Dispatcher = (*DispatchEngine)(nil)

// RideServiceDeps contains the collaborators and limits of a RideService.
type RideServiceDeps struct {
	Rides           repository.RideRequestRepository
	Dispatcher      Dispatcher
	Notifications   *NotificationService
	Publisher       RideEventPublisher
	Clock           Clock
	RequestTTL      time.Duration
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	Logger          *zap.Logger
}

// RideService handles the rider-facing lifecycle of ride requests.
type RideService struct {
	requestGuard
	dispatcher      Dispatcher
	requestTTL      time.Duration
	defaultRadiusKm float64
	maxRadiusKm     float64
}

// NewRideService creates a new RideService.
func NewRideService(deps RideServiceDeps) *RideService {
	log := logger.OrNop(deps.Logger)
	notifications := deps.Notifications
	if notifications == nil {
		notifications = NewNotificationService(nil, log)
	}

	s := &RideService{
		requestGuard: requestGuard{
			rides:         deps.Rides,
			notifications: notifications,
			publisher:     deps.Publisher,
			clock:         clockOrSystem(deps.Clock),
			logger:        log,
		},
		dispatcher:      deps.Dispatcher,
		requestTTL:      deps.RequestTTL,
		defaultRadiusKm: deps.DefaultRadiusKm,
		maxRadiusKm:     deps.MaxRadiusKm,
	}
	if s.requestTTL <= 0 {
		s.requestTTL = defaultRequestTTL
	}
	if s.defaultRadiusKm <= 0 {
		s.defaultRadiusKm = defaultSearchRadiusKm
	}
	if s.maxRadiusKm <= 0 {
		s.maxRadiusKm = defaultMaxSearchRadius
	}
	return s
}

// CreateRideRequestInput contains the parameters for creating a ride request.
type CreateRideRequestInput struct {
	RiderID        string
	Pickup         domain.Location
	Destination    domain.Location
	OfferedFare    float64
	SearchRadiusKm float64 // Optional: zero means the configured default
	VehicleType    string
	PaymentMethod  string // Optional: defaults to cash
	Notes          string
}

// CreateRideRequestResult contains the created request and how dispatch went.
type CreateRideRequestResult struct {
	Request  *domain.RideRequest
	Dispatch DispatchResult
}

// CreateRideRequest stores a new ride request and dispatches it immediately.
// A failed dispatch never fails creation: the request is returned open with
// no candidates.
func (s *RideService) CreateRideRequest(ctx context.Context, in CreateRideRequestInput) (*CreateRideRequestResult, error) {
	paymentMethod, radius, err := s.validateCreateRequest(in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	estimate := s.dispatcher.EstimateTrip(ctx, in.Pickup.Point(), in.Destination.Point())

	req := &domain.RideRequest{
		ID:                    uuid.New().String(),
		RiderID:               in.RiderID,
		Pickup:                in.Pickup,
		Destination:           in.Destination,
		RequestedPrice:        in.OfferedFare,
		SuggestedPrice:        estimate.SuggestedPrice,
		DistanceKm:            estimate.DistanceKm,
		EstimatedDurationMin:  estimate.EstimatedDurationMin,
		SearchRadiusKm:        radius,
		Status:                domain.RideRequestSearching,
		ExpiresAt:             now.Add(s.requestTTL),
		CreatedAt:             now,
		UpdatedAt:             now,
		VehicleTypePreference: in.VehicleType,
		PaymentMethod:         paymentMethod,
		Notes:                 in.Notes,
	}

	if err := s.rides.Create(ctx, req); err != nil {
		return nil, err
	}
	observability.RideRequestsCreated.Inc()
	publishStatus(ctx, s.publisher, s.logger, statusEvent(req))

	result, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		s.logger.Error("dispatch failed",
			zap.String("ride_request_id", req.ID),
			zap.Error(err),
		)
		result = NoEligibleDrivers()
	}

	s.logger.Info("ride request created",
		zap.String("ride_request_id", req.ID),
		zap.String("rider_id", req.RiderID),
		zap.String("dispatch_outcome", string(result.Outcome)),
		zap.Int("candidates", result.CandidateCount),
	)
	return &CreateRideRequestResult{Request: req, Dispatch: result}, nil
}

// GetRideRequest returns a ride request to a caller allowed to see it.
// Riders see their own requests, drivers see requests they were offered
// with only their own candidate entry, admins see everything. An overdue
// open request is reported as expired.
func (s *RideService) GetRideRequest(ctx context.Context, id string, caller domain.Principal) (*domain.RideRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch caller.Role {
	case domain.RoleAdmin:
	case domain.RoleRider:
		if req.RiderID != caller.UserID {
			return nil, ErrNotRequestOwner
		}
	case domain.RoleDriver:
		candidate := req.Candidate(caller.UserID)
		if candidate == nil {
			return nil, ErrNotACandidate
		}
		req.Candidates = []domain.CandidateEntry{*candidate}
	default:
		return nil, ErrNotRequestOwner
	}

	s.expire(ctx, req)
	return req, nil
}

// ListOpenRequestsForDriver returns the open requests a driver was offered
// and has not rejected.
func (s *RideService) ListOpenRequestsForDriver(ctx context.Context, driverID string) ([]*domain.RideRequest, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.rides.ListOpenForDriver(ctx, driverID, s.clock.Now())
}

// CancelRequest cancels an open ride request on behalf of its rider.
func (s *RideService) CancelRequest(ctx context.Context, id, riderID, reason string) (*domain.RideRequest, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RiderID != riderID {
		return nil, ErrNotRequestOwner
	}
	if err := s.ensureOpen(ctx, req); err != nil {
		return nil, err
	}

	notify := pendingCandidateIDs(req, "")
	now := s.clock.Now()
	if err := s.rides.Cancel(ctx, req.ID, reason, now); err != nil {
		return nil, s.mapConflict(ctx, req.ID, err)
	}

	req.Status = domain.RideRequestCancelled
	req.CancelledAt = &now
	req.CancelReason = reason
	req.UpdatedAt = now

	s.notifications.NotifyRideCancelled(req, notify)
	publishStatus(ctx, s.publisher, s.logger, statusEvent(req))

	observability.RideRequestsResolved.WithLabelValues(string(domain.RideRequestCancelled), "rider_cancel").Inc()
	s.logger.Info("ride request cancelled", zap.String("ride_request_id", req.ID), zap.String("reason", reason))
	return req, nil
}

// validateCreateRequest validates the create ride request and resolves its defaults.
func (s *RideService) validateCreateRequest(in CreateRideRequestInput) (domain.PaymentMethod, float64, error) {
	if in.RiderID == "" {
		return "", 0, ErrInvalidRiderID
	}
	if !in.Pickup.Point().Valid() {
		return "", 0, ErrInvalidPickupLocation
	}
	if !in.Destination.Point().Valid() {
		return "", 0, ErrInvalidDestinationLocation
	}
	if in.OfferedFare <= 0 {
		return "", 0, ErrInvalidOffer
	}

	radius := in.SearchRadiusKm
	if radius == 0 {
		radius = s.defaultRadiusKm
	}
	if radius < 0 || radius > s.maxRadiusKm {
		return "", 0, ErrInvalidSearchRadius
	}

	method, err := ValidatePaymentMethod(in.PaymentMethod)
	if err != nil {
		return "", 0, err
	}
	return method, radius, nil
}

// ValidatePaymentMethod validates a payment method string.
func ValidatePaymentMethod(method string) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(method) {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodWallet:
		return domain.PaymentMethod(method), nil
	case "":
		return domain.PaymentMethodCash, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}
