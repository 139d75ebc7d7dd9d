// Package testutil provides in-memory fakes of the dispatch service's
// stores and channels for use in tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of repository.DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.DriverState

	// Counters for verification
	UpdateLocationCallCount  int32
	SetAvailabilityCallCount int32
	MarkUnavailableCallCount int32

	// Error injection
	GetError             error
	UpdateLocationError  error
	SetAvailabilityError error
}

var _ repository.DriverRepository = (*MockDriverRepository)(nil)

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.DriverState),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.DriverState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *driver
	m.drivers[driver.DriverID] = &c
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.DriverState, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *driver
	return &c, nil
}

func (m *MockDriverRepository) GetMany(ctx context.Context, ids []string) ([]*domain.DriverState, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.DriverState, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			c := *d
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *MockDriverRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) (*domain.DriverState, error) {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return nil, m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.upsert(id, at)
	if d.Position == nil || !d.LastUpdatedAt.After(at) {
		d.Position = &geo.Point{Lat: lat, Lng: lng}
		d.LastUpdatedAt = at
		d.UpdatedAt = at
	}
	c := *d
	return &c, nil
}

func (m *MockDriverRepository) SetAvailability(ctx context.Context, id string, online, available bool, at time.Time) (*domain.DriverState, error) {
	atomic.AddInt32(&m.SetAvailabilityCallCount, 1)
	if m.SetAvailabilityError != nil {
		return nil, m.SetAvailabilityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.upsert(id, at)
	d.Online = online
	d.Available = available
	d.UpdatedAt = at
	c := *d
	return &c, nil
}

func (m *MockDriverRepository) MarkUnavailable(ctx context.Context, id string, at time.Time) (*domain.DriverState, error) {
	atomic.AddInt32(&m.MarkUnavailableCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Available = false
	d.UpdatedAt = at
	c := *d
	return &c, nil
}

func (m *MockDriverRepository) SetApproved(ctx context.Context, id string, approved bool, at time.Time) (*domain.DriverState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.upsert(id, at)
	d.Approved = approved
	d.Available = d.Available && approved
	d.UpdatedAt = at
	c := *d
	return &c, nil
}

func (m *MockDriverRepository) upsert(id string, at time.Time) *domain.DriverState {
	d, ok := m.drivers[id]
	if !ok {
		d = &domain.DriverState{DriverID: id, CreatedAt: at, UpdatedAt: at}
		m.drivers[id] = d
	}
	return d
}

// GetDriver returns driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.DriverState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil
	}
	c := *d
	return &c
}

// ──────────────────────────────────────────────
// MOCK RIDE REQUEST REPOSITORY
// ──────────────────────────────────────────────

// MockRideRequestRepository is a mock implementation of
// repository.RideRequestRepository. It also owns the fare offers so that
// Resolve, Cancel and expiry update both under one lock, the way the
// PostgreSQL implementation does in one transaction.
type MockRideRequestRepository struct {
	mu         sync.Mutex
	requests   map[string]*domain.RideRequest
	offers     map[string]*domain.FareOffer
	offerOrder []string

	// Counters for verification
	CreateCallCount    int32
	ResolveCallCount   int32
	ResolveSuccesses   int32
	ExpireDueCallCount int32

	// Error injection
	CreateError         error
	GetError            error
	RecordDispatchError error
	ExpireDueError      error
}

var _ repository.RideRequestRepository = (*MockRideRequestRepository)(nil)

// NewMockRideRequestRepository creates a new mock ride request repository.
func NewMockRideRequestRepository() *MockRideRequestRepository {
	return &MockRideRequestRepository{
		requests: make(map[string]*domain.RideRequest),
		offers:   make(map[string]*domain.FareOffer),
	}
}

// AddRequest adds a ride request to the mock repository.
func (m *MockRideRequestRepository) AddRequest(req *domain.RideRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = cloneRequest(req)
}

// GetRequest returns a copy of the stored request for assertions, or nil.
func (m *MockRideRequestRepository) GetRequest(id string) *domain.RideRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil
	}
	return cloneRequest(req)
}

// ExpireDueCount returns how many sweeps reached the repository.
func (m *MockRideRequestRepository) ExpireDueCount() int32 {
	return atomic.LoadInt32(&m.ExpireDueCallCount)
}

// CountRequests returns the number of stored requests.
func (m *MockRideRequestRepository) CountRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockRideRequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[req.ID]; exists {
		return ErrMockDBConstraint
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MockRideRequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (m *MockRideRequestRepository) RecordDispatch(ctx context.Context, id string, estimate repository.TripEstimate, candidates []domain.CandidateEntry, now time.Time) error {
	if m.RecordDispatchError != nil {
		return m.RecordDispatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.lockOpen(id, now)
	if err != nil {
		return err
	}

	req.DistanceKm = estimate.DistanceKm
	req.EstimatedDurationMin = estimate.EstimatedDurationMin
	req.SuggestedPrice = estimate.SuggestedPrice
	req.UpdatedAt = now
	if len(candidates) > 0 {
		req.Status = domain.RideRequestPending
	}
	for _, c := range candidates {
		if req.Candidate(c.DriverID) == nil {
			req.Candidates = append(req.Candidates, c)
		}
	}
	return nil
}

func (m *MockRideRequestRepository) UpdateCandidate(ctx context.Context, id, driverID string, status domain.CandidateStatus, counterOfferPrice *float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.lockOpen(id, now)
	if err != nil {
		return err
	}
	c := req.Candidate(driverID)
	if c == nil {
		return repository.ErrNotFound
	}
	c.Status = status
	c.CounterOfferPrice = copyFloat(counterOfferPrice)
	c.RespondedAt = &now
	req.UpdatedAt = now
	return nil
}

func (m *MockRideRequestRepository) Resolve(ctx context.Context, id string, res repository.Resolution) error {
	atomic.AddInt32(&m.ResolveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.lockOpen(id, res.At)
	if err != nil {
		return err
	}

	winner := req.Candidate(res.DriverID)
	if winner == nil {
		return repository.ErrConflict
	}
	if res.CounterOffer {
		if winner.Status != domain.CandidateCounterOffered || winner.CounterOfferPrice == nil || *winner.CounterOfferPrice != res.FinalPrice {
			return repository.ErrConflict
		}
	}
	if res.FareOfferID != "" {
		offer, ok := m.offers[res.FareOfferID]
		if !ok || offer.RideRequestID != id {
			return repository.ErrNotFound
		}
		if offer.Status != domain.FareOfferPending || offer.DriverID != res.DriverID || offer.Price != res.FinalPrice {
			return repository.ErrConflict
		}
	}

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
	for _, offer := range m.offers {
		if offer.RideRequestID != id || offer.Status != domain.FareOfferPending {
			continue
		}
		if offer.ID == res.FareOfferID {
			offer.Status = domain.FareOfferAccepted
		} else {
			offer.Status = domain.FareOfferRejected
		}
		offer.RespondedAt = &at
	}

	atomic.AddInt32(&m.ResolveSuccesses, 1)
	return nil
}

func (m *MockRideRequestRepository) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.lockOpen(id, now)
	if err != nil {
		return err
	}
	req.Status = domain.RideRequestCancelled
	req.CancelledAt = &now
	req.CancelReason = reason
	req.UpdatedAt = now
	m.rejectPendingOffers(id, now)
	return nil
}

func (m *MockRideRequestRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || !req.Status.IsOpen() || !req.IsExpiredAt(now) {
		return false, nil
	}
	req.Status = domain.RideRequestExpired
	req.UpdatedAt = now
	m.rejectPendingOffers(id, now)
	return true, nil
}

func (m *MockRideRequestRepository) ExpireDue(ctx context.Context, now time.Time) ([]repository.ExpiredRequest, error) {
	atomic.AddInt32(&m.ExpireDueCallCount, 1)
	if m.ExpireDueError != nil {
		return nil, m.ExpireDueError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []repository.ExpiredRequest
	for _, req := range m.requests {
		if req.Status.IsOpen() && req.IsExpiredAt(now) {
			req.Status = domain.RideRequestExpired
			req.UpdatedAt = now
			m.rejectPendingOffers(req.ID, now)
			expired = append(expired, repository.ExpiredRequest{ID: req.ID, RiderID: req.RiderID})
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (m *MockRideRequestRepository) ListOpenForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.RideRequest
	for _, req := range m.requests {
		if !req.IsOpenAt(now) {
			continue
		}
		c := req.Candidate(driverID)
		if c == nil || c.Status == domain.CandidateRejected {
			continue
		}
		out := cloneRequest(req)
		out.Candidates = []domain.CandidateEntry{*c}
		result = append(result, out)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockRideRequestRepository) ListOpenPickups(ctx context.Context, now time.Time) ([]geo.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var points []geo.Point
	for _, req := range m.requests {
		if req.IsOpenAt(now) {
			points = append(points, req.Pickup.Point())
		}
	}
	return points, nil
}

// lockOpen mirrors the row lock check of the SQL implementation. Callers hold m.mu.
func (m *MockRideRequestRepository) lockOpen(id string, now time.Time) (*domain.RideRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !req.IsOpenAt(now) {
		return nil, repository.ErrConflict
	}
	return req, nil
}

func (m *MockRideRequestRepository) rejectPendingOffers(requestID string, now time.Time) {
	for _, offer := range m.offers {
		if offer.RideRequestID == requestID && offer.Status == domain.FareOfferPending {
			offer.Status = domain.FareOfferRejected
			offer.RespondedAt = &now
		}
	}
}

// ──────────────────────────────────────────────
// MOCK FARE OFFER REPOSITORY
// ──────────────────────────────────────────────

// MockFareOfferRepository is a mock implementation of
// repository.FareOfferRepository backed by a MockRideRequestRepository.
type MockFareOfferRepository struct {
	store *MockRideRequestRepository

	// Counters
	SubmitCallCount int32

	// Error injection
	SubmitError error
}

var _ repository.FareOfferRepository = (*MockFareOfferRepository)(nil)

// NewMockFareOfferRepository creates a fare offer repository sharing rides' state.
func NewMockFareOfferRepository(rides *MockRideRequestRepository) *MockFareOfferRepository {
	return &MockFareOfferRepository{store: rides}
}

func (m *MockFareOfferRepository) Submit(ctx context.Context, offer *domain.FareOffer, now time.Time) (*domain.FareOffer, error) {
	atomic.AddInt32(&m.SubmitCallCount, 1)
	if m.SubmitError != nil {
		return nil, m.SubmitError
	}
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lockOpen(offer.RideRequestID, now); err != nil {
		return nil, err
	}

	for _, id := range s.offerOrder {
		existing := s.offers[id]
		if existing.RideRequestID == offer.RideRequestID && existing.DriverID == offer.DriverID && existing.Status == domain.FareOfferPending {
			existing.Price = offer.Price
			c := *existing
			return &c, nil
		}
	}

	stored := &domain.FareOffer{
		ID:            offer.ID,
		RideRequestID: offer.RideRequestID,
		DriverID:      offer.DriverID,
		Price:         offer.Price,
		Status:        domain.FareOfferPending,
		CreatedAt:     now,
	}
	s.offers[stored.ID] = stored
	s.offerOrder = append(s.offerOrder, stored.ID)
	c := *stored
	return &c, nil
}

func (m *MockFareOfferRepository) GetByID(ctx context.Context, id string) (*domain.FareOffer, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *offer
	return &c, nil
}

func (m *MockFareOfferRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.FareOffer, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.FareOffer
	for _, id := range s.offerOrder {
		if offer := s.offers[id]; offer.RideRequestID == requestID {
			c := *offer
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *MockFareOfferRepository) Reject(ctx context.Context, id string, now time.Time) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[id]
	if !ok {
		return repository.ErrNotFound
	}
	if offer.Status != domain.FareOfferPending {
		return repository.ErrConflict
	}
	offer.Status = domain.FareOfferRejected
	offer.RespondedAt = &now
	return nil
}

// ──────────────────────────────────────────────
// MOCK RIDER REPOSITORY
// ──────────────────────────────────────────────

// MockRiderRepository is a mock implementation of repository.RiderRepository.
type MockRiderRepository struct {
	mu     sync.RWMutex
	riders map[string]*domain.Rider

	// Error injection
	GetError error
}

var _ repository.RiderRepository = (*MockRiderRepository)(nil)

// NewMockRiderRepository creates a new mock rider repository.
func NewMockRiderRepository() *MockRiderRepository {
	return &MockRiderRepository{riders: make(map[string]*domain.Rider)}
}

func (m *MockRiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rider, ok := m.riders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *rider
	return &c, nil
}

func (m *MockRiderRepository) Upsert(ctx context.Context, rider *domain.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rider
	if existing, ok := m.riders[rider.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	m.riders[rider.ID] = &c
	return nil
}

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
)

func cloneRequest(req *domain.RideRequest) *domain.RideRequest {
	c := *req
	c.Candidates = make([]domain.CandidateEntry, len(req.Candidates))
	copy(c.Candidates, req.Candidates)
	return &c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
