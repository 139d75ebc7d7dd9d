package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/service"
)

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is an in-memory geo set standing in for
// redis.LocationStore. Queries filter by great-circle distance and return
// nearest first, like GEOSEARCH.
type MockLocationStore struct {
	mu      sync.RWMutex
	members map[string]geo.Point

	UpdateLocationCallCount int32
	FindNearbyCallCount     int32

	UpdateLocationError    error
	FindNearbyDriversError error
}

var _ redis.LocationStoreInterface = (*MockLocationStore)(nil)

// NewMockLocationStore creates an empty geo set.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{members: make(map[string]geo.Point)}
}

// SetLocations replaces the whole set.
func (m *MockLocationStore) SetLocations(locations []redis.DriverLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = make(map[string]geo.Point, len(locations))
	for _, loc := range locations {
		m.members[loc.DriverID] = geo.Point{Lat: loc.Lat, Lng: loc.Lng}
	}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	m.members[driverID] = geo.Point{Lat: lat, Lng: lng}
	m.mu.Unlock()
	return nil
}

func (m *MockLocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]redis.DriverLocation, error) {
	atomic.AddInt32(&m.FindNearbyCallCount, 1)
	if m.FindNearbyDriversError != nil {
		return nil, m.FindNearbyDriversError
	}

	center := geo.Point{Lat: lat, Lng: lng}
	m.mu.RLock()
	found := make([]redis.DriverLocation, 0, len(m.members))
	for id, p := range m.members {
		d := geo.HaversineKm(center, p)
		if d > radiusKm {
			continue
		}
		found = append(found, redis.DriverLocation{DriverID: id, Lat: p.Lat, Lng: p.Lng, DistanceKm: d})
	}
	m.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		if found[i].DistanceKm != found[j].DistanceKm {
			return found[i].DistanceKm < found[j].DistanceKm
		}
		return found[i].DriverID < found[j].DriverID
	})
	return found, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	delete(m.members, driverID)
	m.mu.Unlock()
	return nil
}

// HasLocation reports whether driverID is in the set.
func (m *MockLocationStore) HasLocation(driverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[driverID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of redis.LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

var _ redis.LockStoreInterface = (*MockLockStore)(nil)

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquireDispatchLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:dispatch:" + requestID
	if expiry, exists := m.locks[key]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleaseDispatchLock(ctx context.Context, requestID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, "lock:dispatch:"+requestID)
	return nil
}

// IsLocked checks if a request is locked (for test assertions).
func (m *MockLockStore) IsLocked(requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks["lock:dispatch:"+requestID]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK DRIVER CACHE
// ──────────────────────────────────────────────

// MockDriverCache is a mock implementation of redis.DriverCacheInterface.
type MockDriverCache struct {
	mu      sync.Mutex
	drivers map[string]*redis.CachedDriver

	// Counters
	GetBatchCallCount   int32
	InvalidateCallCount int32

	// Error injection
	GetBatchError error
}

var _ redis.DriverCacheInterface = (*MockDriverCache)(nil)

// NewMockDriverCache creates a new mock driver cache.
func NewMockDriverCache() *MockDriverCache {
	return &MockDriverCache{drivers: make(map[string]*redis.CachedDriver)}
}

func (m *MockDriverCache) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*redis.CachedDriver, []string, error) {
	atomic.AddInt32(&m.GetBatchCallCount, 1)
	if m.GetBatchError != nil {
		return nil, nil, m.GetBatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]*redis.CachedDriver)
	var missing []string
	for _, id := range driverIDs {
		if d, ok := m.drivers[id]; ok {
			c := *d
			found[id] = &c
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (m *MockDriverCache) SetDriversBatch(ctx context.Context, drivers []*redis.CachedDriver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range drivers {
		c := *d
		m.drivers[d.ID] = &c
	}
	return nil
}

func (m *MockDriverCache) InvalidateDriver(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, driverID)
	return nil
}

// Has reports whether the driver is cached.
func (m *MockDriverCache) Has(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drivers[driverID]
	return ok
}

// ──────────────────────────────────────────────
// RECORDING NOTIFICATION CHANNEL
// ──────────────────────────────────────────────

// Notification is one event captured by a RecordingChannel.
type Notification struct {
	RecipientID string
	Event       service.EventName
	Payload     any
}

// RecordingChannel is a service.NotificationChannel that keeps every event.
type RecordingChannel struct {
	mu     sync.Mutex
	events []Notification
}

var _ service.NotificationChannel = (*RecordingChannel)(nil)

// NewRecordingChannel creates an empty RecordingChannel.
func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{}
}

func (c *RecordingChannel) Emit(recipientID string, event service.EventName, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Notification{RecipientID: recipientID, Event: event, Payload: payload})
}

// All returns every recorded event in order.
func (c *RecordingChannel) All() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.events))
	copy(out, c.events)
	return out
}

// For returns the events sent to one recipient.
func (c *RecordingChannel) For(recipientID string) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notification
	for _, n := range c.events {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

// Count returns how many events of a kind were sent.
func (c *RecordingChannel) Count(event service.EventName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHERS
// ──────────────────────────────────────────────

// MockEventPublisher records ride status and location events.
type MockEventPublisher struct {
	mu        sync.Mutex
	statuses  []domain.RideStatusEvent
	locations []domain.DriverLocationEvent

	// Error injection
	PublishError error
}

var (
	_ service.RideEventPublisher = (*MockEventPublisher)(nil)
	_ service.LocationPublisher  = (*MockEventPublisher)(nil)
)

// NewMockEventPublisher creates a new mock publisher.
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishRideStatus(ctx context.Context, event domain.RideStatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, event)
	return m.PublishError
}

func (m *MockEventPublisher) PublishLocation(ctx context.Context, event domain.DriverLocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, event)
	return m.PublishError
}

// Statuses returns the published ride status events.
func (m *MockEventPublisher) Statuses() []domain.RideStatusEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RideStatusEvent, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// Locations returns the published location events.
func (m *MockEventPublisher) Locations() []domain.DriverLocationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DriverLocationEvent, len(m.locations))
	copy(out, m.locations)
	return out
}

// ──────────────────────────────────────────────
// FAKE CLOCK
// ──────────────────────────────────────────────

// FakeClock is a service.Clock that only moves when told to.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ service.Clock = (*FakeClock)(nil)

// NewFakeClock creates a clock stopped at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
