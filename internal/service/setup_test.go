package service_test

import (
	"context"
	"testing"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/service"
	"ridedispatch/internal/testutil"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// testEnv wires every dispatch component over in-memory stores.
type testEnv struct {
	clock     *testutil.FakeClock
	drivers   *testutil.MockDriverRepository
	rides     *testutil.MockRideRequestRepository
	offers    *testutil.MockFareOfferRepository
	riders    *testutil.MockRiderRepository
	locations *testutil.MockLocationStore
	lock      *testutil.MockLockStore
	cache     *testutil.MockDriverCache
	channel   *testutil.RecordingChannel
	publisher *testutil.MockEventPublisher

	registry   *service.DriverRegistry
	geoIndex   *service.GeoIndex
	dispatch   *service.DispatchEngine
	resolution *service.OfferResolutionEngine
	rideSvc    *service.RideService
	sweeper    *service.ExpirySweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		clock:     testutil.NewFakeClock(t0),
		drivers:   testutil.NewMockDriverRepository(),
		rides:     testutil.NewMockRideRequestRepository(),
		riders:    testutil.NewMockRiderRepository(),
		locations: testutil.NewMockLocationStore(),
		lock:      testutil.NewMockLockStore(),
		cache:     testutil.NewMockDriverCache(),
		channel:   testutil.NewRecordingChannel(),
		publisher: testutil.NewMockEventPublisher(),
	}
	e.offers = testutil.NewMockFareOfferRepository(e.rides)

	notifications := service.NewNotificationService(e.channel, nil)

	e.registry = service.NewDriverRegistry(service.DriverRegistryDeps{
		Repo:              e.drivers,
		Locations:         e.locations,
		Cache:             e.cache,
		LocationPublisher: e.publisher,
		Clock:             e.clock,
	})
	e.geoIndex = service.NewGeoIndex(e.locations, e.registry, e.clock, 0)
	e.dispatch = service.NewDispatchEngine(service.DispatchEngineDeps{
		Rides:         e.rides,
		Riders:        e.riders,
		GeoIndex:      e.geoIndex,
		Lock:          e.lock,
		Notifications: notifications,
		Fare:          service.FarePolicy{BaseFare: 50, PerKm: 25, PerMinute: 5, MinimumFare: 100},
		Clock:         e.clock,
	})
	e.resolution = service.NewOfferResolutionEngine(service.OfferResolutionEngineDeps{
		Rides:         e.rides,
		FareOffers:    e.offers,
		Drivers:       e.registry,
		Notifications: notifications,
		Publisher:     e.publisher,
		Clock:         e.clock,
	})
	e.rideSvc = service.NewRideService(service.RideServiceDeps{
		Rides:         e.rides,
		Dispatcher:    e.dispatch,
		Notifications: notifications,
		Publisher:     e.publisher,
		Clock:         e.clock,
	})
	e.sweeper = service.NewExpirySweeper(e.rides, notifications, e.publisher, e.clock, time.Minute, nil)
	return e
}

// onlineDriver registers an approved driver that is online at lat/lng.
func (e *testEnv) onlineDriver(t *testing.T, id string, lat, lng float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.registry.SetApproved(ctx, id, true); err != nil {
		t.Fatalf("approve %s: %v", id, err)
	}
	if _, err := e.registry.UpdateLocation(ctx, id, lat, lng); err != nil {
		t.Fatalf("locate %s: %v", id, err)
	}
	if _, err := e.registry.SetOnline(ctx, id, true); err != nil {
		t.Fatalf("online %s: %v", id, err)
	}
}

// createRequest creates and dispatches a request from riderID at pickup.
func (e *testEnv) createRequest(t *testing.T, riderID string, pickup domain.Location, fare float64) *service.CreateRideRequestResult {
	t.Helper()
	res, err := e.rideSvc.CreateRideRequest(context.Background(), service.CreateRideRequestInput{
		RiderID:     riderID,
		Pickup:      pickup,
		Destination: domain.Location{Lat: pickup.Lat + 0.05, Lng: pickup.Lng + 0.05},
		OfferedFare: fare,
	})
	if err != nil {
		t.Fatalf("create ride request: %v", err)
	}
	return res
}

func ptr(f float64) *float64 { return &f }
