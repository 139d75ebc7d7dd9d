package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
	"ridedispatch/internal/testutil"
)

func TestDriverRegistry_GetUnknownDriver(t *testing.T) {
	env := newTestEnv(t)

	driver, err := env.registry.Get(context.Background(), "driver-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver.Online || driver.Available || driver.Approved || driver.HasPosition() {
		t.Errorf("expected default offline state, got %+v", driver)
	}
	if env.drivers.GetDriver("driver-new") != nil {
		t.Error("reading an unknown driver must not persist it")
	}
}

func TestDriverRegistry_SetOnlineMaintainsGeoIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.UpdateLocation(ctx, "driver-1", 12.97, 77.59); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if env.locations.HasLocation("driver-1") {
		t.Fatal("offline driver must not be in the geo index")
	}

	driver, err := env.registry.SetOnline(ctx, "driver-1", true)
	if err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !driver.Online || !driver.Available {
		t.Errorf("expected online and available, got %+v", driver)
	}
	if !env.locations.HasLocation("driver-1") {
		t.Error("expected known position to be indexed when going online")
	}

	driver, err = env.registry.SetOnline(ctx, "driver-1", false)
	if err != nil {
		t.Fatalf("set offline: %v", err)
	}
	if driver.Online || driver.Available {
		t.Errorf("expected offline and unavailable, got %+v", driver)
	}
	if env.locations.HasLocation("driver-1") {
		t.Error("expected driver removed from geo index when going offline")
	}
}

func TestDriverRegistry_UpdateLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.onlineDriver(t, "driver-1", 1, 1)

	driver, err := env.registry.UpdateLocation(ctx, "driver-1", 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver.Position.Lat != 2 || !driver.Online || !driver.Approved {
		t.Errorf("location ping must move the driver and keep flags, got %+v", driver)
	}
	if len(env.publisher.Locations()) != 2 {
		t.Errorf("expected every ping on the location stream, got %d", len(env.publisher.Locations()))
	}

	tests := []struct {
		name     string
		driverID string
		lat, lng float64
		wantErr  error
	}{
		{name: "empty driver", driverID: "", lat: 1, lng: 1, wantErr: service.ErrInvalidDriverID},
		{name: "latitude out of range", driverID: "driver-1", lat: 91, lng: 1, wantErr: service.ErrInvalidLocation},
		{name: "longitude out of range", driverID: "driver-1", lat: 1, lng: -181, wantErr: service.ErrInvalidLocation},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.registry.UpdateLocation(ctx, tc.driverID, tc.lat, tc.lng)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDriverRegistry_ApprovalAndAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.onlineDriver(t, "driver-1", 1, 1)

	eligible, err := env.registry.IsEligibleCandidate(ctx, "driver-1")
	if err != nil || !eligible {
		t.Fatalf("expected eligible driver, got %v, %v", eligible, err)
	}

	if err := env.registry.MarkBusy(ctx, "driver-1"); err != nil {
		t.Fatalf("mark unavailable: %v", err)
	}
	d := env.drivers.GetDriver("driver-1")
	if !d.Online || d.Available {
		t.Errorf("busy driver should stay online but unavailable, got %+v", d)
	}

	if _, err := env.registry.SetOnline(ctx, "driver-1", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	driver, err := env.registry.SetApproved(ctx, "driver-1", false)
	if err != nil {
		t.Fatalf("revoke approval: %v", err)
	}
	if driver.Approved || driver.Available {
		t.Errorf("revoking approval must clear available, got %+v", driver)
	}

	eligible, err = env.registry.IsEligibleCandidate(ctx, "driver-1")
	if err != nil || eligible {
		t.Errorf("expected ineligible driver, got %v, %v", eligible, err)
	}
}

func TestDriverRegistry_GetManyReadsThroughCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.onlineDriver(t, "driver-1", 1, 1)

	states, err := env.registry.GetMany(ctx, []string{"driver-1", "driver-missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(states) != 1 || states["driver-1"] == nil {
		t.Fatalf("expected only driver-1, got %v", states)
	}
	if !env.cache.Has("driver-1") {
		t.Error("expected loaded driver to be cached")
	}

	if _, err := env.registry.SetOnline(ctx, "driver-1", false); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	if env.cache.Has("driver-1") {
		t.Error("expected cache entry invalidated on change")
	}

	env.cache.GetBatchError = errors.New("redis down")
	states, err = env.registry.GetMany(ctx, []string{"driver-1"})
	if err != nil {
		t.Fatalf("cache failure must fall back to the repository: %v", err)
	}
	if states["driver-1"].Online {
		t.Error("expected fresh state from the repository")
	}
}

// ──────────────────────────────────────────────
// GOING ONLINE WITHOUT A USABLE POSITION
// ──────────────────────────────────────────────

func TestDriverRegistry_SetOnlineRequiresPosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.SetApproved(ctx, "driver-1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	driver, err := env.registry.SetOnline(ctx, "driver-1", true)
	if err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !driver.Online || driver.Available {
		t.Errorf("expected online but unavailable without a position, got %+v", driver)
	}
	eligible, err := env.registry.IsEligibleCandidate(ctx, "driver-1")
	if err != nil || eligible {
		t.Errorf("expected ineligible without a position, got %v, %v", eligible, err)
	}
	if env.locations.HasLocation("driver-1") {
		t.Error("driver without a position must not be indexed")
	}

	// A ping alone does not change flags.
	driver, err = env.registry.UpdateLocation(ctx, "driver-1", 1, 1)
	if err != nil {
		t.Fatalf("update location: %v", err)
	}
	if driver.Available {
		t.Error("location ping must not make the driver available")
	}

	driver, err = env.registry.SetOnline(ctx, "driver-1", true)
	if err != nil {
		t.Fatalf("set online again: %v", err)
	}
	if !driver.Online || !driver.Available {
		t.Errorf("expected available once a position is known, got %+v", driver)
	}
	eligible, err = env.registry.IsEligibleCandidate(ctx, "driver-1")
	if err != nil || !eligible {
		t.Errorf("expected eligible, got %v, %v", eligible, err)
	}
}

func TestDriverRegistry_SetOnlineWithStalePosition(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(t0)
	drivers := testutil.NewMockDriverRepository()
	registry := service.NewDriverRegistry(service.DriverRegistryDeps{
		Repo:               drivers,
		Locations:          testutil.NewMockLocationStore(),
		Clock:              clock,
		LocationStaleAfter: 5 * time.Minute,
	})

	if _, err := registry.SetApproved(ctx, "driver-1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := registry.UpdateLocation(ctx, "driver-1", 1, 1); err != nil {
		t.Fatalf("update location: %v", err)
	}
	clock.Advance(10 * time.Minute)

	driver, err := registry.SetOnline(ctx, "driver-1", true)
	if err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !driver.Online || driver.Available {
		t.Errorf("expected unavailable with a stale position, got %+v", driver)
	}

	if _, err := registry.UpdateLocation(ctx, "driver-1", 1, 1); err != nil {
		t.Fatalf("update location: %v", err)
	}
	driver, err = registry.SetOnline(ctx, "driver-1", true)
	if err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !driver.Available {
		t.Errorf("expected available after a fresh ping, got %+v", driver)
	}

	// Eligibility is the three flags only; freshness is the geo index's concern.
	clock.Advance(time.Hour)
	eligible, err := registry.IsEligibleCandidate(ctx, "driver-1")
	if err != nil || !eligible {
		t.Errorf("expected flags alone to decide eligibility, got %v, %v", eligible, err)
	}
}

func TestDriverRegistry_MarkBusyKeepsOnlineFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.onlineDriver(t, "driver-1", 1, 1)
	if _, err := env.registry.SetOnline(ctx, "driver-1", false); err != nil {
		t.Fatalf("set offline: %v", err)
	}

	if err := env.registry.MarkBusy(ctx, "driver-1"); err != nil {
		t.Fatalf("mark busy: %v", err)
	}
	d := env.drivers.GetDriver("driver-1")
	if d.Online || d.Available {
		t.Errorf("marking busy must not bring an offline driver back, got %+v", d)
	}
	if env.drivers.SetAvailabilityCallCount != 2 {
		t.Errorf("mark busy must not rewrite the online flag, got %d availability writes", env.drivers.SetAvailabilityCallCount)
	}

	if err := env.registry.MarkBusy(ctx, "driver-unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown driver, got %v", err)
	}
}
