package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/service"
)

// ──────────────────────────────────────────────
// SCENARIO A: single nearby driver is notified
// ──────────────────────────────────────────────

func TestDispatch_SingleDriverAtPickup(t *testing.T) {
	env := newTestEnv(t)

	env.onlineDriver(t, "driver-1", 35.9208, 74.3144)
	if err := env.riders.Upsert(context.Background(), &domain.Rider{ID: "rider-1", Name: "Amina"}); err != nil {
		t.Fatalf("seed rider: %v", err)
	}

	res, err := env.rideSvc.CreateRideRequest(context.Background(), service.CreateRideRequestInput{
		RiderID:        "rider-1",
		Pickup:         domain.Location{Lat: 35.9208, Lng: 74.3144, Address: "Gilgit"},
		Destination:    domain.Location{Lat: 35.95, Lng: 74.35},
		OfferedFare:    300,
		SearchRadiusKm: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Dispatch.Outcome != service.DispatchNotified {
		t.Fatalf("expected notified outcome, got %s", res.Dispatch.Outcome)
	}
	if res.Dispatch.CandidateCount != 1 {
		t.Fatalf("expected 1 candidate, got %d", res.Dispatch.CandidateCount)
	}

	c := res.Dispatch.Candidates[0]
	if c.DriverID != "driver-1" || c.DistanceFromPickupKm > 1e-9 || c.EstimatedArrivalMin != 0 {
		t.Errorf("unexpected candidate entry: %+v", c)
	}
	if c.Status != domain.CandidateViewed {
		t.Errorf("expected viewed candidate, got %s", c.Status)
	}

	stored := env.rides.GetRequest(res.Request.ID)
	if stored.Status != domain.RideRequestPending {
		t.Errorf("expected pending after notifying drivers, got %s", stored.Status)
	}
	if len(stored.Candidates) != 1 {
		t.Errorf("expected candidate persisted, got %d", len(stored.Candidates))
	}

	events := env.channel.For("driver-1")
	if len(events) != 1 || events[0].Event != service.EventRideRequest {
		t.Fatalf("expected one ride_request event, got %+v", events)
	}
	payload, ok := events[0].Payload.(service.RideRequestPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", events[0].Payload)
	}
	if payload.Rider.Name != "Amina" || payload.OfferedFare != 300 || payload.Pickup.Address != "Gilgit" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if !payload.ExpiresAt.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("expected expiry 15 minutes after creation, got %v", payload.ExpiresAt)
	}
}

func TestDispatch_NoEligibleDrivers(t *testing.T) {
	env := newTestEnv(t)

	env.onlineDriver(t, "driver-far", 36.5, 74.3144)

	res := env.createRequest(t, "rider-1", domain.Location{Lat: 35.9208, Lng: 74.3144}, 200)

	if res.Dispatch.Outcome != service.DispatchNoEligibleDrivers || res.Dispatch.CandidateCount != 0 {
		t.Fatalf("expected no eligible drivers, got %+v", res.Dispatch)
	}
	stored := env.rides.GetRequest(res.Request.ID)
	if stored.Status != domain.RideRequestSearching {
		t.Errorf("request should stay open and searching, got %s", stored.Status)
	}
	if len(env.channel.All()) != 0 {
		t.Errorf("expected no notifications, got %d", len(env.channel.All()))
	}
}

func TestDispatch_TripEstimate(t *testing.T) {
	env := newTestEnv(t)

	pickup := geo.Point{Lat: 35.9208, Lng: 74.3144}
	dest := geo.Point{Lat: 35.95, Lng: 74.35}
	est := env.dispatch.EstimateTrip(context.Background(), pickup, dest)

	wantKm := geo.HaversineKm(pickup, dest)
	if math.Abs(est.DistanceKm-wantKm) > 1e-9 {
		t.Errorf("expected distance %.4f, got %.4f", wantKm, est.DistanceKm)
	}
	if est.EstimatedDurationMin != int(math.Round(wantKm*2)) {
		t.Errorf("expected duration round(km*2), got %d", est.EstimatedDurationMin)
	}
	if est.SuggestedPrice < 100 {
		t.Errorf("suggested price must respect the minimum fare, got %.2f", est.SuggestedPrice)
	}
}

func TestDispatch_CapsCandidates(t *testing.T) {
	env := newTestEnv(t)
	env.dispatch = service.NewDispatchEngine(service.DispatchEngineDeps{
		Rides:         env.rides,
		GeoIndex:      env.geoIndex,
		Clock:         env.clock,
		MaxCandidates: 3,
	})

	for i := 0; i < 5; i++ {
		env.onlineDriver(t, fmt.Sprintf("driver-%d", i), 10+float64(i)*0.001, 10)
	}

	req := openRequest("ride-cap", "rider-1", 10, 10, 5)
	env.rides.AddRequest(req)

	res, err := env.dispatch.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CandidateCount != 3 {
		t.Fatalf("expected 3 candidates, got %d", res.CandidateCount)
	}
	for i, c := range res.Candidates {
		if c.DriverID != fmt.Sprintf("driver-%d", i) {
			t.Errorf("expected nearest drivers first, position %d got %s", i, c.DriverID)
		}
	}
}

func TestDispatch_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.onlineDriver(t, "driver-1", 10, 10)

	t.Run("lock held elsewhere", func(t *testing.T) {
		req := openRequest("ride-locked", "rider-1", 10, 10, 5)
		env.rides.AddRequest(req)
		env.lock.ForceAcquireFailure = true
		defer func() { env.lock.ForceAcquireFailure = false }()

		if _, err := env.dispatch.Dispatch(ctx, req); !errors.Is(err, service.ErrDispatchInProgress) {
			t.Errorf("expected ErrDispatchInProgress, got %v", err)
		}
	})

	t.Run("closed request", func(t *testing.T) {
		req := openRequest("ride-closed", "rider-1", 10, 10, 5)
		req.Status = domain.RideRequestCancelled
		env.rides.AddRequest(req)

		if _, err := env.dispatch.Dispatch(ctx, req); !errors.Is(err, service.ErrStaleRequest) {
			t.Errorf("expected ErrStaleRequest, got %v", err)
		}
	})

	t.Run("lock released after dispatch", func(t *testing.T) {
		req := openRequest("ride-release", "rider-1", 10, 10, 5)
		env.rides.AddRequest(req)

		if _, err := env.dispatch.Dispatch(ctx, req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if env.lock.IsLocked(req.ID) {
			t.Error("expected dispatch lock released")
		}
	})

	t.Run("unknown rider falls back to id", func(t *testing.T) {
		events := env.channel.For("driver-1")
		last := events[len(events)-1].Payload.(service.RideRequestPayload)
		if last.Rider.ID != "rider-1" || last.Rider.Name != "" {
			t.Errorf("expected id-only profile, got %+v", last.Rider)
		}
	})
}

func openRequest(id, riderID string, lat, lng, radiusKm float64) *domain.RideRequest {
	return &domain.RideRequest{
		ID:             id,
		RiderID:        riderID,
		Pickup:         domain.Location{Lat: lat, Lng: lng},
		Destination:    domain.Location{Lat: lat + 0.05, Lng: lng + 0.05},
		RequestedPrice: 250,
		SearchRadiusKm: radiusKm,
		Status:         domain.RideRequestSearching,
		PaymentMethod:  domain.PaymentMethodCash,
		ExpiresAt:      t0.Add(15 * time.Minute),
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
}
