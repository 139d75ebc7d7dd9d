package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/service"
	"ridedispatch/internal/testutil"
)

func TestExpirySweeper_SweepOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := dispatchedRequest(t, env, 100, "driver-a")
	offer, err := env.resolution.SubmitFareOffer(ctx, old.ID, "driver-a", 120)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	fresh := env.createRequest(t, "rider-2", gilgit, 100).Request

	env.clock.Advance(6 * time.Minute)

	n, err := env.sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired request, got %d", n)
	}

	if got := env.rides.GetRequest(old.ID).Status; got != domain.RideRequestExpired {
		t.Errorf("expected old request expired, got %s", got)
	}
	if got := env.rides.GetRequest(fresh.ID).Status; !got.IsOpen() {
		t.Errorf("expected fresh request open, got %s", got)
	}
	stored, err := env.offers.GetByID(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.Status != domain.FareOfferRejected {
		t.Errorf("pending offers on expired requests should be rejected, got %s", stored.Status)
	}
	if got := lastEvent(env, "rider-1"); got != service.EventRideExpired {
		t.Errorf("expected ride_expired for the rider, got %s", got)
	}

	n, err = env.sweeper.SweepOnce(ctx)
	if err != nil || n != 0 {
		t.Errorf("second sweep should be a no-op, got %d, %v", n, err)
	}
}

func TestExpirySweeper_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.rides.ExpireDueError = testutil.ErrMockTimeout

	if _, err := env.sweeper.SweepOnce(context.Background()); !errors.Is(err, testutil.ErrMockTimeout) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestExpirySweeper_RunStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	sweeper := service.NewExpirySweeper(env.rides, nil, nil, env.clock, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for env.rides.ExpireDueCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never ran")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestExpirySweeper_DisabledInterval(t *testing.T) {
	env := newTestEnv(t)
	sweeper := service.NewExpirySweeper(env.rides, nil, nil, env.clock, 0, nil)

	done := make(chan struct{})
	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a zero interval should return immediately")
	}
}
