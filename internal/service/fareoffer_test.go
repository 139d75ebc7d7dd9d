package service_test

import (
	"context"
	"errors"
	"testing"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

func TestSubmitFareOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := dispatchedRequest(t, env, 100, "driver-a", "driver-b")

	first, err := env.resolution.SubmitFareOffer(ctx, req.ID, "driver-a", 140)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Status != domain.FareOfferPending || first.Price != 140 {
		t.Errorf("unexpected offer: %+v", first)
	}

	revised, err := env.resolution.SubmitFareOffer(ctx, req.ID, "driver-a", 130)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if revised.ID != first.ID || revised.Price != 130 {
		t.Errorf("resubmitting should revise the pending offer, got %+v", revised)
	}

	offers, err := env.resolution.ListFareOffers(ctx, req.ID, "rider-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(offers) != 1 {
		t.Errorf("expected one pending offer per driver, got %d", len(offers))
	}
	if env.channel.Count(service.EventFareOffer) != 2 {
		t.Errorf("expected the rider to hear about both submissions, got %d", env.channel.Count(service.EventFareOffer))
	}

	tests := []struct {
		name     string
		driverID string
		price    float64
		wantErr  error
	}{
		{name: "not a candidate", driverID: "driver-z", price: 150, wantErr: service.ErrNotACandidate},
		{name: "zero price", driverID: "driver-b", price: 0, wantErr: service.ErrInvalidOffer},
		{name: "empty driver", driverID: "", price: 150, wantErr: service.ErrInvalidDriverID},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.resolution.SubmitFareOffer(ctx, req.ID, tc.driverID, tc.price)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRespondToFareOffer_Accept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := dispatchedRequest(t, env, 100, "driver-a", "driver-b")

	offerA, err := env.resolution.SubmitFareOffer(ctx, req.ID, "driver-a", 140)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	offerB, err := env.resolution.SubmitFareOffer(ctx, req.ID, "driver-b", 125)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}

	res, err := env.resolution.RespondToFareOffer(ctx, offerB.ID, "rider-1", true)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if res.Offer.Status != domain.FareOfferAccepted {
		t.Errorf("expected accepted offer, got %s", res.Offer.Status)
	}
	if res.Request.AcceptedByDriverID != "driver-b" || *res.Request.FinalPrice != 125 {
		t.Errorf("expected driver-b at 125, got %s at %v", res.Request.AcceptedByDriverID, res.Request.FinalPrice)
	}

	stored, err := env.offers.GetByID(ctx, offerA.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.Status != domain.FareOfferRejected {
		t.Errorf("competing offer should be rejected, got %s", stored.Status)
	}
	if c := env.rides.GetRequest(req.ID).Candidate("driver-a"); c.Status != domain.CandidateRejected {
		t.Errorf("losing candidate should be rejected, got %s", c.Status)
	}

	if _, err := env.resolution.RespondToFareOffer(ctx, offerA.ID, "rider-1", true); !errors.Is(err, service.ErrStaleRequest) {
		t.Errorf("expected ErrStaleRequest after the request closed, got %v", err)
	}
}

func TestRespondToFareOffer_Reject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := dispatchedRequest(t, env, 100, "driver-a")

	offer, err := env.resolution.SubmitFareOffer(ctx, req.ID, "driver-a", 140)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := env.resolution.RespondToFareOffer(ctx, offer.ID, "rider-2", false); !errors.Is(err, service.ErrNotRequestOwner) {
		t.Errorf("expected ErrNotRequestOwner, got %v", err)
	}

	res, err := env.resolution.RespondToFareOffer(ctx, offer.ID, "rider-1", false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Offer.Status != domain.FareOfferRejected || res.Request != nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := lastEvent(env, "driver-a"); got != service.EventFareOfferRejected {
		t.Errorf("expected fare_offer_rejected for the driver, got %s", got)
	}
	if stored := env.rides.GetRequest(req.ID); !stored.Status.IsOpen() {
		t.Errorf("rejecting an offer must keep the request open, got %s", stored.Status)
	}

	if _, err := env.resolution.RespondToFareOffer(ctx, offer.ID, "rider-1", true); !errors.Is(err, service.ErrFareOfferNotPending) {
		t.Errorf("expected ErrFareOfferNotPending, got %v", err)
	}
	if _, err := env.resolution.RespondToFareOffer(ctx, "missing", "rider-1", true); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFareOffers_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	req := dispatchedRequest(t, env, 100, "driver-a")

	if _, err := env.resolution.ListFareOffers(context.Background(), req.ID, "rider-2"); !errors.Is(err, service.ErrNotRequestOwner) {
		t.Errorf("expected ErrNotRequestOwner, got %v", err)
	}
}
