package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get ride request: %w", repository.ErrNotFound), http.StatusNotFound},
		{service.ErrInvalidOffer, http.StatusBadRequest},
		{service.ErrInvalidAction, http.StatusBadRequest},
		{service.ErrInvalidSearchRadius, http.StatusBadRequest},
		{service.ErrInvalidPaymentMethod, http.StatusBadRequest},
		{service.ErrStaleRequest, http.StatusConflict},
		{service.ErrNoCounterOffer, http.StatusConflict},
		{service.ErrFareOfferNotPending, http.StatusConflict},
		{service.ErrDispatchInProgress, http.StatusConflict},
		{service.ErrDriverUnavailable, http.StatusConflict},
		{service.ErrNotACandidate, http.StatusForbidden},
		{service.ErrNotRequestOwner, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.err.Error(), func(t *testing.T) {
			t.Parallel()
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestToDriverStateResponse(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	unlocated := toDriverStateResponse(&domain.DriverState{DriverID: "d1", Approved: true})
	if unlocated.Lat != nil || unlocated.LastUpdatedAt != nil {
		t.Errorf("expected no position before the first ping, got %+v", unlocated)
	}

	located := toDriverStateResponse(&domain.DriverState{
		DriverID:      "d1",
		Position:      &geo.Point{Lat: 31.52, Lng: 74.35},
		LastUpdatedAt: at,
		Online:        true,
		Available:     true,
	})
	if located.Lat == nil || *located.Lat != 31.52 || *located.Lng != 74.35 {
		t.Errorf("unexpected position %+v", located)
	}
	if !located.LastUpdatedAt.Equal(at) {
		t.Errorf("expected last update %v, got %v", at, located.LastUpdatedAt)
	}
}

func TestToRideRequestResponse_AlwaysListsCandidates(t *testing.T) {
	resp := toRideRequestResponse(&domain.RideRequest{ID: "r1", Status: domain.RideRequestSearching})
	if resp.Candidates == nil {
		t.Error("expected an empty, non-nil candidate list")
	}
}
