package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/repository"
)

// FareOfferResult is the outcome of a rider's decision on a fare offer.
// Request is only reloaded when the offer was accepted.
type FareOfferResult struct {
	Offer   *domain.FareOffer
	Request *domain.RideRequest
}

// SubmitFareOffer records a candidate driver's price for an open request.
// Resubmitting replaces the price of the driver's pending offer.
func (e *OfferResolutionEngine) SubmitFareOffer(ctx context.Context, requestID, driverID string, price float64) (*domain.FareOffer, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureOpen(ctx, req); err != nil {
		return nil, err
	}
	if req.Candidate(driverID) == nil {
		return nil, ErrNotACandidate
	}
	if price <= 0 {
		return nil, ErrInvalidOffer
	}

	now := e.clock.Now()
	offer, err := e.fareOffers.Submit(ctx, &domain.FareOffer{
		ID:            uuid.New().String(),
		RideRequestID: req.ID,
		DriverID:      driverID,
		Price:         price,
		Status:        domain.FareOfferPending,
		CreatedAt:     now,
	}, now)
	if err != nil {
		return nil, e.mapConflict(ctx, req.ID, err)
	}

	e.notifications.NotifyFareOffer(req.RiderID, offer)
	observability.DriverResponses.WithLabelValues("fare_offer").Inc()
	e.logger.Info("fare offer submitted",
		zap.String("ride_request_id", req.ID),
		zap.String("offer_id", offer.ID),
		zap.String("driver_id", driverID),
		zap.Float64("price", offer.Price),
	)
	return offer, nil
}

// RespondToFareOffer lets the owning rider accept or reject a pending fare
// offer. Accepting resolves the request for the offer's driver at the
// offered price and rejects every other pending offer.
func (e *OfferResolutionEngine) RespondToFareOffer(ctx context.Context, offerID, riderID string, accept bool) (*FareOfferResult, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if offerID == "" {
		return nil, repository.ErrNotFound
	}

	offer, err := e.fareOffers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	req, err := e.load(ctx, offer.RideRequestID)
	if err != nil {
		return nil, err
	}
	if req.RiderID != riderID {
		return nil, ErrNotRequestOwner
	}
	if err := e.ensureOpen(ctx, req); err != nil {
		return nil, err
	}
	if offer.Status != domain.FareOfferPending {
		return nil, ErrFareOfferNotPending
	}

	now := e.clock.Now()
	if !accept {
		if err := e.fareOffers.Reject(ctx, offer.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, ErrFareOfferNotPending
			}
			return nil, err
		}
		offer.Status = domain.FareOfferRejected
		offer.RespondedAt = &now
		e.notifications.NotifyFareOfferRejected(offer)
		return &FareOfferResult{Offer: offer}, nil
	}

	res := repository.Resolution{
		DriverID:    offer.DriverID,
		FinalPrice:  offer.Price,
		At:          now,
		FareOfferID: offer.ID,
	}
	if err := e.resolve(ctx, req, res, "fare_offer"); err != nil {
		if errors.Is(err, ErrStaleRequest) && e.offerWasDecided(ctx, req.ID, offer.ID) {
			return nil, ErrFareOfferNotPending
		}
		return nil, err
	}

	offer.Status = domain.FareOfferAccepted
	offer.RespondedAt = &now
	return &FareOfferResult{Offer: offer, Request: req}, nil
}

// offerWasDecided reports whether a failed accept lost to a change of the
// offer itself while the request stayed open.
func (e *OfferResolutionEngine) offerWasDecided(ctx context.Context, requestID, offerID string) bool {
	req, err := e.rides.GetByID(ctx, requestID)
	if err != nil || !req.IsOpenAt(e.clock.Now()) {
		return false
	}
	offer, err := e.fareOffers.GetByID(ctx, offerID)
	return err == nil && offer.Status != domain.FareOfferPending
}

// ListFareOffers returns every fare offer on a request to its owner.
func (e *OfferResolutionEngine) ListFareOffers(ctx context.Context, requestID, riderID string) ([]*domain.FareOffer, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RiderID != riderID {
		return nil, ErrNotRequestOwner
	}
	return e.fareOffers.ListByRequest(ctx, req.ID)
}
