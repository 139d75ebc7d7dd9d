package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/middleware"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// caller returns the principal set by middleware.Principal.
func caller(c *gin.Context) domain.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidRideRequestID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidPickupLocation),
		errors.Is(err, service.ErrInvalidDestinationLocation),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidSearchRadius),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrInvalidOffer):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrStaleRequest),
		errors.Is(err, service.ErrNoCounterOffer),
		errors.Is(err, service.ErrFareOfferNotPending),
		errors.Is(err, service.ErrDispatchInProgress),
		errors.Is(err, service.ErrDriverUnavailable),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	// Forbidden errors
	case errors.Is(err, service.ErrNotACandidate),
		errors.Is(err, service.ErrNotRequestOwner):
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Response bodies
// ────────────────────────────────────────────────────────────────────────────

// CandidateResponse is one driver's entry on a ride request.
type CandidateResponse struct {
	DriverID             string     `json:"driver_id"`
	DistanceFromPickupKm float64    `json:"distance_from_pickup_km"`
	EstimatedArrivalMin  int        `json:"estimated_arrival_min"`
	CounterOfferPrice    *float64   `json:"counter_offer_price,omitempty"`
	Status               string     `json:"status"`
	ViewedAt             time.Time  `json:"viewed_at"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
}

// RideRequestResponse is the HTTP form of a ride request.
type RideRequestResponse struct {
	ID                    string              `json:"id"`
	RiderID               string              `json:"rider_id"`
	Pickup                domain.Location     `json:"pickup"`
	Destination           domain.Location     `json:"destination"`
	RequestedPrice        float64             `json:"requested_price"`
	SuggestedPrice        float64             `json:"suggested_price"`
	FinalPrice            *float64            `json:"final_price,omitempty"`
	DistanceKm            float64             `json:"distance_km"`
	EstimatedDurationMin  int                 `json:"estimated_duration_min"`
	SearchRadiusKm        float64             `json:"search_radius_km"`
	Status                string              `json:"status"`
	ExpiresAt             time.Time           `json:"expires_at"`
	CreatedAt             time.Time           `json:"created_at"`
	AcceptedByDriverID    string              `json:"accepted_by_driver_id,omitempty"`
	AcceptedAt            *time.Time          `json:"accepted_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason          string              `json:"cancel_reason,omitempty"`
	VehicleTypePreference string              `json:"vehicle_type_preference,omitempty"`
	PaymentMethod         string              `json:"payment_method"`
	Notes                 string              `json:"notes,omitempty"`
	Candidates            []CandidateResponse `json:"candidate_drivers"`
}

// FareOfferResponse is the HTTP form of a fare offer.
type FareOfferResponse struct {
	ID            string     `json:"id"`
	RideRequestID string     `json:"ride_request_id"`
	DriverID      string     `json:"driver_id"`
	Price         float64    `json:"price"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// DriverStateResponse is the HTTP form of a driver's dispatch state.
type DriverStateResponse struct {
	DriverID      string     `json:"driver_id"`
	Lat           *float64   `json:"lat,omitempty"`
	Lng           *float64   `json:"lng,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
	Online        bool       `json:"online"`
	Available     bool       `json:"available"`
	Approved      bool       `json:"approved"`
}

func toCandidateResponse(c domain.CandidateEntry) CandidateResponse {
	return CandidateResponse{
		DriverID:             c.DriverID,
		DistanceFromPickupKm: c.DistanceFromPickupKm,
		EstimatedArrivalMin:  c.EstimatedArrivalMin,
		CounterOfferPrice:    c.CounterOfferPrice,
		Status:               string(c.Status),
		ViewedAt:             c.ViewedAt,
		RespondedAt:          c.RespondedAt,
	}
}

func toRideRequestResponse(r *domain.RideRequest) RideRequestResponse {
	candidates := make([]CandidateResponse, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		candidates = append(candidates, toCandidateResponse(c))
	}
	return RideRequestResponse{
		ID:                    r.ID,
		RiderID:               r.RiderID,
		Pickup:                r.Pickup,
		Destination:           r.Destination,
		RequestedPrice:        r.RequestedPrice,
		SuggestedPrice:        r.SuggestedPrice,
		FinalPrice:            r.FinalPrice,
		DistanceKm:            r.DistanceKm,
		EstimatedDurationMin:  r.EstimatedDurationMin,
		SearchRadiusKm:        r.SearchRadiusKm,
		Status:                string(r.Status),
		ExpiresAt:             r.ExpiresAt,
		CreatedAt:             r.CreatedAt,
		AcceptedByDriverID:    r.AcceptedByDriverID,
		AcceptedAt:            r.AcceptedAt,
		CancelledAt:           r.CancelledAt,
		CancelReason:          r.CancelReason,
		VehicleTypePreference: r.VehicleTypePreference,
		PaymentMethod:         string(r.PaymentMethod),
		Notes:                 r.Notes,
		Candidates:            candidates,
	}
}

func toFareOfferResponse(o *domain.FareOffer) FareOfferResponse {
	return FareOfferResponse{
		ID:            o.ID,
		RideRequestID: o.RideRequestID,
		DriverID:      o.DriverID,
		Price:         o.Price,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		RespondedAt:   o.RespondedAt,
	}
}

func toDriverStateResponse(d *domain.DriverState) DriverStateResponse {
	resp := DriverStateResponse{
		DriverID:  d.DriverID,
		Online:    d.Online,
		Available: d.Available,
		Approved:  d.Approved,
	}
	if d.HasPosition() {
		lat, lng, at := d.Position.Lat, d.Position.Lng, d.LastUpdatedAt
		resp.Lat, resp.Lng, resp.LastUpdatedAt = &lat, &lng, &at
	}
	return resp
}
