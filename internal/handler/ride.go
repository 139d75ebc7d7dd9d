package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/service"
)

// RideHandler handles HTTP requests for ride requests.
type RideHandler struct {
	rideService *service.RideService
	resolution  *service.OfferResolutionEngine
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, resolution *service.OfferResolutionEngine) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		resolution:  resolution,
	}
}

// LocationBody is a coordinate pair with an optional address.
type LocationBody struct {
	Lat     *float64 `json:"lat" binding:"required"`
	Lng     *float64 `json:"lng" binding:"required"`
	Address string   `json:"address"`
}

func (l LocationBody) toDomain() domain.Location {
	return domain.Location{Lat: *l.Lat, Lng: *l.Lng, Address: l.Address}
}

// CreateRideRequestBody is the HTTP request body for creating a ride request.
type CreateRideRequestBody struct {
	Pickup         LocationBody `json:"pickup"`
	Destination    LocationBody `json:"destination"`
	OfferedFare    float64      `json:"offered_fare"`
	SearchRadiusKm float64      `json:"search_radius_km,omitempty"`
	VehicleType    string       `json:"vehicle_type,omitempty"`
	PaymentMethod  string       `json:"payment_method,omitempty"` // cash, card, wallet
	Notes          string       `json:"notes,omitempty"`
}

// CreateRideRequestResponse is the HTTP response for creating a ride request.
type CreateRideRequestResponse struct {
	RideRequest     RideRequestResponse `json:"ride_request"`
	DispatchOutcome string              `json:"dispatch_outcome"`
	CandidateCount  int                 `json:"candidate_count"`
}

// RespondBody is the HTTP request body for a driver's response.
type RespondBody struct {
	Action             string   `json:"action" binding:"required"`
	CounterOfferAmount *float64 `json:"counter_offer_amount,omitempty"`
}

// RespondResponse is the HTTP response for a driver's response.
type RespondResponse struct {
	RideRequest RideRequestResponse `json:"ride_request"`
	Candidate   *CandidateResponse  `json:"candidate,omitempty"`
}

// AcceptCounterResponse is the HTTP response for accepting a counter offer.
type AcceptCounterResponse struct {
	RideRequest RideRequestResponse `json:"ride_request"`
	DriverID    string              `json:"driver_id"`
	FinalPrice  float64             `json:"final_price"`
}

// CancelBody is the optional HTTP request body for cancelling a ride request.
type CancelBody struct {
	Reason string `json:"reason,omitempty"`
}

// Create handles POST /v1/ride-requests
func (h *RideHandler) Create(c *gin.Context) {
	var body CreateRideRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.CreateRideRequest(c.Request.Context(), service.CreateRideRequestInput{
		RiderID:        caller(c).UserID,
		Pickup:         body.Pickup.toDomain(),
		Destination:    body.Destination.toDomain(),
		OfferedFare:    body.OfferedFare,
		SearchRadiusKm: body.SearchRadiusKm,
		VehicleType:    body.VehicleType,
		PaymentMethod:  body.PaymentMethod,
		Notes:          body.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateRideRequestResponse{
		RideRequest:     toRideRequestResponse(result.Request),
		DispatchOutcome: string(result.Dispatch.Outcome),
		CandidateCount:  result.Dispatch.CandidateCount,
	})
}

// Get handles GET /v1/ride-requests/:id
func (h *RideHandler) Get(c *gin.Context) {
	req, err := h.rideService.GetRideRequest(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideRequestResponse(req))
}

// ListForDriver handles GET /v1/drivers/me/ride-requests
func (h *RideHandler) ListForDriver(c *gin.Context) {
	reqs, err := h.rideService.ListOpenRequestsForDriver(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		response = append(response, toRideRequestResponse(r))
	}
	respondJSON(c, http.StatusOK, response)
}

// Respond handles POST /v1/ride-requests/:id/respond
func (h *RideHandler) Respond(c *gin.Context) {
	var body RespondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	action, err := service.ParseRespondAction(body.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.resolution.Respond(c.Request.Context(), c.Param("id"), caller(c).UserID, action, body.CounterOfferAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	response := RespondResponse{RideRequest: toRideRequestResponse(result.Request)}
	if result.Candidate != nil {
		cr := toCandidateResponse(*result.Candidate)
		response.Candidate = &cr
	}
	respondJSON(c, http.StatusOK, response)
}

// AcceptCounterOffer handles POST /v1/ride-requests/:id/counter-offers/:driverId/accept
func (h *RideHandler) AcceptCounterOffer(c *gin.Context) {
	result, err := h.resolution.AcceptCounterOffer(c.Request.Context(), c.Param("id"), caller(c).UserID, c.Param("driverId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, AcceptCounterResponse{
		RideRequest: toRideRequestResponse(result.Request),
		DriverID:    result.DriverID,
		FinalPrice:  result.FinalPrice,
	})
}

// Cancel handles POST /v1/ride-requests/:id/cancel
func (h *RideHandler) Cancel(c *gin.Context) {
	var body CancelBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	req, err := h.rideService.CancelRequest(c.Request.Context(), c.Param("id"), caller(c).UserID, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideRequestResponse(req))
}
