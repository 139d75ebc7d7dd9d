package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/service"
)

// OfferHandler handles HTTP requests for fare offers.
type OfferHandler struct {
	resolution *service.OfferResolutionEngine
}

// NewOfferHandler creates a new OfferHandler.
func NewOfferHandler(resolution *service.OfferResolutionEngine) *OfferHandler {
	return &OfferHandler{resolution: resolution}
}

// SubmitFareOfferRequest is the HTTP request body for a driver's fare offer.
type SubmitFareOfferRequest struct {
	Price float64 `json:"price"`
}

// RespondFareOfferRequest is the HTTP request body for a rider's decision.
type RespondFareOfferRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// RespondFareOfferResponse is the HTTP response for a rider's decision.
type RespondFareOfferResponse struct {
	Offer       FareOfferResponse    `json:"offer"`
	RideRequest *RideRequestResponse `json:"ride_request,omitempty"`
}

// Submit handles POST /v1/ride-requests/:id/offers
func (h *OfferHandler) Submit(c *gin.Context) {
	var req SubmitFareOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	offer, err := h.resolution.SubmitFareOffer(c.Request.Context(), c.Param("id"), caller(c).UserID, req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toFareOfferResponse(offer))
}

// List handles GET /v1/ride-requests/:id/offers
func (h *OfferHandler) List(c *gin.Context) {
	offers, err := h.resolution.ListFareOffers(c.Request.Context(), c.Param("id"), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]FareOfferResponse, 0, len(offers))
	for _, o := range offers {
		response = append(response, toFareOfferResponse(o))
	}
	respondJSON(c, http.StatusOK, response)
}

// Respond handles POST /v1/offers/:id/respond
func (h *OfferHandler) Respond(c *gin.Context) {
	var req RespondFareOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "accept is required")
		return
	}

	result, err := h.resolution.RespondToFareOffer(c.Request.Context(), c.Param("id"), caller(c).UserID, *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}

	response := RespondFareOfferResponse{Offer: toFareOfferResponse(result.Offer)}
	if result.Request != nil {
		rr := toRideRequestResponse(result.Request)
		response.RideRequest = &rr
	}
	respondJSON(c, http.StatusOK, response)
}
