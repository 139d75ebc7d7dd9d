package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

// RiderHandler serves the calling rider's display profile.
type RiderHandler struct {
	riderRepo repository.RiderRepository
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(riderRepo repository.RiderRepository) *RiderHandler {
	return &RiderHandler{riderRepo: riderRepo}
}

// UpdateProfileRequest is the HTTP request body for updating a rider profile.
type UpdateProfileRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
}

// RiderResponse is the HTTP response for rider data.
type RiderResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetMe handles GET /v1/riders/me
func (h *RiderHandler) GetMe(c *gin.Context) {
	rider, err := h.riderRepo.GetByID(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RiderResponse{ID: rider.ID, Name: rider.Name, Phone: rider.Phone, CreatedAt: rider.CreatedAt})
}

// UpdateMe handles PUT /v1/riders/me
func (h *RiderHandler) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	ctx := c.Request.Context()
	riderID := caller(c).UserID

	createdAt := time.Now().UTC()
	existing, err := h.riderRepo.GetByID(ctx, riderID)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		respondError(c, err)
		return
	}

	rider := &domain.Rider{ID: riderID, Name: req.Name, Phone: req.Phone, CreatedAt: createdAt}
	if err := h.riderRepo.Upsert(ctx, rider); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RiderResponse{ID: rider.ID, Name: rider.Name, Phone: rider.Phone, CreatedAt: rider.CreatedAt})
}
