package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	registry *service.DriverRegistry
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(registry *service.DriverRegistry) *DriverHandler {
	return &DriverHandler{registry: registry}
}

// SetOnlineRequest is the HTTP request body for toggling availability.
type SetOnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// SetApprovalRequest is the HTTP request body for approving a driver.
type SetApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// GetMe handles GET /v1/drivers/me
func (h *DriverHandler) GetMe(c *gin.Context) {
	driver, err := h.registry.Get(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverStateResponse(driver))
}

// SetOnline handles POST /v1/drivers/me/online
func (h *DriverHandler) SetOnline(c *gin.Context) {
	var req SetOnlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "online is required")
		return
	}

	driver, err := h.registry.SetOnline(c.Request.Context(), caller(c).UserID, *req.Online)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverStateResponse(driver))
}

// UpdateLocation handles POST /v1/drivers/me/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "lat and lng are required")
		return
	}

	driver, err := h.registry.UpdateLocation(c.Request.Context(), caller(c).UserID, *req.Lat, *req.Lng)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverStateResponse(driver))
}

// SetApproval handles POST /v1/admin/drivers/:id/approval
func (h *DriverHandler) SetApproval(c *gin.Context) {
	var req SetApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approved is required")
		return
	}

	driver, err := h.registry.SetApproved(c.Request.Context(), c.Param("id"), *req.Approved)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverStateResponse(driver))
}
