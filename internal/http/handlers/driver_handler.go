// README: Driver handlers for availability and completed journeys.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/matching"
	"campusride/internal/modules/settlement"
	"campusride/internal/types"
)

type DriverHandler struct {
	matching   *matching.Service
	settlement *settlement.Service
}

func NewDriverHandler(matchingSvc *matching.Service, settlementSvc *settlement.Service) *DriverHandler {
	return &DriverHandler{matching: matchingSvc, settlement: settlementSvc}
}

type locationReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// UpdateLocation puts the caller into the dispatch pool at the given point.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.matching.UpdateLocation(c.Request.Context(), callerID(c), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "available"})
}

func (h *DriverHandler) GoOffline(c *gin.Context) {
	if err := h.matching.GoOffline(c.Request.Context(), callerID(c)); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "offline"})
}

func (h *DriverHandler) Journeys(c *gin.Context) {
	list, err := h.settlement.ListForDriver(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"journeys": list})
}
