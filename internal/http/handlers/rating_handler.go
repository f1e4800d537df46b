// README: Rating handlers: customers rate completed rides, anyone reads driver stats.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/rating"
)

type RatingHandler struct {
	ratings *rating.Service
}

func NewRatingHandler(svc *rating.Service) *RatingHandler {
	return &RatingHandler{ratings: svc}
}

type submitRatingReq struct {
	Rating  *float64 `json:"rating" binding:"required"`
	Comment string   `json:"comment"`
}

func (h *RatingHandler) Submit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitRatingReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.ratings.SubmitRating(c.Request.Context(), rating.SubmitCommand{
		BookingID:  id,
		CustomerID: callerID(c),
		Rating:     *req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RatingHandler) DriverStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.ratings.DriverStats(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, stats)
}

func (h *RatingHandler) DriverRatings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.ratings.ListForDriver(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ratings": list})
}
