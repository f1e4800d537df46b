// README: Offer handlers: drivers submit fares, customers list and accept.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/offer"
	"campusride/internal/modules/profile"
	"campusride/internal/types"
)

type OfferHandler struct {
	offers   *offer.Service
	profiles *profile.Directory
	currency string
}

func NewOfferHandler(offers *offer.Service, profiles *profile.Directory, currency string) *OfferHandler {
	return &OfferHandler{offers: offers, profiles: profiles, currency: currency}
}

type vehicleReq struct {
	Brand string `json:"brand"`
	Color string `json:"color"`
	Plate string `json:"plate" binding:"required"`
	Type  string `json:"type"`
}

type submitOfferReq struct {
	Fare    float64    `json:"fare" binding:"required,gt=0"`
	Vehicle vehicleReq `json:"vehicle" binding:"required"`
}

func (h *OfferHandler) Submit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitOfferReq
	if !bindJSON(c, &req) {
		return
	}
	driverID := callerID(c)
	o, err := h.offers.Submit(c.Request.Context(), offer.SubmitCommand{
		BookingID:  id,
		DriverID:   driverID,
		DriverName: h.profiles.DisplayName(c.Request.Context(), driverID),
		Fare:       types.FromMajor(req.Fare, h.currency),
		Vehicle: offer.Vehicle{
			Brand: req.Vehicle.Brand,
			Color: req.Vehicle.Color,
			Plate: req.Vehicle.Plate,
			Type:  req.Vehicle.Type,
		},
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OfferHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.offers.ListFor(c.Request.Context(), id, callerActor(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offers": list})
}

func (h *OfferHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	offerID, ok := pathID(c, "offerId")
	if !ok {
		return
	}
	b, err := h.offers.Accept(c.Request.Context(), offer.AcceptCommand{
		BookingID:  id,
		OfferID:    offerID,
		CustomerID: callerID(c),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
