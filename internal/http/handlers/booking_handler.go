// README: Booking handlers for create, lookup, status changes, payment and completion.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/booking"
	"campusride/internal/modules/settlement"
	"campusride/internal/types"
)

type BookingHandler struct {
	bookings   *booking.Service
	settlement *settlement.Service
}

func NewBookingHandler(bookings *booking.Service, settlement *settlement.Service) *BookingHandler {
	return &BookingHandler{bookings: bookings, settlement: settlement}
}

// A 0 coordinate binds; only a missing field is rejected.
type placeReq struct {
	Label string   `json:"label" binding:"required"`
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
}

func (p placeReq) place() booking.Place {
	return booking.Place{Label: p.Label, Point: types.Point{Lat: *p.Lat, Lng: *p.Lng}}
}

type createBookingReq struct {
	Pickup        placeReq `json:"pickup" binding:"required"`
	Dropoff       placeReq `json:"dropoff" binding:"required"`
	SeatType      string   `json:"seatType" binding:"required"`
	PaymentMethod string   `json:"paymentMethod"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		CustomerID:    callerID(c),
		Pickup:        req.Pickup.place(),
		Dropoff:       req.Dropoff.place(),
		SeatType:      req.SeatType,
		PaymentMethod: booking.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, b)
}

func (h *BookingHandler) Active(c *gin.Context) {
	b, err := h.bookings.ActiveForCustomer(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Mine(c *gin.Context) {
	list, err := h.bookings.ListForCustomer(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}

// Open lists bookings still collecting offers.
func (h *BookingHandler) Open(c *gin.Context) {
	list, err := h.bookings.ListOpen(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.GetFor(c.Request.Context(), id, callerActor(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusReq
	if !bindJSON(c, &req) {
		return
	}
	to, err := booking.ParseStatus(req.Status)
	if err != nil {
		writeAppError(c, err)
		return
	}
	b, err := h.bookings.UpdateStatus(c.Request.Context(), booking.StatusCommand{
		BookingID: id,
		To:        to,
		Actor:     callerActor(c),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Arrived(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.MarkDriverArrived(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

// ConfirmPayment is the customer marking a QR payment as made.
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.settlement.ConfirmPayment(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	j, err := h.settlement.Complete(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, j)
}

func (h *BookingHandler) Journey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	j, err := h.settlement.GetJourneyFor(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, j)
}
