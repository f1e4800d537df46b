// README: Driver offers against an open booking.
package offer

import (
	"time"

	"campusride/internal/docstore"
	"campusride/internal/types"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusAccepted   Status = "accepted"
	StatusSuperseded Status = "superseded"
)

type Vehicle struct {
	Brand string `json:"brand" firestore:"brand"`
	Color string `json:"color" firestore:"color"`
	Plate string `json:"plate" firestore:"plate"`
	Type  string `json:"type" firestore:"type"`
}

type Offer struct {
	ID          types.ID    `json:"id" firestore:"id"`
	BookingID   types.ID    `json:"bookingId" firestore:"bookingId"`
	DriverID    types.ID    `json:"driverId" firestore:"driverId"`
	DriverName  string      `json:"driverName" firestore:"driverName"`
	Fare        types.Money `json:"fare" firestore:"fare"`
	Vehicle     Vehicle     `json:"vehicle" firestore:"vehicle"`
	Status      Status      `json:"status" firestore:"status"`
	SubmittedAt time.Time   `json:"submittedAt" firestore:"submittedAt"`
	UpdatedAt   time.Time   `json:"updatedAt" firestore:"updatedAt"`
}

// Collection returns the offers subcollection of a booking.
func Collection(bookingID types.ID) string {
	return docstore.Path("bookings", string(bookingID), "offers")
}
