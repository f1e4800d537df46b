// README: Journey is the post-completion record of a booking.
package settlement

import (
	"time"

	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

const CollectionJourneys = "journeys"

// Journey is keyed by booking id and created once, on completion.
type Journey struct {
	ID            types.ID              `json:"id" firestore:"id"`
	BookingID     types.ID              `json:"bookingId" firestore:"bookingId"`
	CustomerID    types.ID              `json:"customerId" firestore:"customerId"`
	DriverID      types.ID              `json:"driverId" firestore:"driverId"`
	Pickup        booking.Place         `json:"pickup" firestore:"pickup"`
	Dropoff       booking.Place         `json:"dropoff" firestore:"dropoff"`
	SeatType      string                `json:"seatType" firestore:"seatType"`
	DistanceKm    float64               `json:"distanceKm" firestore:"distanceKm"`
	DistanceText  string                `json:"distanceText" firestore:"distanceText"`
	DurationText  string                `json:"durationText" firestore:"durationText"`
	Fare          types.Money           `json:"fare" firestore:"fare"`
	PaymentMethod booking.PaymentMethod `json:"paymentMethod" firestore:"paymentMethod"`
	PaymentStatus booking.PaymentStatus `json:"paymentStatus" firestore:"paymentStatus"`
	CompletedAt   time.Time             `json:"completedAt" firestore:"completedAt"`
	Rating        *float64              `json:"rating" firestore:"rating"`
	Comment       string                `json:"comment" firestore:"comment"`
	RatedAt       *time.Time            `json:"ratedAt" firestore:"ratedAt"`
}

// FromBooking snapshots a completed booking.
func FromBooking(b *booking.Booking) *Journey {
	return &Journey{
		ID:            b.ID,
		BookingID:     b.ID,
		CustomerID:    b.CustomerID,
		DriverID:      b.DriverID,
		Pickup:        b.Pickup,
		Dropoff:       b.Dropoff,
		SeatType:      b.SeatType,
		DistanceKm:    b.DistanceKm,
		DistanceText:  b.DistanceText,
		DurationText:  b.DurationText,
		Fare:          b.OfferedFare,
		PaymentMethod: b.PaymentMethod,
		PaymentStatus: b.PaymentStatus,
		CompletedAt:   b.FinishedAt(),
	}
}
