// README: Booking aggregate, status graph, and change notifications.
package booking

import (
	"time"

	"campusride/internal/types"
)

type Status string

const (
	StatusNone                Status = ""
	StatusPending             Status = "PENDING"
	StatusOffered             Status = "OFFERED"
	StatusAccepted            Status = "ACCEPTED"
	StatusOngoing             Status = "ONGOING"
	StatusCompleted           Status = "COMPLETED"
	StatusCancelledByCustomer Status = "CANCELLED_BY_CUSTOMER"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusOffered, StatusAccepted, StatusCancelledByCustomer},
	StatusOffered:  {StatusAccepted, StatusCancelledByCustomer},
	StatusAccepted: {StatusOngoing, StatusCancelledByCustomer},
	StatusOngoing:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusOffered, StatusAccepted, StatusOngoing, StatusCompleted, StatusCancelledByCustomer:
		return s, nil
	}
	return StatusNone, ErrInvalidStatus
}

// Terminal statuses have no outgoing edges.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelledByCustomer
}

// Open statuses accept driver offers.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOffered
}

func (s Status) Active() bool {
	return s != StatusNone && !s.Terminal()
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentQR   PaymentMethod = "QR"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

const (
	SeatFour = "4-Seat"
	SeatSix  = "6-Seat"
)

type Place struct {
	Label string      `json:"label" firestore:"label"`
	Point types.Point `json:"point" firestore:"point"`
}

type Booking struct {
	ID              types.ID      `json:"id" firestore:"id"`
	CustomerID      types.ID      `json:"customerId" firestore:"customerId"`
	DriverID        types.ID      `json:"driverId" firestore:"driverId"`
	Pickup          Place         `json:"pickup" firestore:"pickup"`
	Dropoff         Place         `json:"dropoff" firestore:"dropoff"`
	SeatType        string        `json:"seatType" firestore:"seatType"`
	Status          Status        `json:"status" firestore:"status"`
	StatusVersion   int           `json:"statusVersion" firestore:"statusVersion"`
	SuggestedFare   types.Money   `json:"suggestedFare" firestore:"suggestedFare"`
	OfferedFare     types.Money   `json:"offeredFare" firestore:"offeredFare"`
	AcceptedOfferID types.ID      `json:"acceptedOfferId" firestore:"acceptedOfferId"`
	PaymentMethod   PaymentMethod `json:"paymentMethod" firestore:"paymentMethod"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" firestore:"paymentStatus"`
	DriverArrived   bool          `json:"driverArrived" firestore:"driverArrived"`
	DistanceKm      float64       `json:"distanceKm" firestore:"distanceKm"`
	DistanceText    string        `json:"distanceText" firestore:"distanceText"`
	DurationText    string        `json:"durationText" firestore:"durationText"`
	CreatedAt       time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" firestore:"updatedAt"`
	AcceptedAt      *time.Time    `json:"acceptedAt" firestore:"acceptedAt"`
	StartedAt       *time.Time    `json:"startedAt" firestore:"startedAt"`
	CompletedAt     *time.Time    `json:"completedAt" firestore:"completedAt"`
	CancelledAt     *time.Time    `json:"cancelledAt" firestore:"cancelledAt"`
}

// PaymentSettled reports whether the completion gate is open.
func (b *Booking) PaymentSettled() bool {
	return b.PaymentMethod == PaymentCash || b.PaymentStatus == PaymentPaid
}

// FinishedAt is the time used to bucket a completed ride.
func (b *Booking) FinishedAt() time.Time {
	if b.CompletedAt != nil {
		return *b.CompletedAt
	}
	return b.CreatedAt
}

// activeMarker guarantees one non-terminal booking per customer. It is keyed
// by customer id and written in the same transaction as the booking.
type activeMarker struct {
	CustomerID types.ID  `json:"customerId" firestore:"customerId"`
	BookingID  types.ID  `json:"bookingId" firestore:"bookingId"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

type ActorType string

const (
	ActorCustomer ActorType = "customer"
	ActorDriver   ActorType = "driver"
	ActorSystem   ActorType = "system"
)

type Actor struct {
	Type ActorType
	ID   types.ID
}

func Customer(id types.ID) Actor { return Actor{Type: ActorCustomer, ID: id} }
func Driver(id types.ID) Actor   { return Actor{Type: ActorDriver, ID: id} }

var System = Actor{Type: ActorSystem}

// Change describes one committed write to a booking.
type Change struct {
	Before Booking
	After  Booking
	Actor  Actor
	At     time.Time
}

func (c Change) StatusChanged() bool {
	return c.Before.Status != c.After.Status
}

func (c Change) From() Status { return c.Before.Status }
func (c Change) To() Status   { return c.After.Status }
