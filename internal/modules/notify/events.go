// README: Notification content for booking, dispatch, and chat events.
package notify

import (
	"context"
	"strconv"

	"campusride/internal/modules/booking"
	"campusride/internal/modules/chat"
	"campusride/internal/types"
)

const (
	TypeNewBooking    = "new_booking"
	TypeBookingClosed = "booking_closed"
	TypeBookingStatus = "booking_status"
	TypeDriverArrived = "driver_arrived"
	TypeChatMessage   = "chat_message"
)

// Observe pushes booking changes to the party that did not cause them.
func (d *Dispatcher) Observe(ctx context.Context, c booking.Change) {
	b := c.After
	if !c.Before.DriverArrived && b.DriverArrived {
		d.Notify(ctx, b.CustomerID, Notification{
			Title: "Your driver has arrived",
			Body:  "Meet your driver at " + b.Pickup.Label,
			Data:  bookingData(TypeDriverArrived, b),
		})
	}
	if !c.StatusChanged() || c.From() == booking.StatusNone {
		return
	}
	to, n := statusNotification(c)
	if to == "" {
		return
	}
	d.Notify(ctx, to, n)
}

func statusNotification(c booking.Change) (types.ID, Notification) {
	b := c.After
	data := bookingData(TypeBookingStatus, b)
	switch c.To() {
	case booking.StatusOffered:
		return b.CustomerID, Notification{Title: "New driver offer", Body: "A driver has offered to take your ride", Data: data}
	case booking.StatusAccepted:
		return b.DriverID, Notification{Title: "Offer accepted", Body: "Head to " + b.Pickup.Label + " for " + b.OfferedFare.String(), Data: data}
	case booking.StatusOngoing:
		return b.CustomerID, Notification{Title: "Ride started", Body: "You are on your way to " + b.Dropoff.Label, Data: data}
	case booking.StatusCompleted:
		return b.CustomerID, Notification{Title: "Ride completed", Body: "Rate your driver", Data: data}
	case booking.StatusCancelledByCustomer:
		// Only an assigned driver is told; open bookings are closed out by matching.
		return b.DriverID, Notification{Title: "Booking cancelled", Body: "The customer cancelled the ride", Data: data}
	}
	return "", Notification{}
}

// NewBooking tells a nearby driver about an open booking.
func (d *Dispatcher) NewBooking(ctx context.Context, driverID types.ID, b booking.Booking) {
	data := bookingData(TypeNewBooking, b)
	data["pickup_lat"] = strconv.FormatFloat(b.Pickup.Point.Lat, 'f', 6, 64)
	data["pickup_lng"] = strconv.FormatFloat(b.Pickup.Point.Lng, 'f', 6, 64)
	data["dropoff_lat"] = strconv.FormatFloat(b.Dropoff.Point.Lat, 'f', 6, 64)
	data["dropoff_lng"] = strconv.FormatFloat(b.Dropoff.Point.Lng, 'f', 6, 64)
	data["suggested_fare"] = strconv.FormatFloat(b.SuggestedFare.Major(), 'f', 2, 64)
	d.Notify(ctx, driverID, Notification{
		Title: "New ride request",
		Body:  b.Pickup.Label + " to " + b.Dropoff.Label + ", suggested " + b.SuggestedFare.String(),
		Data:  data,
	})
}

// BookingClosed tells a notified driver the booking is no longer open.
func (d *Dispatcher) BookingClosed(ctx context.Context, driverID types.ID, b booking.Booking) {
	d.Notify(ctx, driverID, Notification{
		Title: "Ride no longer available",
		Body:  b.Pickup.Label + " to " + b.Dropoff.Label,
		Data:  bookingData(TypeBookingClosed, b),
	})
}

// MessageSent pushes a chat message to the other participant.
func (d *Dispatcher) MessageSent(ctx context.Context, room chat.Room, msg chat.Message) {
	to := room.Counterpart(msg.SenderRole)
	from := room.Customer.Name
	if msg.SenderRole == chat.RoleDriver {
		from = room.Driver.Name
	}
	d.Notify(ctx, to.ID, Notification{
		Title: from,
		Body:  msg.Text,
		Data: map[string]string{
			"type":       TypeChatMessage,
			"room_id":    string(room.ID),
			"booking_id": string(room.BookingID),
			"message_id": string(msg.ID),
		},
	})
}

func bookingData(kind string, b booking.Booking) map[string]string {
	return map[string]string{
		"type":       kind,
		"booking_id": string(b.ID),
		"status":     string(b.Status),
	}
}
