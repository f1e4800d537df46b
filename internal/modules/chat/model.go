// README: Chat rooms between a matched customer and driver.
package chat

import (
	"time"

	"campusride/internal/docstore"
	"campusride/internal/types"
)

const CollectionRooms = "chat_rooms"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

type Participant struct {
	ID    types.ID `json:"id" firestore:"id"`
	Name  string   `json:"name" firestore:"name"`
	Phone string   `json:"phone" firestore:"phone"`
}

// Room is keyed by booking id; at most one exists per booking.
type Room struct {
	ID              types.ID    `json:"id" firestore:"id"`
	BookingID       types.ID    `json:"bookingId" firestore:"bookingId"`
	Customer        Participant `json:"customer" firestore:"customer"`
	Driver          Participant `json:"driver" firestore:"driver"`
	LastMessage     string      `json:"lastMessage" firestore:"lastMessage"`
	LastMessageTime *time.Time  `json:"lastMessageTime" firestore:"lastMessageTime"`
	CustomerUnread  int         `json:"customerUnread" firestore:"customerUnread"`
	DriverUnread    int         `json:"driverUnread" firestore:"driverUnread"`
	IsActive        bool        `json:"isActive" firestore:"isActive"`
	CreatedAt       time.Time   `json:"createdAt" firestore:"createdAt"`
}

// RoleOf reports which side of the room uid is on.
func (r *Room) RoleOf(uid types.ID) (Role, bool) {
	switch uid {
	case r.Customer.ID:
		return RoleCustomer, true
	case r.Driver.ID:
		return RoleDriver, true
	}
	return "", false
}

// Counterpart returns the participant on the other side of role.
func (r *Room) Counterpart(role Role) Participant {
	if role == RoleCustomer {
		return r.Driver
	}
	return r.Customer
}

type Message struct {
	ID         types.ID  `json:"id" firestore:"id"`
	SenderID   types.ID  `json:"senderId" firestore:"senderId"`
	SenderRole Role      `json:"senderRole" firestore:"senderRole"`
	Text       string    `json:"text" firestore:"text"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
	Read       bool      `json:"read" firestore:"read"`
}

func MessagesCollection(roomID types.ID) string {
	return docstore.Path(CollectionRooms, string(roomID), "messages")
}
