// README: Booking observer that opens the chat on acceptance and closes it on termination.
package chat

import (
	"context"
	"log"

	"campusride/internal/modules/booking"
	"campusride/internal/modules/profile"
	"campusride/internal/types"
)

type Profiles interface {
	Lookup(ctx context.Context, uid types.ID) (*profile.Profile, error)
}

type BookingObserver struct {
	chat     *Service
	profiles Profiles
}

// NewBookingObserver wires chat provisioning to booking changes. profiles
// may be nil; participants then carry ids only.
func NewBookingObserver(chat *Service, profiles Profiles) *BookingObserver {
	return &BookingObserver{chat: chat, profiles: profiles}
}

func (o *BookingObserver) Observe(ctx context.Context, c booking.Change) {
	if !c.StatusChanged() {
		return
	}
	b := c.After
	switch {
	case c.To() == booking.StatusAccepted:
		_, err := o.chat.EnsureChatRoom(ctx, EnsureCommand{
			BookingID: b.ID,
			Customer:  o.participant(ctx, b.CustomerID),
			Driver:    o.participant(ctx, b.DriverID),
		})
		if err != nil {
			log.Printf("chat: ensure room for booking %s: %v", b.ID, err)
		}
	case c.To().Terminal() && b.DriverID != "":
		if err := o.chat.DeactivateChatRoom(ctx, b.ID); err != nil {
			log.Printf("chat: deactivate room for booking %s: %v", b.ID, err)
		}
	}
}

func (o *BookingObserver) participant(ctx context.Context, uid types.ID) Participant {
	return resolveParticipant(ctx, o.profiles, uid)
}

func resolveParticipant(ctx context.Context, profiles Profiles, uid types.ID) Participant {
	p := Participant{ID: uid}
	if profiles == nil {
		return p
	}
	prof, err := profiles.Lookup(ctx, uid)
	if err != nil {
		return p
	}
	p.Name = prof.Name
	p.Phone = prof.Phone
	return p
}
