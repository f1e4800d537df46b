// README: Chat service provisions rooms per booking and keeps unread counters consistent.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

const maxMessageRunes = 2000

var (
	ErrNotFound       = apperr.NotFound("chat room")
	ErrNotParticipant = apperr.Forbidden("caller is not a participant of this chat")
	ErrRoomInactive   = apperr.Conflict("chat room is no longer active")
	ErrEmptyMessage   = apperr.Validation("message text is required")
	ErrMessageTooLong = apperr.Validation("message text is too long")
	ErrMissingParty   = apperr.Validation("chat needs a customer and a driver")
)

// MessageObserver is told about each committed message.
type MessageObserver interface {
	MessageSent(ctx context.Context, room Room, msg Message)
}

// BookingSource resolves the booking a room is keyed by.
type BookingSource interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
}

type Service struct {
	docs      docstore.Store
	observers []MessageObserver
	bookings  BookingSource
	profiles  Profiles
	now       func() time.Time
}

func NewService(docs docstore.Store) *Service {
	return &Service{docs: docs, now: time.Now}
}

func (s *Service) Observe(o MessageObserver) {
	s.observers = append(s.observers, o)
}

// ProvisionFrom lets room lookups create a missing room for a booking that
// is ACCEPTED or ONGOING, so a failed provisioning on acceptance heals on
// the next request from either participant. profiles may be nil.
func (s *Service) ProvisionFrom(bookings BookingSource, profiles Profiles) {
	s.bookings = bookings
	s.profiles = profiles
}

// provisionMissing creates the room for roomID when uid takes part in the
// matching live booking. It returns ErrNotFound when there is nothing to heal.
func (s *Service) provisionMissing(ctx context.Context, roomID, uid types.ID) error {
	if s.bookings == nil {
		return ErrNotFound
	}
	b, err := s.bookings.Get(ctx, roomID)
	if errors.Is(err, booking.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if b.DriverID == "" || (b.Status != booking.StatusAccepted && b.Status != booking.StatusOngoing) {
		return ErrNotFound
	}
	if uid != b.CustomerID && uid != b.DriverID {
		return ErrNotParticipant
	}
	_, err = s.EnsureChatRoom(ctx, EnsureCommand{
		BookingID: b.ID,
		Customer:  resolveParticipant(ctx, s.profiles, b.CustomerID),
		Driver:    resolveParticipant(ctx, s.profiles, b.DriverID),
	})
	return err
}

// withRoom runs fn and, if the room is missing, provisions it and runs fn once more.
func (s *Service) withRoom(ctx context.Context, roomID, uid types.ID, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if perr := s.provisionMissing(ctx, roomID, uid); perr != nil {
		return perr
	}
	return fn()
}

type EnsureCommand struct {
	BookingID types.ID
	Customer  Participant
	Driver    Participant
}

// EnsureChatRoom returns the room for the booking, creating it on first use.
// Losing a creation race to another caller counts as success.
func (s *Service) EnsureChatRoom(ctx context.Context, cmd EnsureCommand) (types.ID, error) {
	if cmd.BookingID == "" || cmd.Customer.ID == "" || cmd.Driver.ID == "" {
		return "", ErrMissingParty
	}
	id := cmd.BookingID
	err := s.docs.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		var existing Room
		err := tx.Get(CollectionRooms, string(id), &existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return tx.Create(CollectionRooms, string(id), &Room{
			ID:        id,
			BookingID: cmd.BookingID,
			Customer:  cmd.Customer,
			Driver:    cmd.Driver,
			IsActive:  true,
			CreatedAt: s.now(),
		})
	})
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return "", err
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, roomID types.ID) (*Room, error) {
	var r Room
	if err := s.docs.Get(ctx, CollectionRooms, string(roomID), &r); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// GetFor returns the room if uid takes part in it.
func (s *Service) GetFor(ctx context.Context, roomID, uid types.ID) (*Room, error) {
	var r *Room
	err := s.withRoom(ctx, roomID, uid, func() (err error) {
		r, err = s.Get(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, ok := r.RoleOf(uid); !ok {
		return nil, ErrNotParticipant
	}
	return r, nil
}

func getTx(tx docstore.Tx, roomID types.ID) (*Room, error) {
	var r Room
	if err := tx.Get(CollectionRooms, string(roomID), &r); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

type SendCommand struct {
	RoomID   types.ID
	SenderID types.ID
	Text     string
}

// SendMessage appends a message and bumps the other participant's unread
// counter in the same transaction, so bursts never lose increments.
func (s *Service) SendMessage(ctx context.Context, cmd SendCommand) (*Message, error) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, ErrMessageTooLong
	}

	var room Room
	var msg Message
	err := s.withRoom(ctx, cmd.RoomID, cmd.SenderID, func() error {
		return s.docs.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
			r, err := getTx(tx, cmd.RoomID)
			if err != nil {
				return err
			}
			role, ok := r.RoleOf(cmd.SenderID)
			if !ok {
				return ErrNotParticipant
			}
			if !r.IsActive {
				return ErrRoomInactive
			}
			now := s.now()
			msg = Message{
				ID:         types.ID(uuid.NewString()),
				SenderID:   cmd.SenderID,
				SenderRole: role,
				Text:       text,
				CreatedAt:  now,
			}
			if role == RoleCustomer {
				r.DriverUnread++
			} else {
				r.CustomerUnread++
			}
			r.LastMessage = text
			r.LastMessageTime = &now
			if err := tx.Create(MessagesCollection(r.ID), string(msg.ID), &msg); err != nil {
				return err
			}
			room = *r
			return tx.Set(CollectionRooms, string(r.ID), r)
		})
	})
	if err != nil {
		return nil, err
	}
	for _, o := range s.observers {
		o.MessageSent(ctx, room, msg)
	}
	return &msg, nil
}

// MarkRead zeroes the reader's unread counter and flags inbound messages read.
func (s *Service) MarkRead(ctx context.Context, roomID, readerID types.ID) error {
	return s.withRoom(ctx, roomID, readerID, func() error {
		return s.markRead(ctx, roomID, readerID)
	})
}

func (s *Service) markRead(ctx context.Context, roomID, readerID types.ID) error {
	return s.docs.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		r, err := getTx(tx, roomID)
		if err != nil {
			return err
		}
		role, ok := r.RoleOf(readerID)
		if !ok {
			return ErrNotParticipant
		}
		snaps, err := tx.Query(docstore.From(MessagesCollection(roomID)).Where("read", "==", false))
		if err != nil {
			return err
		}
		unread, err := docstore.DecodeAll[Message](snaps)
		if err != nil {
			return err
		}
		for i := range unread {
			m := &unread[i]
			if m.SenderID == readerID {
				continue
			}
			m.Read = true
			if err := tx.Set(MessagesCollection(roomID), string(m.ID), m); err != nil {
				return err
			}
		}
		if role == RoleCustomer {
			r.CustomerUnread = 0
		} else {
			r.DriverUnread = 0
		}
		return tx.Set(CollectionRooms, string(r.ID), r)
	})
}

// DeactivateChatRoom closes the room to new messages. History is kept.
func (s *Service) DeactivateChatRoom(ctx context.Context, bookingID types.ID) error {
	return s.docs.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		r, err := getTx(tx, bookingID)
		if err != nil {
			return err
		}
		if !r.IsActive {
			return nil
		}
		r.IsActive = false
		return tx.Set(CollectionRooms, string(r.ID), r)
	})
}

func (s *Service) ListMessages(ctx context.Context, roomID, uid types.ID) ([]Message, error) {
	if _, err := s.GetFor(ctx, roomID, uid); err != nil {
		return nil, err
	}
	snaps, err := s.docs.Documents(ctx, docstore.From(MessagesCollection(roomID)).Order("createdAt", false))
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[Message](snaps)
}

func (s *Service) WatchMessages(ctx context.Context, roomID types.ID) (*docstore.Stream[Message], error) {
	sub, err := s.docs.WatchQuery(ctx, docstore.From(MessagesCollection(roomID)).Order("createdAt", false))
	if err != nil {
		return nil, err
	}
	return docstore.NewStream[Message](sub), nil
}

func (s *Service) WatchRoom(ctx context.Context, roomID types.ID) (*docstore.Stream[Room], error) {
	sub, err := s.docs.WatchDoc(ctx, CollectionRooms, string(roomID))
	if err != nil {
		return nil, err
	}
	return docstore.NewStream[Room](sub), nil
}
