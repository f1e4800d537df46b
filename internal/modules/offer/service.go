// README: Offer service collects competing offers and resolves exactly one winner.
package offer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/metrics"
	"campusride/internal/modules/booking"
	"campusride/internal/modules/pricing"
	"campusride/internal/types"
)

var (
	ErrNotFound        = apperr.NotFound("offer")
	ErrUnauthenticated = apperr.Validation("caller is not authenticated")
	ErrMissingVehicle  = apperr.Validation("vehicle plate is required")
	ErrFareOutOfRange  = pricing.ErrFareOutOfRange
	ErrBookingClosed   = apperr.Conflict("booking is no longer open for offers")
	ErrOfferInactive   = apperr.Conflict("offer is no longer active")
	ErrOwnBooking      = apperr.Forbidden("cannot offer on your own booking")
)

// Lifecycle is the part of the booking service offers are built on.
type Lifecycle interface {
	Apply(ctx context.Context, id types.ID, actor booking.Actor, mutate booking.MutateFunc) (*booking.Booking, error)
	GetFor(ctx context.Context, id types.ID, actor booking.Actor) (*booking.Booking, error)
}

type FareValidator interface {
	Validate(fare types.Money) error
}

type Service struct {
	docs     docstore.Store
	bookings Lifecycle
	fares    FareValidator
	now      func() time.Time
}

func NewService(docs docstore.Store, bookings Lifecycle, fares FareValidator) *Service {
	return &Service{docs: docs, bookings: bookings, fares: fares, now: time.Now}
}

type SubmitCommand struct {
	BookingID  types.ID
	DriverID   types.ID
	DriverName string
	Fare       types.Money
	Vehicle    Vehicle
}

// Submit records a driver's offer. A driver holds at most one active offer
// per booking; submitting again replaces the fare and vehicle. The first
// offer moves the booking from PENDING to OFFERED in the same transaction.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (o *Offer, err error) {
	defer func() { metrics.OfferSubmissions.WithLabelValues(metrics.Outcome(err)).Inc() }()

	if cmd.DriverID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.fares.Validate(cmd.Fare); err != nil {
		return nil, err
	}
	cmd.Vehicle.Plate = strings.TrimSpace(cmd.Vehicle.Plate)
	if cmd.Vehicle.Plate == "" {
		return nil, ErrMissingVehicle
	}

	var out Offer
	_, err = s.bookings.Apply(ctx, cmd.BookingID, booking.Driver(cmd.DriverID), func(_ context.Context, tx docstore.Tx, b *booking.Booking) error {
		if b.CustomerID == cmd.DriverID {
			return ErrOwnBooking
		}
		if !b.Status.Open() {
			return ErrBookingClosed
		}
		snaps, err := tx.Query(docstore.From(Collection(b.ID)).Where("driverId", "==", string(cmd.DriverID)))
		if err != nil {
			return err
		}
		existing, err := docstore.DecodeAll[Offer](snaps)
		if err != nil {
			return err
		}

		now := s.now()
		out = Offer{
			ID:          types.ID(uuid.NewString()),
			BookingID:   b.ID,
			DriverID:    cmd.DriverID,
			DriverName:  cmd.DriverName,
			Fare:        cmd.Fare,
			Vehicle:     cmd.Vehicle,
			Status:      StatusActive,
			SubmittedAt: now,
			UpdatedAt:   now,
		}
		for _, e := range existing {
			if e.Status == StatusActive {
				out.ID = e.ID
				out.SubmittedAt = e.SubmittedAt
				break
			}
		}
		if err := tx.Set(Collection(b.ID), string(out.ID), &out); err != nil {
			return err
		}
		if b.Status == booking.StatusPending {
			b.Status = booking.StatusOffered
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type AcceptCommand struct {
	BookingID  types.ID
	OfferID    types.ID
	CustomerID types.ID
}

// Accept resolves the booking to one offer. Booking status, driver and fare
// are written with the offer statuses in a single transaction, so a second
// acceptance always observes ACCEPTED and fails with a conflict.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (accepted *booking.Booking, err error) {
	defer func() { metrics.OfferAcceptances.WithLabelValues(metrics.Outcome(err)).Inc() }()

	if cmd.CustomerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.bookings.Apply(ctx, cmd.BookingID, booking.Customer(cmd.CustomerID), func(_ context.Context, tx docstore.Tx, b *booking.Booking) error {
		if b.CustomerID != cmd.CustomerID {
			return booking.ErrNotOwner
		}
		if !b.Status.Open() {
			return ErrBookingClosed
		}
		snaps, err := tx.Query(docstore.From(Collection(b.ID)))
		if err != nil {
			return err
		}
		offers, err := docstore.DecodeAll[Offer](snaps)
		if err != nil {
			return err
		}
		var winner *Offer
		for i := range offers {
			if offers[i].ID == cmd.OfferID {
				winner = &offers[i]
				break
			}
		}
		if winner == nil {
			return ErrNotFound
		}
		if winner.Status != StatusActive {
			return ErrOfferInactive
		}

		now := s.now()
		for i := range offers {
			o := &offers[i]
			if o.Status != StatusActive {
				continue
			}
			o.Status = StatusSuperseded
			if o.ID == winner.ID {
				o.Status = StatusAccepted
			}
			o.UpdatedAt = now
			if err := tx.Set(Collection(b.ID), string(o.ID), o); err != nil {
				return err
			}
		}
		b.Status = booking.StatusAccepted
		b.DriverID = winner.DriverID
		b.OfferedFare = winner.Fare
		b.AcceptedOfferID = winner.ID
		return nil
	})
}

func (s *Service) List(ctx context.Context, bookingID types.ID) ([]Offer, error) {
	snaps, err := s.docs.Documents(ctx, docstore.From(Collection(bookingID)).Order("submittedAt", false))
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[Offer](snaps)
}

// ListFor returns the offers actor may see: all of them for the owning
// customer, only their own for a driver.
func (s *Service) ListFor(ctx context.Context, bookingID types.ID, actor booking.Actor) ([]Offer, error) {
	if actor.Type == booking.ActorDriver {
		snaps, err := s.docs.Documents(ctx, docstore.From(Collection(bookingID)).
			Where("driverId", "==", string(actor.ID)))
		if err != nil {
			return nil, err
		}
		return docstore.DecodeAll[Offer](snaps)
	}
	if _, err := s.bookings.GetFor(ctx, bookingID, actor); err != nil {
		return nil, err
	}
	return s.List(ctx, bookingID)
}

func (s *Service) Watch(ctx context.Context, bookingID types.ID) (*docstore.Stream[Offer], error) {
	sub, err := s.docs.WatchQuery(ctx, docstore.From(Collection(bookingID)).Order("submittedAt", false))
	if err != nil {
		return nil, err
	}
	return docstore.NewStream[Offer](sub), nil
}
