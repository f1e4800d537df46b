// README: Settlement gates completion on payment and writes the Journey record.
package settlement

import (
	"context"
	"errors"
	"log"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

var (
	ErrPaymentPending = apperr.Conflict("payment pending")
	ErrNotFound       = apperr.NotFound("journey")
)

type Lifecycle interface {
	Apply(ctx context.Context, id types.ID, actor booking.Actor, mutate booking.MutateFunc) (*booking.Booking, error)
	UpdateStatus(ctx context.Context, cmd booking.StatusCommand) (*booking.Booking, error)
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, driverID types.ID, at time.Time) error
}

type Service struct {
	docs     docstore.Store
	bookings Lifecycle
	activity ActivityRecorder
}

// NewService returns the settlement service. activity may be nil.
func NewService(docs docstore.Store, bookings Lifecycle, activity ActivityRecorder) *Service {
	return &Service{docs: docs, bookings: bookings, activity: activity}
}

// BeforeCommit enforces the payment gate on ONGOING -> COMPLETED and creates
// the Journey in the same transaction.
func (s *Service) BeforeCommit(_ context.Context, tx docstore.Tx, c booking.Change) error {
	if c.To() != booking.StatusCompleted {
		return nil
	}
	if !c.After.PaymentSettled() {
		return ErrPaymentPending
	}
	return tx.Create(CollectionJourneys, string(c.After.ID), FromBooking(&c.After))
}

// Observe records the driver's working day once a completion has committed.
func (s *Service) Observe(ctx context.Context, c booking.Change) {
	if !c.StatusChanged() || c.To() != booking.StatusCompleted || s.activity == nil {
		return
	}
	if err := s.activity.Record(context.WithoutCancel(ctx), c.After.DriverID, c.After.FinishedAt()); err != nil {
		log.Printf("settlement: record activity for driver %s: %v", c.After.DriverID, err)
	}
}

// Complete finishes the ride for the assigned driver. Calling it again after
// success returns the existing Journey.
func (s *Service) Complete(ctx context.Context, bookingID, driverID types.ID) (*Journey, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusCompleted {
		_, err = s.bookings.UpdateStatus(ctx, booking.StatusCommand{
			BookingID: bookingID,
			To:        booking.StatusCompleted,
			Actor:     booking.Driver(driverID),
		})
		if errors.Is(err, booking.ErrIllegalTransition) {
			// a concurrent Complete may have won; re-check before failing
			if b, rerr := s.bookings.Get(ctx, bookingID); rerr == nil && b.Status == booking.StatusCompleted && b.DriverID == driverID {
				err = nil
			}
		}
		if err != nil {
			return nil, err
		}
	} else if b.DriverID != driverID {
		return nil, booking.ErrNotAssignedDriver
	}
	return s.GetJourney(ctx, bookingID)
}

// ConfirmPayment marks a booking PAID on behalf of its customer.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID, customerID types.ID) (*booking.Booking, error) {
	return s.bookings.Apply(ctx, bookingID, booking.Customer(customerID), func(_ context.Context, _ docstore.Tx, b *booking.Booking) error {
		if b.CustomerID != customerID {
			return booking.ErrNotOwner
		}
		if b.Status != booking.StatusAccepted && b.Status != booking.StatusOngoing {
			return booking.ErrNotInProgress
		}
		b.PaymentStatus = booking.PaymentPaid
		return nil
	})
}

func (s *Service) GetJourney(ctx context.Context, bookingID types.ID) (*Journey, error) {
	var j Journey
	if err := s.docs.Get(ctx, CollectionJourneys, string(bookingID), &j); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// GetJourneyFor returns the journey to its customer or driver only.
func (s *Service) GetJourneyFor(ctx context.Context, bookingID, uid types.ID) (*Journey, error) {
	j, err := s.GetJourney(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if uid != j.CustomerID && uid != j.DriverID {
		return nil, apperr.Forbidden("journey is not visible to caller")
	}
	return j, nil
}

func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]Journey, error) {
	snaps, err := s.docs.Documents(ctx, docstore.From(CollectionJourneys).
		Where("driverId", "==", string(driverID)).
		Order("completedAt", true))
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[Journey](snaps)
}
