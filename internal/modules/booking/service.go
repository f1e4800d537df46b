// README: Booking service implements creation, guarded status transitions, and watches.
package booking

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/maps"
	"campusride/internal/metrics"
	"campusride/internal/modules/pricing"
	"campusride/internal/types"
)

var (
	ErrNotFound           = apperr.NotFound("booking")
	ErrUnauthenticated    = apperr.Validation("caller is not authenticated")
	ErrMissingCoordinates = apperr.Validation("pickup and dropoff coordinates are required")
	ErrInvalidSeatType    = apperr.Validation("unknown seat type")
	ErrInvalidPayment     = apperr.Validation("unknown payment method")
	ErrInvalidStatus      = apperr.Validation("unknown booking status")
	ErrAcceptViaOffer     = apperr.Validation("bookings are accepted through an offer")
	ErrActiveBooking      = apperr.Conflict("customer already has an active booking")
	ErrIllegalTransition  = apperr.Conflict("illegal status transition")
	ErrNotInProgress      = apperr.Conflict("booking is not in progress")
	ErrNotOwner           = apperr.Forbidden("booking belongs to another customer")
	ErrNotAssignedDriver  = apperr.Forbidden("booking is assigned to another driver")
)

type Router interface {
	Route(ctx context.Context, origin, destination types.Point) (maps.Route, error)
}

type Quoter interface {
	Suggest(distanceKm float64) pricing.Quote
}

// TransitionHook runs inside the booking transaction after a status change
// has been validated. Hooks may only write; returning an error aborts the
// whole transaction.
type TransitionHook interface {
	BeforeCommit(ctx context.Context, tx docstore.Tx, c Change) error
}

// Observer is told about every committed change. It runs after commit and
// must not fail the caller.
type Observer interface {
	Observe(ctx context.Context, c Change)
}

type ObserverFunc func(ctx context.Context, c Change)

func (f ObserverFunc) Observe(ctx context.Context, c Change) { f(ctx, c) }

type Service struct {
	store     *Store
	pricing   Quoter
	routes    Router
	hooks     []TransitionHook
	observers []Observer
	now       func() time.Time
}

func NewService(store *Store, pricing Quoter, routes Router) *Service {
	return &Service{store: store, pricing: pricing, routes: routes, now: time.Now}
}

// Hook registers a transition hook. Call before serving traffic.
func (s *Service) Hook(h TransitionHook) {
	s.hooks = append(s.hooks, h)
}

// Observe registers an observer. Call before serving traffic.
func (s *Service) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Service) Store() *Store {
	return s.store
}

type CreateCommand struct {
	CustomerID    types.ID
	Pickup        Place
	Dropoff       Place
	SeatType      string
	PaymentMethod PaymentMethod
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.CustomerID == "" {
		return nil, ErrUnauthenticated
	}
	if cmd.Pickup.Point.IsZero() || cmd.Dropoff.Point.IsZero() {
		return nil, ErrMissingCoordinates
	}
	switch cmd.SeatType {
	case SeatFour, SeatSix:
	default:
		return nil, ErrInvalidSeatType
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = PaymentCash
	}
	if cmd.PaymentMethod != PaymentCash && cmd.PaymentMethod != PaymentQR {
		return nil, ErrInvalidPayment
	}

	route := maps.StraightLine(cmd.Pickup.Point, cmd.Dropoff.Point)
	if s.routes != nil {
		r, err := s.routes.Route(ctx, cmd.Pickup.Point, cmd.Dropoff.Point)
		if err != nil {
			return nil, err
		}
		route = r
	}

	now := s.now()
	b := Booking{
		ID:            types.ID(uuid.NewString()),
		CustomerID:    cmd.CustomerID,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		SeatType:      cmd.SeatType,
		Status:        StatusPending,
		PaymentMethod: cmd.PaymentMethod,
		PaymentStatus: PaymentPending,
		DistanceKm:    route.DistanceKm(),
		DistanceText:  route.DistanceText,
		DurationText:  route.DurationText,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s.pricing != nil {
		b.SuggestedFare = s.pricing.Suggest(b.DistanceKm).Suggested
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		m, err := s.store.markerTx(tx, cmd.CustomerID)
		if err != nil {
			return err
		}
		if m != nil {
			cur, err := s.store.GetTx(tx, m.BookingID)
			if err != nil && !apperr.IsNotFound(err) {
				return err
			}
			if err == nil && cur.Status.Active() {
				return ErrActiveBooking
			}
		}
		if err := s.store.setMarkerTx(tx, &activeMarker{CustomerID: cmd.CustomerID, BookingID: b.ID, CreatedAt: now}); err != nil {
			return err
		}
		return s.store.createTx(tx, &b)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Change{After: b, Actor: Customer(cmd.CustomerID), At: now})
	return &b, nil
}

// MutateFunc reads, validates, and edits a booking inside a transaction. It
// may stage extra writes through tx once all of its reads are done.
type MutateFunc func(ctx context.Context, tx docstore.Tx, b *Booking) error

// Apply performs one conditional read-modify-write on a booking. A status
// change made by mutate is checked against AllowedTransitions, runs the
// transition hooks, and bumps StatusVersion. Observers see the committed
// result.
func (s *Service) Apply(ctx context.Context, id types.ID, actor Actor, mutate MutateFunc) (*Booking, error) {
	var c Change
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := s.store.GetTx(tx, id)
		if err != nil {
			return err
		}
		m, err := s.store.markerTx(tx, cur.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		next := *cur
		if err := mutate(ctx, tx, &next); err != nil {
			return err
		}
		c = Change{Before: *cur, After: next, Actor: actor, At: now}
		if c.StatusChanged() {
			if !CanTransition(cur.Status, next.Status) {
				return illegal(cur.Status, next.Status)
			}
			c.After.StatusVersion = cur.StatusVersion + 1
			stamp(&c.After, now)
			for _, h := range s.hooks {
				if err := h.BeforeCommit(ctx, tx, c); err != nil {
					return err
				}
			}
		}
		c.After.UpdatedAt = now
		if err := s.store.putTx(tx, &c.After); err != nil {
			return err
		}
		if c.After.Status.Terminal() && m != nil && m.BookingID == c.After.ID {
			return s.store.deleteMarkerTx(tx, c.After.CustomerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, c)
	out := c.After
	return &out, nil
}

func (s *Service) notify(ctx context.Context, c Change) {
	if c.StatusChanged() {
		metrics.BookingTransitions.WithLabelValues(statusLabel(c.From()), string(c.To())).Inc()
	}
	for _, o := range s.observers {
		o.Observe(ctx, c)
	}
}

func statusLabel(s Status) string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

func stamp(b *Booking, now time.Time) {
	t := now
	switch b.Status {
	case StatusAccepted:
		b.AcceptedAt = &t
	case StatusOngoing:
		b.StartedAt = &t
	case StatusCompleted:
		b.CompletedAt = &t
	case StatusCancelledByCustomer:
		b.CancelledAt = &t
	}
}

func illegal(from, to Status) error {
	return apperr.Wrap(ErrIllegalTransition, fmt.Errorf("%s -> %s", from, to))
}

type StatusCommand struct {
	BookingID types.ID
	To        Status
	Actor     Actor
}

// UpdateStatus moves a booking along the status graph on behalf of actor.
// ACCEPTED and OFFERED are reserved for the offer workflow.
func (s *Service) UpdateStatus(ctx context.Context, cmd StatusCommand) (*Booking, error) {
	if _, err := ParseStatus(string(cmd.To)); err != nil {
		return nil, err
	}
	switch cmd.To {
	case StatusAccepted, StatusOffered:
		return nil, ErrAcceptViaOffer
	}
	return s.Apply(ctx, cmd.BookingID, cmd.Actor, func(_ context.Context, _ docstore.Tx, b *Booking) error {
		if err := authorize(cmd.Actor, b, cmd.To); err != nil {
			return err
		}
		if !CanTransition(b.Status, cmd.To) {
			return illegal(b.Status, cmd.To)
		}
		b.Status = cmd.To
		return nil
	})
}

func authorize(actor Actor, b *Booking, to Status) error {
	if actor.Type == ActorSystem {
		return nil
	}
	switch to {
	case StatusCancelledByCustomer:
		if actor.Type != ActorCustomer || actor.ID != b.CustomerID {
			return ErrNotOwner
		}
	case StatusOngoing, StatusCompleted:
		if actor.Type != ActorDriver || b.DriverID == "" || actor.ID != b.DriverID {
			return ErrNotAssignedDriver
		}
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, id, customerID types.ID) (*Booking, error) {
	return s.UpdateStatus(ctx, StatusCommand{BookingID: id, To: StatusCancelledByCustomer, Actor: Customer(customerID)})
}

func (s *Service) Start(ctx context.Context, id, driverID types.ID) (*Booking, error) {
	return s.UpdateStatus(ctx, StatusCommand{BookingID: id, To: StatusOngoing, Actor: Driver(driverID)})
}

// MarkDriverArrived flags that the assigned driver is at the pickup point.
func (s *Service) MarkDriverArrived(ctx context.Context, id, driverID types.ID) (*Booking, error) {
	return s.Apply(ctx, id, Driver(driverID), func(_ context.Context, _ docstore.Tx, b *Booking) error {
		if b.DriverID == "" || b.DriverID != driverID {
			return ErrNotAssignedDriver
		}
		if b.Status != StatusAccepted && b.Status != StatusOngoing {
			return ErrNotInProgress
		}
		b.DriverArrived = true
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

// GetFor returns the booking if actor may see it: the owner, the assigned
// driver, or any driver while the booking is open for offers.
func (s *Service) GetFor(ctx context.Context, id types.ID, actor Actor) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !VisibleTo(b, actor) {
		return nil, apperr.Forbidden("booking is not visible to caller")
	}
	return b, nil
}

func VisibleTo(b *Booking, actor Actor) bool {
	switch actor.Type {
	case ActorSystem:
		return true
	case ActorCustomer:
		return actor.ID == b.CustomerID
	case ActorDriver:
		return b.DriverID == actor.ID || (b.DriverID == "" && b.Status.Open())
	}
	return false
}

// ActiveForCustomer returns the customer's single non-terminal booking.
func (s *Service) ActiveForCustomer(ctx context.Context, customerID types.ID) (*Booking, error) {
	m, err := s.store.marker(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	b, err := s.store.Get(ctx, m.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Active() {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *Service) ListOpen(ctx context.Context) ([]Booking, error) {
	return s.store.ListOpen(ctx)
}

func (s *Service) ListForCustomer(ctx context.Context, customerID types.ID) ([]Booking, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// CompletedByDriver lists every completed booking served by driverID.
func (s *Service) CompletedByDriver(ctx context.Context, driverID types.ID) ([]Booking, error) {
	return s.store.ListByDriver(ctx, driverID, StatusCompleted)
}

func (s *Service) Watch(ctx context.Context, id types.ID) (*docstore.Stream[Booking], error) {
	return s.store.Watch(ctx, id)
}

func (s *Service) WatchOpen(ctx context.Context) (*docstore.Stream[Booking], error) {
	return s.store.WatchOpen(ctx)
}

// LogObserver writes one line per committed status change.
var LogObserver = ObserverFunc(func(_ context.Context, c Change) {
	if !c.StatusChanged() {
		return
	}
	log.Printf("booking %s: %s -> %s by %s %s", c.After.ID, statusLabel(c.From()), c.To(),
		c.Actor.Type, strings.TrimSpace(string(c.Actor.ID)))
})
