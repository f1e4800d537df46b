// README: Matching service keeps the driver pool and dispatches new bookings to nearby drivers.
package matching

import (
	"context"
	"log"
	"math/rand"
	"slices"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/config"
	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

var (
	ErrMissingPosition = apperr.Validation("position is required")
	ErrUnauthenticated = apperr.Validation("unauthenticated")
)

// Pool is the driver availability index.
type Pool interface {
	SetDriverLocation(ctx context.Context, a Availability) error
	RemoveDriver(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
	ClaimDispatch(ctx context.Context, bookingID types.ID) (bool, error)
	RecordNotified(ctx context.Context, bookingID types.ID, driverIDs []types.ID) error
	NotifiedDrivers(ctx context.Context, bookingID types.ID) ([]types.ID, error)
}

// Notifier delivers dispatch messages to drivers.
type Notifier interface {
	NewBooking(ctx context.Context, driverID types.ID, b booking.Booking)
	BookingClosed(ctx context.Context, driverID types.ID, b booking.Booking)
}

type Service struct {
	pool     Pool
	notifier Notifier
	cfg      config.MatchingConfig
}

func NewService(pool Pool, notifier Notifier, cfg config.MatchingConfig) *Service {
	return &Service{pool: pool, notifier: notifier, cfg: cfg}
}

func (s *Service) UpdateLocation(ctx context.Context, driverID types.ID, p types.Point) error {
	if driverID == "" {
		return ErrUnauthenticated
	}
	if p.IsZero() {
		return ErrMissingPosition
	}
	return s.pool.SetDriverLocation(ctx, Availability{DriverID: driverID, Position: p, SeenAt: time.Now().UTC()})
}

func (s *Service) GoOffline(ctx context.Context, driverID types.ID) error {
	if driverID == "" {
		return ErrUnauthenticated
	}
	return s.pool.RemoveDriver(ctx, driverID)
}

// Dispatch notifies up to NotifyCount drivers near the pickup point. A booking
// is dispatched at most once; later calls return nil, nil.
func (s *Service) Dispatch(ctx context.Context, b booking.Booking) ([]types.ID, error) {
	claimed, err := s.pool.ClaimDispatch(ctx, b.ID)
	if err != nil || !claimed {
		return nil, err
	}
	nearby, err := s.pool.NearbyDrivers(ctx, b.Pickup.Point, s.cfg.RadiusKm, s.cfg.NotifyCount*selectPoolFactor)
	if err != nil {
		return nil, err
	}
	nearby = slices.DeleteFunc(nearby, func(id types.ID) bool { return id == b.CustomerID })
	selected := PickRandomDrivers(nearby, s.cfg.NotifyCount)
	slices.Sort(selected)
	if err := s.pool.RecordNotified(ctx, b.ID, selected); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		for _, d := range selected {
			s.notifier.NewBooking(ctx, d, b)
		}
	}
	return selected, nil
}

// Observe dispatches new bookings, takes the accepted driver out of the pool,
// and tells the other notified drivers once a booking leaves the open state.
func (s *Service) Observe(ctx context.Context, c booking.Change) {
	if !c.StatusChanged() {
		return
	}
	b := c.After
	switch {
	case c.From() == booking.StatusNone && c.To() == booking.StatusPending:
		if _, err := s.Dispatch(ctx, b); err != nil {
			log.Printf("matching: dispatch booking=%s: %v", b.ID, err)
		}
	case c.From().Open() && !c.To().Open():
		if c.To() == booking.StatusAccepted && b.DriverID != "" {
			if err := s.pool.RemoveDriver(ctx, b.DriverID); err != nil {
				log.Printf("matching: remove driver=%s: %v", b.DriverID, err)
			}
		}
		s.closeOut(ctx, b)
	}
}

func (s *Service) closeOut(ctx context.Context, b booking.Booking) {
	if s.notifier == nil {
		return
	}
	notified, err := s.pool.NotifiedDrivers(ctx, b.ID)
	if err != nil {
		log.Printf("matching: notified drivers booking=%s: %v", b.ID, err)
		return
	}
	for _, d := range notified {
		if d == b.DriverID {
			continue
		}
		s.notifier.BookingClosed(ctx, d, b)
	}
}

// PickRandomDrivers returns up to n distinct drivers from pool in random
// order. The pool slice is not modified.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return []types.ID{}
	}
	picked := make([]types.ID, len(pool))
	copy(picked, pool)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if n < len(picked) {
		picked = picked[:n]
	}
	return picked
}
