// README: Earnings service reports a driver's completed rides per period.
package earnings

import (
	"context"
	"time"

	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

type CompletedLister interface {
	CompletedByDriver(ctx context.Context, driverID types.ID) ([]booking.Booking, error)
}

type Service struct {
	bookings CompletedLister
	loc      *time.Location
	currency string
}

func NewService(bookings CompletedLister, loc *time.Location, currency string) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{bookings: bookings, loc: loc, currency: currency}
}

type Query struct {
	DriverID    types.ID
	Period      Period
	Anchor      time.Time
	Granularity Granularity
}

func (s *Service) GetDriverEarnings(ctx context.Context, q Query) (*Report, error) {
	if q.Granularity == "" {
		q.Granularity = DefaultGranularity(q.Period)
	}
	if err := CheckGranularity(q.Granularity, q.Period); err != nil {
		return nil, err
	}
	from, to, err := Window(q.Period, q.Anchor, s.loc)
	if err != nil {
		return nil, err
	}
	all, err := s.bookings.CompletedByDriver(ctx, q.DriverID)
	if err != nil {
		return nil, err
	}
	filtered, err := Filter(all, q.Period, q.Anchor, s.loc)
	if err != nil {
		return nil, err
	}
	r, err := Aggregate(filtered, q.Granularity, q.Anchor, s.loc, s.currency)
	if err != nil {
		return nil, err
	}
	r.DriverID = q.DriverID
	r.Period = q.Period
	r.From = from
	r.To = to
	return &r, nil
}
