// README: Pure windowing and bucketing of completed bookings.
package earnings

import (
	"fmt"
	"time"

	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

// Window returns the half-open [from, to) range of period p containing
// anchor, computed on the calendar of loc. Weeks start on Monday.
func Window(p Period, anchor time.Time, loc *time.Location) (time.Time, time.Time, error) {
	a := anchor.In(loc)
	y, m, d := a.Date()
	switch p {
	case PeriodDay:
		from := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := (int(a.Weekday()) + 6) % 7
		from := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 7), nil
	case PeriodMonth:
		from := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), nil
	case PeriodYear:
		from := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, ErrInvalidPeriod
}

// Filter keeps the bookings whose completion time falls inside the window of
// p around anchor.
func Filter(bookings []booking.Booking, p Period, anchor time.Time, loc *time.Location) ([]booking.Booking, error) {
	from, to, err := Window(p, anchor, loc)
	if err != nil {
		return nil, err
	}
	out := make([]booking.Booking, 0, len(bookings))
	for _, b := range bookings {
		at := b.FinishedAt()
		if !at.Before(from) && at.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Aggregate buckets filtered bookings by g and sums their offered fares.
// anchor picks the month length for day-of-month buckets. Rides before
// 06:00 fall into the first hour bucket so the histogram always sums to
// RideCount.
func Aggregate(filtered []booking.Booking, g Granularity, anchor time.Time, loc *time.Location, currency string) (Report, error) {
	labels, index, err := layout(g, anchor.In(loc))
	if err != nil {
		return Report{}, err
	}
	r := Report{
		Granularity:   g,
		TotalEarnings: types.Money{Currency: currency},
		RideCount:     len(filtered),
		Histogram:     make([]Bucket, len(labels)),
	}
	for i, l := range labels {
		r.Histogram[i] = Bucket{Label: l, Earnings: types.Money{Currency: currency}}
	}
	for _, b := range filtered {
		r.TotalEarnings = r.TotalEarnings.Add(b.OfferedFare)
		i := index(b.FinishedAt().In(loc))
		r.Histogram[i].Rides++
		r.Histogram[i].Earnings = r.Histogram[i].Earnings.Add(b.OfferedFare)
	}
	return r, nil
}

func layout(g Granularity, anchor time.Time) ([]string, func(time.Time) int, error) {
	switch g {
	case ByHour:
		labels := make([]string, 0, lastHour-firstHour+1)
		for h := firstHour; h <= lastHour; h++ {
			labels = append(labels, fmt.Sprintf("%02d:00", h))
		}
		return labels, func(t time.Time) int {
			h := t.Hour()
			if h < firstHour {
				h = firstHour
			}
			return h - firstHour
		}, nil
	case ByWeekday:
		labels := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
		return labels, func(t time.Time) int {
			return (int(t.Weekday()) + 6) % 7
		}, nil
	case ByDayOfMonth:
		n := daysIn(anchor.Year(), anchor.Month())
		labels := make([]string, n)
		for i := range labels {
			labels[i] = fmt.Sprintf("%d", i+1)
		}
		return labels, func(t time.Time) int {
			d := t.Day()
			if d > n {
				d = n
			}
			return d - 1
		}, nil
	case ByMonth:
		labels := make([]string, 12)
		for i := range labels {
			labels[i] = time.Month(i + 1).String()[:3]
		}
		return labels, func(t time.Time) int {
			return int(t.Month()) - 1
		}, nil
	}
	return nil, nil, ErrInvalidGranularity
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
