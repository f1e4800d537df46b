// README: Earnings periods, bucket granularities, and report shapes.
package earnings

import (
	"time"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

type Granularity string

const (
	ByHour       Granularity = "hour"
	ByWeekday    Granularity = "weekday"
	ByDayOfMonth Granularity = "monthday"
	ByMonth      Granularity = "month"
)

var (
	ErrInvalidPeriod      = apperr.Validation("period must be day, week, month or year")
	ErrInvalidGranularity = apperr.Validation("granularity must be hour, weekday, monthday or month")
	ErrGranularityPeriod  = apperr.Validation("monthday granularity is only available for the month period")
)

// Hour buckets cover 06:00 to 23:00 inclusive.
const (
	firstHour = 6
	lastHour  = 23
)

func ParsePeriod(v string) (Period, error) {
	switch p := Period(v); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	}
	return "", ErrInvalidPeriod
}

// ParseGranularity returns the natural granularity of p when v is empty.
func ParseGranularity(v string, p Period) (Granularity, error) {
	if v == "" {
		return DefaultGranularity(p), nil
	}
	switch g := Granularity(v); g {
	case ByHour, ByWeekday, ByDayOfMonth, ByMonth:
		return g, CheckGranularity(g, p)
	}
	return "", ErrInvalidGranularity
}

// CheckGranularity rejects pairs whose buckets cannot hold every ride in the
// window. Day-of-month buckets follow one month's length, so any window that
// may cross a month boundary is refused.
func CheckGranularity(g Granularity, p Period) error {
	if g == ByDayOfMonth && p != PeriodMonth {
		return ErrGranularityPeriod
	}
	return nil
}

func DefaultGranularity(p Period) Granularity {
	switch p {
	case PeriodDay:
		return ByHour
	case PeriodWeek:
		return ByWeekday
	case PeriodMonth:
		return ByDayOfMonth
	default:
		return ByMonth
	}
}

type Bucket struct {
	Label    string      `json:"label"`
	Rides    int         `json:"rides"`
	Earnings types.Money `json:"earnings"`
}

type Report struct {
	DriverID      types.ID    `json:"driverId"`
	Period        Period      `json:"period"`
	Granularity   Granularity `json:"granularity"`
	From          time.Time   `json:"from"`
	To            time.Time   `json:"to"`
	TotalEarnings types.Money `json:"totalEarnings"`
	RideCount     int         `json:"rideCount"`
	Histogram     []Bucket    `json:"histogram"`
}
