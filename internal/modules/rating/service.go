// README: Rating service accepts one rating per completed booking and derives driver stats.
package rating

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/modules/activity"
	"campusride/internal/modules/booking"
	"campusride/internal/modules/settlement"
	"campusride/internal/types"
)

const maxCommentRunes = 500

var (
	ErrAlreadyRated    = apperr.Conflict("already rated")
	ErrNotCompleted    = apperr.Conflict("booking is not completed")
	ErrRatingRange     = apperr.Validation("rating must be between 0 and 5")
	ErrCommentTooLong  = apperr.Validation("comment is too long")
	ErrNotRideCustomer = apperr.Forbidden("only the booking's customer can rate it")
)

type DaysCounter interface {
	DaysWorked(ctx context.Context, driverID types.ID) (int, error)
}

type Service struct {
	docs     docstore.Store
	bookings *booking.Store
	days     DaysCounter
	loc      *time.Location
	now      func() time.Time
}

// NewService returns the rating service. days may be nil, in which case
// days worked are derived from completed bookings in loc.
func NewService(docs docstore.Store, bookings *booking.Store, days DaysCounter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{docs: docs, bookings: bookings, days: days, loc: loc, now: time.Now}
}

type SubmitCommand struct {
	BookingID  types.ID
	CustomerID types.ID
	Rating     float64
	Comment    string
}

// SubmitRating writes the Rating and the Journey's rating and comment in one
// transaction.
func (s *Service) SubmitRating(ctx context.Context, cmd SubmitCommand) (*Rating, error) {
	if math.IsNaN(cmd.Rating) || cmd.Rating < MinStars || cmd.Rating > MaxStars {
		return nil, ErrRatingRange
	}
	comment := strings.TrimSpace(cmd.Comment)
	if utf8.RuneCountInString(comment) > maxCommentRunes {
		return nil, ErrCommentTooLong
	}

	var out Rating
	err := s.docs.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		b, err := s.bookings.GetTx(tx, cmd.BookingID)
		if err != nil {
			return err
		}
		var existing Rating
		err = tx.Get(CollectionRatings, string(cmd.BookingID), &existing)
		rated := err == nil
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		var j settlement.Journey
		err = tx.Get(settlement.CollectionJourneys, string(cmd.BookingID), &j)
		if errors.Is(err, docstore.ErrNotFound) {
			j = *settlement.FromBooking(b)
		} else if err != nil {
			return err
		}

		if b.CustomerID != cmd.CustomerID {
			return ErrNotRideCustomer
		}
		if b.Status != booking.StatusCompleted {
			return ErrNotCompleted
		}
		if rated {
			return ErrAlreadyRated
		}

		now := s.now()
		out = Rating{
			ID:         b.ID,
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			DriverID:   b.DriverID,
			Rating:     cmd.Rating,
			Comment:    comment,
			CreatedAt:  now,
		}
		if err := tx.Create(CollectionRatings, string(out.ID), &out); err != nil {
			return err
		}
		stars := cmd.Rating
		j.Rating = &stars
		j.Comment = comment
		j.RatedAt = &now
		return tx.Set(settlement.CollectionJourneys, string(j.ID), &j)
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return nil, ErrAlreadyRated
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]Rating, error) {
	snaps, err := s.docs.Documents(ctx, docstore.From(CollectionRatings).Where("driverId", "==", string(driverID)))
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[Rating](snaps)
}

// DriverStats folds ratings and completed bookings into summary figures.
// Days worked never drops below 1.
func (s *Service) DriverStats(ctx context.Context, driverID types.ID) (*DriverStats, error) {
	ratings, err := s.ListForDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	completed, err := s.bookings.ListByDriver(ctx, driverID, booking.StatusCompleted)
	if err != nil {
		return nil, err
	}

	st := &DriverStats{
		DriverID:           driverID,
		TotalReviews:       len(ratings),
		TotalCompletedJobs: len(completed),
	}
	if len(ratings) > 0 {
		var sum float64
		for _, r := range ratings {
			sum += r.Rating
		}
		st.AverageRating = math.Round(sum/float64(len(ratings))*100) / 100
	}

	st.DaysWorked = s.daysWorked(ctx, driverID, completed)
	if st.DaysWorked < 1 {
		st.DaysWorked = 1
	}
	st.JobsPerDay = math.Round(float64(st.TotalCompletedJobs)/float64(st.DaysWorked)*100) / 100
	return st, nil
}

func (s *Service) daysWorked(ctx context.Context, driverID types.ID, completed []booking.Booking) int {
	if s.days != nil {
		n, err := s.days.DaysWorked(ctx, driverID)
		if err == nil && n > 0 {
			return n
		}
		if err != nil {
			log.Printf("rating: days worked for %s: %v", driverID, err)
		}
	}
	seen := make(map[time.Time]bool)
	for i := range completed {
		seen[activity.Day(completed[i].FinishedAt(), s.loc)] = true
	}
	return len(seen)
}
