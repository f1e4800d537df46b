// README: Driver activity log backed by PostgreSQL (one row per worked campus day).
package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/types"
)

type Store struct {
	db  *pgxpool.Pool
	loc *time.Location
}

// NewStore keys days by the calendar of loc.
func NewStore(db *pgxpool.Pool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

// Day truncates at to the start of its calendar day in loc, expressed in UTC
// so the DATE column stores the local date.
func Day(at time.Time, loc *time.Location) time.Time {
	y, m, d := at.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Record counts one completed ride on the driver's local day.
func (s *Store) Record(ctx context.Context, driverID types.ID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_activity (driver_id, day, rides)
		VALUES ($1, $2, 1)
		ON CONFLICT (driver_id, day) DO UPDATE SET rides = driver_activity.rides + 1`,
		string(driverID),
		Day(at, s.loc),
	)
	return err
}

func (s *Store) DaysWorked(ctx context.Context, driverID types.ID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM driver_activity WHERE driver_id = $1`,
		string(driverID),
	).Scan(&n)
	return n, err
}
