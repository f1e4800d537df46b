// README: Booking state audit log backed by PostgreSQL.
package booking

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/types"
)

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  ActorType
	ActorID    *types.ID
	CreatedAt  time.Time
}

// EventLog appends one row per status change. It is an Observer, so write
// failures are logged and never reach the caller.
type EventLog struct {
	db *pgxpool.Pool
}

func NewEventLog(db *pgxpool.Pool) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Append(ctx context.Context, e *Event) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO booking_state_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		statusLabel(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorType),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (l *EventLog) List(ctx context.Context, bookingID types.ID) ([]Event, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_type, actor_id, created_at
		FROM booking_state_events
		WHERE booking_id = $1
		ORDER BY id`, string(bookingID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var id, from, to, actorType string
		var actorID *string
		if err := rows.Scan(&e.ID, &id, &from, &to, &actorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.BookingID = types.ID(id)
		e.FromStatus = Status(from)
		if from == "NONE" {
			e.FromStatus = StatusNone
		}
		e.ToStatus = Status(to)
		e.ActorType = ActorType(actorType)
		if actorID != nil {
			v := types.ID(*actorID)
			e.ActorID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *EventLog) Observe(ctx context.Context, c Change) {
	if !c.StatusChanged() {
		return
	}
	e := &Event{
		BookingID:  c.After.ID,
		FromStatus: c.From(),
		ToStatus:   c.To(),
		ActorType:  c.Actor.Type,
		CreatedAt:  c.At,
	}
	if c.Actor.ID != "" {
		id := c.Actor.ID
		e.ActorID = &id
	}
	if err := l.Append(context.WithoutCancel(ctx), e); err != nil {
		log.Printf("booking %s: append event: %v", c.After.ID, err)
	}
}

func toStringPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
