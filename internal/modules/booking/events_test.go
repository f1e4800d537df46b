package booking

import (
	"context"
	"testing"
	"time"

	"campusride/internal/pgtest"
)

func TestEventLogRecordsStatusChanges(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t, "booking_state_events")
	log := NewEventLog(db)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := Booking{ID: "b_evt", CustomerID: "c1", Status: StatusPending}
	log.Observe(ctx, Change{After: b, Actor: Customer("c1"), At: at})

	// not a status change
	arrived := b
	arrived.DriverArrived = true
	log.Observe(ctx, Change{Before: b, After: arrived, Actor: Driver("d1"), At: at})

	cancelled := b
	cancelled.Status = StatusCancelledByCustomer
	log.Observe(ctx, Change{Before: b, After: cancelled, Actor: Customer("c1"), At: at.Add(time.Minute)})

	events, err := log.List(ctx, "b_evt")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].FromStatus != StatusNone || events[0].ToStatus != StatusPending {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].ToStatus != StatusCancelledByCustomer || events[1].ActorID == nil || *events[1].ActorID != "c1" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}
