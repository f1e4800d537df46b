package activity

import (
	"context"
	"testing"
	"time"

	"campusride/internal/pgtest"
)

func TestDayUsesCampusCalendar(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 17:30 UTC is 01:30 the next day in Malaysia.
	at := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)
	got := Day(at, loc)
	want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Day = %v, want %v", got, want)
	}
}

func TestRecordAndDaysWorked(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t, "driver_activity")
	s := NewStore(db, time.UTC)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{base, base.Add(2 * time.Hour), base.Add(24 * time.Hour)} {
		if err := s.Record(ctx, "d1", at); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.Record(ctx, "d2", base); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := s.DaysWorked(ctx, "d1")
	if err != nil {
		t.Fatalf("days worked: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 days, got %d", n)
	}
	n, err = s.DaysWorked(ctx, "nobody")
	if err != nil {
		t.Fatalf("days worked: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 days, got %d", n)
	}
}
