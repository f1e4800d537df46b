// README: Matching unit tests covering PickRandomDrivers and booking dispatch.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campusride/internal/config"
	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

// ---------------------------------------------------------------------------
// Unit tests: PickRandomDrivers (pure function, no external dependencies)
// ---------------------------------------------------------------------------

func TestPickRandomDrivers_NormalCase(t *testing.T) {
	pool := makeDriverPool(10)
	selected := PickRandomDrivers(pool, 5)
	if len(selected) != 5 {
		t.Fatalf("expected 5, got %d", len(selected))
	}
	assertSubset(t, pool, selected)
	assertUnique(t, selected)
}

func TestPickRandomDrivers_FewerThanN(t *testing.T) {
	pool := makeDriverPool(3)
	selected := PickRandomDrivers(pool, 10)
	if len(selected) != 3 {
		t.Fatalf("expected all 3, got %d", len(selected))
	}
	assertUnique(t, selected)
}

func TestPickRandomDrivers_EmptyPool(t *testing.T) {
	if got := PickRandomDrivers(nil, 5); len(got) != 0 {
		t.Fatalf("expected 0 from nil pool, got %d", len(got))
	}
	if got := PickRandomDrivers([]types.ID{}, 5); len(got) != 0 {
		t.Fatalf("expected 0 from empty pool, got %d", len(got))
	}
}

func TestPickRandomDrivers_NonPositiveN(t *testing.T) {
	pool := makeDriverPool(5)
	for _, n := range []int{0, -1} {
		if got := PickRandomDrivers(pool, n); len(got) != 0 {
			t.Fatalf("expected 0 for n=%d, got %d", n, len(got))
		}
	}
}

func TestPickRandomDrivers_DoesNotMutatePool(t *testing.T) {
	pool := makeDriverPool(5)
	orig := make([]types.ID, len(pool))
	copy(orig, pool)
	PickRandomDrivers(pool, 3)
	for i, d := range pool {
		if d != orig[i] {
			t.Fatalf("pool mutated at index %d: got %s, want %s", i, d, orig[i])
		}
	}
}

// TestPickRandomDrivers_Distribution verifies that over many runs each driver is selected
// with roughly uniform probability.
func TestPickRandomDrivers_Distribution(t *testing.T) {
	pool := makeDriverPool(10)
	counts := make(map[types.ID]int, len(pool))
	const runs = 1000
	const pick = 5
	for i := 0; i < runs; i++ {
		for _, d := range PickRandomDrivers(pool, pick) {
			counts[d]++
		}
	}
	// Allow generous bounds (±60%) to avoid flakiness.
	expected := runs * pick / len(pool)
	lo, hi := expected*40/100, expected*160/100
	for _, d := range pool {
		c := counts[d]
		if c < lo || c > hi {
			t.Errorf("driver %s appeared %d times, want roughly %d (+/-60%%)", d, c, expected)
		}
	}
}

func TestPickRandomDrivers_Concurrent(t *testing.T) {
	pool := makeDriverPool(20)
	const goroutines = 8
	var wg sync.WaitGroup
	results := make(chan []types.ID, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- PickRandomDrivers(pool, 5)
		}()
	}
	wg.Wait()
	close(results)
	for sel := range results {
		if len(sel) != 5 {
			t.Fatalf("expected 5, got %d", len(sel))
		}
		assertUnique(t, sel)
		assertSubset(t, pool, sel)
	}
}

// ---------------------------------------------------------------------------
// Dispatch logic with an in-memory pool and notifier
// ---------------------------------------------------------------------------

type mockPool struct {
	mu        sync.Mutex
	positions map[types.ID]types.Point
	claimed   map[types.ID]bool
	notified  map[types.ID][]types.ID
	nearby    []types.ID
	err       error
}

func newMockPool(nearby []types.ID) *mockPool {
	return &mockPool{
		positions: make(map[types.ID]types.Point),
		claimed:   make(map[types.ID]bool),
		notified:  make(map[types.ID][]types.ID),
		nearby:    nearby,
	}
}

func (m *mockPool) SetDriverLocation(_ context.Context, a Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[a.DriverID] = a.Position
	return nil
}

func (m *mockPool) RemoveDriver(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, id)
	return nil
}

func (m *mockPool) NearbyDrivers(_ context.Context, _ types.Point, _ float64, limit int) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cp := make([]types.ID, len(m.nearby))
	copy(cp, m.nearby)
	if limit > 0 && len(cp) > limit {
		cp = cp[:limit]
	}
	return cp, nil
}

func (m *mockPool) ClaimDispatch(_ context.Context, bookingID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[bookingID] {
		return false, nil
	}
	m.claimed[bookingID] = true
	return true, nil
}

func (m *mockPool) RecordNotified(_ context.Context, bookingID types.ID, ids []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[bookingID] = append(m.notified[bookingID], ids...)
	return nil
}

func (m *mockPool) NotifiedDrivers(_ context.Context, bookingID types.ID) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ID(nil), m.notified[bookingID]...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	newFor []types.ID
	closed []types.ID
}

func (r *recordingNotifier) NewBooking(_ context.Context, driverID types.ID, _ booking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newFor = append(r.newFor, driverID)
}

func (r *recordingNotifier) BookingClosed(_ context.Context, driverID types.ID, _ booking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, driverID)
}

func newTestCfg() config.MatchingConfig {
	return config.MatchingConfig{RadiusKm: 3.0, NotifyCount: 5}
}

func pendingBooking(id types.ID) booking.Booking {
	return booking.Booking{
		ID:         id,
		CustomerID: "cust_1",
		Status:     booking.StatusPending,
		Pickup:     booking.Place{Label: "Kolej Kediaman", Point: types.Point{Lat: 1.5593, Lng: 103.6376}},
	}
}

func TestDispatchNotifiesAtMostNotifyCount(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(makeDriverPool(10))
	n := &recordingNotifier{}
	svc := NewService(pool, n, newTestCfg())

	selected, err := svc.Dispatch(ctx, pendingBooking("bk_1"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(selected) != 5 {
		t.Fatalf("expected 5 drivers, got %d", len(selected))
	}
	assertUnique(t, selected)
	if len(n.newFor) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(n.newFor))
	}
	if got := len(pool.notified["bk_1"]); got != 5 {
		t.Fatalf("expected 5 recorded drivers, got %d", got)
	}
}

func TestDispatchRunsOncePerBooking(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(makeDriverPool(3))
	n := &recordingNotifier{}
	svc := NewService(pool, n, newTestCfg())

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = svc.Dispatch(ctx, pendingBooking("bk_once"))
		}()
	}
	close(start)
	wg.Wait()

	if len(n.newFor) != 3 {
		t.Fatalf("expected 3 notifications across racing dispatches, got %d", len(n.newFor))
	}
}

func TestDispatchSkipsTheCustomer(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool([]types.ID{"cust_1", "driver_a"})
	svc := NewService(pool, &recordingNotifier{}, newTestCfg())

	selected, err := svc.Dispatch(ctx, pendingBooking("bk_self"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(selected) != 1 || selected[0] != "driver_a" {
		t.Fatalf("expected only driver_a, got %v", selected)
	}
}

func TestDispatchPropagatesPoolErrors(t *testing.T) {
	pool := newMockPool(nil)
	pool.err = errors.New("redis down")
	svc := NewService(pool, &recordingNotifier{}, newTestCfg())
	if _, err := svc.Dispatch(context.Background(), pendingBooking("bk_err")); err == nil {
		t.Fatal("expected error from pool")
	}
}

func TestObserveDispatchesNewBookingAndClosesOut(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool([]types.ID{"driver_a", "driver_b"})
	n := &recordingNotifier{}
	svc := NewService(pool, n, newTestCfg())
	pool.positions["driver_a"] = types.Point{Lat: 1, Lng: 1}

	created := pendingBooking("bk_obs")
	svc.Observe(ctx, booking.Change{After: created, Actor: booking.Customer("cust_1"), At: time.Now()})
	if len(n.newFor) != 2 {
		t.Fatalf("expected 2 new booking notifications, got %d", len(n.newFor))
	}

	accepted := created
	accepted.Status = booking.StatusAccepted
	accepted.DriverID = "driver_a"
	svc.Observe(ctx, booking.Change{Before: created, After: accepted, Actor: booking.Customer("cust_1"), At: time.Now()})

	if len(n.closed) != 1 || n.closed[0] != "driver_b" {
		t.Fatalf("expected only driver_b to hear the booking closed, got %v", n.closed)
	}
	if _, ok := pool.positions["driver_a"]; ok {
		t.Fatal("accepted driver should leave the pool")
	}
}

func TestObserveIgnoresNonStatusWrites(t *testing.T) {
	pool := newMockPool(makeDriverPool(3))
	n := &recordingNotifier{}
	svc := NewService(pool, n, newTestCfg())
	b := pendingBooking("bk_quiet")
	b.Status = booking.StatusOngoing
	after := b
	after.DriverArrived = true
	svc.Observe(context.Background(), booking.Change{Before: b, After: after})
	if len(n.newFor)+len(n.closed) != 0 {
		t.Fatal("expected no notifications")
	}
}

func TestUpdateLocationValidates(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(nil)
	svc := NewService(pool, nil, newTestCfg())

	if err := svc.UpdateLocation(ctx, "", types.Point{Lat: 1, Lng: 1}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.UpdateLocation(ctx, "driver_a", types.Point{}); !errors.Is(err, ErrMissingPosition) {
		t.Fatalf("expected ErrMissingPosition, got %v", err)
	}
	if err := svc.UpdateLocation(ctx, "driver_a", types.Point{Lat: 1.55, Lng: 103.63}); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if err := svc.GoOffline(ctx, "driver_a"); err != nil {
		t.Fatalf("go offline: %v", err)
	}
	if len(pool.positions) != 0 {
		t.Fatal("expected driver removed")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func makeDriverPool(n int) []types.ID {
	pool := make([]types.ID, n)
	for i := range pool {
		pool[i] = types.ID(fmt.Sprintf("driver_%d", i))
	}
	return pool
}

func assertSubset(t *testing.T, pool, subset []types.ID) {
	t.Helper()
	set := make(map[types.ID]bool, len(pool))
	for _, d := range pool {
		set[d] = true
	}
	for _, d := range subset {
		if !set[d] {
			t.Errorf("selected driver %s not in pool", d)
		}
	}
}

func assertUnique(t *testing.T, ids []types.ID) {
	t.Helper()
	seen := make(map[types.ID]bool, len(ids))
	for _, d := range ids {
		if seen[d] {
			t.Errorf("duplicate driver ID %s", d)
		}
		seen[d] = true
	}
}
