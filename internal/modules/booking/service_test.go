// README: Booking service tests against the in-memory realtime store.
package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/modules/pricing"
	"campusride/internal/types"
)

var (
	kolej = Place{Label: "Kolej Tun Dr Ismail", Point: types.Point{Lat: 1.5580, Lng: 103.6300}}
	fkm   = Place{Label: "Faculty of Mechanical Engineering", Point: types.Point{Lat: 1.5620, Lng: 103.6390}}
)

func newTestService(t *testing.T) (*Service, *docstore.Memory) {
	t.Helper()
	mem := docstore.NewMemory()
	quotes := pricing.NewService(
		pricing.Bounds{Min: 300, Max: 1200, Currency: "MYR"},
		pricing.Rate{BaseFare: 300, PerKm: 100},
	)
	return NewService(NewStore(mem), quotes, nil), mem
}

func createBooking(t *testing.T, svc *Service, customer types.ID) *Booking {
	t.Helper()
	b, err := svc.Create(context.Background(), CreateCommand{
		CustomerID: customer,
		Pickup:     kolej,
		Dropoff:    fkm,
		SeatType:   SeatFour,
	})
	require.NoError(t, err)
	return b
}

// forceStatus moves a booking along the graph as the system actor.
func forceStatus(t *testing.T, svc *Service, id types.ID, driver types.ID, to ...Status) {
	t.Helper()
	for _, st := range to {
		st := st
		_, err := svc.Apply(context.Background(), id, System, func(_ context.Context, _ docstore.Tx, b *Booking) error {
			if driver != "" {
				b.DriverID = driver
			}
			b.Status = st
			return nil
		})
		require.NoError(t, err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		cmd  CreateCommand
		want error
	}{
		{"no customer", CreateCommand{Pickup: kolej, Dropoff: fkm, SeatType: SeatFour}, ErrUnauthenticated},
		{"no pickup", CreateCommand{CustomerID: "c1", Dropoff: fkm, SeatType: SeatFour}, ErrMissingCoordinates},
		{"no dropoff", CreateCommand{CustomerID: "c1", Pickup: kolej, SeatType: SeatFour}, ErrMissingCoordinates},
		{"bad seat", CreateCommand{CustomerID: "c1", Pickup: kolej, Dropoff: fkm, SeatType: "bus"}, ErrInvalidSeatType},
		{"bad payment", CreateCommand{CustomerID: "c1", Pickup: kolej, Dropoff: fkm, SeatType: SeatSix, PaymentMethod: "CARD"}, ErrInvalidPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestCreateInitialState(t *testing.T) {
	svc, _ := newTestService(t)
	b := createBooking(t, svc, "c1")

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, 0, b.StatusVersion)
	assert.Empty(t, b.DriverID)
	assert.Equal(t, PaymentCash, b.PaymentMethod)
	assert.Equal(t, PaymentPending, b.PaymentStatus)
	assert.Greater(t, b.DistanceKm, 0.0)
	assert.NotEmpty(t, b.DistanceText)
	assert.GreaterOrEqual(t, b.SuggestedFare.Amount, int64(300))

	got, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, kolej.Label, got.Pickup.Label)
}

func TestCreateRejectsSecondActiveBooking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	first := createBooking(t, svc, "c1")

	_, err := svc.Create(ctx, CreateCommand{CustomerID: "c1", Pickup: kolej, Dropoff: fkm, SeatType: SeatFour})
	assert.ErrorIs(t, err, ErrActiveBooking)
	assert.True(t, apperr.IsConflict(err))

	// another customer is unaffected
	createBooking(t, svc, "c2")

	active, err := svc.ActiveForCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = svc.Cancel(ctx, first.ID, "c1")
	require.NoError(t, err)
	_, err = svc.ActiveForCustomer(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	second := createBooking(t, svc, "c1")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCompletedBookingReleasesActiveSlot(t *testing.T) {
	svc, _ := newTestService(t)
	b := createBooking(t, svc, "c1")
	forceStatus(t, svc, b.ID, "d1", StatusAccepted, StatusOngoing, StatusCompleted)

	next := createBooking(t, svc, "c1")
	assert.Equal(t, StatusPending, next.Status)
}

func TestCancelOnlyByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := createBooking(t, svc, "c1")

	_, err := svc.Cancel(ctx, b.ID, "c2")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, apperr.IsForbidden(err))

	_, err = svc.UpdateStatus(ctx, StatusCommand{BookingID: b.ID, To: StatusCancelledByCustomer, Actor: Driver("d1")})
	assert.ErrorIs(t, err, ErrNotOwner)

	got, err := svc.Cancel(ctx, b.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByCustomer, got.Status)
	assert.Equal(t, 1, got.StatusVersion)
	assert.NotNil(t, got.CancelledAt)

	// terminal: a second cancel is an illegal transition
	_, err = svc.Cancel(ctx, b.ID, "c1")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.True(t, apperr.IsConflict(err))
}

func TestUpdateStatusGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := createBooking(t, svc, "c1")

	_, err := svc.UpdateStatus(ctx, StatusCommand{BookingID: b.ID, To: StatusAccepted, Actor: Driver("d1")})
	assert.ErrorIs(t, err, ErrAcceptViaOffer)

	_, err = svc.UpdateStatus(ctx, StatusCommand{BookingID: b.ID, To: "FLYING", Actor: System})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// no driver assigned yet
	_, err = svc.Start(ctx, b.ID, "d1")
	assert.ErrorIs(t, err, ErrNotAssignedDriver)

	_, err = svc.UpdateStatus(ctx, StatusCommand{BookingID: "missing", To: StatusOngoing, Actor: System})
	assert.ErrorIs(t, err, ErrNotFound)

	forceStatus(t, svc, b.ID, "d1", StatusAccepted)

	_, err = svc.Start(ctx, b.ID, "d2")
	assert.ErrorIs(t, err, ErrNotAssignedDriver)

	_, err = svc.UpdateStatus(ctx, StatusCommand{BookingID: b.ID, To: StatusCompleted, Actor: Driver("d1")})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	got, err := svc.Start(ctx, b.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, got.Status)
	assert.NotNil(t, got.StartedAt)

	// cannot cancel once the ride has started
	_, err = svc.Cancel(ctx, b.ID, "c1")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestStatusVersionIncrementsPerTransition(t *testing.T) {
	svc, _ := newTestService(t)
	b := createBooking(t, svc, "c1")
	forceStatus(t, svc, b.ID, "d1", StatusAccepted, StatusOngoing)

	got, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StatusVersion)
}

func TestMarkDriverArrived(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := createBooking(t, svc, "c1")

	_, err := svc.MarkDriverArrived(ctx, b.ID, "d1")
	assert.ErrorIs(t, err, ErrNotAssignedDriver)

	forceStatus(t, svc, b.ID, "d1", StatusAccepted)
	_, err = svc.MarkDriverArrived(ctx, b.ID, "d2")
	assert.ErrorIs(t, err, ErrNotAssignedDriver)

	got, err := svc.MarkDriverArrived(ctx, b.ID, "d1")
	require.NoError(t, err)
	assert.True(t, got.DriverArrived)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Equal(t, 1, got.StatusVersion, "arrival is not a status change")
}

type failingHook struct{ err error }

func (h failingHook) BeforeCommit(context.Context, docstore.Tx, Change) error { return h.err }

func TestHookFailureAbortsTransition(t *testing.T) {
	svc, _ := newTestService(t)
	boom := errors.New("boom")
	svc.Hook(failingHook{err: boom})
	b := createBooking(t, svc, "c1")

	_, err := svc.Cancel(context.Background(), b.ID, "c1")
	assert.ErrorIs(t, err, boom)

	got, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.StatusVersion)

	// marker still held
	_, err = svc.ActiveForCustomer(context.Background(), "c1")
	assert.NoError(t, err)
}

func TestObserversSeeCommittedChanges(t *testing.T) {
	svc, _ := newTestService(t)
	var mu sync.Mutex
	var seen []Change
	svc.Observe(ObserverFunc(func(_ context.Context, c Change) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	}))

	b := createBooking(t, svc, "c1")
	_, err := svc.Cancel(context.Background(), b.ID, "c2")
	require.Error(t, err)
	_, err = svc.Cancel(context.Background(), b.ID, "c1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2, "failed writes are not observed")
	assert.Equal(t, StatusNone, seen[0].From())
	assert.Equal(t, StatusPending, seen[0].To())
	assert.Equal(t, StatusPending, seen[1].From())
	assert.Equal(t, StatusCancelledByCustomer, seen[1].To())
	assert.Equal(t, Customer("c1"), seen[1].Actor)
}

func TestGetForVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := createBooking(t, svc, "c1")

	_, err := svc.GetFor(ctx, b.ID, Customer("c2"))
	assert.True(t, apperr.IsForbidden(err))
	_, err = svc.GetFor(ctx, b.ID, Driver("d1"))
	assert.NoError(t, err)
}

func TestListOpenAndCompletedByDriver(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := createBooking(t, svc, "c1")
	b := createBooking(t, svc, "c2")
	createBooking(t, svc, "c3")
	forceStatus(t, svc, a.ID, "d1", StatusAccepted, StatusOngoing, StatusCompleted)
	forceStatus(t, svc, b.ID, "d1", StatusAccepted)

	open, err := svc.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	done, err := svc.CompletedByDriver(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, a.ID, done[0].ID)
}

func TestWatchDeliversStatusChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc, _ := newTestService(t)
	b := createBooking(t, svc, "c1")

	stream, err := svc.Watch(ctx, b.ID)
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, StatusPending, first[0].Status)

	_, err = svc.Cancel(ctx, b.ID, "c1")
	require.NoError(t, err)

	next, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, StatusCancelledByCustomer, next[0].Status)
}
