package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusride/internal/modules/booking"
	"campusride/internal/modules/chat"
	"campusride/internal/modules/profile"
	"campusride/internal/types"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.Token, nil
}

func (f *fakeSender) byToken() map[string][]*messaging.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]*messaging.Message)
	for _, m := range f.sent {
		out[m.Token] = append(out[m.Token], m)
	}
	return out
}

type fakeTokens map[types.ID]string

func (f fakeTokens) Lookup(_ context.Context, uid types.ID) (*profile.Profile, error) {
	tok, ok := f[uid]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return &profile.Profile{UID: uid, FCMToken: tok}, nil
}

func newTestDispatcher() (*Dispatcher, *fakeSender) {
	s := &fakeSender{}
	d := NewDispatcher(s, fakeTokens{
		"cust_1":   "tok-cust",
		"driver_a": "tok-a",
		"driver_b": "tok-b",
		"no_token": "",
	})
	return d, s
}

func sampleBooking() booking.Booking {
	return booking.Booking{
		ID:            "bk_1",
		CustomerID:    "cust_1",
		DriverID:      "driver_a",
		Pickup:        booking.Place{Label: "Kolej Tun Dr Ismail", Point: types.Point{Lat: 1.5593, Lng: 103.6376}},
		Dropoff:       booking.Place{Label: "FKM", Point: types.Point{Lat: 1.5610, Lng: 103.6470}},
		SuggestedFare: types.FromMajor(5, "MYR"),
		OfferedFare:   types.FromMajor(6.5, "MYR"),
	}
}

func TestNotifySendsToProfileToken(t *testing.T) {
	d, s := newTestDispatcher()
	d.Notify(context.Background(), "cust_1", Notification{Title: "hi", Body: "there", Data: map[string]string{"k": "v"}})
	d.Wait()

	sent := s.byToken()["tok-cust"]
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Notification.Title)
	assert.Equal(t, "v", sent[0].Data["k"])
	assert.Equal(t, "high", sent[0].Android.Priority)
}

func TestNotifySkipsMissingTokensAndSwallowsErrors(t *testing.T) {
	d, s := newTestDispatcher()
	ctx := context.Background()
	d.Notify(ctx, "no_token", Notification{Title: "x"})
	d.Notify(ctx, "unknown", Notification{Title: "x"})
	d.Notify(ctx, "", Notification{Title: "x"})
	d.Wait()
	assert.Empty(t, s.byToken())

	s.err = errors.New("fcm down")
	d.Notify(ctx, "cust_1", Notification{Title: "x"})
	d.Wait()
	assert.Empty(t, s.byToken())
}

func TestNotifyOutlivesCallerContext(t *testing.T) {
	d, s := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, "cust_1", Notification{Title: "x"})
	cancel()
	d.Wait()
	assert.Len(t, s.byToken()["tok-cust"], 1)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Notify(context.Background(), "cust_1", Notification{Title: "x"})
}

func TestObserveStatusTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  booking.Status
		to    booking.Status
		token string
	}{
		{"offered goes to customer", booking.StatusPending, booking.StatusOffered, "tok-cust"},
		{"accepted goes to driver", booking.StatusOffered, booking.StatusAccepted, "tok-a"},
		{"started goes to customer", booking.StatusAccepted, booking.StatusOngoing, "tok-cust"},
		{"completed goes to customer", booking.StatusOngoing, booking.StatusCompleted, "tok-cust"},
		{"cancel goes to driver", booking.StatusAccepted, booking.StatusCancelledByCustomer, "tok-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, s := newTestDispatcher()
			before, after := sampleBooking(), sampleBooking()
			before.Status, after.Status = tc.from, tc.to
			d.Observe(context.Background(), booking.Change{Before: before, After: after})
			d.Wait()

			got := s.byToken()
			require.Len(t, got, 1)
			require.Len(t, got[tc.token], 1)
			assert.Equal(t, string(tc.to), got[tc.token][0].Data["status"])
		})
	}
}

func TestObserveCreateAndOpenCancelAreSilent(t *testing.T) {
	d, s := newTestDispatcher()
	b := sampleBooking()
	b.DriverID = ""
	b.Status = booking.StatusPending
	d.Observe(context.Background(), booking.Change{After: b})

	cancelled := b
	cancelled.Status = booking.StatusCancelledByCustomer
	d.Observe(context.Background(), booking.Change{Before: b, After: cancelled})
	d.Wait()
	assert.Empty(t, s.byToken())
}

func TestObserveDriverArrived(t *testing.T) {
	d, s := newTestDispatcher()
	before := sampleBooking()
	before.Status = booking.StatusAccepted
	after := before
	after.DriverArrived = true
	d.Observe(context.Background(), booking.Change{Before: before, After: after})
	d.Wait()

	sent := s.byToken()["tok-cust"]
	require.Len(t, sent, 1)
	assert.Equal(t, TypeDriverArrived, sent[0].Data["type"])
}

func TestDispatchMessages(t *testing.T) {
	d, s := newTestDispatcher()
	ctx := context.Background()
	b := sampleBooking()
	d.NewBooking(ctx, "driver_b", b)
	d.BookingClosed(ctx, "driver_a", b)
	d.Wait()

	got := s.byToken()
	require.Len(t, got["tok-b"], 1)
	assert.Equal(t, TypeNewBooking, got["tok-b"][0].Data["type"])
	assert.Equal(t, "5.00", got["tok-b"][0].Data["suggested_fare"])
	require.Len(t, got["tok-a"], 1)
	assert.Equal(t, TypeBookingClosed, got["tok-a"][0].Data["type"])
}

func TestMessageSentGoesToCounterpart(t *testing.T) {
	d, s := newTestDispatcher()
	room := chat.Room{
		ID:        "bk_1",
		BookingID: "bk_1",
		Customer:  chat.Participant{ID: "cust_1", Name: "Aisyah"},
		Driver:    chat.Participant{ID: "driver_a", Name: "Hafiz"},
		IsActive:  true,
	}
	d.MessageSent(context.Background(), room, chat.Message{ID: "m1", SenderID: "cust_1", SenderRole: chat.RoleCustomer, Text: "at the gate"})
	d.Wait()

	sent := s.byToken()["tok-a"]
	require.Len(t, sent, 1)
	assert.Equal(t, "Aisyah", sent[0].Notification.Title)
	assert.Equal(t, "at the gate", sent[0].Notification.Body)
}
