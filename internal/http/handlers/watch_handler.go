// README: Websocket handlers streaming booking, offer and chat snapshots to clients.
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"campusride/internal/docstore"
	"campusride/internal/modules/booking"
	"campusride/internal/modules/chat"
	"campusride/internal/modules/offer"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by cors and the bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotMessage is one frame sent to the client.
type snapshotMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type WatchHandler struct {
	bookings *booking.Service
	offers   *offer.Service
	chat     *chat.Service
}

func NewWatchHandler(bookings *booking.Service, offers *offer.Service, chatSvc *chat.Service) *WatchHandler {
	return &WatchHandler{bookings: bookings, offers: offers, chat: chatSvc}
}

func (h *WatchHandler) Booking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := callerActor(c)
	if _, err := h.bookings.GetFor(c.Request.Context(), id, actor); err != nil {
		writeAppError(c, err)
		return
	}
	serve(c, func(ctx context.Context) (*docstore.Stream[booking.Booking], error) {
		return h.bookings.Watch(ctx, id)
	}, func(list []booking.Booking) (snapshotMessage, bool) {
		if len(list) == 0 {
			return snapshotMessage{Type: "booking"}, true
		}
		b := list[0]
		// A driver loses sight of a booking once another driver is accepted.
		if !booking.VisibleTo(&b, actor) {
			return snapshotMessage{}, false
		}
		return snapshotMessage{Type: "booking", Data: b}, true
	})
}

// OpenBookings streams the list of bookings drivers can still offer on.
func (h *WatchHandler) OpenBookings(c *gin.Context) {
	serve(c, h.bookings.WatchOpen, func(list []booking.Booking) (snapshotMessage, bool) {
		return snapshotMessage{Type: "open_bookings", Data: list}, true
	})
}

func (h *WatchHandler) Offers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := callerActor(c)
	if _, err := h.bookings.GetFor(c.Request.Context(), id, actor); err != nil {
		writeAppError(c, err)
		return
	}
	serve(c, func(ctx context.Context) (*docstore.Stream[offer.Offer], error) {
		return h.offers.Watch(ctx, id)
	}, func(list []offer.Offer) (snapshotMessage, bool) {
		if actor.Type == booking.ActorDriver {
			own := list[:0:0]
			for _, o := range list {
				if o.DriverID == actor.ID {
					own = append(own, o)
				}
			}
			list = own
		}
		return snapshotMessage{Type: "offers", Data: list}, true
	})
}

func (h *WatchHandler) Chat(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.chat.GetFor(c.Request.Context(), id, callerID(c)); err != nil {
		writeAppError(c, err)
		return
	}
	serve(c, func(ctx context.Context) (*docstore.Stream[chat.Message], error) {
		return h.chat.WatchMessages(ctx, id)
	}, func(list []chat.Message) (snapshotMessage, bool) {
		return snapshotMessage{Type: "messages", Data: list}, true
	})
}

// serve upgrades the request and forwards each snapshot until the client
// goes away or the subscription ends.
func serve[T any](c *gin.Context, open func(ctx context.Context) (*docstore.Stream[T], error), frame func([]T) (snapshotMessage, bool)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade %s: %v", c.Request.URL.Path, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	// Reads only detect the client closing; inbound frames are ignored.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	stream, err := open(ctx)
	if err != nil {
		log.Printf("websocket subscribe %s: %v", c.Request.URL.Path, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(writeWait))
		return
	}
	defer stream.Close()

	for {
		list, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, docstore.ErrClosed) {
				log.Printf("websocket stream %s: %v", c.Request.URL.Path, err)
			}
			return
		}
		msg, ok := frame(list)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "no longer visible"), time.Now().Add(writeWait))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
