package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wheelhouse/internal/events"
)

// EventsStreamHandler streams core events over a websocket so the UI
// can react to trades, cycle transitions and signals live.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the events stream handler
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("handler", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin UI plus local dev tools
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// Reads are only needed to notice the peer going away
	ctx := conn.CloseRead(r.Context())

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case evt, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}

			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed, closing")
				return
			}
		}
	}
}
