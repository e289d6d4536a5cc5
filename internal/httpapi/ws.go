package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"taskrouter/internal/eventbus"
)

// wsUpgrader allows any origin: this endpoint carries no credentials beyond
// what CORSMiddleware already governs for the rest of the API, and it is
// read-only.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEventFrame is the websocket sibling of the SSE "event: <type>\ndata:
// <json>" frame, used by `taskrouterd watch --remote` instead of the SSE
// firehose, since a raw TCP websocket survives the kind of restrictive
// outbound proxy that strips chunked text/event-stream bodies.
type wsEventFrame struct {
	Type      eventbus.Type  `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// eventsWS is the websocket counterpart of streamEvents: same global
// firehose, framed as JSON text messages instead of SSE. It exists solely
// to give the watch dashboard's --remote mode a transport; the primary
// HTTP client surface (spec §6) is the SSE endpoint.
func (h *handlers) eventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan eventbus.Event, 64)
	unsubscribe := h.deps.Bus.Subscribe(func(evt eventbus.Event) {
		select {
		case events <- evt:
		default:
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	ticker := time.NewTicker(h.sseKeepalive)
	defer ticker.Stop()

	// Drain client-initiated close/control frames on their own goroutine so
	// the write loop below isn't blocked waiting on a read it doesn't need.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			frame := wsEventFrame{Type: evt.Type, Payload: evt.Payload, Timestamp: evt.Timestamp}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
