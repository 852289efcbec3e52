// Package statusfeed exposes the interaction loop's status events over a
// WebSocket endpoint. Each connected client receives every StatusEvent as a
// JSON text frame, in publish order, for dashboards and debugging tools.
package statusfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/hearsay-ai/hearsay/internal/talk"
)

// writeTimeout bounds one frame write so a stalled client cannot pin the
// handler goroutine.
const writeTimeout = 5 * time.Second

// Handler serves the status feed. Create with NewHandler and mount it on an
// HTTP mux.
type Handler struct {
	hub    *talk.EventHub
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a Handler streaming events from hub.
func NewHandler(hub *talk.EventHub, opts ...Option) *Handler {
	h := &Handler{hub: hub, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request to a WebSocket and streams status events
// until the client disconnects or the hub closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		h.logger.Warn("status feed accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send data; CloseRead keeps control frames serviced and
	// cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	events, cancel := h.hub.Subscribe()
	defer cancel()

	h.logger.Debug("status feed client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "feed closed")
				return
			}
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("status feed client dropped", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, ev talk.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
