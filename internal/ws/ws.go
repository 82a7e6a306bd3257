// Package ws pushes change notifications to connected clients over
// WebSocket. Each connection is bound to the authenticated user's sync
// session: whenever the session's mirror changes, the client receives a
// "trips_changed" message and refetches over REST. No trip data travels
// over the socket itself.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	wslib "github.com/coder/websocket"

	"tripbook/internal/auth"
	"tripbook/internal/tripsync"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// changedMessage is the only message the server sends.
var changedMessage = []byte(`{"type":"trips_changed"}`)

// Handler upgrades requests to WebSocket and streams change notifications.
type Handler struct {
	sessions *tripsync.Manager
	log      *slog.Logger
	origins  []string
}

// NewHandler constructs a Handler. allowedOrigins mirrors the CORS config;
// the upgrade is refused for other origins.
func NewHandler(sessions *tripsync.Manager, allowedOrigins []string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sessions: sessions, log: log, origins: allowedOrigins}
}

// ServeHTTP implements http.Handler. It expects to run behind the auth
// middleware, which validates the token from the "token" query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	svc, err := h.sessions.Session(r.Context(), userID)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := wslib.Accept(w, r, &wslib.AcceptOptions{
		OriginPatterns: OriginPatterns(h.origins),
	})
	if err != nil {
		h.log.Warn("websocket accept", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	unsubscribe := svc.Subscribe(func() {
		// Drop the notification if the client is too far behind; the next
		// one resynchronises it anyway.
		select {
		case c.send <- changedMessage:
		default:
		}
	})
	defer unsubscribe()

	h.log.Debug("websocket connected", "user_id", userID)
	c.run(r.Context())
	h.log.Debug("websocket closed", "user_id", userID)
}

// OriginPatterns converts full origins ("https://app.example.com") into the
// host patterns coder/websocket matches against.
func OriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		for _, prefix := range []string{"https://", "http://"} {
			if len(o) > len(prefix) && o[:len(prefix)] == prefix {
				o = o[len(prefix):]
				break
			}
		}
		out = append(out, o)
	}
	return out
}

// client is a single WebSocket connection.
type client struct {
	conn *wslib.Conn
	send chan []byte
}

// run starts the write pump and blocks in the read pump until the
// connection closes.
func (c *client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close(wslib.StatusNormalClosure, "")

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump reads and discards incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the send channel and pings periodically to detect stale
// connections.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, wslib.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
