package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"Athernet/internel/syncutil"
)

type client struct {
	conn *websocket.Conn
	send chan Event
}

// writePump forwards queued events to the websocket connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for e := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.conn.WriteJSON(e); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub broadcasts events to every connected websocket viewer. Slow viewers
// lose events instead of blocking the link.
type Hub struct {
	// Stats, when set, is served as JSON on /stats.
	Stats func() any

	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      syncutil.Mutex
	clients map[*client]bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log: log.With("layer", "telemetry"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]bool),
	}
}

func (h *Hub) Emit(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, 256)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.Info("viewer connected", "remote", r.RemoteAddr)

	go c.writePump()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		h.mu.Unlock()
		h.log.Info("viewer disconnected", "remote", r.RemoteAddr)
	}()

	// read pump: viewers send nothing useful, but reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RegisterRoutes mounts the websocket feed and, when Stats is set, a JSON
// snapshot of the link counters.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeHTTP)
	r.Get("/stats", h.stats)
}

func (h *Hub) stats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats()); err != nil {
		h.log.Warn("encode stats", "err", err)
	}
}

// Close disconnects every viewer. Websocket connections are hijacked, so
// shutting down the HTTP server does not reach them.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown")
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// Serve listens on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.serve(ctx, ln)
}

func (h *Hub) serve(ctx context.Context, ln net.Listener) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	srv.RegisterOnShutdown(h.Close)

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	h.log.Info("telemetry server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
