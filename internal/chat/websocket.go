package chat

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/ashureev/portfolio/internal/identity"
)

const maxInboundMessageSize = 64 << 10

// WebSocketOptions tune the chat transport.
type WebSocketOptions struct {
	AllowedOrigin     string
	IsDev             bool
	QueueSize         int
	MessagesPerSecond float64
	MessageBurst      int
	WriteTimeout      time.Duration
}

// WebSocketHandler serves the chat widget over WebSocket.
type WebSocketHandler struct {
	svc      *Service
	registry *Registry
	opts     WebSocketOptions
}

// NewWebSocketHandler creates a handler that registers each connection in
// registry and dispatches its messages through svc.
func NewWebSocketHandler(svc *Service, registry *Registry, opts WebSocketOptions) *WebSocketHandler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 1
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 5
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WebSocketHandler{svc: svc, registry: registry, opts: opts}
}

// wsSink writes encoded messages to the connection. Writes use their own
// timeout because a canceled write closes the connection.
type wsSink struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (s *wsSink) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, Encode(msg))
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitor := identity.VisitorIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitor)
		return
	}
	ws.SetReadLimit(maxInboundMessageSize)

	id := h.registry.Register(&wsSink{conn: ws, timeout: h.opts.WriteTimeout}, visitor)
	sess, _ := h.registry.Lookup(id)
	h.svc.observer.ConnectionOpened()
	slog.Info("Chat client connected", "conn_id", id, "visitor_id", visitor, "ip", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	queue := make(chan Message, h.opts.QueueSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range queue {
			h.svc.Dispatch(ctx, sess, msg)
		}
	}()

	h.readLoop(ctx, ws, sess, queue)

	h.registry.Unregister(id)
	cancel()
	close(queue)
	wg.Wait()
	h.svc.EndConversation(sess)
	h.svc.observer.ConnectionClosed()

	if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", id)
	}
	slog.Info("Chat client disconnected", "conn_id", id)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

// readLoop decodes inbound frames and hands them to the session worker in
// arrival order.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *Session, queue chan<- Message) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.MessageBurst)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "conn_id", sess.ID())
			} else {
				slog.Debug("WebSocket read ended", "conn_id", sess.ID(), "error", err)
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			h.svc.RejectMalformed(sess, err)
			continue
		}

		if _, isChat := msg.(ChatMessage); isChat && !limiter.Allow() {
			h.svc.emit(sess, ErrorMessage{Message: "Too many messages, please slow down"})
			continue
		}

		select {
		case queue <- msg:
		default:
			h.svc.emit(sess, ErrorMessage{Message: "Still working on your previous messages, please wait"})
		}
	}
}
