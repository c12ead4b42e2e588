// Package transport hosts the WebSocket connection handler that binds one
// client connection to a session, enforces per-connection rate limiting and
// envelope validation, and feeds accepted envelopes to the conductor (spec
// §4.7). Grounded on the teacher's internal/gateway/ws_control_plane.go
// connection-handling skeleton, stripped of its gRPC/proto/auth coupling.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/voiceconductor/internal/config"
	"github.com/haasonsaas/voiceconductor/internal/ratelimit"
	"github.com/haasonsaas/voiceconductor/internal/session"
	"github.com/haasonsaas/voiceconductor/internal/wire"
)

const (
	readBufferBytes  = 8192
	writeBufferBytes = 8192
	sendQueueDepth   = 64
	pongWait         = 45 * time.Second
	pingInterval     = 20 * time.Second
	writeWait        = 10 * time.Second
)

// Handler implements one conductor.Handle dependency: a way to process an
// inbound envelope and emit zero or more outbound ones.
type Handler interface {
	Handle(ctx context.Context, env *wire.Envelope, emit func(env *wire.Envelope) error) error
}

// Metrics is the subset of observability hooks the transport layer drives:
// active-connection gauge and inbound-envelope disposition for the
// rejections it owns (the conductor records "admitted"/"duplicate" once an
// envelope reaches it — spec §4.6.4/§4.7).
type Metrics interface {
	SetActiveSessions(count int)
	RecordInboundEnvelope(disposition string)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveSessions(int)        {}
func (noopMetrics) RecordInboundEnvelope(string) {}

// Server upgrades HTTP connections to the conductor's WebSocket protocol.
type Server struct {
	handler       Handler
	store         *session.Store
	maxEventBytes int
	log           *slog.Logger
	metrics       Metrics
	upgrader      websocket.Upgrader

	activeConnections atomic.Int64
}

// NewServer builds a Server. maxEventBytes bounds inbound frame size (spec
// §6 MAX_EVENT_BYTES).
func NewServer(handler Handler, store *session.Store, maxEventBytes int, log *slog.Logger, metrics Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if maxEventBytes <= 0 {
		maxEventBytes = config.Default().Wire.MaxEventBytes
	}
	return &Server{
		handler:       handler,
		store:         store,
		maxEventBytes: maxEventBytes,
		log:           log,
		metrics:       metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferBytes,
			WriteBufferSize: writeBufferBytes,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendQueueDepth),
		ctx:     ctx,
		cancel:  cancel,
		limiter: s.store.CreateRateLimiter(),
	}
	s.metrics.SetActiveSessions(int(s.activeConnections.Add(1)))
	c.run()
}

// connection is the per-socket state named by spec §4.7: the bound session
// id (initially none), the per-connection rate limiter, and a serial
// outbound emitter realized by writeLoop draining send.
type connection struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	limiter *ratelimit.Limiter

	bound     atomic.Bool
	sessionID string
}

func (c *connection) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *connection) close() {
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
	c.server.metrics.SetActiveSessions(int(c.server.activeConnections.Add(-1)))
	c.server.log.Info("connection closed", "sessionId", c.sessionID)
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(int64(c.server.maxEventBytes) + 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleFrame(data)
	}
}

// handleFrame implements spec §4.7 steps 1-4.
func (c *connection) handleFrame(data []byte) {
	// Step 1: rate limit before anything else is parsed.
	if !c.limiter.Allow() {
		c.server.metrics.RecordInboundEnvelope("rate_limited")
		c.emitErrorKeyed("rate_limited", "connection exceeded per-minute admissions")
		return
	}

	// Step 2: parse + validate the envelope shape.
	env, parseErr := wire.Parse(data, c.server.maxEventBytes)
	if parseErr != nil {
		c.server.metrics.RecordInboundEnvelope("invalid")
		c.emitErrorKeyed(parseErr.Code, parseErr.Message)
		return
	}

	// Step 3: session binding.
	if c.bound.Load() {
		if env.SessionID != c.sessionID {
			c.server.metrics.RecordInboundEnvelope("session_mismatch")
			c.emitErrorKeyed("session_mismatch", "envelope session id differs from the connection's bound session")
			return
		}
	} else {
		c.sessionID = env.SessionID
		c.bound.Store(true)
	}

	// Step 4: hand off to the conductor, which records "admitted" or
	// "duplicate" once it has checked inboundSeenIds (spec §4.6.4).
	if err := c.server.handler.Handle(c.ctx, env, c.emit); err != nil {
		c.server.log.Error("conductor handling failed", "sessionId", c.sessionID, "err", err)
	}
}

func (c *connection) emit(env *wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// emitErrorKeyed emits a codec/admission error keyed to the connection's
// bound session id if any, else logs only (spec §4.7 step 1).
func (c *connection) emitErrorKeyed(code, message string) {
	if !c.bound.Load() {
		c.server.log.Warn("pre-bind connection error", "code", code, "message", message)
		return
	}
	env, err := wire.Make(wire.TypeError, c.sessionID, map[string]any{"code": code, "message": message})
	if err != nil {
		return
	}
	_ = c.emit(env)
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
