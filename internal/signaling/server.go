package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacksongoode/decay/internal/metrics"
)

const (
	wsWriteWait = 1 * time.Second

	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultIdleCheckInterval = 30 * time.Second
	DefaultMaxMessageBytes   = int64(64 * 1024)
)

// Config wires together the runtime dependencies for the signaling service.
// Zero values fall back to the defaults above.
type Config struct {
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration

	// MaxMessageBytes bounds inbound frames at the WebSocket layer.
	MaxMessageBytes int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// clock overrides time.Now for registry timestamps in tests.
	clock func() time.Time
}

// Server implements the GET /ws signaling endpoint: it assigns each accepted
// WebSocket a connection identity, tracks pairing, and relays negotiation
// frames between peers without inspecting their payloads.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	ids    idAllocator
	reg    *registry
	router *router

	mu       sync.Mutex
	closed   bool
	sessions map[*session]struct{}
}

func NewServer(cfg Config) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.IdleCheckInterval <= 0 {
		cfg.IdleCheckInterval = DefaultIdleCheckInterval
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	reg := newRegistry(cfg.clock)
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		upgrader: websocket.Upgrader{
			// Origin policy is enforced by the outer httpserver middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		reg: reg,
		router: &router{
			reg:     reg,
			metrics: cfg.Metrics,
			log:     cfg.Logger,
		},
		sessions: make(map[*session]struct{}),
	}
}

// Metrics returns the server's counter registry.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// ConnectionCount reports the number of live registered connections.
func (s *Server) ConnectionCount() int { return s.reg.len() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := s.ids.NextID()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		srv:    s,
		id:     id,
		conn:   conn,
		queue:  newSendQueue(),
		cancel: cancel,
	}

	if !s.register(sess) {
		// Server shut down between upgrade and registration.
		_ = conn.Close()
		cancel()
		return
	}

	s.metrics.Inc(metrics.ConnectionsOpened)
	s.log.Info("peer_connected", "conn_id", id, "remote_addr", r.RemoteAddr)

	go sess.writePump()
	go runHeartbeat(ctx, sess.queue, s.cfg.HeartbeatInterval)
	go runIdleCheck(ctx, s.reg, id, s.metrics, s.cfg.IdleCheckInterval, s.cfg.IdleTimeout, sess.teardown)

	// The welcome frame is enqueued before the roster broadcast so the client
	// learns its own identity before the first UserList arrives.
	sess.queue.enqueue(frame{kind: frameText, payload: encodeWelcome(id)})
	s.router.broadcastRoster()

	sess.run()
}

// register tracks the session and inserts it into the registry under one
// critical section, so a concurrent Close never strands a half-registered
// connection.
func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.reg.register(sess.id, sess.queue)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Close tears down every live session. New connections are rejected after it
// returns; in-flight outbound frames are still drained by each dispatcher.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.queue.enqueue(frame{kind: frameClose})
		sess.teardown()
	}
}

// session owns one WebSocket connection: the inbound read loop runs on the
// caller's goroutine, and writePump is the sole writer to the underlying
// stream.
type session struct {
	srv   *Server
	id    uint64
	conn  *websocket.Conn
	queue *sendQueue

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// run reads inbound frames until the connection closes or errors, then runs
// the disconnect cleanup.
func (sess *session) run() {
	s := sess.srv

	sess.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	sess.conn.SetPongHandler(func(string) error {
		s.reg.touch(sess.id)
		return nil
	})

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.TextMessage:
			// handleFrame refreshes activity once the frame decodes.
			s.router.handleFrame(sess.id, data)
		case websocket.BinaryMessage:
			s.reg.touch(sess.id)
		}
	}

	sess.teardown()
}

// writePump drains the outbound queue strictly in enqueue order and is the
// only goroutine that writes to the connection. A write failure is treated as
// connection loss and triggers the full disconnect cleanup.
func (sess *session) writePump() {
	defer sess.conn.Close()

	for {
		f, ok := sess.queue.dequeue()
		if !ok {
			return
		}

		deadline := time.Now().Add(wsWriteWait)
		_ = sess.conn.SetWriteDeadline(deadline)

		var err error
		switch f.kind {
		case frameText:
			err = sess.conn.WriteMessage(websocket.TextMessage, f.payload)
		case framePing:
			err = sess.conn.WriteMessage(websocket.PingMessage, nil)
		case frameClose:
			err = sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		}
		if err != nil {
			sess.srv.metrics.Inc(metrics.WriteFailures)
			sess.teardown()
			return
		}
	}
}

// teardown is the single cleanup path shared by client-initiated close, write
// failure, idle eviction and server shutdown. It cancels the connection's
// timers before touching the registry so no background task races the
// removal, and it is safe to call from any of those paths concurrently.
func (sess *session) teardown() {
	sess.closeOnce.Do(func() {
		sess.cancel()
		sess.srv.router.handleClose(sess.id)
		sess.queue.close()
		sess.srv.untrack(sess)
		sess.srv.log.Info("peer_disconnected", "conn_id", sess.id)
	})
}
