package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentmesh/mcs/internal/session"
)

// wsSession wraps one upgraded WebSocket connection, implementing
// session.Pusher, grounded on the teacher's websocket.Connection.
type wsSession struct {
	conn   *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{conn: conn, sendCh: make(chan []byte, 256)}
}

// Push marshals a JSON-RPC notification and queues it for delivery.
func (s *wsSession) Push(method string, params any) error {
	n := Notification{JSONRPC: "2.0", Method: method, Params: params}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.send(data)
}

func (s *wsSession) send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	select {
	case s.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.sendCh)
	return s.conn.Close()
}

func (s *wsSession) readLoop(ctx context.Context, d Dispatcher, registry *session.Registry, logger *slog.Logger) {
	defer func() { _ = s.Close(); registry.UnregisterSession(s) }()

	_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		reqCtx := WithTransport(WithSession(ctx, s), TransportWebSocket)
		resp := HandleRequest(reqCtx, d, message)
		if err := s.send(resp); err != nil {
			logger.Warn("write websocket response", "error", err)
			return
		}
	}
}

func (s *wsSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-s.sendCh:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server is the multi-session HTTP/WebSocket transport used in
// --http mode, grounded on the teacher's websocket.Server (minus its
// SPA/static-asset serving, which MCS has no use for).
type Server struct {
	addr       string
	httpServer *http.Server
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	registry   *session.Registry
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewServer builds a WebSocket JSON-RPC server listening on addr,
// exposing /ws for agent sessions and /metrics for Prometheus scrape.
func NewServer(addr string, dispatcher Dispatcher, registry *session.Registry, logger *slog.Logger) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start binds addr and begins accepting connections in the background.
// A bind failure is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server exited", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, closing the listener and waiting for
// in-flight connections to drain.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown websocket server: %w", err)
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.wg.Add(1)
	go s.serve(conn)
}

func (s *Server) serve(conn *websocket.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	sess := newWSSession(conn)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		sess.writeLoop(ctx)
		close(done)
	}()

	sess.readLoop(ctx, s.dispatcher, s.registry, s.logger)
	<-done
}
