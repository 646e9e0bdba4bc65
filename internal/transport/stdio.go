package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/agentmesh/mcs/internal/session"
)

// stdioSession is the single-session transport used when the daemon
// runs without --http: one agent sidecar attached over stdin/stdout,
// newline-delimited JSON-RPC (grounded on the teacher's daemon
// net.Conn framing in internal/daemon/notify.go, generalized from a
// socket to stdio).
type stdioSession struct {
	out    *bufio.Writer
	mu     sync.Mutex
	closed bool
}

func newStdioSession(out io.Writer) *stdioSession {
	return &stdioSession{out: bufio.NewWriter(out)}
}

// Push marshals a JSON-RPC notification and writes it newline-terminated.
func (s *stdioSession) Push(method string, params any) error {
	n := Notification{JSONRPC: "2.0", Method: method, Params: params}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.writeLine(data)
}

func (s *stdioSession) writeLine(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	if err := s.out.WriteByte('\n'); err != nil {
		return err
	}
	return s.out.Flush()
}

// ServeStdio runs a single-session RPC loop reading newline-delimited
// JSON-RPC requests from in and writing responses/pushed notifications
// to out. Blocks until in is closed or ctx is cancelled.
func ServeStdio(ctx context.Context, in io.Reader, out io.Writer, d Dispatcher, registry *session.Registry, logger *slog.Logger) {
	sess := newStdioSession(out)
	defer registry.UnregisterSession(sess)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		reqCtx := WithTransport(WithSession(ctx, sess), TransportStdio)
		resp := HandleRequest(reqCtx, d, append([]byte(nil), line...))
		if err := sess.writeLine(resp); err != nil {
			logger.Warn("write stdio response", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdio read loop ended", "error", err)
	}
}
