package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentmesh/mcs/internal/metrics"
	"github.com/agentmesh/mcs/internal/session"
)

// Handler answers one JSON-RPC method call. The session the request
// arrived on is reachable via SessionFromContext, so handlers that
// bind an agent name (register, ping) can register the live session.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher resolves a JSON-RPC method name to its Handler; RpcSurface
// implements it.
type Dispatcher interface {
	Dispatch(method string) (Handler, bool)
}

type sessionKey struct{}

// WithSession attaches p to ctx so handlers can reach their own
// session (e.g. to register it under an agent name).
func WithSession(ctx context.Context, p session.Pusher) context.Context {
	return context.WithValue(ctx, sessionKey{}, p)
}

// SessionFromContext returns the session a request arrived on.
func SessionFromContext(ctx context.Context) (session.Pusher, bool) {
	p, ok := ctx.Value(sessionKey{}).(session.Pusher)
	return p, ok
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-initiated JSON-RPC message with no id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
	codeServerError    = -32000
)

// HandleRequest parses data as a single JSON-RPC request, dispatches
// it via d, and returns the framed response bytes. ctx should already
// carry the originating session (see WithSession).
func HandleRequest(ctx context.Context, d Dispatcher, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return mustMarshal(Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParseError, Message: "parse error", Data: err.Error()}})
	}
	return mustMarshal(processRequest(ctx, d, req))
}

func processRequest(ctx context.Context, d Dispatcher, req Request) Response {
	if req.JSONRPC != "2.0" {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInvalidRequest, Message: "invalid request", Data: "jsonrpc field must be \"2.0\""}}
	}

	handler, ok := d.Dispatch(req.Method)
	if !ok {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}}
	}

	params := req.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	start := time.Now()
	result, err := handler(ctx, params)
	metrics.RPCRequestsTotal.WithLabelValues(req.Method).Inc()
	metrics.RPCRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeServerError, Message: err.Error()}}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: codeInternalError, Message: "internal error", Data: err.Error()}}
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
