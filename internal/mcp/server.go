// Package mcp is the secondary tool surface spec §4.9 implies every
// push-capable transport needs a fallback for: an MCP tool-call server
// for clients (Claude Desktop, Claude Code) that speak the Model
// Context Protocol directly over stdio rather than MCS's own
// websocket/stdio JSON-RPC framing. Like the teacher's own mcp
// package, it is request/response only — server push still belongs to
// notify.Notifier and the transport package's live sessions. Tool
// descriptions here are fixed at registration: the unread-mail prefix
// that list_capabilities puts on check_inbox does not appear in this
// surface's tools/list, so a client attached only through this surface
// learns of new mail by calling check_inbox.
package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentmesh/mcs/internal/rpcsurface"
)

// Server adapts a rpcsurface.Surface into an MCP tool server.
type Server struct {
	surface *rpcsurface.Surface
	version string
	server  *gomcp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the server version string reported during MCP initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds an MCP tool server over surface.
func NewServer(surface *rpcsurface.Surface, opts ...Option) *Server {
	s := &Server{surface: surface, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(&gomcp.Implementation{
		Name:    "mcs",
		Version: s.version,
	}, nil)

	s.registerTools()
	return s
}

// Run serves the MCP protocol over stdin/stdout until ctx is canceled
// or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// registerTools binds every rpcsurface method, other than
// list_capabilities (tools/list already supersedes it), to an MCP tool.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "register",
		Description: "Register this session under an agent name.",
	}, s.handleRegister)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "set_status",
		Description: "Update an agent's free-text status.",
	}, s.handleSetStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send",
		Description: "Send a direct or broadcast message.",
	}, s.handleSend)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_inbox",
		Description: "Drain unread direct messages and broadcasts.",
	}, s.handleCheckInbox)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_history",
		Description: "Fetch recent message history.",
	}, s.handleGetHistory)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "deregister",
		Description: "Remove an agent's registration.",
	}, s.handleDeregister)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "who",
		Description: "List every known agent and its presence/health.",
	}, s.handleWho)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ping",
		Description: "Heartbeat and (re)bind this session to an agent.",
	}, s.handlePing)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a new task.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Drive a task's state transition.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks matching a filter.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "submit_for_review",
		Description: "Submit a task's work for lead review.",
	}, s.handleSubmitForReview)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "approve_task",
		Description: "Approve a task in review.",
	}, s.handleApproveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reject_task",
		Description: "Reject a task in review, sending it back.",
	}, s.handleRejectTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "initiate_handshake",
		Description: "Start a multi-agent ACK barrier.",
	}, s.handleInitiateHandshake)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ack_handshake",
		Description: "Acknowledge a pending handshake.",
	}, s.handleAckHandshake)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "handshake_status",
		Description: "Inspect a handshake's ACK progress.",
	}, s.handleHandshakeStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "declare_contract",
		Description: "Declare or update a versioned interface contract.",
	}, s.handleDeclareContract)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_contracts",
		Description: "List declared contracts.",
	}, s.handleListContracts)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "set_spawn_policy",
		Description: "Set a minion spawn policy.",
	}, s.handleSetSpawnPolicy)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_spawn_policy",
		Description: "Resolve the effective spawn policy for an agent.",
	}, s.handleGetSpawnPolicy)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "log_minion",
		Description: "Record a minion spawn/completion/failure event.",
	}, s.handleLogMinion)
}
