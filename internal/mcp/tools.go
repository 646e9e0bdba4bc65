package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// call dispatches method through the wrapped surface: args is
// marshaled to the handler's json.RawMessage params, and the handler's
// result (already spec §7-shaped — a display string, or a JSON
// document for list/lookup calls) is folded into a ToolResult. A
// string result passes through verbatim; anything else is
// re-marshaled to JSON text, since gomcp tool output is one fixed
// schema here rather than twenty-two bespoke ones.
func (s *Server) call(method string, args any) (ToolResult, error) {
	h, ok := s.surface.Dispatch(method)
	if !ok {
		return ToolResult{}, fmt.Errorf("unknown method %q", method)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return ToolResult{}, fmt.Errorf("encode arguments: %w", err)
	}
	result, err := h(context.Background(), raw)
	if err != nil {
		return ToolResult{}, err
	}
	if text, ok := result.(string); ok {
		return ToolResult{Text: text}, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return ToolResult{}, fmt.Errorf("encode result: %w", err)
	}
	return ToolResult{Text: string(encoded)}, nil
}

func (s *Server) handleRegister(ctx context.Context, req *gomcp.CallToolRequest, in RegisterInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("register", in)
	return nil, out, err
}

func (s *Server) handleSetStatus(ctx context.Context, req *gomcp.CallToolRequest, in SetStatusInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("set_status", in)
	return nil, out, err
}

func (s *Server) handleSend(ctx context.Context, req *gomcp.CallToolRequest, in SendInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("send", in)
	return nil, out, err
}

func (s *Server) handleCheckInbox(ctx context.Context, req *gomcp.CallToolRequest, in CheckInboxInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("check_inbox", in)
	return nil, out, err
}

func (s *Server) handleGetHistory(ctx context.Context, req *gomcp.CallToolRequest, in GetHistoryInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("get_history", in)
	return nil, out, err
}

func (s *Server) handleDeregister(ctx context.Context, req *gomcp.CallToolRequest, in DeregisterInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("deregister", in)
	return nil, out, err
}

func (s *Server) handleWho(ctx context.Context, req *gomcp.CallToolRequest, in WhoInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("who", in)
	return nil, out, err
}

func (s *Server) handlePing(ctx context.Context, req *gomcp.CallToolRequest, in PingInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("ping", in)
	return nil, out, err
}

func (s *Server) handleCreateTask(ctx context.Context, req *gomcp.CallToolRequest, in CreateTaskInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("create_task", in)
	return nil, out, err
}

func (s *Server) handleUpdateTask(ctx context.Context, req *gomcp.CallToolRequest, in UpdateTaskInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("update_task", in)
	return nil, out, err
}

func (s *Server) handleListTasks(ctx context.Context, req *gomcp.CallToolRequest, in ListTasksInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("list_tasks", in)
	return nil, out, err
}

func (s *Server) handleSubmitForReview(ctx context.Context, req *gomcp.CallToolRequest, in SubmitForReviewInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("submit_for_review", in)
	return nil, out, err
}

func (s *Server) handleApproveTask(ctx context.Context, req *gomcp.CallToolRequest, in ReviewDecisionInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("approve_task", in)
	return nil, out, err
}

func (s *Server) handleRejectTask(ctx context.Context, req *gomcp.CallToolRequest, in ReviewDecisionInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("reject_task", in)
	return nil, out, err
}

func (s *Server) handleInitiateHandshake(ctx context.Context, req *gomcp.CallToolRequest, in InitiateHandshakeInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("initiate_handshake", in)
	return nil, out, err
}

func (s *Server) handleAckHandshake(ctx context.Context, req *gomcp.CallToolRequest, in AckHandshakeInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("ack_handshake", in)
	return nil, out, err
}

func (s *Server) handleHandshakeStatus(ctx context.Context, req *gomcp.CallToolRequest, in HandshakeStatusInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("handshake_status", in)
	return nil, out, err
}

func (s *Server) handleDeclareContract(ctx context.Context, req *gomcp.CallToolRequest, in DeclareContractInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("declare_contract", in)
	return nil, out, err
}

func (s *Server) handleListContracts(ctx context.Context, req *gomcp.CallToolRequest, in ListContractsInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("list_contracts", in)
	return nil, out, err
}

func (s *Server) handleSetSpawnPolicy(ctx context.Context, req *gomcp.CallToolRequest, in SetSpawnPolicyInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("set_spawn_policy", in)
	return nil, out, err
}

func (s *Server) handleGetSpawnPolicy(ctx context.Context, req *gomcp.CallToolRequest, in GetSpawnPolicyInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("get_spawn_policy", in)
	return nil, out, err
}

func (s *Server) handleLogMinion(ctx context.Context, req *gomcp.CallToolRequest, in LogMinionInput) (*gomcp.CallToolResult, ToolResult, error) {
	out, err := s.call("log_minion", in)
	return nil, out, err
}
