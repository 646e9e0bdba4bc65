// Package rpcsurface binds every §4 operation to a uniquely named RPC
// method (spec §4.9), resolves per-session dynamic capability
// descriptions, and propagates domain failures as the human-readable
// result string every handler returns rather than as protocol-level
// errors. Handlers do not log these failures; the Surface's Logger is
// not used by any handler.
package rpcsurface

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/agentmesh/mcs/internal/contracts"
	"github.com/agentmesh/mcs/internal/handshake"
	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/messaging"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/spawnpolicy"
	"github.com/agentmesh/mcs/internal/store"
	"github.com/agentmesh/mcs/internal/tasks"
	"github.com/agentmesh/mcs/internal/transport"
)

// Surface wires every component into one named RPC method table.
type Surface struct {
	Messaging   *messaging.Core
	Tasks       *tasks.Machine
	Handshake   *handshake.Coordinator
	Contracts   *contracts.Registry
	SpawnPolicy *spawnpolicy.Governor
	SessionReg  *session.Registry
	Logger      *slog.Logger
	methods     map[string]transport.Handler
}

// New builds the method table binding every operation named in spec
// §6's "complete method set" list, plus the framing-level
// list_capabilities method spec §4.9 requires.
func New(msg *messaging.Core, tm *tasks.Machine, hc *handshake.Coordinator, cr *contracts.Registry, sp *spawnpolicy.Governor, sessions *session.Registry, logger *slog.Logger) *Surface {
	s := &Surface{Messaging: msg, Tasks: tm, Handshake: hc, Contracts: cr, SpawnPolicy: sp, SessionReg: sessions, Logger: logger}
	s.methods = map[string]transport.Handler{
		"register":           s.register,
		"set_status":         s.setStatus,
		"send":               s.send,
		"check_inbox":        s.checkInbox,
		"get_history":        s.getHistory,
		"deregister":         s.deregister,
		"who":                s.who,
		"ping":               s.ping,
		"create_task":        s.createTask,
		"update_task":        s.updateTask,
		"list_tasks":         s.listTasks,
		"submit_for_review":  s.submitForReview,
		"approve_task":       s.approveTask,
		"reject_task":        s.rejectTask,
		"initiate_handshake": s.initiateHandshake,
		"ack_handshake":      s.ackHandshake,
		"handshake_status":   s.handshakeStatus,
		"declare_contract":   s.declareContract,
		"list_contracts":     s.listContracts,
		"set_spawn_policy":   s.setSpawnPolicy,
		"get_spawn_policy":   s.getSpawnPolicy,
		"log_minion":         s.logMinion,
		"list_capabilities":  s.listCapabilities,
	}
	return s
}

// Dispatch implements transport.Dispatcher.
func (s *Surface) Dispatch(method string) (transport.Handler, bool) {
	h, ok := s.methods[method]
	return h, ok
}

// toString turns a (string, error) domain result into a handler
// result: domain failures become the displayed error string in a
// successful response, per spec §7's propagation policy.
func toString(text string, err error) (any, error) {
	if err != nil {
		return mcserr.Display(err), nil
	}
	return text, nil
}

// toValue is toString's counterpart for operations that return a JSON
// document rather than a plain string.
func toValue(v any, err error) (any, error) {
	if err != nil {
		return mcserr.Display(err), nil
	}
	return v, nil
}

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(params, &v)
	return v, err
}

func currentAgent(ctx context.Context, reg *session.Registry) string {
	sess, ok := transport.SessionFromContext(ctx)
	if !ok {
		return ""
	}
	agent, _ := reg.AgentFor(sess)
	return agent
}

type registerParams struct {
	Name        string `json:"name"`
	Team        string `json:"team"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Token       string `json:"token"`
}

func (s *Surface) register(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[registerParams](params)
	if err != nil {
		return nil, err
	}
	sess, _ := transport.SessionFromContext(ctx)
	text, err := s.Messaging.Register(ctx, sess, p.Name, p.Team, p.Role, p.Description, p.Token)
	return toString(text, err)
}

type setStatusParams struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Surface) setStatus(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[setStatusParams](params)
	if err != nil {
		return nil, err
	}
	text, err := s.Messaging.SetStatus(ctx, p.Name, p.Status)
	return toString(text, err)
}

type sendParams struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Body    string   `json:"body"`
	CC      []string `json:"cc"`
	TaskID  string   `json:"task_id"`
	ReplyTo int64    `json:"reply_to"`
}

func (s *Surface) send(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[sendParams](params)
	if err != nil {
		return nil, err
	}
	text, err := s.Messaging.Send(ctx, p.From, p.To, p.Body, p.CC, p.TaskID, p.ReplyTo)
	return toString(text, err)
}

type agentParam struct {
	Agent string `json:"agent"`
	Name  string `json:"name"`
}

func (p agentParam) resolve() string {
	if p.Agent != "" {
		return p.Agent
	}
	return p.Name
}

func (s *Surface) checkInbox(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[agentParam](params)
	if err != nil {
		return nil, err
	}
	entries, err := s.Messaging.CheckInbox(ctx, p.resolve())
	return toValue(entries, err)
}

type getHistoryParams struct {
	Count  int    `json:"count"`
	TaskID string `json:"task_id"`
}

func (s *Surface) getHistory(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[getHistoryParams](params)
	if err != nil {
		return nil, err
	}
	if p.Count <= 0 {
		p.Count = 50
	}
	msgs, err := s.Messaging.GetHistory(ctx, p.Count, p.TaskID)
	return toValue(msgs, err)
}

func (s *Surface) deregister(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[agentParam](params)
	if err != nil {
		return nil, err
	}
	text, err := s.Messaging.Deregister(ctx, p.resolve())
	return toString(text, err)
}

func (s *Surface) who(ctx context.Context, _ json.RawMessage) (any, error) {
	who, err := s.Messaging.Who(ctx)
	return toValue(who, err)
}

func (s *Surface) ping(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[agentParam](params)
	if err != nil {
		return nil, err
	}
	sess, _ := transport.SessionFromContext(ctx)
	text, err := s.Messaging.Ping(ctx, sess, p.resolve())
	return toString(text, err)
}

type createTaskParams struct {
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignTo    string `json:"assign_to"`
	Project     string `json:"project"`
}

func (s *Surface) createTask(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[createTaskParams](params)
	if err != nil {
		return nil, err
	}
	task, err := s.Tasks.CreateTask(ctx, p.Creator, p.Title, p.Description, p.AssignTo, p.Project)
	return toValue(task, err)
}

type updateTaskParams struct {
	Actor  string `json:"actor"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result string `json:"result"`
}

func (s *Surface) updateTask(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[updateTaskParams](params)
	if err != nil {
		return nil, err
	}
	task, err := s.Tasks.UpdateTask(ctx, p.Actor, p.TaskID, p.Status, p.Result)
	return toValue(task, err)
}

type listTasksParams struct {
	Status   string `json:"status"`
	Assignee string `json:"assignee"`
	Project  string `json:"project"`
}

func (s *Surface) listTasks(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[listTasksParams](params)
	if err != nil {
		return nil, err
	}
	list, err := s.Tasks.ListTasks(ctx, p.Status, p.Assignee, p.Project)
	return toValue(list, err)
}

type submitForReviewParams struct {
	Actor        string `json:"actor"`
	TaskID       string `json:"task_id"`
	Summary      string `json:"summary"`
	FilesChanged string `json:"files_changed"`
	TestResults  string `json:"test_results"`
}

func (s *Surface) submitForReview(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[submitForReviewParams](params)
	if err != nil {
		return nil, err
	}
	task, err := s.Tasks.SubmitForReview(ctx, p.Actor, p.TaskID, p.Summary, p.FilesChanged, p.TestResults)
	return toValue(task, err)
}

type reviewDecisionParams struct {
	Actor  string `json:"actor"`
	TaskID string `json:"task_id"`
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

func (s *Surface) approveTask(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[reviewDecisionParams](params)
	if err != nil {
		return nil, err
	}
	task, err := s.Tasks.ApproveTask(ctx, p.Actor, p.TaskID, p.Note)
	return toValue(task, err)
}

func (s *Surface) rejectTask(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[reviewDecisionParams](params)
	if err != nil {
		return nil, err
	}
	task, err := s.Tasks.RejectTask(ctx, p.Actor, p.TaskID, p.Reason)
	return toValue(task, err)
}

type initiateHandshakeParams struct {
	Initiator string   `json:"initiator"`
	Body      string   `json:"body"`
	Agents    []string `json:"agents"`
}

func (s *Surface) initiateHandshake(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[initiateHandshakeParams](params)
	if err != nil {
		return nil, err
	}
	id, err := s.Handshake.Initiate(ctx, p.Initiator, p.Body, p.Agents)
	return toValue(id, err)
}

type ackHandshakeParams struct {
	Acker       string `json:"acker"`
	HandshakeID int64  `json:"handshake_id"`
}

func (s *Surface) ackHandshake(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[ackHandshakeParams](params)
	if err != nil {
		return nil, err
	}
	text, err := s.Handshake.Ack(ctx, p.Acker, p.HandshakeID)
	return toString(text, err)
}

type handshakeStatusParams struct {
	HandshakeID int64 `json:"handshake_id"`
}

func (s *Surface) handshakeStatus(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[handshakeStatusParams](params)
	if err != nil {
		return nil, err
	}
	status, err := s.Handshake.Status(ctx, p.HandshakeID)
	return toValue(status, err)
}

type declareContractParams struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Spec    string `json:"spec"`
	Project string `json:"project"`
}

func (s *Surface) declareContract(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[declareContractParams](params)
	if err != nil {
		return nil, err
	}
	contract, err := s.Contracts.Declare(ctx, p.Owner, p.Name, p.Kind, p.Spec, p.Project)
	return toValue(contract, err)
}

type listContractsParams struct {
	Project string `json:"project"`
	Owner   string `json:"owner"`
	Kind    string `json:"kind"`
}

func (s *Surface) listContracts(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[listContractsParams](params)
	if err != nil {
		return nil, err
	}
	list, err := s.Contracts.List(ctx, p.Project, p.Owner, p.Kind)
	return toValue(list, err)
}

type setSpawnPolicyParams struct {
	Actor   string `json:"actor"`
	Scope   string `json:"scope"`
	Enabled bool   `json:"enabled"`
	Max     int    `json:"max"`
}

func (s *Surface) setSpawnPolicy(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[setSpawnPolicyParams](params)
	if err != nil {
		return nil, err
	}
	text, err := s.SpawnPolicy.Set(ctx, p.Actor, p.Scope, p.Enabled, p.Max)
	return toString(text, err)
}

func (s *Surface) getSpawnPolicy(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[agentParam](params)
	if err != nil {
		return nil, err
	}
	policy, err := s.SpawnPolicy.Get(ctx, p.resolve())
	return toValue(policy, err)
}

type logMinionParams struct {
	Pilot       string `json:"pilot"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Result      string `json:"result"`
}

func (s *Surface) logMinion(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[logMinionParams](params)
	if err != nil {
		return nil, err
	}
	text, err := s.SpawnPolicy.LogMinion(ctx, p.Pilot, p.Description, p.Status, p.Result)
	return toString(text, err)
}

// Capability describes one RPC method for capability-list responses.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var baseDescriptions = map[string]string{
	"register":           "Register this session under an agent name.",
	"set_status":         "Update an agent's free-text status.",
	"send":               "Send a direct or broadcast message.",
	"check_inbox":        "Drain unread direct messages and broadcasts.",
	"get_history":        "Fetch recent message history.",
	"deregister":         "Remove an agent's registration.",
	"who":                "List every known agent and its presence/health.",
	"ping":               "Heartbeat and (re)bind this session to an agent.",
	"create_task":        "Create a new task.",
	"update_task":        "Drive a task's state transition.",
	"list_tasks":         "List tasks matching a filter.",
	"submit_for_review":  "Submit a task's work for lead review.",
	"approve_task":       "Approve a task in review.",
	"reject_task":        "Reject a task in review, sending it back.",
	"initiate_handshake": "Start a multi-agent ACK barrier.",
	"ack_handshake":      "Acknowledge a pending handshake.",
	"handshake_status":   "Inspect a handshake's ACK progress.",
	"declare_contract":   "Declare or update a versioned interface contract.",
	"list_contracts":     "List declared contracts.",
	"set_spawn_policy":   "Set a minion spawn policy.",
	"get_spawn_policy":   "Resolve the effective spawn policy for an agent.",
	"log_minion":         "Record a minion spawn/completion/failure event.",
}

// Capabilities implements spec §4.9's obligation 1: the requesting
// session's check_inbox description is prefixed with its current
// unread alert, if any. It serves list_capabilities; internal/mcp does
// not call it, as its tool descriptions are fixed.
func (s *Surface) Capabilities(ctx context.Context, agent string) []Capability {
	caps := make([]Capability, 0, len(baseDescriptions))

	for name, desc := range baseDescriptions {
		if name == "check_inbox" && agent != "" {
			if count, senders, err := s.Messaging.Store.UnreadCount(ctx, agent); err == nil && count > 0 {
				desc = unreadPrefix(count, senders) + desc
			}
		}
		caps = append(caps, Capability{Name: name, Description: desc})
	}
	return caps
}

func (s *Surface) listCapabilities(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.Capabilities(ctx, currentAgent(ctx, s.SessionReg)), nil
}

func unreadPrefix(count int, senders []string) string {
	return "*** YOU HAVE " + strconv.Itoa(count) + " UNREAD MESSAGE(S) from " + strings.Join(senders, ", ") + " *** Call check_inbox now! | "
}
