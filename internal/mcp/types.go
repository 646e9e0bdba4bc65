package mcp

// ToolResult is the single result shape every MCS tool returns. Most
// rpcsurface handlers already produce spec §7's human-readable display
// string; the handful that return a structured domain value (a task,
// a contract, an inbox) are JSON-encoded into Text so every tool keeps
// one predictable output schema instead of twenty-two bespoke ones.
type ToolResult struct {
	Text string `json:"text" jsonschema:"Result text: a status message, or a JSON-encoded value for list/lookup tools"`
}

// RegisterInput is the input for the register tool.
type RegisterInput struct {
	Name        string `json:"name" jsonschema:"Agent name to register under"`
	Team        string `json:"team,omitempty" jsonschema:"Team this agent belongs to"`
	Role        string `json:"role,omitempty" jsonschema:"Agent role, e.g. lead or dev"`
	Description string `json:"description,omitempty" jsonschema:"Short free-text description of this agent"`
	Token       string `json:"token,omitempty" jsonschema:"Room token, if the server requires one"`
}

// SetStatusInput is the input for the set_status tool.
type SetStatusInput struct {
	Name   string `json:"name" jsonschema:"Agent name"`
	Status string `json:"status" jsonschema:"New free-text status"`
}

// SendInput is the input for the send tool.
type SendInput struct {
	From    string   `json:"from" jsonschema:"Sending agent name"`
	To      string   `json:"to" jsonschema:"Recipient agent name, or the broadcast recipient"`
	Body    string   `json:"body" jsonschema:"Message body"`
	CC      []string `json:"cc,omitempty" jsonschema:"Additional agents to carbon-copy"`
	TaskID  string   `json:"task_id,omitempty" jsonschema:"Task this message relates to, if any"`
	ReplyTo int64    `json:"reply_to,omitempty" jsonschema:"ID of the message being replied to"`
}

// CheckInboxInput is the input for the check_inbox tool.
type CheckInboxInput struct {
	Agent string `json:"agent,omitempty" jsonschema:"Agent whose inbox to drain"`
}

// GetHistoryInput is the input for the get_history tool.
type GetHistoryInput struct {
	Count  int    `json:"count,omitempty" jsonschema:"Max messages to return. Default 50"`
	TaskID string `json:"task_id,omitempty" jsonschema:"Restrict to messages about this task"`
}

// DeregisterInput is the input for the deregister tool.
type DeregisterInput struct {
	Agent string `json:"agent,omitempty" jsonschema:"Agent to deregister"`
}

// WhoInput is the input for the who tool.
type WhoInput struct{}

// PingInput is the input for the ping tool.
type PingInput struct {
	Agent string `json:"agent,omitempty" jsonschema:"Agent to heartbeat"`
}

// CreateTaskInput is the input for the create_task tool.
type CreateTaskInput struct {
	Creator     string `json:"creator" jsonschema:"Agent creating the task"`
	Title       string `json:"title" jsonschema:"Task title"`
	Description string `json:"description,omitempty" jsonschema:"Task description"`
	AssignTo    string `json:"assign_to,omitempty" jsonschema:"Agent to assign the task to, if any"`
	Project     string `json:"project,omitempty" jsonschema:"Project this task belongs to"`
}

// UpdateTaskInput is the input for the update_task tool.
type UpdateTaskInput struct {
	Actor  string `json:"actor" jsonschema:"Agent driving the transition"`
	TaskID string `json:"task_id" jsonschema:"Task identifier, e.g. TASK-001"`
	Status string `json:"status" jsonschema:"Target status"`
	Result string `json:"result,omitempty" jsonschema:"Result note for the transition"`
}

// ListTasksInput is the input for the list_tasks tool.
type ListTasksInput struct {
	Status   string `json:"status,omitempty" jsonschema:"Filter by status"`
	Assignee string `json:"assignee,omitempty" jsonschema:"Filter by assignee"`
	Project  string `json:"project,omitempty" jsonschema:"Filter by project"`
}

// SubmitForReviewInput is the input for the submit_for_review tool.
type SubmitForReviewInput struct {
	Actor        string `json:"actor" jsonschema:"Agent submitting the work"`
	TaskID       string `json:"task_id" jsonschema:"Task identifier"`
	Summary      string `json:"summary,omitempty" jsonschema:"Summary of the work done"`
	FilesChanged string `json:"files_changed,omitempty" jsonschema:"Files touched by the work"`
	TestResults  string `json:"test_results,omitempty" jsonschema:"Test results, if any"`
}

// ReviewDecisionInput is the input shared by approve_task and reject_task.
type ReviewDecisionInput struct {
	Actor  string `json:"actor" jsonschema:"Reviewing agent"`
	TaskID string `json:"task_id" jsonschema:"Task identifier"`
	Note   string `json:"note,omitempty" jsonschema:"Approval note"`
	Reason string `json:"reason,omitempty" jsonschema:"Rejection reason"`
}

// InitiateHandshakeInput is the input for the initiate_handshake tool.
type InitiateHandshakeInput struct {
	Initiator string   `json:"initiator" jsonschema:"Agent starting the handshake"`
	Body      string   `json:"body" jsonschema:"Handshake message body"`
	Agents    []string `json:"agents,omitempty" jsonschema:"Agents that must ACK. Defaults to every other known agent"`
}

// AckHandshakeInput is the input for the ack_handshake tool.
type AckHandshakeInput struct {
	Acker       string `json:"acker" jsonschema:"Acknowledging agent"`
	HandshakeID int64  `json:"handshake_id" jsonschema:"Handshake identifier"`
}

// HandshakeStatusInput is the input for the handshake_status tool.
type HandshakeStatusInput struct {
	HandshakeID int64 `json:"handshake_id" jsonschema:"Handshake identifier"`
}

// DeclareContractInput is the input for the declare_contract tool.
type DeclareContractInput struct {
	Owner   string `json:"owner" jsonschema:"Declaring agent"`
	Name    string `json:"name" jsonschema:"Contract name"`
	Kind    string `json:"kind" jsonschema:"Contract kind, e.g. function, event, or api_endpoint"`
	Spec    string `json:"spec" jsonschema:"Contract body"`
	Project string `json:"project,omitempty" jsonschema:"Project this contract belongs to"`
}

// ListContractsInput is the input for the list_contracts tool.
type ListContractsInput struct {
	Project string `json:"project,omitempty" jsonschema:"Filter by project"`
	Owner   string `json:"owner,omitempty" jsonschema:"Filter by owner"`
	Kind    string `json:"kind,omitempty" jsonschema:"Filter by kind"`
}

// SetSpawnPolicyInput is the input for the set_spawn_policy tool.
type SetSpawnPolicyInput struct {
	Actor   string `json:"actor" jsonschema:"Lead setting the policy"`
	Scope   string `json:"scope,omitempty" jsonschema:"Agent name to scope the policy to, empty for global"`
	Enabled bool   `json:"enabled" jsonschema:"Whether spawning is allowed"`
	Max     int    `json:"max,omitempty" jsonschema:"Max concurrent minions"`
}

// GetSpawnPolicyInput is the input for the get_spawn_policy tool.
type GetSpawnPolicyInput struct {
	Agent string `json:"agent,omitempty" jsonschema:"Agent to resolve the effective policy for"`
}

// LogMinionInput is the input for the log_minion tool.
type LogMinionInput struct {
	Pilot       string `json:"pilot" jsonschema:"Agent spawning or closing out a minion"`
	Description string `json:"description,omitempty" jsonschema:"What the minion is doing"`
	Status      string `json:"status" jsonschema:"Minion status: spawned, completed, or failed"`
	Result      string `json:"result,omitempty" jsonschema:"Result note when closing out a minion"`
}
