package store

// Agent is spec §3's Agent entity.
type Agent struct {
	Name           string
	Team           string
	Role           string
	Description    string
	Status         string
	RegisteredAt   string
	LastSeenAt     string
	LastInboxCheck string
	HeartbeatAt    string
}

// Message is spec §3's Message entity.
type Message struct {
	ID           int64
	Sender       string
	Recipient    string
	Body         string
	CreatedAt    string
	ReadFlag     bool
	IsCC         bool
	CCOriginalTo string
	TaskID       string
	ReplyTo      int64
}

// Task is spec §3's Task entity.
type Task struct {
	ID          string
	Project     string
	Title       string
	Description string
	AssignedTo  string
	CreatedBy   string
	Status      string
	Result      string
	CreatedAt   string
	UpdatedAt   string
	CompletedAt string
}

// Handshake is spec §3's Handshake entity.
type Handshake struct {
	ID        int64
	Initiator string
	MessageID int64
	CreatedAt string
	Status    string
}

// HandshakeAck is one row of a Handshake's ack set.
type HandshakeAck struct {
	HandshakeID int64
	Acker       string
	AckedAt     string
}

// Contract is spec §3's Contract entity.
type Contract struct {
	Project   string
	Name      string
	Kind      string
	Owner     string
	Spec      string
	Version   int
	CreatedAt string
	UpdatedAt string
}

// SpawnPolicyRow is one scope's row in the spawn_policy table.
type SpawnPolicyRow struct {
	Scope   string
	Enabled bool
	Max     int
	SetBy   string
	SetAt   string
}

// MinionLogEntry is spec §3's MinionLogEntry entity.
type MinionLogEntry struct {
	ID          int64
	Pilot       string
	Description string
	Status      string
	SpawnedAt   string
	CompletedAt string
	Result      string
}

// ContractKinds is the closed set from spec §3.
var ContractKinds = map[string]bool{
	"function":     true,
	"dom_id":       true,
	"css_class":    true,
	"file_path":    true,
	"api_endpoint": true,
	"event":        true,
	"other":        true,
}

// TaskStatuses is the closed set from spec §3.
const (
	TaskPending    = "pending"
	TaskAssigned   = "assigned"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// HandshakeStatuses from spec §4.6.
const (
	HandshakePending   = "pending"
	HandshakeCompleted = "completed"
)

// MinionStatuses from spec §3.
const (
	MinionSpawned   = "spawned"
	MinionCompleted = "completed"
	MinionFailed    = "failed"
)

// RoleLead is the role that receives auto-CC and drives lead-gated transitions.
const RoleLead = "lead"
