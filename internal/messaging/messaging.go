// Package messaging implements spec §4.4's MessageCore: the agent
// lifecycle RPCs (register, set_status, deregister, who, ping) and
// mail operations (send, check_inbox, get_history), including the
// unread-gate backpressure and CC/broadcast fan-out.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentmesh/mcs/internal/identity"
	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/metrics"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/store"
)

// BroadcastRecipient is the literal "all" recipient denoting a
// broadcast message (spec §3).
const BroadcastRecipient = "all"

// Core binds MessageCore's operations to a Store, a SessionRegistry,
// and a Notifier, plus the two process-level settings (room token,
// onboarding doc directory) spec §6 routes through register.
type Core struct {
	Store      *store.Store
	Registry   *session.Registry
	Notifier   *notify.Notifier
	RoomToken  string
	RuntimeDir string
}

// New builds a MessageCore.
func New(st *store.Store, registry *session.Registry, notifier *notify.Notifier, roomToken, runtimeDir string) *Core {
	return &Core{Store: st, Registry: registry, Notifier: notifier, RoomToken: roomToken, RuntimeDir: runtimeDir}
}

// Register upserts a full agent registration, binds sess to the agent
// name in the SessionRegistry, and returns a human-readable greeting
// carrying any onboarding docs found under RuntimeDir (spec §6).
func (c *Core) Register(ctx context.Context, sess session.Pusher, name, team, role, description, token string) (string, error) {
	if c.RoomToken != "" && token != c.RoomToken {
		return "", mcserr.AuthRejected()
	}
	if !identity.ValidAgentName(name) {
		return "", mcserr.Wrap("register", fmt.Errorf("invalid agent name %q", name))
	}

	if err := c.Store.RegisterAgent(ctx, name, team, role, description, "online"); err != nil {
		return "", mcserr.Wrap("register", err)
	}
	c.Registry.Register(name, sess)

	greeting := fmt.Sprintf("Registered %s (role=%s).", name, role)
	if doc := c.onboardingDoc(role); doc != "" {
		greeting += "\n\n" + doc
	}
	return greeting, nil
}

// onboardingDoc concatenates PROTOCOL.md and roles/<role>.md from
// RuntimeDir, if present (spec §6; supplemented feature, read-only
// disclosure — not onboarding-document *authoring*, which is excluded
// by the Non-goals).
func (c *Core) onboardingDoc(role string) string {
	if c.RuntimeDir == "" {
		return ""
	}
	var parts []string
	if b, err := os.ReadFile(filepath.Join(c.RuntimeDir, "PROTOCOL.md")); err == nil {
		parts = append(parts, string(b))
	}
	if role != "" {
		if b, err := os.ReadFile(filepath.Join(c.RuntimeDir, "roles", role+".md")); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n\n")
}

// SetStatus updates an agent's free-text status.
func (c *Core) SetStatus(ctx context.Context, name, status string) (string, error) {
	if err := c.Store.SetAgentStatus(ctx, name, status); err != nil {
		return "", mcserr.Wrap("set_status", err)
	}
	return fmt.Sprintf("Status updated for %s.", name), nil
}

// Deregister removes an agent's row and evicts its session.
func (c *Core) Deregister(ctx context.Context, name string) (string, error) {
	if err := c.Store.DeregisterAgent(ctx, name); err != nil {
		return "", mcserr.Wrap("deregister", err)
	}
	c.Registry.Unregister(name)
	return fmt.Sprintf("Deregistered %s.", name), nil
}

// Ping updates heartbeat/last-seen and (re)associates sess with agent
// in the SessionRegistry (spec §4.4).
func (c *Core) Ping(ctx context.Context, sess session.Pusher, agent string) (string, error) {
	if err := c.Store.Heartbeat(ctx, agent); err != nil {
		return "", mcserr.Wrap("ping", err)
	}
	c.Registry.Register(agent, sess)
	return "pong", nil
}

// Send implements spec §4.4's send operation: the unread gate,
// recipient resolution, CC expansion, and post-commit notification
// fan-out.
func (c *Core) Send(ctx context.Context, from, to, body string, cc []string, taskID string, replyTo int64) (string, error) {
	count, senders, err := c.Store.UnreadCount(ctx, from)
	if err != nil {
		return "", mcserr.Wrap("send", err)
	}
	if count > 0 {
		metrics.UnreadGateBlocks.Inc()
		return "", mcserr.UnreadMailBlocked(count, senders)
	}

	if err := c.Store.UpsertSkeletonAgent(ctx, from); err != nil {
		return "", mcserr.Wrap("send", err)
	}

	recipient := to
	if to != BroadcastRecipient {
		resolved, err := c.Store.ResolveRecipient(ctx, to)
		if err != nil {
			if errors.Is(err, store.ErrAmbiguousRecipient) {
				return "", mcserr.AmbiguousRecipient(to)
			}
			return "", mcserr.Wrap("send", err)
		}
		recipient = resolved
		if err := c.Store.UpsertSkeletonAgent(ctx, recipient); err != nil {
			return "", mcserr.Wrap("send", err)
		}
	}

	if replyTo != 0 && taskID == "" {
		inherited, err := c.Store.TaskIDForMessage(ctx, replyTo)
		if err != nil {
			return "", mcserr.Wrap("send", err)
		}
		taskID = inherited
	}

	now := store.Now()
	var ccTargets []string
	if to != BroadcastRecipient {
		leads, err := c.Store.ListLeadNames(ctx)
		if err != nil {
			return "", mcserr.Wrap("send", err)
		}
		ccTargets = effectiveCC(cc, leads, from, recipient)
	}

	var primaryID int64
	err := c.Store.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := store.InsertMessage(ctx, tx, store.Message{
			Sender: from, Recipient: recipient, Body: body,
			CreatedAt: now, TaskID: taskID, ReplyTo: replyTo,
		})
		if err != nil {
			return err
		}
		primaryID = id

		for _, ccName := range ccTargets {
			if _, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: from, Recipient: ccName, Body: body,
				CreatedAt: now, TaskID: taskID, ReplyTo: replyTo,
				IsCC: true, CCOriginalTo: recipient,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", mcserr.Wrap("send", err)
	}

	recipients := c.notifyTargets(ctx, to, recipient, ccTargets, from)
	c.Notifier.Notify(ctx, recipients)

	kind := "direct"
	if to == BroadcastRecipient {
		kind = "broadcast"
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()

	return fmt.Sprintf("Message sent (id=%d) to %s.", primaryID, to), nil
}

// effectiveCC computes the CC set: the explicit list plus every
// currently-registered lead that is neither sender nor primary
// recipient, deduplicated against the primary recipient.
func effectiveCC(explicit, leads []string, sender, primaryRecipient string) []string {
	seen := map[string]bool{sender: true, primaryRecipient: true}
	var out []string
	for _, name := range explicit {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, lead := range leads {
		if !seen[lead] {
			seen[lead] = true
			out = append(out, lead)
		}
	}
	return out
}

// notifyTargets is {primary recipient ∪ CC recipients} \ {sender} for
// direct sends, or every present session other than the sender for
// broadcasts.
func (c *Core) notifyTargets(ctx context.Context, to, recipient string, ccTargets []string, sender string) []string {
	if to == BroadcastRecipient {
		names, err := c.Store.ListAllAgentNames(ctx)
		if err != nil {
			return nil
		}
		var out []string
		for _, n := range names {
			if n != sender && c.Registry.Connected(n) {
				out = append(out, n)
			}
		}
		return out
	}

	seen := map[string]bool{sender: true}
	var out []string
	if !seen[recipient] {
		seen[recipient] = true
		out = append(out, recipient)
	}
	for _, cc := range ccTargets {
		if !seen[cc] {
			seen[cc] = true
			out = append(out, cc)
		}
	}
	return out
}

// InboxEntry is one check_inbox row, annotated per spec §4.4 when it
// was delivered as a CC.
type InboxEntry struct {
	store.Message
	OriginallyTo string `json:"originally_to,omitempty"`
}

// CheckInbox atomically drains agent's unread direct messages and
// unacknowledged broadcasts, returning them chronologically.
func (c *Core) CheckInbox(ctx context.Context, agent string) ([]InboxEntry, error) {
	direct, err := c.Store.UnreadDirect(ctx, agent)
	if err != nil {
		return nil, mcserr.Wrap("check_inbox", err)
	}
	broadcast, err := c.Store.UnreadBroadcast(ctx, agent)
	if err != nil {
		return nil, mcserr.Wrap("check_inbox", err)
	}

	err = c.Store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range direct {
			if _, err := tx.ExecContext(ctx, `UPDATE messages SET read_flag = 1 WHERE id = ?`, m.ID); err != nil {
				return err
			}
		}
		for _, m := range broadcast {
			if err := store.InsertBroadcastRead(ctx, tx, agent, m.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mcserr.Wrap("check_inbox", err)
	}

	if err := c.Store.SetLastInboxCheck(ctx, agent); err != nil {
		return nil, mcserr.Wrap("check_inbox", err)
	}

	all := append(direct, broadcast...)
	out := make([]InboxEntry, 0, len(all))
	for _, m := range all {
		entry := InboxEntry{Message: m}
		if m.IsCC {
			entry.OriginallyTo = m.CCOriginalTo
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetHistory returns the newest count messages, oldest-first.
func (c *Core) GetHistory(ctx context.Context, count int, taskID string) ([]store.Message, error) {
	msgs, err := c.Store.GetHistory(ctx, count, taskID)
	if err != nil {
		return nil, mcserr.Wrap("get_history", err)
	}
	return msgs, nil
}

// WhoEntry enriches a stored Agent with presence and heartbeat health.
type WhoEntry struct {
	store.Agent
	Connected bool   `json:"connected"`
	Health    string `json:"health"`
}

// Who returns every agent enriched with connection presence and
// heartbeat-derived health (spec §4.4).
func (c *Core) Who(ctx context.Context) ([]WhoEntry, error) {
	agents, err := c.Store.ListAgents(ctx)
	if err != nil {
		return nil, mcserr.Wrap("who", err)
	}
	out := make([]WhoEntry, 0, len(agents))
	for _, a := range agents {
		out = append(out, WhoEntry{
			Agent:     a,
			Connected: c.Registry.Connected(a.Name),
			Health:    health(a.HeartbeatAt),
		})
	}
	return out, nil
}

func health(heartbeatAt string) string {
	if heartbeatAt == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339Nano, heartbeatAt)
	if err != nil {
		return "unknown"
	}
	age := time.Since(t)
	switch {
	case age < 2*time.Minute:
		return "healthy"
	case age < 10*time.Minute:
		return "stale"
	default:
		return "dead"
	}
}
