// Package notify implements spec §4.3's Notifier: pushing
// capability-refresh and alert notifications to live sessions, and
// reaping dead ones on push failure. It holds no mutable state beyond
// its logger — every durable fact it needs comes from Store, every
// live handle from session.Registry.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmesh/mcs/internal/metrics"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/store"
)

// ToolsListChangedMethod and AlertMethod are the two server
// notifications spec §7 requires every transport to support: the MCP
// standard tools/list_changed push (agents re-fetch tool descriptions,
// picking up check_inbox's unread prefix) and a logging-level alert
// carrying the same information as plain text, for transports that
// never re-fetch tool descriptions on their own.
const (
	ToolsListChangedMethod = "notifications/tools/list_changed"
	AlertMethod            = "notifications/message"
)

// AlertParams is the payload of an AlertMethod push.
type AlertParams struct {
	Level string `json:"level"`
	Data  string `json:"data"`
}

// Notifier pushes to whichever recipients in a given set are
// currently present in the registry; absent recipients are silently
// skipped (spec §4.3 — their alert surfaces next time they fetch
// capabilities).
type Notifier struct {
	registry *session.Registry
	store    *store.Store
	logger   *slog.Logger
}

// New builds a Notifier bound to registry and store.
func New(registry *session.Registry, st *store.Store, logger *slog.Logger) *Notifier {
	return &Notifier{registry: registry, store: st, logger: logger}
}

// Notify pushes to every recipient in names that currently has a live
// session. For each: a capabilities-changed push, then a log-level
// alert push carrying the recipient's current unread count and sender
// set (spec §4.3's exact wording). A push failure evicts the session
// and is not retried.
func (n *Notifier) Notify(ctx context.Context, names []string) {
	for _, name := range names {
		n.notifyOne(ctx, name)
	}
}

func (n *Notifier) notifyOne(ctx context.Context, name string) {
	pusher, ok := n.registry.Get(name)
	if !ok {
		return
	}

	if err := pusher.Push(ToolsListChangedMethod, struct{}{}); err != nil {
		n.evict(name, pusher, err)
		return
	}

	count, senders, err := n.store.UnreadCount(ctx, name)
	if err != nil {
		n.logger.Error("compute unread count for notify", "agent", name, "error", err)
		return
	}
	if count == 0 {
		return
	}

	text := fmt.Sprintf("YOU HAVE %d UNREAD MESSAGE(S) from %s. Call check_inbox now.", count, strings.Join(senders, ", "))
	if err := pusher.Push(AlertMethod, AlertParams{Level: "alert", Data: text}); err != nil {
		n.evict(name, pusher, err)
	}
}

func (n *Notifier) evict(name string, pusher session.Pusher, err error) {
	n.registry.Unregister(name)
	metrics.NotifierPushFailures.Inc()
	n.logger.Warn("evicting dead session on push failure", "agent", name, "error", err)
}
