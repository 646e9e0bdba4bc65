// Package session tracks which agent names currently have a live
// connection, so the Notifier knows who it can push to, and so
// RpcSurface can resolve "which agent is this request from" (spec
// §4.2, §4.9's notification pathway).
package session

import (
	"sync"

	"github.com/agentmesh/mcs/internal/metrics"
)

// Pusher is whatever a transport session exposes to push a JSON-RPC
// notification payload to its remote end. Both the WebSocket and
// stdio transports implement it.
type Pusher interface {
	// Push writes a JSON-RPC notification (method + params, no id).
	// An error means the underlying connection is dead.
	Push(method string, params any) error
}

// Registry is a bidirectional agent-name <-> session map and its
// inverse, updated together under one critical section so an agent is
// never half-registered (spec §4.2; grounded on the teacher's
// websocket.ClientRegistry, generalized from session-ID keys to agent
// names and given an explicit reverse map).
type Registry struct {
	mu        sync.RWMutex
	byAgent   map[string]Pusher
	bySession map[Pusher]string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{byAgent: make(map[string]Pusher), bySession: make(map[Pusher]string)}
}

// Register associates agent with its live session. Re-registration of
// an already-present agent evicts the old session handle first, so a
// stale handle never lingers in either map.
func (r *Registry) Register(agent string, p Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byAgent[agent]; ok && old != p {
		delete(r.bySession, old)
	}
	r.byAgent[agent] = p
	r.bySession[p] = agent
	metrics.ActiveSessions.Set(float64(len(r.byAgent)))
}

// Unregister removes agent's session, if any.
func (r *Registry) Unregister(agent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byAgent[agent]; ok {
		delete(r.bySession, p)
		delete(r.byAgent, agent)
		metrics.ActiveSessions.Set(float64(len(r.byAgent)))
	}
}

// UnregisterSession removes whichever agent name currently maps to p,
// used when a transport loses its connection without first knowing
// which agent name (if any) it was registered under.
func (r *Registry) UnregisterSession(p Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.bySession[p]; ok {
		delete(r.byAgent, agent)
		delete(r.bySession, p)
		metrics.ActiveSessions.Set(float64(len(r.byAgent)))
	}
}

// Get returns agent's current session, if connected.
func (r *Registry) Get(agent string) (Pusher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAgent[agent]
	return p, ok
}

// AgentFor returns the agent name currently bound to session p, if any.
func (r *Registry) AgentFor(p Pusher) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.bySession[p]
	return agent, ok
}

// Connected reports whether agent currently has a live session.
func (r *Registry) Connected(agent string) bool {
	_, ok := r.Get(agent)
	return ok
}

// Count returns the number of currently connected sessions, for metrics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAgent)
}
