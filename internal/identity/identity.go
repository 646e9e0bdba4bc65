// Package identity provides agent-name validation and process-level
// id generation for the Messaging and Coordination Server.
package identity

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// agentNameRegex defines valid agent names: lowercase alphanumeric and underscores.
var agentNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// reservedNames cannot be registered as agent names.
var reservedNames = map[string]bool{
	"system":    true,
	"mcs":       true,
	"all":       true,
	"broadcast": true,
}

// ValidAgentName reports whether name is a well-formed, non-reserved
// agent name. A team-qualified address such as "team/name" is not a
// valid agent name (the slash fails the pattern); qualification is
// handled by the messaging package's name resolution.
func ValidAgentName(name string) bool {
	if name == "" || reservedNames[name] {
		return false
	}
	return agentNameRegex.MatchString(name)
}

var (
	entropyMu   sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewDaemonID returns a fresh process-instance identifier; no other
// package in this module calls it. Not a durable entity id —
// message, task, handshake, and contract ids are minted by the store.
func NewDaemonID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// NewSessionToken returns a fresh opaque session identifier with a
// "sess_" prefix. The transports key sessions by their Pusher value
// and do not call it.
func NewSessionToken() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return fmt.Sprintf("sess_%s", ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String())
}
