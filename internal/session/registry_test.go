package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePusher struct{ id string }

func (f *fakePusher) Push(method string, params any) error { return nil }

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	p := &fakePusher{id: "a"}

	reg.Register("dev1", p)

	got, ok := reg.Get("dev1")
	require.True(t, ok)
	require.Same(t, p, got)
	require.True(t, reg.Connected("dev1"))
	require.Equal(t, 1, reg.Count())
}

func TestAgentForResolvesReverseLookup(t *testing.T) {
	reg := NewRegistry()
	p := &fakePusher{id: "a"}
	reg.Register("dev1", p)

	name, ok := reg.AgentFor(p)
	require.True(t, ok)
	require.Equal(t, "dev1", name)
}

func TestReRegisterEvictsOldSessionFromReverseMap(t *testing.T) {
	reg := NewRegistry()
	oldSess := &fakePusher{id: "old"}
	newSess := &fakePusher{id: "new"}

	reg.Register("dev1", oldSess)
	reg.Register("dev1", newSess)

	_, ok := reg.AgentFor(oldSess)
	require.False(t, ok)
	name, ok := reg.AgentFor(newSess)
	require.True(t, ok)
	require.Equal(t, "dev1", name)
}

func TestUnregisterSessionRemovesBothDirections(t *testing.T) {
	reg := NewRegistry()
	p := &fakePusher{id: "a"}
	reg.Register("dev1", p)

	reg.UnregisterSession(p)

	_, ok := reg.Get("dev1")
	require.False(t, ok)
	_, ok = reg.AgentFor(p)
	require.False(t, ok)
}

func TestUnregisterByName(t *testing.T) {
	reg := NewRegistry()
	p := &fakePusher{id: "a"}
	reg.Register("dev1", p)

	reg.Unregister("dev1")

	require.False(t, reg.Connected("dev1"))
	require.Equal(t, 0, reg.Count())
}
