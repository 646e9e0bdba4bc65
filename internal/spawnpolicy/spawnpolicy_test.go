package spawnpolicy

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/store"
)

func newTestGovernor(t *testing.T) (*Governor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestGetDefaultsWhenNoPolicySet(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	policy, err := g.Get(ctx, "dev1")
	require.NoError(t, err)
	require.True(t, policy.Enabled)
	require.Equal(t, 3, policy.MaxMinions)
	require.True(t, policy.CanSpawn)
}

func TestSetGlobalPolicyAppliesToEveryAgent(t *testing.T) {
	g, st := newTestGovernor(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	_, err := g.Set(ctx, "lead1", "global", true, 1)
	require.NoError(t, err)

	policy, err := g.Get(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, 1, policy.MaxMinions)
}

func TestAgentScopeOverridesGlobal(t *testing.T) {
	g, st := newTestGovernor(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	_, err := g.Set(ctx, "lead1", "global", true, 1)
	require.NoError(t, err)
	_, err = g.Set(ctx, "lead1", "dev1", true, 5)
	require.NoError(t, err)

	policy, err := g.Get(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, 5, policy.MaxMinions)

	other, err := g.Get(ctx, "dev2")
	require.NoError(t, err)
	require.Equal(t, 1, other.MaxMinions)
}

func TestCanSpawnReflectsActiveMinionCount(t *testing.T) {
	g, st := newTestGovernor(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	_, err := g.Set(ctx, "lead1", "dev1", true, 1)
	require.NoError(t, err)

	_, err = g.LogMinion(ctx, "dev1", "spawn a helper", store.MinionSpawned, "")
	require.NoError(t, err)

	policy, err := g.Get(ctx, "dev1")
	require.NoError(t, err)
	require.False(t, policy.CanSpawn)
	require.Equal(t, 1, policy.ActiveMinions)
}

func TestLogMinionCompletedClosesMostRecentRow(t *testing.T) {
	g, st := newTestGovernor(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	_, err := g.LogMinion(ctx, "dev1", "spawn a helper", store.MinionSpawned, "")
	require.NoError(t, err)

	_, err = g.LogMinion(ctx, "dev1", "", store.MinionCompleted, "done")
	require.NoError(t, err)

	policy, err := g.Get(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, 0, policy.ActiveMinions)
}

func TestLogMinionCompletedWithNoActiveMinionFails(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, err := g.LogMinion(ctx, "dev1", "", store.MinionCompleted, "done")
	require.Error(t, err)
}

func TestSetRejectsNonLead(t *testing.T) {
	g, st := newTestGovernor(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	_, err := g.Set(ctx, "dev1", "global", true, 2)
	require.Error(t, err)
}
