package handshake

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := session.NewRegistry()
	notifier := notify.New(registry, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(st, notifier), st
}

func TestInitiateDefaultsToAllOtherAgents(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev2", "core", "dev", "", "online"))

	id, err := c.Initiate(ctx, "lead1", "sync up", nil)
	require.NoError(t, err)
	require.NotZero(t, id)

	status, err := c.Status(ctx, id)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dev1", "dev2"}, status.Pending)
}

func TestAckCompletesWhenAllTargetsHaveAcked(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	id, err := c.Initiate(ctx, "lead1", "sync up", []string{"dev1"})
	require.NoError(t, err)

	_, err = c.Ack(ctx, "dev1", id)
	require.NoError(t, err)

	status, err := c.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.HandshakeCompleted, status.Status)
	require.Empty(t, status.Pending)
}

func TestStatusReportsRealAckTimeNotHandshakeCreatedAt(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	id, err := c.Initiate(ctx, "lead1", "sync up", []string{"dev1"})
	require.NoError(t, err)

	before, err := c.Status(ctx, id)
	require.NoError(t, err)
	require.NotContains(t, before.Acked, "dev1")

	_, err = c.Ack(ctx, "dev1", id)
	require.NoError(t, err)

	after, err := c.Status(ctx, id)
	require.NoError(t, err)
	ackedAt, ok := after.Acked["dev1"]
	require.True(t, ok)
	require.NotEmpty(t, ackedAt)
}

func TestAckTwiceIsRejected(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev2", "core", "dev", "", "online"))

	id, err := c.Initiate(ctx, "lead1", "sync up", []string{"dev1", "dev2"})
	require.NoError(t, err)

	_, err = c.Ack(ctx, "dev1", id)
	require.NoError(t, err)
	_, err = c.Ack(ctx, "dev1", id)
	require.Error(t, err)
}

func TestInitiateRejectsNonLead(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	_, err := c.Initiate(ctx, "dev1", "sync up", []string{"lead1"})
	require.Error(t, err)
}
