package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestResolveRecipientExactBareMatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "", "dev", "", "online"))

	resolved, err := st.ResolveRecipient(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, "dev1", resolved)
}

func TestResolveRecipientTwoTeamsSameNameIsAmbiguous(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "alpha", "dev", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "beta", "dev", "", "online"))

	_, err := st.ResolveRecipient(ctx, "dev1")
	require.ErrorIs(t, err, ErrAmbiguousRecipient)
}

func TestResolveRecipientQualifiedFormDisambiguates(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "alpha", "dev", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "beta", "dev", "", "online"))

	resolved, err := st.ResolveRecipient(ctx, "alpha/dev1")
	require.NoError(t, err)
	require.Equal(t, "dev1", resolved)
}

func TestResolveRecipientUnknownReturnsBareNameForSkeleton(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	resolved, err := st.ResolveRecipient(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", resolved)

	resolved, err = st.ResolveRecipient(ctx, "newteam/ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", resolved)
}

func TestRegisterAgentSameNameDifferentTeamsCoexist(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "alpha", "dev", "alpha's dev", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "beta", "dev", "beta's dev", "online"))

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
}

func TestRegisterAgentUpdatesInPlaceWithinSameTeam(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "alpha", "dev", "first description", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "alpha", "dev", "updated description", "away"))

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "updated description", agents[0].Description)
	require.Equal(t, "away", agents[0].Status)
}
