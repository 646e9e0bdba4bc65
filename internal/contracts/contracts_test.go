package contracts

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

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := session.NewRegistry()
	notifier := notify.New(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(st, notifier), st
}

func TestDeclareNewContractStartsAtVersionOne(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	c, err := r.Declare(ctx, "dev1", "getUser", "function", "func getUser(id string) User", "proj")
	require.NoError(t, err)
	require.Equal(t, 1, c.Version)
}

func TestDeclareBumpsVersionAndBroadcasts(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev2", "core", "dev", "", "online"))

	_, err := r.Declare(ctx, "dev1", "getUser", "function", "v1 sig", "proj")
	require.NoError(t, err)

	c, err := r.Declare(ctx, "dev1", "getUser", "function", "v2 sig", "proj")
	require.NoError(t, err)
	require.Equal(t, 2, c.Version)

	msgs, err := st.GetHistory(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "dev2", msgs[0].Recipient)
	require.Equal(t, "[CONTRACT v2] function 'getUser' updated by dev1: v2 sig", msgs[0].Body)
}

func TestDeclareRejectsUnknownKind(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Declare(ctx, "dev1", "getUser", "bogus", "sig", "proj")
	require.Error(t, err)
}

func TestListContractsSortsByKindThenName(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Declare(ctx, "dev1", "zFunc", "function", "spec", "proj")
	require.NoError(t, err)
	_, err = r.Declare(ctx, "dev1", "aFunc", "function", "spec", "proj")
	require.NoError(t, err)
	_, err = r.Declare(ctx, "dev1", "mEvent", "event", "spec", "proj")
	require.NoError(t, err)

	list, err := r.List(ctx, "proj", "", "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "mEvent", list[0].Name)
	require.Equal(t, "aFunc", list[1].Name)
	require.Equal(t, "zFunc", list[2].Name)
}
