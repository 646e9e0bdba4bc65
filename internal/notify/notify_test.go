package notify

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/store"
)

type recordingPusher struct {
	pushes []string
	fail   bool
}

func (p *recordingPusher) Push(method string, params any) error {
	if p.fail {
		return sql.ErrConnDone
	}
	p.pushes = append(p.pushes, method)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNotifyPushesCapabilitiesAndAlertWhenUnread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))
	require.NoError(t, st.UpsertSkeletonAgent(ctx, "sender1"))
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := store.InsertMessage(ctx, tx, store.Message{Sender: "sender1", Recipient: "dev1", Body: "hi", CreatedAt: store.Now()})
		return err
	}))

	reg := session.NewRegistry()
	p := &recordingPusher{}
	reg.Register("dev1", p)

	n := New(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Notify(ctx, []string{"dev1"})

	require.Equal(t, []string{ToolsListChangedMethod, AlertMethod}, p.pushes)
}

func TestNotifySkipsAlertWhenNoUnread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	reg := session.NewRegistry()
	p := &recordingPusher{}
	reg.Register("dev1", p)

	n := New(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Notify(ctx, []string{"dev1"})

	require.Equal(t, []string{ToolsListChangedMethod}, p.pushes)
}

func TestNotifyEvictsSessionOnPushFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	reg := session.NewRegistry()
	p := &recordingPusher{fail: true}
	reg.Register("dev1", p)

	n := New(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Notify(ctx, []string{"dev1"})

	require.False(t, reg.Connected("dev1"))
}

func TestNotifySkipsAbsentAgent(t *testing.T) {
	st := newTestStore(t)
	reg := session.NewRegistry()
	n := New(reg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.Notify(context.Background(), []string{"ghost"})
}
