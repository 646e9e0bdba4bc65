package messaging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/store"
)

type noopPusher struct{}

func (noopPusher) Push(method string, params any) error { return nil }

func newTestCore(t *testing.T) *Core {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := session.NewRegistry()
	notifier := notify.New(registry, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(st, registry, notifier, "", "")
}

func TestRegisterBindsSessionAndGreets(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	greeting, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "does things", "")
	require.NoError(t, err)
	require.Contains(t, greeting, "dev1")
	require.True(t, c.Registry.Connected("dev1"))
}

func TestRegisterRejectsWrongRoomToken(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer st.Close()

	registry := session.NewRegistry()
	notifier := notify.New(registry, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := New(st, registry, notifier, "secret", "")

	_, err = c.Register(context.Background(), noopPusher{}, "dev1", "core", "dev", "", "wrong")
	require.Error(t, err)
	kind, ok := mcserr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, mcserr.KindAuthRejected, kind)
}

func TestSendDirectMessageThenCheckInbox(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, noopPusher{}, "dev2", "core", "dev", "", "")
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev1", "dev2", "hello", nil, "", 0)
	require.NoError(t, err)

	entries, err := c.CheckInbox(ctx, "dev2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].Body)
}

func TestSendBlockedBySenderUnreadMail(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, noopPusher{}, "dev2", "core", "dev", "", "")
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev2", "dev1", "first", nil, "", 0)
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev1", "dev2", "reply before reading", nil, "", 0)
	require.Error(t, err)
	kind, ok := mcserr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, mcserr.KindUnreadMailBlocked, kind)
}

func TestBroadcastAlsoBlockedBySenderUnreadMail(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, noopPusher{}, "dev2", "core", "dev", "", "")
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev2", "dev1", "first", nil, "", 0)
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev1", BroadcastRecipient, "announcement", nil, "", 0)
	require.Error(t, err)
	kind, ok := mcserr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, mcserr.KindUnreadMailBlocked, kind)

	_, err = c.CheckInbox(ctx, "dev1")
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev1", BroadcastRecipient, "announcement", nil, "", 0)
	require.NoError(t, err)
}

func TestSendAutoCCsLeads(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "lead1", "core", store.RoleLead, "", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, noopPusher{}, "dev2", "core", "dev", "", "")
	require.NoError(t, err)

	_, err = c.Send(ctx, "dev1", "dev2", "status update", nil, "", 0)
	require.NoError(t, err)

	entries, err := c.CheckInbox(ctx, "lead1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "dev2", entries[0].OriginallyTo)
}

func TestWhoReportsConnectedAndHealth(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)

	who, err := c.Who(ctx)
	require.NoError(t, err)
	require.Len(t, who, 1)
	require.True(t, who[0].Connected)
	require.Equal(t, "unknown", who[0].Health)
}

func TestPingUpdatesHeartbeatAndHealth(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	_, err := c.Register(ctx, noopPusher{}, "dev1", "core", "dev", "", "")
	require.NoError(t, err)

	_, err = c.Ping(ctx, noopPusher{}, "dev1")
	require.NoError(t, err)

	who, err := c.Who(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", who[0].Health)
}
