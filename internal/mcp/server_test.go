package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/contracts"
	"github.com/agentmesh/mcs/internal/handshake"
	"github.com/agentmesh/mcs/internal/messaging"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/rpcsurface"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/spawnpolicy"
	"github.com/agentmesh/mcs/internal/store"
	"github.com/agentmesh/mcs/internal/tasks"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := session.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := notify.New(reg, st, logger)

	surface := rpcsurface.New(
		messaging.New(st, reg, notifier, "", ""),
		tasks.New(st, notifier),
		handshake.New(st, notifier),
		contracts.New(st, notifier),
		spawnpolicy.New(st),
		reg, logger,
	)
	return NewServer(surface, WithVersion("test"))
}

func TestCallDelegatesToSurfaceAndReturnsDisplayText(t *testing.T) {
	s := newTestServer(t)

	out, err := s.call("register", RegisterInput{Name: "dev1"})
	require.NoError(t, err)
	require.Contains(t, out.Text, "dev1")
}

func TestCallEncodesStructuredResultAsJSON(t *testing.T) {
	s := newTestServer(t)

	_, err := s.call("register", RegisterInput{Name: "lead1", Role: "lead"})
	require.NoError(t, err)

	out, err := s.call("create_task", CreateTaskInput{Creator: "lead1", Title: "Ship it", Project: "proj"})
	require.NoError(t, err)

	var task map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Text), &task))
	require.Equal(t, "Ship it", task["Title"])
}

func TestCallUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	_, err := s.call("not_a_real_tool", struct{}{})
	require.Error(t, err)
}

func TestCallSurfacesDomainFailureAsDisplayText(t *testing.T) {
	s := newTestServer(t)
	out, err := s.call("update_task", UpdateTaskInput{Actor: "anyone", TaskID: "TASK-999", Status: store.TaskAssigned})
	require.NoError(t, err)
	require.Contains(t, out.Text, "Error:")
}

func TestToolHandlersRoundTripThroughGomcpSignature(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleRegister(ctx, nil, RegisterInput{Name: "dev2"})
	require.NoError(t, err)
	require.Contains(t, out.Text, "dev2")

	_, out, err = s.handleWho(ctx, nil, WhoInput{})
	require.NoError(t, err)
	require.Contains(t, out.Text, "dev2")
}
