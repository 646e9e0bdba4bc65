package rpcsurface

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
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/spawnpolicy"
	"github.com/agentmesh/mcs/internal/store"
	"github.com/agentmesh/mcs/internal/tasks"
	"github.com/agentmesh/mcs/internal/transport"
)

type noopPusher struct{}

func (noopPusher) Push(method string, params any) error { return nil }

func newTestSurface(t *testing.T) (*Surface, *session.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := session.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := notify.New(reg, st, logger)

	msg := messaging.New(st, reg, notifier, "", "")
	tm := tasks.New(st, notifier)
	hc := handshake.New(st, notifier)
	cr := contracts.New(st, notifier)
	sp := spawnpolicy.New(st)

	return New(msg, tm, hc, cr, sp, reg, logger), reg
}

func callJSON(t *testing.T, s *Surface, ctx context.Context, method string, params any) any {
	t.Helper()
	h, ok := s.Dispatch(method)
	require.True(t, ok, "method %s not dispatched", method)
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	result, err := h(ctx, raw)
	require.NoError(t, err)
	return result
}

func TestDispatchKnowsEveryMethod(t *testing.T) {
	s, _ := newTestSurface(t)
	methods := []string{
		"register", "set_status", "send", "check_inbox", "get_history", "deregister",
		"who", "ping", "create_task", "update_task", "list_tasks", "submit_for_review",
		"approve_task", "reject_task", "initiate_handshake", "ack_handshake", "handshake_status",
		"declare_contract", "list_contracts", "set_spawn_policy", "get_spawn_policy",
		"log_minion", "list_capabilities",
	}
	for _, m := range methods {
		_, ok := s.Dispatch(m)
		require.True(t, ok, "missing method %s", m)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s, _ := newTestSurface(t)
	_, ok := s.Dispatch("not_a_real_method")
	require.False(t, ok)
}

func TestRegisterThenSendRoundTrip(t *testing.T) {
	s, reg := newTestSurface(t)
	ctx := transport.WithSession(context.Background(), noopPusher{})

	result := callJSON(t, s, ctx, "register", registerParams{Name: "dev1"})
	require.Contains(t, result.(string), "dev1")
	require.True(t, reg.Connected("dev1"))

	ctx2 := transport.WithSession(context.Background(), noopPusher{})
	callJSON(t, s, ctx2, "register", registerParams{Name: "dev2"})

	result = callJSON(t, s, context.Background(), "send", sendParams{From: "dev1", To: "dev2", Body: "hi"})
	require.Contains(t, result.(string), "Message sent")
}

func TestDomainFailureIsReturnedAsDisplayString(t *testing.T) {
	s, _ := newTestSurface(t)
	ctx := context.Background()

	result := callJSON(t, s, ctx, "update_task", updateTaskParams{Actor: "anyone", TaskID: "TASK-999", Status: store.TaskAssigned})
	text, ok := result.(string)
	require.True(t, ok)
	require.Contains(t, text, "Error:")
}

func TestListCapabilitiesPrefixesUnreadOnCheckInbox(t *testing.T) {
	s, reg := newTestSurface(t)
	ctx := context.Background()

	callJSON(t, s, transport.WithSession(ctx, noopPusher{}), "register", registerParams{Name: "dev1"})
	callJSON(t, s, transport.WithSession(ctx, noopPusher{}), "register", registerParams{Name: "dev2"})
	callJSON(t, s, ctx, "send", sendParams{From: "dev1", To: "dev2", Body: "hi"})

	sess, ok := reg.Get("dev2")
	require.True(t, ok)
	sessCtx := transport.WithSession(ctx, sess)

	caps := callJSON(t, s, sessCtx, "list_capabilities", struct{}{}).([]Capability)
	var desc string
	for _, c := range caps {
		if c.Name == "check_inbox" {
			desc = c.Description
		}
	}
	require.Contains(t, desc, "YOU HAVE 1 UNREAD MESSAGE(S)")
}

func TestListCapabilitiesNoPrefixForAnonymousSession(t *testing.T) {
	s, _ := newTestSurface(t)
	caps := callJSON(t, s, context.Background(), "list_capabilities", struct{}{}).([]Capability)
	for _, c := range caps {
		if c.Name == "check_inbox" {
			require.NotContains(t, c.Description, "UNREAD")
		}
	}
}

func TestCreateTaskThenListTasks(t *testing.T) {
	s, _ := newTestSurface(t)
	ctx := context.Background()

	callJSON(t, s, ctx, "create_task", createTaskParams{Creator: "lead1", Title: "Fix it", AssignTo: "dev1", Project: "proj"})

	result := callJSON(t, s, ctx, "list_tasks", listTasksParams{Project: "proj"})
	list, ok := result.([]tasks.ListTaskResult)
	require.True(t, ok)
	require.Len(t, list, 1)
	require.Equal(t, "Fix it", list[0].Title)
}
