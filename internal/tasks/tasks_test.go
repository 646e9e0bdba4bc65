package tasks

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

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := session.NewRegistry()
	notifier := notify.New(registry, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(st, notifier)
}

func TestCreateTaskUnassignedIsPending(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "details", "", "proj")
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, task.Status)
	require.Equal(t, "TASK-001", task.ID)
}

func TestCreateTaskAssignedIsAssignedAndNotifies(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Store.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "details", "dev1", "proj")
	require.NoError(t, err)
	require.Equal(t, store.TaskAssigned, task.Status)
	require.Equal(t, "dev1", task.AssignedTo)

	msgs, err := m.Store.GetHistory(ctx, 10, task.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "dev1", msgs[0].Recipient)
}

func TestTaskIDsIncrementAcrossCreates(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	first, err := m.CreateTask(ctx, "lead1", "A", "", "", "proj")
	require.NoError(t, err)
	second, err := m.CreateTask(ctx, "lead1", "B", "", "", "proj")
	require.NoError(t, err)

	require.Equal(t, "TASK-001", first.ID)
	require.Equal(t, "TASK-002", second.ID)
}

func TestUpdateTaskFollowsTransitionTable(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "", "dev1", "proj")
	require.NoError(t, err)

	task, err = m.UpdateTask(ctx, "dev1", task.ID, store.TaskInProgress, "")
	require.NoError(t, err)
	require.Equal(t, store.TaskInProgress, task.Status)

	_, err = m.UpdateTask(ctx, "dev1", task.ID, store.TaskCompleted, "")
	require.Error(t, err)
	kind, ok := mcserr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, mcserr.KindInvalidTransition, kind)
}

func TestUpdateTaskRejectsWrongActor(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "", "dev1", "proj")
	require.NoError(t, err)

	_, err = m.UpdateTask(ctx, "someone_else", task.ID, store.TaskInProgress, "")
	require.Error(t, err)
}

func TestBootstrapAllowsLeadGatedTransitionWithNoLeadsRegistered(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	task, err := m.CreateTask(ctx, "nobody", "Fix bug", "", "", "proj")
	require.NoError(t, err)
	require.Equal(t, store.TaskPending, task.Status)

	task, err = m.UpdateTask(ctx, "anyone", task.ID, store.TaskAssigned, "")
	require.NoError(t, err)
	require.Equal(t, store.TaskAssigned, task.Status)
}

func TestSubmitForReviewThenApprove(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Store.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "", "dev1", "proj")
	require.NoError(t, err)
	task, err = m.UpdateTask(ctx, "dev1", task.ID, store.TaskInProgress, "")
	require.NoError(t, err)

	task, err = m.SubmitForReview(ctx, "dev1", task.ID, "done", "a.go", "pass")
	require.NoError(t, err)
	require.Equal(t, store.TaskReview, task.Status)

	task, err = m.ApproveTask(ctx, "lead1", task.ID, "lgtm")
	require.NoError(t, err)
	require.Equal(t, store.TaskCompleted, task.Status)

	unread, err := m.Store.UnreadDirect(ctx, "dev1")
	require.NoError(t, err)
	require.Len(t, unread, 2)
	require.Contains(t, unread[1].Body, "[APPROVED] "+task.ID+": Fix bug")
	require.Contains(t, unread[1].Body, "Notes: lgtm")
}

func TestRejectSendsTaskBackToInProgress(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Store.RegisterAgent(ctx, "lead1", "core", store.RoleLead, "", "online"))

	task, err := m.CreateTask(ctx, "lead1", "Fix bug", "", "dev1", "proj")
	require.NoError(t, err)
	task, err = m.UpdateTask(ctx, "dev1", task.ID, store.TaskInProgress, "")
	require.NoError(t, err)
	task, err = m.SubmitForReview(ctx, "dev1", task.ID, "done", "", "")
	require.NoError(t, err)

	task, err = m.RejectTask(ctx, "lead1", task.ID, "needs more tests")
	require.NoError(t, err)
	require.Equal(t, store.TaskInProgress, task.Status)

	unread, err := m.Store.UnreadDirect(ctx, "dev1")
	require.NoError(t, err)
	require.Len(t, unread, 2)
	require.Contains(t, unread[1].Body, "[REWORK] "+task.ID+": Fix bug")
	require.Contains(t, unread[1].Body, "REASON: needs more tests")
}

func TestListTasksFiltersByAssignee(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	_, err := m.CreateTask(ctx, "lead1", "A", "", "dev1", "proj")
	require.NoError(t, err)
	_, err = m.CreateTask(ctx, "lead1", "B", "", "dev2", "proj")
	require.NoError(t, err)

	list, err := m.ListTasks(ctx, "", "dev1", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dev1", list[0].AssignedTo)
}
