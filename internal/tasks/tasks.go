// Package tasks implements spec §4.5's TaskMachine: the fixed
// transition table with role-based authorization, TASK-NNN minting,
// and the auto-notification that fires on every transition.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/metrics"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/store"
)

// transition is one legal (from, to) edge and who may drive it.
type transition struct {
	from, to string
	byLead   bool // false means "by the assignee"
}

// transitions is spec §4.5's complete table. Anything not listed fails
// with InvalidTransition.
var transitions = []transition{
	{store.TaskPending, store.TaskAssigned, true},
	{store.TaskAssigned, store.TaskInProgress, false},
	{store.TaskInProgress, store.TaskReview, false},
	{store.TaskInProgress, store.TaskFailed, false},
	{store.TaskReview, store.TaskCompleted, true},
	{store.TaskReview, store.TaskInProgress, true},
	{store.TaskFailed, store.TaskAssigned, true},
}

func validNextStates(from string) []string {
	var out []string
	for _, t := range transitions {
		if t.from == from {
			out = append(out, t.to)
		}
	}
	return out
}

func findTransition(from, to string) (transition, bool) {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return t, true
		}
	}
	return transition{}, false
}

// Machine binds TaskMachine's operations to a Store and Notifier.
type Machine struct {
	Store    *store.Store
	Notifier *notify.Notifier
}

// New builds a TaskMachine.
func New(st *store.Store, notifier *notify.Notifier) *Machine {
	return &Machine{Store: st, Notifier: notifier}
}

// authorized reports whether actor may drive t, applying the
// degenerate bootstrap rule: if no lead is registered, lead-gated
// transitions are allowed from anyone (spec §4.5).
func (m *Machine) authorized(ctx context.Context, actor string, t transition, assignedTo string) (bool, error) {
	if !t.byLead {
		return actor == assignedTo, nil
	}
	leads, err := m.Store.ListLeadNames(ctx)
	if err != nil {
		return false, err
	}
	if len(leads) == 0 {
		return true, nil
	}
	for _, l := range leads {
		if l == actor {
			return true, nil
		}
	}
	return false, nil
}

// CreateTask mints the next TASK-NNN id, inserts the task, and — if
// assigned — posts the assignment message to the assignee with CC to
// every other lead (spec §4.5).
func (m *Machine) CreateTask(ctx context.Context, creator, title, description, assignTo, project string) (store.Task, error) {
	now := store.Now()
	status := store.TaskPending
	if assignTo != "" {
		status = store.TaskAssigned
	}

	var task store.Task
	err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := store.NextTaskID(ctx, tx)
		if err != nil {
			return err
		}
		task = store.Task{
			ID: id, Project: project, Title: title, Description: description,
			AssignedTo: assignTo, CreatedBy: creator, Status: status,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := store.InsertTask(ctx, tx, task); err != nil {
			return err
		}

		if assignTo != "" {
			body := fmt.Sprintf("[%s] TASK ASSIGNED: %s\n\n%s", id, title, description)
			if _, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: "system", Recipient: assignTo, Body: body, CreatedAt: now, TaskID: id,
			}); err != nil {
				return err
			}
			leads, err := m.Store.ListLeadNames(ctx)
			if err != nil {
				return err
			}
			for _, lead := range leads {
				if lead == assignTo || lead == creator {
					continue
				}
				if _, err := store.InsertMessage(ctx, tx, store.Message{
					Sender: "system", Recipient: lead, Body: body, CreatedAt: now, TaskID: id,
					IsCC: true, CCOriginalTo: assignTo,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return store.Task{}, mcserr.Wrap("create_task", err)
	}

	if assignTo != "" {
		recipients := []string{assignTo}
		leads, _ := m.Store.ListLeadNames(ctx)
		for _, l := range leads {
			if l != assignTo && l != creator {
				recipients = append(recipients, l)
			}
		}
		m.Notifier.Notify(ctx, recipients)
	}
	metrics.TaskTransitions.WithLabelValues(status).Inc()
	return task, nil
}

// UpdateTask drives one (from, to) transition, checking authorization,
// applying side effects, and firing the auto-notification message to
// the other party in the assignment.
func (m *Machine) UpdateTask(ctx context.Context, actor, taskID, to, result string) (store.Task, error) {
	var task store.Task
	var notifyTo string

	err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := store.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !found {
			return mcserr.NotFound(fmt.Sprintf("task %s", taskID))
		}

		t, ok := findTransition(existing.Status, to)
		if !ok {
			return mcserr.InvalidTransition(existing.Status, to, validNextStates(existing.Status))
		}

		ok, err = m.authorized(ctx, actor, t, existing.AssignedTo)
		if err != nil {
			return err
		}
		if !ok {
			return mcserr.Unauthorized(fmt.Sprintf("transition task %s to %s", taskID, to))
		}

		from := existing.Status
		now := store.Now()
		completed := to == store.TaskCompleted
		if err := store.UpdateTaskFields(ctx, tx, taskID, to, "", result, completed, now); err != nil {
			return err
		}

		existing.Status, existing.UpdatedAt = to, now
		if result != "" {
			existing.Result = result
		}
		task = existing

		body := fmt.Sprintf("[%s] Status: %s → %s", taskID, from, to)
		if result != "" {
			body += "\n\n" + result
		}

		isAssignee := actor == existing.AssignedTo
		if isAssignee {
			leads, err := m.Store.ListLeadNames(ctx)
			if err != nil {
				return err
			}
			for _, lead := range leads {
				if _, err := store.InsertMessage(ctx, tx, store.Message{
					Sender: "system", Recipient: lead, Body: body, CreatedAt: now, TaskID: taskID,
				}); err != nil {
					return err
				}
			}
			notifyTo = "__leads__"
		} else {
			if _, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: "system", Recipient: existing.AssignedTo, Body: body, CreatedAt: now, TaskID: taskID,
			}); err != nil {
				return err
			}
			notifyTo = existing.AssignedTo
		}
		return nil
	})
	if err != nil {
		return store.Task{}, mcserr.Wrap("update_task", err)
	}

	if notifyTo == "__leads__" {
		leads, _ := m.Store.ListLeadNames(ctx)
		m.Notifier.Notify(ctx, leads)
	} else if notifyTo != "" {
		m.Notifier.Notify(ctx, []string{notifyTo})
	}
	metrics.TaskTransitions.WithLabelValues(to).Inc()
	return task, nil
}

// reviewResult is the structured payload submit_for_review persists
// into a task's result column (spec §4.5).
type reviewResult struct {
	Summary      string `json:"summary"`
	FilesChanged string `json:"files_changed,omitempty"`
	TestResults  string `json:"test_results,omitempty"`
}

// SubmitForReview requires the task to be in_progress and actor to be
// the assignee; persists the structured review payload and transitions
// to review, notifying every lead.
func (m *Machine) SubmitForReview(ctx context.Context, actor, taskID, summary, filesChanged, testResults string) (store.Task, error) {
	payload, err := json.Marshal(reviewResult{Summary: summary, FilesChanged: filesChanged, TestResults: testResults})
	if err != nil {
		return store.Task{}, mcserr.Wrap("submit_for_review", err)
	}

	var task store.Task
	err = m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := store.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !found {
			return mcserr.NotFound(fmt.Sprintf("task %s", taskID))
		}
		if existing.Status != store.TaskInProgress {
			return mcserr.InvalidTransition(existing.Status, store.TaskReview, validNextStates(existing.Status))
		}
		if actor != existing.AssignedTo {
			return mcserr.Unauthorized(fmt.Sprintf("submit task %s for review", taskID))
		}

		now := store.Now()
		if err := store.UpdateTaskFields(ctx, tx, taskID, store.TaskReview, "", string(payload), false, now); err != nil {
			return err
		}
		existing.Status, existing.Result, existing.UpdatedAt = store.TaskReview, string(payload), now
		task = existing

		body := fmt.Sprintf("[REVIEW] [%s] %s", taskID, summary)
		leads, err := m.Store.ListLeadNames(ctx)
		if err != nil {
			return err
		}
		for _, lead := range leads {
			if _, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: "system", Recipient: lead, Body: body, CreatedAt: now, TaskID: taskID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.Task{}, mcserr.Wrap("submit_for_review", err)
	}

	leads, _ := m.Store.ListLeadNames(ctx)
	m.Notifier.Notify(ctx, leads)
	metrics.TaskTransitions.WithLabelValues(store.TaskReview).Inc()
	return task, nil
}

// ApproveTask is lead-only, gated on review, transitioning to
// completed with an optional note delivered to the assignee.
func (m *Machine) ApproveTask(ctx context.Context, actor, taskID, note string) (store.Task, error) {
	return m.reviewDecision(ctx, actor, taskID, store.TaskCompleted, note)
}

// RejectTask is lead-only, gated on review, transitioning back to
// in_progress with the rejection reason delivered to the assignee.
func (m *Machine) RejectTask(ctx context.Context, actor, taskID, reason string) (store.Task, error) {
	return m.reviewDecision(ctx, actor, taskID, store.TaskInProgress, reason)
}

func (m *Machine) reviewDecision(ctx context.Context, actor, taskID, to, note string) (store.Task, error) {
	var task store.Task
	var assignee string

	err := m.Store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := store.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !found {
			return mcserr.NotFound(fmt.Sprintf("task %s", taskID))
		}
		if existing.Status != store.TaskReview {
			return mcserr.InvalidTransition(existing.Status, to, validNextStates(existing.Status))
		}

		leads, err := m.Store.ListLeadNames(ctx)
		if err != nil {
			return err
		}
		if !isLeadOrBootstrap(actor, leads) {
			return mcserr.Unauthorized(fmt.Sprintf("decide review for task %s", taskID))
		}

		now := store.Now()
		completed := to == store.TaskCompleted
		if err := store.UpdateTaskFields(ctx, tx, taskID, to, "", "", completed, now); err != nil {
			return err
		}
		existing.Status, existing.UpdatedAt = to, now
		task = existing
		assignee = existing.AssignedTo

		var body string
		if completed {
			body = fmt.Sprintf("[APPROVED] %s: %s", taskID, existing.Title)
			if note != "" {
				body += "\n\nNotes: " + note
			}
		} else {
			body = fmt.Sprintf("[REWORK] %s: %s\n\nREASON: %s", taskID, existing.Title, note)
		}
		if _, err := store.InsertMessage(ctx, tx, store.Message{
			Sender: "system", Recipient: assignee, Body: body, CreatedAt: now, TaskID: taskID,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return store.Task{}, mcserr.Wrap("review_decision", err)
	}

	m.Notifier.Notify(ctx, []string{assignee})
	metrics.TaskTransitions.WithLabelValues(to).Inc()
	return task, nil
}

func isLeadOrBootstrap(actor string, leads []string) bool {
	if len(leads) == 0 {
		return true
	}
	for _, l := range leads {
		if l == actor {
			return true
		}
	}
	return false
}

// ListTaskResult is one list_tasks row, carrying the optional
// staleness warning spec §4.5 attaches to dead-assignee in_progress tasks.
type ListTaskResult struct {
	store.Task
	Warning string `json:"warning,omitempty"`
}

// ListTasks returns matching tasks oldest-first, flagging any
// in_progress task whose assignee's heartbeat is stale.
func (m *Machine) ListTasks(ctx context.Context, status, assignee, project string) ([]ListTaskResult, error) {
	tasks, err := m.Store.ListTasks(ctx, project, status)
	if err != nil {
		return nil, mcserr.Wrap("list_tasks", err)
	}

	out := make([]ListTaskResult, 0, len(tasks))
	for i := len(tasks) - 1; i >= 0; i-- { // ListTasks returns newest-first; reverse to oldest-first
		t := tasks[i]
		if assignee != "" && t.AssignedTo != assignee {
			continue
		}
		r := ListTaskResult{Task: t}
		if t.Status == store.TaskInProgress && t.AssignedTo != "" {
			if a, found, err := m.Store.GetAgent(ctx, t.AssignedTo); err == nil && found && isDeadHeartbeat(a.HeartbeatAt) {
				r.Warning = "assigned agent appears dead"
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// isDeadHeartbeat reports whether heartbeatAt is older than the
// 10-minute staleness threshold spec §4.5's list_tasks warning uses.
func isDeadHeartbeat(heartbeatAt string) bool {
	if heartbeatAt == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339Nano, heartbeatAt)
	if err != nil {
		return true
	}
	return time.Since(t) >= 10*time.Minute
}
