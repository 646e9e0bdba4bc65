package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

const taskColumns = `id, project, title, description, assigned_to, created_by, status, result, created_at, updated_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var project, description, assignedTo, result, completedAt sql.NullString
	err := row.Scan(&t.ID, &project, &t.Title, &description, &assignedTo, &t.CreatedBy, &t.Status, &result, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	t.Project, t.Description, t.AssignedTo = project.String, description.String, assignedTo.String
	t.Result, t.CompletedAt = result.String, completedAt.String
	return t, err
}

// NextTaskID mints the next TASK-NNN id: the highest existing numeric
// suffix plus one, zero-padded to at least 3 digits (spec §3).
func NextTaskID(ctx context.Context, tx *sql.Tx) (string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks`)
	if err != nil {
		return "", fmt.Errorf("list task ids: %w", err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		suffix := strings.TrimPrefix(id, "TASK-")
		if n, err := strconv.Atoi(suffix); err == nil && n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return fmt.Sprintf("TASK-%03d", max+1), nil
}

// InsertTask inserts a new task row, stamping created_at/updated_at to now.
func InsertTask(ctx context.Context, tx *sql.Tx, t Task) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project, title, description, assigned_to, created_by, status, result, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, NULL)`,
		t.ID, t.Project, t.Title, t.Description, t.AssignedTo, t.CreatedBy, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

// GetTaskTx is GetTask scoped to an in-flight transaction, used by
// transition validation that must read-then-write atomically.
func GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (Task, bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

// UpdateTaskFields applies a transition: status always, plus whichever
// optional fields the caller supplies (assignedTo/result may be empty
// meaning "leave unchanged").
func UpdateTaskFields(ctx context.Context, tx *sql.Tx, id, status, assignedTo, result string, completed bool, now string) error {
	if assignedTo != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET assigned_to = ? WHERE id = ?`, assignedTo, id); err != nil {
			return fmt.Errorf("update task assignee: %w", err)
		}
	}
	if result != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET result = ? WHERE id = ?`, result, id); err != nil {
			return fmt.Errorf("update task result: %w", err)
		}
	}
	var completedAt any
	if completed {
		completedAt = now
	}
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`, status, now, completedAt, id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// ListTasks returns tasks optionally filtered by project and/or status,
// newest first.
func (s *Store) ListTasks(ctx context.Context, project, status string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
