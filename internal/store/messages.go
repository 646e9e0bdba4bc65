package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMessage inserts one row, returning its id. Called once per
// primary recipient and once per CC recipient (spec §3's per-row CC
// invariant); callers are responsible for looping.
func InsertMessage(ctx context.Context, tx *sql.Tx, m Message) (int64, error) {
	var replyTo any
	if m.ReplyTo != 0 {
		replyTo = m.ReplyTo
	}
	var taskID any
	if m.TaskID != "" {
		taskID = m.TaskID
	}
	var ccOriginalTo any
	if m.CCOriginalTo != "" {
		ccOriginalTo = m.CCOriginalTo
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (sender, recipient, body, created_at, read_flag, is_cc, cc_original_to, task_id, reply_to)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		m.Sender, m.Recipient, m.Body, m.CreatedAt, boolToInt(m.IsCC), ccOriginalTo, taskID, replyTo)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TaskIDForMessage returns the task id linked to a message, if any
// (used by send's reply_to → task_id inheritance, spec §4.4).
func (s *Store) TaskIDForMessage(ctx context.Context, messageID int64) (string, error) {
	var taskID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT task_id FROM messages WHERE id = ?`, messageID).Scan(&taskID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup reply_to task: %w", err)
	}
	return taskID.String, nil
}

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	var readFlag, isCC int
	var ccOriginalTo, taskID sql.NullString
	var replyTo sql.NullInt64
	err := row.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Body, &m.CreatedAt, &readFlag, &isCC, &ccOriginalTo, &taskID, &replyTo)
	m.ReadFlag, m.IsCC = readFlag != 0, isCC != 0
	m.CCOriginalTo, m.TaskID = ccOriginalTo.String, taskID.String
	m.ReplyTo = replyTo.Int64
	return m, err
}

const messageColumns = `id, sender, recipient, body, created_at, read_flag, is_cc, cc_original_to, task_id, reply_to`

// UnreadDirect returns every unread direct message addressed to agent
// (recipient == agent, is_cc irrelevant — CC rows are also addressed
// to agent directly and must be counted), oldest first.
func (s *Store) UnreadDirect(ctx context.Context, agent string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE recipient = ? AND read_flag = 0 ORDER BY id`, agent)
	if err != nil {
		return nil, fmt.Errorf("list unread direct: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// UnreadBroadcast returns broadcast rows (recipient = 'all') not yet
// present in broadcast_reads for agent, oldest first.
func (s *Store) UnreadBroadcast(ctx context.Context, agent string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.recipient = 'all'
		  AND NOT EXISTS (SELECT 1 FROM broadcast_reads br WHERE br.reader = ? AND br.message_id = m.id)
		ORDER BY m.id`, agent)
	if err != nil {
		return nil, fmt.Errorf("list unread broadcast: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UnreadCount reports the count and unique sender set of agent's
// unread direct + unacknowledged broadcast mail, used both by the
// unread gate in send and by the Notifier's alert text.
func (s *Store) UnreadCount(ctx context.Context, agent string) (count int, senders []string, err error) {
	direct, err := s.UnreadDirect(ctx, agent)
	if err != nil {
		return 0, nil, err
	}
	broadcast, err := s.UnreadBroadcast(ctx, agent)
	if err != nil {
		return 0, nil, err
	}

	seen := make(map[string]bool)
	for _, m := range append(direct, broadcast...) {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			senders = append(senders, m.Sender)
		}
	}
	return len(direct) + len(broadcast), senders, nil
}

// MarkDirectRead flips read_flag=1 on every currently-unread direct
// message to agent, inside tx so it composes with the broadcast-read
// insert in the same check_inbox transaction.
func MarkDirectRead(ctx context.Context, tx *sql.Tx, agent string) error {
	_, err := tx.ExecContext(ctx, `UPDATE messages SET read_flag = 1 WHERE recipient = ? AND read_flag = 0`, agent)
	if err != nil {
		return fmt.Errorf("mark direct read: %w", err)
	}
	return nil
}

// InsertBroadcastRead records that reader has consumed messageID,
// without mutating the broadcast row itself (spec §3 invariant).
func InsertBroadcastRead(ctx context.Context, tx *sql.Tx, reader string, messageID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO broadcast_reads (reader, message_id, read_at) VALUES (?, ?, ?)
		ON CONFLICT(reader, message_id) DO NOTHING`, reader, messageID, Now())
	if err != nil {
		return fmt.Errorf("insert broadcast read: %w", err)
	}
	return nil
}

// GetHistory returns the newest count messages (optionally filtered
// to taskID), presented oldest-first (spec §4.4).
func (s *Store) GetHistory(ctx context.Context, count int, taskID string) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if taskID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT * FROM (
				SELECT `+messageColumns+` FROM messages WHERE task_id = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id`, taskID, count)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT * FROM (
				SELECT `+messageColumns+` FROM messages ORDER BY id DESC LIMIT ?
			) ORDER BY id`, count)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}
