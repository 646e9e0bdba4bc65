package store

import (
	"context"
	"database/sql"
	"fmt"
)

const handshakeColumns = `id, initiator, message_id, created_at, status`

func scanHandshake(row interface{ Scan(...any) error }) (Handshake, error) {
	var h Handshake
	err := row.Scan(&h.ID, &h.Initiator, &h.MessageID, &h.CreatedAt, &h.Status)
	return h, err
}

// InsertHandshake creates a new pending handshake anchored to messageID
// (the first fan-out message's id, spec §4.6).
func InsertHandshake(ctx context.Context, tx *sql.Tx, initiator string, messageID int64, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO handshakes (initiator, message_id, created_at, status)
		VALUES (?, ?, ?, ?)`, initiator, messageID, now, HandshakePending)
	if err != nil {
		return 0, fmt.Errorf("insert handshake: %w", err)
	}
	return res.LastInsertId()
}

// GetHandshakeTx reads a handshake row inside an in-flight transaction.
func GetHandshakeTx(ctx context.Context, tx *sql.Tx, id int64) (Handshake, bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+handshakeColumns+` FROM handshakes WHERE id = ?`, id)
	h, err := scanHandshake(row)
	if err == sql.ErrNoRows {
		return Handshake{}, false, nil
	}
	if err != nil {
		return Handshake{}, false, fmt.Errorf("get handshake: %w", err)
	}
	return h, true, nil
}

// GetHandshake reads a handshake row outside a transaction.
func (s *Store) GetHandshake(ctx context.Context, id int64) (Handshake, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+handshakeColumns+` FROM handshakes WHERE id = ?`, id)
	h, err := scanHandshake(row)
	if err == sql.ErrNoRows {
		return Handshake{}, false, nil
	}
	if err != nil {
		return Handshake{}, false, fmt.Errorf("get handshake: %w", err)
	}
	return h, true, nil
}

// InsertAck records acker's acknowledgement, idempotently.
func InsertAck(ctx context.Context, tx *sql.Tx, handshakeID int64, acker, now string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO handshake_acks (handshake_id, acker, acked_at) VALUES (?, ?, ?)
		ON CONFLICT(handshake_id, acker) DO NOTHING`, handshakeID, acker, now)
	if err != nil {
		return fmt.Errorf("insert handshake ack: %w", err)
	}
	return nil
}

// ListAcksTx returns the set of agents that have acked handshakeID,
// scoped to an in-flight transaction so completeness checks see their
// own just-inserted ack.
func ListAcksTx(ctx context.Context, tx *sql.Tx, handshakeID int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT acker FROM handshake_acks WHERE handshake_id = ?`, handshakeID)
	if err != nil {
		return nil, fmt.Errorf("list handshake acks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ack pairs an acker with the time they acknowledged.
type Ack struct {
	Acker   string
	AckedAt string
}

// ListAcks returns the ack set with each acker's real acked_at,
// outside a transaction (status queries; spec §4.6 "full ACK set with
// times").
func (s *Store) ListAcks(ctx context.Context, handshakeID int64) ([]Ack, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT acker, acked_at FROM handshake_acks WHERE handshake_id = ?`, handshakeID)
	if err != nil {
		return nil, fmt.Errorf("list handshake acks: %w", err)
	}
	defer rows.Close()

	var out []Ack
	for rows.Next() {
		var a Ack
		if err := rows.Scan(&a.Acker, &a.AckedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetHandshakeStatus updates a handshake's status (pending -> completed).
func SetHandshakeStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE handshakes SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set handshake status: %w", err)
	}
	return nil
}
