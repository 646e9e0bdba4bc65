package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultSpawnPolicy is the hardcoded fallback when neither an
// agent-specific nor a global scope row exists (spec §4.8).
var DefaultSpawnPolicy = SpawnPolicyRow{Scope: "", Enabled: true, Max: 3}

const spawnPolicyColumns = `scope, enabled, max, set_by, set_at`

func scanSpawnPolicy(row interface{ Scan(...any) error }) (SpawnPolicyRow, error) {
	var p SpawnPolicyRow
	var enabled int
	var setBy sql.NullString
	err := row.Scan(&p.Scope, &enabled, &p.Max, &setBy, &p.SetAt)
	p.Enabled = enabled != 0
	p.SetBy = setBy.String
	return p, err
}

// UpsertSpawnPolicy sets the policy for scope ("" means global, else
// an agent name), overwriting any existing row for that scope.
func (s *Store) UpsertSpawnPolicy(ctx context.Context, scope string, enabled bool, max int, setBy string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO spawn_policy (scope, enabled, max, set_by, set_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(scope) DO UPDATE SET enabled = excluded.enabled, max = excluded.max, set_by = excluded.set_by, set_at = excluded.set_at`,
			scope, boolToInt(enabled), max, setBy, Now())
		return err
	})
}

// GetSpawnPolicy resolves the effective policy for agent: agent-specific
// scope first, then the global ("") scope, then DefaultSpawnPolicy
// (spec §4.8's resolution order).
func (s *Store) GetSpawnPolicy(ctx context.Context, agent string) (SpawnPolicyRow, error) {
	if agent != "" {
		row := s.db.QueryRowContext(ctx, `SELECT `+spawnPolicyColumns+` FROM spawn_policy WHERE scope = ?`, agent)
		p, err := scanSpawnPolicy(row)
		if err == nil {
			return p, nil
		}
		if err != sql.ErrNoRows {
			return SpawnPolicyRow{}, fmt.Errorf("get agent spawn policy: %w", err)
		}
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+spawnPolicyColumns+` FROM spawn_policy WHERE scope = ''`)
	p, err := scanSpawnPolicy(row)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return SpawnPolicyRow{}, fmt.Errorf("get global spawn policy: %w", err)
	}

	return DefaultSpawnPolicy, nil
}

// CountActiveMinions counts pilot's minions still in the spawned
// (not completed/failed) state.
func (s *Store) CountActiveMinions(ctx context.Context, pilot string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM minion_log WHERE pilot = ? AND status = ?`, pilot, MinionSpawned).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active minions: %w", err)
	}
	return n, nil
}

// InsertMinionLog records a newly spawned minion.
func (s *Store) InsertMinionLog(ctx context.Context, pilot, description string) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO minion_log (pilot, description, status, spawned_at)
			VALUES (?, ?, ?, ?)`, pilot, description, MinionSpawned, Now())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CloseMostRecentMinion marks pilot's most recently spawned still-active
// minion as completed or failed, recording result (spec §4.8's
// log_minion semantics: operates on the latest open entry, not by id).
func (s *Store) CloseMostRecentMinion(ctx context.Context, pilot, status, result string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM minion_log WHERE pilot = ? AND status = ? ORDER BY id DESC LIMIT 1`,
			pilot, MinionSpawned).Scan(&id)
		if err == sql.ErrNoRows {
			return fmt.Errorf("no active minion for pilot %q", pilot)
		}
		if err != nil {
			return fmt.Errorf("find active minion: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE minion_log SET status = ?, result = ?, completed_at = ? WHERE id = ?`,
			status, result, Now(), id)
		if err != nil {
			return fmt.Errorf("close minion log: %w", err)
		}
		return nil
	})
}
