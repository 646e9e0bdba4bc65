package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguousRecipient is returned by ResolveRecipient when a bare
// name matches more than one team-qualified agent.
var ErrAmbiguousRecipient = errors.New("ambiguous recipient")

// UpsertSkeletonAgent creates a bare agent row if name is not already
// known, leaving an existing row untouched (spec §3: "created lazily
// on first mention, upgraded on explicit registration").
func (s *Store) UpsertSkeletonAgent(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (name, registered_at, last_seen_at)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM agents WHERE name = ?)`, name, Now(), Now(), name)
		return err
	})
}

// RegisterAgent upserts a full registration, overwriting role/description,
// keyed on (team, name) so two agents can share a bare name across teams
// (spec §4.4 recipient ambiguity).
func (s *Store) RegisterAgent(ctx context.Context, name, team, role, description, status string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (name, team, role, description, status, registered_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(team, name) DO UPDATE SET
				role = excluded.role,
				description = excluded.description,
				status = excluded.status,
				last_seen_at = excluded.last_seen_at`,
			name, team, role, description, status, Now(), Now())
		return err
	})
}

// DeregisterAgent removes an agent's row entirely.
func (s *Store) DeregisterAgent(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE name = ?`, name)
		return err
	})
}

// SetAgentStatus updates an agent's free-text status.
func (s *Store) SetAgentStatus(ctx context.Context, name, status string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE agents SET status = ?, last_seen_at = ? WHERE name = ?`, status, Now(), name)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("agent %q not registered", name)
		}
		return nil
	})
}

// Touch bumps last_seen_at for name, creating a skeleton row first if needed.
func (s *Store) Touch(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE agents SET last_seen_at = ? WHERE name = ?`, Now(), name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agents (name, registered_at, last_seen_at)
			VALUES (?, ?, ?)`,
			name, Now(), Now())
		return err
	})
}

// Heartbeat bumps heartbeat_at and last_seen_at for name (the ping operation).
func (s *Store) Heartbeat(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE agents SET last_seen_at = ?, heartbeat_at = ? WHERE name = ?`, Now(), Now(), name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agents (name, registered_at, last_seen_at, heartbeat_at)
			VALUES (?, ?, ?, ?)`,
			name, Now(), Now(), Now())
		return err
	})
}

// SetLastInboxCheck bumps last_inbox_check and last_seen_at.
func (s *Store) SetLastInboxCheck(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE agents SET last_inbox_check = ?, last_seen_at = ? WHERE name = ?`, Now(), Now(), name)
		return err
	})
}

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var team, role, desc, status, lastSeen, lastInbox, heartbeat sql.NullString
	err := row.Scan(&a.Name, &team, &role, &desc, &status, &a.RegisteredAt, &lastSeen, &lastInbox, &heartbeat)
	a.Team, a.Role, a.Description, a.Status = team.String, role.String, desc.String, status.String
	a.LastSeenAt, a.LastInboxCheck, a.HeartbeatAt = lastSeen.String, lastInbox.String, heartbeat.String
	return a, err
}

const agentColumns = `name, team, role, description, status, registered_at, last_seen_at, last_inbox_check, heartbeat_at`

// GetAgent returns a single agent by exact bare name.
func (s *Store) GetAgent(ctx context.Context, name string) (Agent, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return Agent{}, false, nil
	}
	if err != nil {
		return Agent{}, false, fmt.Errorf("get agent: %w", err)
	}
	return a, true, nil
}

// ListAgents returns every agent.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListLeadNames returns the names of every agent currently registered with role=lead.
func (s *Store) ListLeadNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM agents WHERE role = ?`, RoleLead)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ListAllAgentNames returns every registered agent name.
func (s *Store) ListAllAgentNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("list agent names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ResolveRecipient implements spec §4.4's name resolution: if to
// contains no '/', match either an exact bare name or, if ambiguous,
// every team-qualified "<team>/<to>" row. Returns the resolved bare
// agent name to address.
func (s *Store) ResolveRecipient(ctx context.Context, to string) (string, error) {
	if strings.Contains(to, "/") {
		parts := strings.SplitN(to, "/", 2)
		team, name := parts[0], parts[1]
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE team = ? AND name = ?`, team, name).Scan(&exists)
		if err == sql.ErrNoRows {
			return name, nil // unknown team-qualified recipient: caller auto-creates a skeleton under the bare name
		}
		if err != nil {
			return "", fmt.Errorf("resolve team-qualified recipient: %w", err)
		}
		return name, nil
	}

	// Count every row with this bare name regardless of team: exactly one
	// is the unambiguous case, more than one means two team-qualified
	// agents share it and the caller must disambiguate.
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM agents WHERE name = ?`, to)
	if err != nil {
		return "", fmt.Errorf("resolve recipient: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		matches = append(matches, name)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return to, nil // unknown recipient: caller auto-creates a skeleton
	case 1:
		return matches[0], nil
	default:
		return "", ErrAmbiguousRecipient
	}
}
