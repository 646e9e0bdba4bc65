package store

import (
	"context"
	"database/sql"
	"fmt"
)

const contractColumns = `project, name, kind, owner, spec, version, created_at, updated_at`

func scanContract(row interface{ Scan(...any) error }) (Contract, error) {
	var c Contract
	err := row.Scan(&c.Project, &c.Name, &c.Kind, &c.Owner, &c.Spec, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetContractTx reads a contract row by its (project, name, kind)
// key inside an in-flight transaction, for version-bump logic.
func GetContractTx(ctx context.Context, tx *sql.Tx, project, name, kind string) (Contract, bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE project = ? AND name = ? AND kind = ?`, project, name, kind)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return Contract{}, false, nil
	}
	if err != nil {
		return Contract{}, false, fmt.Errorf("get contract: %w", err)
	}
	return c, true, nil
}

// UpsertContract inserts a new contract at version 1, or updates an
// existing one's spec/owner and bumps version by one (spec §4.7).
func UpsertContract(ctx context.Context, tx *sql.Tx, c Contract, now string) (int, error) {
	existing, found, err := GetContractTx(ctx, tx, c.Project, c.Name, c.Kind)
	if err != nil {
		return 0, err
	}
	if !found {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (project, name, kind, owner, spec, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)`, c.Project, c.Name, c.Kind, c.Owner, c.Spec, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert contract: %w", err)
		}
		return 1, nil
	}

	version := existing.Version + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE contracts SET owner = ?, spec = ?, version = ?, updated_at = ?
		WHERE project = ? AND name = ? AND kind = ?`,
		c.Owner, c.Spec, version, now, c.Project, c.Name, c.Kind)
	if err != nil {
		return 0, fmt.Errorf("update contract: %w", err)
	}
	return version, nil
}

// ListContracts returns contracts optionally filtered by project
// and/or kind, ordered by (kind, name) per spec §4.7.
func (s *Store) ListContracts(ctx context.Context, project, kind string) ([]Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE 1=1`
	var args []any
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
