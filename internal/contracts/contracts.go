// Package contracts implements spec §4.7's ContractRegistry: versioned
// interface contracts shared across agents, broadcasting updates to
// everyone else on a version bump.
package contracts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/store"
)

// Registry binds ContractRegistry's operations to a Store and Notifier.
type Registry struct {
	Store    *store.Store
	Notifier *notify.Notifier
}

// New builds a ContractRegistry.
func New(st *store.Store, notifier *notify.Notifier) *Registry {
	return &Registry{Store: st, Notifier: notifier}
}

// Declare inserts a new contract at version 1, or bumps an existing
// one's version and broadcasts the update to every other registered
// agent.
func (r *Registry) Declare(ctx context.Context, owner, name, kind, spec, project string) (store.Contract, error) {
	if !store.ContractKinds[kind] {
		return store.Contract{}, mcserr.InvalidKind(kind)
	}

	now := store.Now()
	var contract store.Contract
	var isUpdate bool
	var recipients []string

	err := r.Store.WithTx(ctx, func(tx *sql.Tx) error {
		version, err := store.UpsertContract(ctx, tx, store.Contract{
			Project: project, Name: name, Kind: kind, Owner: owner, Spec: spec,
		}, now)
		if err != nil {
			return err
		}
		contract = store.Contract{Project: project, Name: name, Kind: kind, Owner: owner, Spec: spec, Version: version, UpdatedAt: now}
		isUpdate = version > 1
		if !isUpdate {
			return nil
		}

		all, err := allAgentsTx(ctx, tx)
		if err != nil {
			return err
		}
		body := fmt.Sprintf("[CONTRACT v%d] %s '%s' updated by %s: %s", version, kind, name, owner, spec)
		for _, agent := range all {
			if agent == owner {
				continue
			}
			if _, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: "system", Recipient: agent, Body: body, CreatedAt: now,
			}); err != nil {
				return err
			}
			recipients = append(recipients, agent)
		}
		return nil
	})
	if err != nil {
		return store.Contract{}, mcserr.Wrap("declare_contract", err)
	}

	if isUpdate {
		r.Notifier.Notify(ctx, recipients)
	}
	return contract, nil
}

// List returns contracts matching the given filters, sorted by
// (kind, name).
func (r *Registry) List(ctx context.Context, project, owner, kind string) ([]store.Contract, error) {
	contracts, err := r.Store.ListContracts(ctx, project, kind)
	if err != nil {
		return nil, mcserr.Wrap("list_contracts", err)
	}
	if owner == "" {
		return contracts, nil
	}
	var out []store.Contract
	for _, c := range contracts {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func allAgentsTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM agents`)
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
