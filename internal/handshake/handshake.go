// Package handshake implements spec §4.6's HandshakeCoordinator: the
// fan-out ACK barrier used to synchronize every agent on a shared
// checkpoint before a "GO signal".
package handshake

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/metrics"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/store"
)

const bodyPrefix = "[HANDSHAKE] "

// Coordinator binds HandshakeCoordinator's operations to a Store and
// Notifier.
type Coordinator struct {
	Store    *store.Store
	Notifier *notify.Notifier
}

// New builds a HandshakeCoordinator.
func New(st *store.Store, notifier *notify.Notifier) *Coordinator {
	return &Coordinator{Store: st, Notifier: notifier}
}

// Initiate is lead-only; if agents is empty, targets every registered
// agent other than the initiator. Fans out one [HANDSHAKE] message per
// target, anchors the handshake to the first inserted row, and pushes
// every target.
func (c *Coordinator) Initiate(ctx context.Context, initiator, body string, agents []string) (int64, error) {
	leads, err := c.Store.ListLeadNames(ctx)
	if err != nil {
		return 0, mcserr.Wrap("initiate_handshake", err)
	}
	if !isLeadOrBootstrap(initiator, leads) {
		return 0, mcserr.Unauthorized("initiate a handshake")
	}

	targets := agents
	if len(targets) == 0 {
		all, err := c.Store.ListAllAgentNames(ctx)
		if err != nil {
			return 0, mcserr.Wrap("initiate_handshake", err)
		}
		for _, a := range all {
			if a != initiator {
				targets = append(targets, a)
			}
		}
	}
	if len(targets) == 0 {
		return 0, mcserr.Wrap("initiate_handshake", fmt.Errorf("no targets to handshake with"))
	}

	now := store.Now()
	var handshakeID int64
	err = c.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var anchorID int64
		for i, target := range targets {
			id, err := store.InsertMessage(ctx, tx, store.Message{
				Sender: initiator, Recipient: target, Body: bodyPrefix + body, CreatedAt: now,
			})
			if err != nil {
				return err
			}
			if i == 0 {
				anchorID = id
			}
		}

		id, err := store.InsertHandshake(ctx, tx, initiator, anchorID, now)
		if err != nil {
			return err
		}
		handshakeID = id
		return nil
	})
	if err != nil {
		return 0, mcserr.Wrap("initiate_handshake", err)
	}

	c.Notifier.Notify(ctx, targets)
	metrics.HandshakesInitiated.Inc()
	return handshakeID, nil
}

// Ack records acker's acknowledgement, then re-evaluates completeness:
// if every registered agent other than the initiator has now acked,
// the handshake transitions to completed and the initiator plus every
// lead are notified of the GO signal.
func (c *Coordinator) Ack(ctx context.Context, acker string, handshakeID int64) (string, error) {
	var result string
	var completed bool
	var recipients []string

	err := c.Store.WithTx(ctx, func(tx *sql.Tx) error {
		hs, found, err := store.GetHandshakeTx(ctx, tx, handshakeID)
		if err != nil {
			return err
		}
		if !found {
			return mcserr.NotFound(fmt.Sprintf("handshake %d", handshakeID))
		}
		if hs.Status == store.HandshakeCompleted {
			return mcserr.Wrap("ack_handshake", fmt.Errorf("handshake %d already completed", handshakeID))
		}

		acked, err := store.ListAcksTx(ctx, tx, handshakeID)
		if err != nil {
			return err
		}
		for _, a := range acked {
			if a == acker {
				return mcserr.Wrap("ack_handshake", fmt.Errorf("%s has already acked handshake %d", acker, handshakeID))
			}
		}

		now := store.Now()
		if err := store.InsertAck(ctx, tx, handshakeID, acker, now); err != nil {
			return err
		}
		result = fmt.Sprintf("Acked handshake %d.", handshakeID)

		acked = append(acked, acker)
		all, err := allAgentsTx(ctx, tx)
		if err != nil {
			return err
		}
		if isSubsetExcluding(all, hs.Initiator, acked) {
			if err := store.SetHandshakeStatus(ctx, tx, handshakeID, store.HandshakeCompleted); err != nil {
				return err
			}
			completed = true

			goBody := fmt.Sprintf("[HANDSHAKE #%d] ALL AGENTS SYNCED. Ready for GO signal.", handshakeID)
			leads, err := leadNamesTx(ctx, tx)
			if err != nil {
				return err
			}
			recipients = append(recipients, hs.Initiator)
			recipients = append(recipients, leads...)
			for _, r := range dedup(recipients) {
				if _, err := store.InsertMessage(ctx, tx, store.Message{
					Sender: "system", Recipient: r, Body: goBody, CreatedAt: now,
				}); err != nil {
					return err
				}
			}
			recipients = dedup(recipients)
		}
		return nil
	})
	if err != nil {
		return "", mcserr.Wrap("ack_handshake", err)
	}

	if completed {
		c.Notifier.Notify(ctx, recipients)
		metrics.HandshakesCompleted.Inc()
	}
	return result, nil
}

// Status returns initiator, status, the full ACK set, and the
// outstanding pending set.
type Status struct {
	ID        int64             `json:"id"`
	Initiator string            `json:"initiator"`
	Status    string            `json:"status"`
	CreatedAt string            `json:"created_at"`
	Acked     map[string]string `json:"acked"`
	Pending   []string          `json:"pending"`
}

// Status returns the current state of handshakeID.
func (c *Coordinator) Status(ctx context.Context, handshakeID int64) (Status, error) {
	hs, found, err := c.Store.GetHandshake(ctx, handshakeID)
	if err != nil {
		return Status{}, mcserr.Wrap("handshake_status", err)
	}
	if !found {
		return Status{}, mcserr.NotFound(fmt.Sprintf("handshake %d", handshakeID))
	}

	ackers, err := c.Store.ListAcks(ctx, handshakeID)
	if err != nil {
		return Status{}, mcserr.Wrap("handshake_status", err)
	}
	all, err := c.Store.ListAllAgentNames(ctx)
	if err != nil {
		return Status{}, mcserr.Wrap("handshake_status", err)
	}

	ackedSet := make(map[string]bool, len(ackers))
	ackedTimes := make(map[string]string, len(ackers))
	for _, a := range ackers {
		ackedSet[a.Acker] = true
		ackedTimes[a.Acker] = a.AckedAt
	}

	var pending []string
	for _, a := range all {
		if a != hs.Initiator && !ackedSet[a] {
			pending = append(pending, a)
		}
	}

	return Status{
		ID: hs.ID, Initiator: hs.Initiator, Status: hs.Status, CreatedAt: hs.CreatedAt,
		Acked: ackedTimes, Pending: pending,
	}, nil
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

// isSubsetExcluding reports whether every name in all other than
// excluded is present in acked.
func isSubsetExcluding(all []string, excluded string, acked []string) bool {
	ackedSet := make(map[string]bool, len(acked))
	for _, a := range acked {
		ackedSet[a] = true
	}
	for _, name := range all {
		if name == excluded {
			continue
		}
		if !ackedSet[name] {
			return false
		}
	}
	return true
}

func dedup(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
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

func leadNamesTx(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM agents WHERE role = ?`, store.RoleLead)
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
