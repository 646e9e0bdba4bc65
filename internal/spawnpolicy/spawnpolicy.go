// Package spawnpolicy implements spec §4.8's SpawnPolicy: effective
// policy resolution and the minion activity log.
package spawnpolicy

import (
	"context"
	"fmt"

	"github.com/agentmesh/mcs/internal/mcserr"
	"github.com/agentmesh/mcs/internal/store"
)

// globalScope is the store row key for the "global" scope spec §3
// names literally.
const globalScope = ""

// Governor binds SpawnPolicy's operations to a Store.
type Governor struct {
	Store *store.Store
}

// New builds a SpawnPolicy governor.
func New(st *store.Store) *Governor {
	return &Governor{Store: st}
}

// Set is lead-only; upserts the policy for scope ("global" or a
// specific agent name).
func (g *Governor) Set(ctx context.Context, actor, scope string, enabled bool, max int) (string, error) {
	leads, err := g.Store.ListLeadNames(ctx)
	if err != nil {
		return "", mcserr.Wrap("set_spawn_policy", err)
	}
	if !isLeadOrBootstrap(actor, leads) {
		return "", mcserr.Unauthorized("set spawn policy")
	}

	key := scope
	if scope == "global" {
		key = globalScope
	}
	if err := g.Store.UpsertSpawnPolicy(ctx, key, enabled, max, actor); err != nil {
		return "", mcserr.Wrap("set_spawn_policy", err)
	}
	return fmt.Sprintf("Spawn policy for %s set: enabled=%t max=%d.", scope, enabled, max), nil
}

// EffectivePolicy is get_spawn_policy's response shape (spec §4.8).
type EffectivePolicy struct {
	Enabled       bool `json:"enabled"`
	MaxMinions    int  `json:"max_minions"`
	ActiveMinions int  `json:"active_minions"`
	CanSpawn      bool `json:"can_spawn"`
}

// Get resolves the effective policy for agent: agent-specific scope,
// then global, then the hardcoded default.
func (g *Governor) Get(ctx context.Context, agent string) (EffectivePolicy, error) {
	policy, err := g.Store.GetSpawnPolicy(ctx, agent)
	if err != nil {
		return EffectivePolicy{}, mcserr.Wrap("get_spawn_policy", err)
	}
	active, err := g.Store.CountActiveMinions(ctx, agent)
	if err != nil {
		return EffectivePolicy{}, mcserr.Wrap("get_spawn_policy", err)
	}
	return EffectivePolicy{
		Enabled: policy.Enabled, MaxMinions: policy.Max, ActiveMinions: active,
		CanSpawn: policy.Enabled && active < policy.Max,
	}, nil
}

// LogMinion records a minion lifecycle event: spawned inserts a fresh
// row, completed/failed updates the pilot's most recent still-spawned
// row (spec §4.8).
func (g *Governor) LogMinion(ctx context.Context, pilot, description, status, result string) (string, error) {
	switch status {
	case store.MinionSpawned:
		id, err := g.Store.InsertMinionLog(ctx, pilot, description)
		if err != nil {
			return "", mcserr.Wrap("log_minion", err)
		}
		return fmt.Sprintf("Minion %d logged for %s.", id, pilot), nil
	case store.MinionCompleted, store.MinionFailed:
		if err := g.Store.CloseMostRecentMinion(ctx, pilot, status, result); err != nil {
			return "", mcserr.NoActiveMinion(pilot)
		}
		return fmt.Sprintf("Minion for %s marked %s.", pilot, status), nil
	default:
		return "", mcserr.Wrap("log_minion", fmt.Errorf("invalid minion status %q", status))
	}
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
