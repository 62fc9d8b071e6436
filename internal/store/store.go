// Package store defines persistence for pool records and ledger balances.
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/custody"
)

// ErrNotFound is returned when a pool record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists pool records and the custody ledger.
type Store interface {
	LoadPool(ctx context.Context, id common.Hash) (amm.Pool, error)
	ListPools(ctx context.Context) ([]amm.Pool, error)
	LoadBalances(ctx context.Context) ([]custody.Balance, error)
	// Commit writes pool (when non-nil) and the changed balances together.
	// A zero amount removes the balance.
	Commit(ctx context.Context, pool *amm.Pool, balances []custody.Balance) error
	Close() error
}

// MergeBalances applies changes to current and returns the result without
// zero entries.
func MergeBalances(current, changes []custody.Balance) []custody.Balance {
	type key struct{ owner, asset common.Address }
	index := make(map[key]int, len(current))
	out := make([]custody.Balance, 0, len(current)+len(changes))
	for _, b := range current {
		index[key{b.Owner, b.Asset}] = len(out)
		out = append(out, b)
	}
	for _, b := range changes {
		k := key{b.Owner, b.Asset}
		if i, ok := index[k]; ok {
			out[i].Amount = b.Amount
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	kept := out[:0]
	for _, b := range out {
		if b.Amount != 0 {
			kept = append(kept, b)
		}
	}
	return kept
}
