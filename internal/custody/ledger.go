// Package custody keeps asset and share balances per owner and executes pool
// custodian instructions as staged transactions that publish all at once.
package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance exceeds uint64")
	ErrConflict          = errors.New("balances changed since transaction began")
	ErrTxDone            = errors.New("transaction already applied or discarded")
)

// Balance is the amount of one asset held by one owner. Share tokens are
// assets named by their pool's share mint.
type Balance struct {
	Owner  common.Address `json:"owner"`
	Asset  common.Address `json:"asset"`
	Amount uint64         `json:"amount"`
}

type account struct {
	owner common.Address
	asset common.Address
}

// Ledger is the committed balance sheet. It is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[account]uint64
}

// NewLedger returns a ledger seeded with balances.
func NewLedger(balances []Balance) *Ledger {
	l := &Ledger{}
	l.Restore(balances)
	return l
}

// Balance returns the committed amount of asset held by owner.
func (l *Ledger) Balance(owner, asset common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account{owner, asset}]
}

// Supply returns the committed total of asset across all owners. For a share
// mint this is the outstanding share count. Holdings that sum past uint64
// report ErrBalanceOverflow.
func (l *Ledger) Supply(asset common.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for k, v := range l.balances {
		if k.asset != asset {
			continue
		}
		if total > math.MaxUint64-v {
			return 0, fmt.Errorf("supply of %s: %w", asset.Hex(), ErrBalanceOverflow)
		}
		total += v
	}
	return total, nil
}

// Snapshot returns every non-zero balance ordered by owner then asset.
func (l *Ledger) Snapshot() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Balance, 0, len(l.balances))
	for k, v := range l.balances {
		out = append(out, Balance{Owner: k.owner, Asset: k.asset, Amount: v})
	}
	sortBalances(out)
	return out
}

// Restore replaces the ledger contents.
func (l *Ledger) Restore(balances []Balance) {
	next := make(map[account]uint64, len(balances))
	for _, b := range balances {
		if b.Amount == 0 {
			continue
		}
		next[account{b.Owner, b.Asset}] = b.Amount
	}
	l.mu.Lock()
	l.balances = next
	l.mu.Unlock()
}

// Begin opens a transaction against the current balances.
func (l *Ledger) Begin() *Tx {
	return &Tx{
		ledger: l,
		base:   make(map[account]uint64),
		staged: make(map[account]uint64),
	}
}

// Apply publishes tx. persist receives the changed balances and runs under
// the ledger lock; if it fails, or any balance tx read has changed since,
// nothing is published.
func (l *Ledger) Apply(tx *Tx, persist func([]Balance) error) error {
	if tx.ledger != l {
		return errors.New("apply: transaction belongs to another ledger")
	}
	if tx.done {
		return ErrTxDone
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range tx.base {
		if l.balances[k] != v {
			return fmt.Errorf("apply: %s/%s: %w", k.owner.Hex(), k.asset.Hex(), ErrConflict)
		}
	}
	changes := tx.Changes()
	if persist != nil {
		if err := persist(changes); err != nil {
			return fmt.Errorf("apply: persist: %w", err)
		}
	}
	for k, v := range tx.staged {
		if v == 0 {
			delete(l.balances, k)
			continue
		}
		l.balances[k] = v
	}
	tx.done = true
	return nil
}

// Tx stages balance changes. A Tx is used by one goroutine.
type Tx struct {
	ledger *Ledger
	base   map[account]uint64
	staged map[account]uint64
	done   bool
}

var _ amm.Custodian = (*Tx)(nil)

// Move transfers amount of asset between two owners.
func (tx *Tx) Move(_ context.Context, asset, from, to common.Address, amount uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.debit(from, asset, amount); err != nil {
		return fmt.Errorf("move %s from %s: %w", asset.Hex(), from.Hex(), err)
	}
	if err := tx.credit(to, asset, amount); err != nil {
		return fmt.Errorf("move %s to %s: %w", asset.Hex(), to.Hex(), err)
	}
	return nil
}

// Mint creates amount of the share token and credits it to to.
func (tx *Tx) Mint(_ context.Context, shareMint, to common.Address, amount uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.credit(to, shareMint, amount); err != nil {
		return fmt.Errorf("mint %s: %w", shareMint.Hex(), err)
	}
	return nil
}

// Burn destroys amount of the share token held by from.
func (tx *Tx) Burn(_ context.Context, shareMint, from common.Address, amount uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.debit(from, shareMint, amount); err != nil {
		return fmt.Errorf("burn %s from %s: %w", shareMint.Hex(), from.Hex(), err)
	}
	return nil
}

// Credit adds amount of asset to owner out of thin air. It backs the
// funding path of development hosts.
func (tx *Tx) Credit(owner, asset common.Address, amount uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.credit(owner, asset, amount); err != nil {
		return fmt.Errorf("credit %s: %w", asset.Hex(), err)
	}
	return nil
}

// Discard abandons tx.
func (tx *Tx) Discard() {
	tx.done = true
}

// Changes returns the staged balances that differ from what tx read, in
// owner, asset order.
func (tx *Tx) Changes() []Balance {
	out := make([]Balance, 0, len(tx.staged))
	for k, v := range tx.staged {
		if tx.base[k] == v {
			continue
		}
		out = append(out, Balance{Owner: k.owner, Asset: k.asset, Amount: v})
	}
	sortBalances(out)
	return out
}

func (tx *Tx) get(k account) uint64 {
	if v, ok := tx.staged[k]; ok {
		return v
	}
	tx.ledger.mu.RLock()
	v := tx.ledger.balances[k]
	tx.ledger.mu.RUnlock()
	tx.base[k] = v
	tx.staged[k] = v
	return v
}

func (tx *Tx) debit(owner, asset common.Address, amount uint64) error {
	k := account{owner, asset}
	have := tx.get(k)
	if have < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, have, amount)
	}
	tx.staged[k] = have - amount
	return nil
}

func (tx *Tx) credit(owner, asset common.Address, amount uint64) error {
	k := account{owner, asset}
	have := tx.get(k)
	if have > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	tx.staged[k] = have + amount
	return nil
}

func sortBalances(b []Balance) {
	sort.Slice(b, func(i, j int) bool {
		if c := bytes.Compare(b[i].Owner.Bytes(), b[j].Owner.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(b[i].Asset.Bytes(), b[j].Asset.Bytes()) < 0
	})
}
