// Package file stores pool records and balances as JSON files in a
// directory: pools/<id>.json and balances.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/custody"
	"cpamm/internal/store"
)

const (
	poolsDir     = "pools"
	balancesFile = "balances.json"
)

// Store is a directory-backed store. Commit stages both files before
// renaming either, so a failed commit leaves the directory as it was. A crash
// between the two renames can still leave them out of step.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ store.Store = (*Store)(nil)

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, poolsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) LoadPool(_ context.Context, id common.Hash) (amm.Pool, error) {
	data, err := os.ReadFile(s.poolPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return amm.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), store.ErrNotFound)
		}
		return amm.Pool{}, fmt.Errorf("read pool: %w", err)
	}
	var p amm.Pool
	if err := json.Unmarshal(data, &p); err != nil {
		return amm.Pool{}, fmt.Errorf("parse pool: %w", err)
	}
	if err := amm.CheckInvariants(p); err != nil {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	return p, nil
}

func (s *Store) ListPools(ctx context.Context) ([]amm.Pool, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, poolsDir))
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	pools := make([]amm.Pool, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		p, err := s.LoadPool(ctx, common.HexToHash(strings.TrimSuffix(name, ".json")))
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.Hex() < pools[j].ID.Hex()
	})
	return pools, nil
}

func (s *Store) LoadBalances(_ context.Context) ([]custody.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBalances()
}

func (s *Store) Commit(_ context.Context, pool *amm.Pool, balances []custody.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var staged []string
	defer func() {
		for _, path := range staged {
			if path != "" {
				os.Remove(path + ".tmp")
			}
		}
	}()

	if pool != nil {
		data, err := json.MarshalIndent(pool, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal pool: %w", err)
		}
		path := s.poolPath(pool.ID)
		staged = append(staged, path)
		if err := os.WriteFile(path+".tmp", data, 0o644); err != nil {
			return fmt.Errorf("write pool: %w", err)
		}
	}
	if len(balances) > 0 {
		current, err := s.readBalances()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(store.MergeBalances(current, balances), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal balances: %w", err)
		}
		path := filepath.Join(s.dir, balancesFile)
		staged = append(staged, path)
		if err := os.WriteFile(path+".tmp", data, 0o644); err != nil {
			return fmt.Errorf("write balances: %w", err)
		}
	}

	// Nothing is visible until the first rename.
	for i, path := range staged {
		if err := os.Rename(path+".tmp", path); err != nil {
			return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
		}
		staged[i] = ""
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) readBalances() ([]custody.Balance, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, balancesFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read balances: %w", err)
	}
	var balances []custody.Balance
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("parse balances: %w", err)
	}
	return balances, nil
}

func (s *Store) poolPath(id common.Hash) string {
	return filepath.Join(s.dir, poolsDir, id.Hex()+".json")
}
